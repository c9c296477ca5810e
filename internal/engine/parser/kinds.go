package parser

import sitter "github.com/tree-sitter/go-tree-sitter"

// NodeKind is the closed set of Python CST node kinds the engine reacts to.
// Everything else maps to KindOther and is traversed generically.
type NodeKind int

const (
	KindOther NodeKind = iota
	KindModule
	KindIdentifier
	KindAttribute
	KindDottedName
	KindFunctionDefinition
	KindClassDefinition
	KindDecoratedDefinition
	KindDecorator
	KindLambda
	KindParameters
	KindLambdaParameters
	KindTypedParameter
	KindDefaultParameter
	KindTypedDefaultParameter
	KindListSplatPattern
	KindDictionarySplatPattern
	KindAssignment
	KindAugmentedAssignment
	KindNamedExpression
	KindForStatement
	KindWithItem
	KindAsPattern
	KindAsPatternTarget
	KindExceptClause
	KindImportStatement
	KindImportFromStatement
	KindFutureImportStatement
	KindAliasedImport
	KindRelativeImport
	KindImportPrefix
	KindWildcardImport
	KindGlobalStatement
	KindNonlocalStatement
	KindListComprehension
	KindSetComprehension
	KindDictionaryComprehension
	KindGeneratorExpression
	KindForInClause
	KindKeywordArgument
	KindPatternList
	KindTuplePattern
	KindListPattern
	KindTuple
	KindList
	KindParenthesizedExpression
	KindSubscript
	KindCall
	KindConcatenatedString
	KindInterpolation
	KindString
	KindStringContent
	KindCaseClause
	KindCasePattern
	KindClassPattern
	KindKeywordPattern
	KindSplatPattern
	KindExpressionStatement
	KindComment
	KindError
)

var nodeKinds = map[string]NodeKind{
	"module":                   KindModule,
	"identifier":               KindIdentifier,
	"attribute":                KindAttribute,
	"dotted_name":              KindDottedName,
	"function_definition":      KindFunctionDefinition,
	"class_definition":         KindClassDefinition,
	"decorated_definition":     KindDecoratedDefinition,
	"decorator":                KindDecorator,
	"lambda":                   KindLambda,
	"parameters":               KindParameters,
	"lambda_parameters":        KindLambdaParameters,
	"typed_parameter":          KindTypedParameter,
	"default_parameter":        KindDefaultParameter,
	"typed_default_parameter":  KindTypedDefaultParameter,
	"list_splat_pattern":       KindListSplatPattern,
	"dictionary_splat_pattern": KindDictionarySplatPattern,
	"assignment":               KindAssignment,
	"augmented_assignment":     KindAugmentedAssignment,
	"named_expression":         KindNamedExpression,
	"for_statement":            KindForStatement,
	"with_item":                KindWithItem,
	"as_pattern":               KindAsPattern,
	"as_pattern_target":        KindAsPatternTarget,
	"except_clause":            KindExceptClause,
	"except_group_clause":      KindExceptClause,
	"import_statement":         KindImportStatement,
	"import_from_statement":    KindImportFromStatement,
	"future_import_statement":  KindFutureImportStatement,
	"aliased_import":           KindAliasedImport,
	"relative_import":          KindRelativeImport,
	"import_prefix":            KindImportPrefix,
	"wildcard_import":          KindWildcardImport,
	"global_statement":         KindGlobalStatement,
	"nonlocal_statement":       KindNonlocalStatement,
	"list_comprehension":       KindListComprehension,
	"set_comprehension":        KindSetComprehension,
	"dictionary_comprehension": KindDictionaryComprehension,
	"generator_expression":     KindGeneratorExpression,
	"for_in_clause":            KindForInClause,
	"keyword_argument":         KindKeywordArgument,
	"pattern_list":             KindPatternList,
	"tuple_pattern":            KindTuplePattern,
	"list_pattern":             KindListPattern,
	"tuple":                    KindTuple,
	"list":                     KindList,
	"parenthesized_expression": KindParenthesizedExpression,
	"subscript":                KindSubscript,
	"call":                     KindCall,
	"concatenated_string":      KindConcatenatedString,
	"interpolation":            KindInterpolation,
	"string":                   KindString,
	"string_content":           KindStringContent,
	"case_clause":              KindCaseClause,
	"case_pattern":             KindCasePattern,
	"class_pattern":            KindClassPattern,
	"keyword_pattern":          KindKeywordPattern,
	"splat_pattern":            KindSplatPattern,
	"expression_statement":     KindExpressionStatement,
	"comment":                  KindComment,
	"ERROR":                    KindError,
}

// KindOf classifies a tree-sitter node. A nil node is KindOther.
func KindOf(node *sitter.Node) NodeKind {
	if node == nil {
		return KindOther
	}
	if kind, ok := nodeKinds[node.Kind()]; ok {
		return kind
	}
	return KindOther
}

// IsComprehension reports whether the kind opens a comprehension scope.
func (k NodeKind) IsComprehension() bool {
	switch k {
	case KindListComprehension, KindSetComprehension, KindDictionaryComprehension, KindGeneratorExpression:
		return true
	}
	return false
}

// IsTargetPattern reports whether the kind is a destructuring target container.
func (k NodeKind) IsTargetPattern() bool {
	switch k {
	case KindPatternList, KindTuplePattern, KindListPattern, KindTuple, KindList, KindParenthesizedExpression:
		return true
	}
	return false
}
