package scope

import (
	"sort"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"pyrename/internal/engine/parser"
)

// Build walks a parsed module once to declare bindings, then resolves every
// remaining occurrence by upward lookup.
func Build(file *parser.SourceFile) *Tree {
	root := file.Root()
	end := len(file.Content)
	t := &Tree{File: file}
	t.Root = newScope(ModuleScope, "", nil, 0, end+1)
	t.Scopes = append(t.Scopes, t.Root)

	b := &builder{file: file, tree: t, heads: make(map[int]*Occurrence)}
	if root != nil {
		b.walk(root, t.Root)
	}

	sort.SliceStable(t.Occurrences, func(i, j int) bool {
		return t.Occurrences[i].Span.Start.Offset < t.Occurrences[j].Span.Start.Offset
	})
	for _, occ := range t.Occurrences {
		if occ.Binding == nil {
			occ.Binding = t.Lookup(occ.Name, occ.Scope, occ.Span.Start.Offset)
		}
	}
	return t
}

type builder struct {
	file  *parser.SourceFile
	tree  *Tree
	heads map[int]*Occurrence
}

func (b *builder) text(node *sitter.Node) string {
	return b.file.Text(node)
}

func (b *builder) open(kind Kind, name string, parent *Scope, node *sitter.Node) *Scope {
	s := newScope(kind, name, parent, int(node.StartByte()), int(node.EndByte()))
	b.tree.Scopes = append(b.tree.Scopes, s)
	return s
}

func (b *builder) occurrence(node *sitter.Node, s *Scope, role Role, binding *Binding) *Occurrence {
	occ := &Occurrence{
		Name:    b.text(node),
		Span:    b.file.SpanOf(node),
		Scope:   s,
		Role:    role,
		Binding: binding,
	}
	b.tree.Occurrences = append(b.tree.Occurrences, occ)
	b.heads[occ.Span.Start.Offset] = occ
	return occ
}

// declare binds the identifier node in s, honouring global and nonlocal
// redirection. A nonlocal store is resolved later with the loads.
func (b *builder) declare(node *sitter.Node, s *Scope, kind BindingKind, role Role) *Binding {
	name := b.text(node)
	target := s
	switch {
	case s.globals[name]:
		target = b.tree.Root
	case s.nonlocals[name]:
		b.occurrence(node, s, role, nil)
		return nil
	}

	span := b.file.SpanOf(node)
	binding := target.bindings[name]
	if binding == nil {
		binding = &Binding{
			ID:    len(b.tree.Bindings),
			Name:  name,
			Kind:  kind,
			Scope: target,
			Span:  span,
		}
		target.bindings[name] = binding
		b.tree.Bindings = append(b.tree.Bindings, binding)
	}
	binding.Defs = append(binding.Defs, span)
	b.occurrence(node, s, role, binding)
	return binding
}

func (b *builder) walkChildren(node *sitter.Node, s *Scope) {
	for i := uint(0); i < node.ChildCount(); i++ {
		b.walk(node.Child(i), s)
	}
}

func (b *builder) walk(node *sitter.Node, s *Scope) {
	if node == nil {
		return
	}
	switch kind := parser.KindOf(node); kind {
	case parser.KindIdentifier:
		b.occurrence(node, s, RoleLoad, nil)
	case parser.KindAttribute:
		b.attribute(node, s, false)
	case parser.KindFunctionDefinition:
		b.function(node, s)
	case parser.KindClassDefinition:
		b.class(node, s)
	case parser.KindLambda:
		b.lambda(node, s)
	case parser.KindAssignment:
		b.assignment(node, s)
	case parser.KindAugmentedAssignment:
		b.augmented(node, s)
	case parser.KindNamedExpression:
		b.walrus(node, s)
	case parser.KindForStatement:
		b.walk(node.ChildByFieldName("right"), s)
		b.target(node.ChildByFieldName("left"), s)
		b.walk(node.ChildByFieldName("body"), s)
		b.walk(node.ChildByFieldName("alternative"), s)
	case parser.KindAsPattern:
		b.asPattern(node, s, false)
	case parser.KindExceptClause:
		b.except(node, s)
	case parser.KindImportStatement:
		b.importStatement(node, s)
	case parser.KindImportFromStatement:
		b.fromImport(node, s)
	case parser.KindGlobalStatement, parser.KindNonlocalStatement:
		b.declaration(node, s, kind == parser.KindGlobalStatement)
	case parser.KindListComprehension, parser.KindSetComprehension,
		parser.KindDictionaryComprehension, parser.KindGeneratorExpression:
		b.comprehension(node, s)
	case parser.KindKeywordArgument:
		b.walk(node.ChildByFieldName("value"), s)
	case parser.KindCaseClause:
		b.caseClause(node, s)
	case parser.KindCall:
		b.walkChildren(node, s)
		if s == b.tree.Root {
			b.exportCall(node)
		}
	case parser.KindFutureImportStatement, parser.KindComment, parser.KindStringContent:
		return
	case parser.KindDottedName:
		b.dotted(node, s)
	case parser.KindModule, parser.KindDecoratedDefinition, parser.KindDecorator, parser.KindWithItem,
		parser.KindParameters, parser.KindLambdaParameters, parser.KindTypedParameter,
		parser.KindDefaultParameter, parser.KindTypedDefaultParameter,
		parser.KindListSplatPattern, parser.KindDictionarySplatPattern,
		parser.KindAsPatternTarget, parser.KindAliasedImport, parser.KindRelativeImport,
		parser.KindImportPrefix, parser.KindWildcardImport, parser.KindForInClause,
		parser.KindPatternList, parser.KindTuplePattern, parser.KindListPattern,
		parser.KindTuple, parser.KindList, parser.KindParenthesizedExpression,
		parser.KindSubscript, parser.KindConcatenatedString, parser.KindInterpolation,
		parser.KindString, parser.KindCasePattern, parser.KindClassPattern,
		parser.KindKeywordPattern, parser.KindSplatPattern, parser.KindExpressionStatement,
		parser.KindError, parser.KindOther:
		b.walkChildren(node, s)
	}
}

// dotted treats a dotted name outside of an import as a load of its head and
// attribute accesses for the rest.
func (b *builder) dotted(node *sitter.Node, s *Scope) {
	var parts []*sitter.Node
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if child := node.NamedChild(i); parser.KindOf(child) == parser.KindIdentifier {
			parts = append(parts, child)
		}
	}
	if len(parts) == 0 {
		return
	}
	head := b.occurrence(parts[0], s, RoleLoad, nil)
	chain := []string{head.Name}
	for _, part := range parts[1:] {
		name := b.text(part)
		b.tree.Attributes = append(b.tree.Attributes, &Attribute{
			Chain: append([]string(nil), chain...),
			Head:  head,
			Name:  name,
			Span:  b.file.SpanOf(part),
			Scope: s,
		})
		chain = append(chain, name)
	}
}

func (b *builder) attribute(node *sitter.Node, s *Scope, store bool) {
	object := node.ChildByFieldName("object")
	attr := node.ChildByFieldName("attribute")
	b.walk(object, s)
	if attr == nil {
		return
	}
	a := &Attribute{
		Name:  b.text(attr),
		Span:  b.file.SpanOf(attr),
		Scope: s,
		Store: store,
	}
	if chain, head := b.chain(object); chain != nil {
		a.Chain = chain
		a.Head = b.heads[int(head.StartByte())]
	}
	b.tree.Attributes = append(b.tree.Attributes, a)
}

// chain flattens identifier and attribute nodes into their dotted names.
func (b *builder) chain(node *sitter.Node) ([]string, *sitter.Node) {
	switch parser.KindOf(node) {
	case parser.KindIdentifier:
		return []string{b.text(node)}, node
	case parser.KindAttribute:
		prefix, head := b.chain(node.ChildByFieldName("object"))
		attr := node.ChildByFieldName("attribute")
		if prefix == nil || attr == nil {
			return nil, nil
		}
		return append(prefix, b.text(attr)), head
	default:
		return nil, nil
	}
}

func (b *builder) function(node *sitter.Node, s *Scope) {
	nameNode := node.ChildByFieldName("name")
	var binding *Binding
	if nameNode != nil {
		binding = b.declare(nameNode, s, BindFunction, RoleStore)
	}
	b.walk(node.ChildByFieldName("type_parameters"), s)
	b.walk(node.ChildByFieldName("return_type"), s)

	fs := b.open(FunctionScope, b.text(nameNode), s, node)
	fs.Owner = binding
	if binding != nil && binding.Body == nil {
		binding.Body = fs
	}
	b.parameters(node.ChildByFieldName("parameters"), s, fs)
	if b.staticMethod(node) {
		fs.SelfParam = ""
	}
	b.walk(node.ChildByFieldName("body"), fs)
}

// staticMethod reports whether def is decorated with @staticmethod. Its first
// parameter is an ordinary argument, not the instance.
func (b *builder) staticMethod(def *sitter.Node) bool {
	parent := def.Parent()
	if parent == nil || parser.KindOf(parent) != parser.KindDecoratedDefinition {
		return false
	}
	for i := uint(0); i < parent.NamedChildCount(); i++ {
		dec := parent.NamedChild(i)
		if parser.KindOf(dec) != parser.KindDecorator || dec.NamedChildCount() == 0 {
			continue
		}
		name := b.text(dec.NamedChild(0))
		if name == "staticmethod" || strings.HasSuffix(name, ".staticmethod") {
			return true
		}
	}
	return false
}

func (b *builder) lambda(node *sitter.Node, s *Scope) {
	ls := b.open(FunctionScope, "<lambda>", s, node)
	b.parameters(node.ChildByFieldName("parameters"), s, ls)
	b.walk(node.ChildByFieldName("body"), ls)
}

// parameters binds parameter names in inner; defaults and annotations are
// evaluated in outer.
func (b *builder) parameters(params *sitter.Node, outer, inner *Scope) {
	if params == nil {
		return
	}
	first := true
	for i := uint(0); i < params.NamedChildCount(); i++ {
		p := params.NamedChild(i)
		nameNode := b.parameter(p, outer, inner)
		if first && nameNode != nil && outer.Kind == ClassScope && inner.Name != "<lambda>" {
			inner.SelfParam = b.text(nameNode)
		}
		if nameNode != nil {
			first = false
		}
	}
}

func (b *builder) parameter(p *sitter.Node, outer, inner *Scope) *sitter.Node {
	switch parser.KindOf(p) {
	case parser.KindIdentifier:
		b.declare(p, inner, BindParameter, RoleStore)
		return p
	case parser.KindTypedParameter:
		b.walk(p.ChildByFieldName("type"), outer)
		for i := uint(0); i < p.NamedChildCount(); i++ {
			child := p.NamedChild(i)
			if same(child, p.ChildByFieldName("type")) {
				continue
			}
			if name := b.parameter(child, outer, inner); name != nil {
				return name
			}
		}
	case parser.KindDefaultParameter, parser.KindTypedDefaultParameter:
		b.walk(p.ChildByFieldName("type"), outer)
		b.walk(p.ChildByFieldName("value"), outer)
		if name := p.ChildByFieldName("name"); name != nil {
			if parser.KindOf(name) == parser.KindIdentifier {
				b.declare(name, inner, BindParameter, RoleStore)
				return name
			}
			b.target(name, inner)
		}
	case parser.KindListSplatPattern, parser.KindDictionarySplatPattern:
		for i := uint(0); i < p.NamedChildCount(); i++ {
			if child := p.NamedChild(i); parser.KindOf(child) == parser.KindIdentifier {
				b.declare(child, inner, BindParameter, RoleStore)
				return child
			}
		}
	case parser.KindTuplePattern:
		b.targetAs(p, inner, BindParameter)
	}
	return nil
}

func (b *builder) class(node *sitter.Node, s *Scope) {
	nameNode := node.ChildByFieldName("name")
	var binding *Binding
	if nameNode != nil {
		binding = b.declare(nameNode, s, BindClass, RoleStore)
	}
	b.walk(node.ChildByFieldName("type_parameters"), s)
	b.walk(node.ChildByFieldName("superclasses"), s)

	cs := b.open(ClassScope, b.text(nameNode), s, node)
	cs.Owner = binding
	if binding != nil && binding.Body == nil {
		binding.Body = cs
	}
	b.walk(node.ChildByFieldName("body"), cs)
}

func (b *builder) assignment(node *sitter.Node, s *Scope) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	b.walk(right, s)
	b.walk(node.ChildByFieldName("type"), s)
	if right == nil && node.ChildByFieldName("type") != nil && parser.KindOf(left) == parser.KindIdentifier {
		// A bare annotation declares the name without assigning it.
		b.declare(left, s, BindVariable, RoleStore)
		return
	}
	b.target(left, s)
	if s == b.tree.Root && parser.KindOf(left) == parser.KindIdentifier && b.text(left) == "__all__" && right != nil {
		b.tree.Exports.Explicit = true
		b.tree.Exports.Entries = nil
		b.exportStrings(right)
	}
}

func (b *builder) augmented(node *sitter.Node, s *Scope) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	b.walk(right, s)
	if parser.KindOf(left) != parser.KindIdentifier {
		b.walk(left, s)
		return
	}
	// x += 1 makes x local to a function even without a prior store.
	b.declare(left, s, BindVariable, RoleStore)
	if s == b.tree.Root && b.text(left) == "__all__" && right != nil {
		b.tree.Exports.Explicit = true
		b.exportStrings(right)
	}
}

func (b *builder) walrus(node *sitter.Node, s *Scope) {
	b.walk(node.ChildByFieldName("value"), s)
	target := s
	for target.Kind == ComprehensionScope && target.Parent != nil {
		target = target.Parent
	}
	if name := node.ChildByFieldName("name"); name != nil {
		if target == s {
			b.declare(name, s, BindVariable, RoleStore)
			return
		}
		binding := b.declare(name, target, BindVariable, RoleStore)
		if binding != nil {
			b.tree.Occurrences[len(b.tree.Occurrences)-1].Scope = s
		}
	}
}

// target binds every name in an assignment target.
func (b *builder) target(node *sitter.Node, s *Scope) {
	b.targetAs(node, s, BindVariable)
}

func (b *builder) targetAs(node *sitter.Node, s *Scope, kind BindingKind) {
	if node == nil {
		return
	}
	switch k := parser.KindOf(node); {
	case k == parser.KindIdentifier:
		b.declare(node, s, kind, RoleStore)
	case k.IsTargetPattern(), k == parser.KindListSplatPattern, k == parser.KindAsPatternTarget:
		for i := uint(0); i < node.NamedChildCount(); i++ {
			b.targetAs(node.NamedChild(i), s, kind)
		}
	case k == parser.KindAttribute:
		b.attribute(node, s, true)
	default:
		b.walk(node, s)
	}
}

// asPattern binds the `as` target; capture selects match-statement semantics
// for the subject pattern.
func (b *builder) asPattern(node *sitter.Node, s *Scope, capture bool) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if parser.KindOf(child) == parser.KindAsPatternTarget {
			b.target(child, s)
			continue
		}
		if same(child, node.ChildByFieldName("alias")) {
			b.target(child, s)
			continue
		}
		if capture {
			b.pattern(child, s)
		} else {
			b.walk(child, s)
		}
	}
}

func same(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.Id() == b.Id()
}

func (b *builder) except(node *sitter.Node, s *Scope) {
	alias := node.ChildByFieldName("alias")
	if alias == nil {
		b.walkChildren(node, s)
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if same(child, alias) {
			b.target(child, s)
			continue
		}
		b.walk(child, s)
	}
}

func (b *builder) declaration(node *sitter.Node, s *Scope, global bool) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if parser.KindOf(child) != parser.KindIdentifier {
			continue
		}
		name := b.text(child)
		if global {
			s.globals[name] = true
		} else if s.Kind != ModuleScope {
			s.nonlocals[name] = true
		}
		b.occurrence(child, s, RoleDeclaration, nil)
	}
}

// comprehension evaluates the first iterable in the enclosing scope and
// everything else in a fresh comprehension scope.
func (b *builder) comprehension(node *sitter.Node, s *Scope) {
	cs := b.open(ComprehensionScope, "<comprehension>", s, node)
	first := true
	body := node.ChildByFieldName("body")
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if same(child, body) {
			continue
		}
		if parser.KindOf(child) == parser.KindForInClause {
			right := child.ChildByFieldName("right")
			if first {
				b.walk(right, s)
			} else {
				b.walk(right, cs)
			}
			b.target(child.ChildByFieldName("left"), cs)
			first = false
			continue
		}
		b.walk(child, cs)
	}
	b.walk(body, cs)
}

func (b *builder) caseClause(node *sitter.Node, s *Scope) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if parser.KindOf(child) == parser.KindCasePattern {
			b.pattern(child, s)
			continue
		}
		b.walk(child, s)
	}
}

// pattern binds match-statement captures. Dotted names are value patterns.
func (b *builder) pattern(node *sitter.Node, s *Scope) {
	switch parser.KindOf(node) {
	case parser.KindIdentifier:
		if b.text(node) != "_" {
			b.declare(node, s, BindVariable, RoleStore)
		}
	case parser.KindDottedName:
		if node.NamedChildCount() == 1 && b.text(node) != "_" {
			b.declare(node.NamedChild(0), s, BindVariable, RoleStore)
			return
		}
		b.dotted(node, s)
	case parser.KindClassPattern:
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if i == 0 && parser.KindOf(child) == parser.KindDottedName {
				b.dotted(child, s)
				continue
			}
			b.pattern(child, s)
		}
	case parser.KindKeywordPattern:
		for i := uint(1); i < node.NamedChildCount(); i++ {
			b.pattern(node.NamedChild(i), s)
		}
	case parser.KindSplatPattern:
		for i := uint(0); i < node.NamedChildCount(); i++ {
			b.pattern(node.NamedChild(i), s)
		}
	case parser.KindAsPattern:
		b.asPattern(node, s, true)
	case parser.KindString, parser.KindConcatenatedString:
		return
	case parser.KindAttribute:
		b.walk(node, s)
	default:
		for i := uint(0); i < node.NamedChildCount(); i++ {
			b.pattern(node.NamedChild(i), s)
		}
	}
}

func (b *builder) importStatement(node *sitter.Node, s *Scope) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch parser.KindOf(child) {
		case parser.KindDottedName:
			parts := b.identifiers(child)
			if len(parts) == 0 {
				continue
			}
			info := &ImportInfo{
				Module:   b.text(child),
				Target:   b.text(parts[0]),
				NameSpan: b.file.SpanOf(parts[0]),
				TopLevel: s == b.tree.Root,
			}
			b.bindImport(parts[0], s, BindModule, info)
		case parser.KindAliasedImport:
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			aliasSpan := b.file.SpanOf(alias)
			info := &ImportInfo{
				Module:    b.text(name),
				Target:    b.text(name),
				Alias:     b.text(alias),
				NameSpan:  b.file.SpanOf(name),
				AliasSpan: &aliasSpan,
				TopLevel:  s == b.tree.Root,
			}
			b.bindImport(alias, s, BindModule, info)
		}
	}
}

func (b *builder) fromImport(node *sitter.Node, s *Scope) {
	module, level := b.moduleReference(node.ChildByFieldName("module_name"))
	afterImport := false
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if !child.IsNamed() {
			if child.Kind() == "import" {
				afterImport = true
			}
			continue
		}
		if !afterImport {
			continue
		}
		switch parser.KindOf(child) {
		case parser.KindDottedName:
			parts := b.identifiers(child)
			if len(parts) != 1 {
				continue
			}
			info := &ImportInfo{
				Module:   module,
				Level:    level,
				Name:     b.text(parts[0]),
				NameSpan: b.file.SpanOf(parts[0]),
				TopLevel: s == b.tree.Root,
			}
			b.bindImport(parts[0], s, BindImport, info)
		case parser.KindAliasedImport:
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			aliasSpan := b.file.SpanOf(alias)
			info := &ImportInfo{
				Module:    module,
				Level:     level,
				Name:      b.text(name),
				Alias:     b.text(alias),
				NameSpan:  b.file.SpanOf(name),
				AliasSpan: &aliasSpan,
				TopLevel:  s == b.tree.Root,
			}
			b.bindImport(alias, s, BindImport, info)
		case parser.KindWildcardImport:
			b.tree.Imports = append(b.tree.Imports, &ImportInfo{
				Module:   module,
				Level:    level,
				Star:     true,
				NameSpan: b.file.SpanOf(child),
				TopLevel: s == b.tree.Root,
			})
		}
	}
}

func (b *builder) bindImport(node *sitter.Node, s *Scope, kind BindingKind, info *ImportInfo) {
	binding := b.declare(node, s, kind, RoleImport)
	if binding == nil {
		return
	}
	if binding.Import == nil {
		binding.Import = info
		binding.Kind = kind
	}
	info.Binding = binding
	b.tree.Imports = append(b.tree.Imports, info)
}

// moduleReference splits the module part of a from-import into its dotted
// name and relative depth.
func (b *builder) moduleReference(node *sitter.Node) (string, int) {
	if node == nil {
		return "", 0
	}
	switch parser.KindOf(node) {
	case parser.KindRelativeImport:
		level := 0
		module := ""
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			switch parser.KindOf(child) {
			case parser.KindImportPrefix:
				level = strings.Count(b.text(child), ".")
			case parser.KindDottedName:
				module = b.text(child)
			}
		}
		return module, level
	default:
		return b.text(node), 0
	}
}

func (b *builder) identifiers(node *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if child := node.NamedChild(i); parser.KindOf(child) == parser.KindIdentifier {
			out = append(out, child)
		}
	}
	return out
}
