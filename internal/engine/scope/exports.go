package scope

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"pyrename/internal/engine/parser"
)

// exportStrings collects the string literals of list and tuple displays,
// including `a + b` concatenations, into the module's `__all__`.
func (b *builder) exportStrings(node *sitter.Node) {
	if node == nil {
		return
	}
	switch parser.KindOf(node) {
	case parser.KindString:
		if entry, ok := b.exportEntry(node); ok {
			b.tree.Exports.Entries = append(b.tree.Exports.Entries, entry)
		}
	case parser.KindList, parser.KindTuple, parser.KindParenthesizedExpression:
		for i := uint(0); i < node.NamedChildCount(); i++ {
			b.exportStrings(node.NamedChild(i))
		}
	case parser.KindOther:
		if node.Kind() == "binary_operator" {
			b.exportStrings(node.ChildByFieldName("left"))
			b.exportStrings(node.ChildByFieldName("right"))
		}
	}
}

// exportEntry accepts plain single-part strings only; the span covers the
// content between the quotes.
func (b *builder) exportEntry(node *sitter.Node) (ExportEntry, bool) {
	var content *sitter.Node
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch parser.KindOf(child) {
		case parser.KindStringContent:
			if content != nil {
				return ExportEntry{}, false
			}
			content = child
		case parser.KindInterpolation:
			return ExportEntry{}, false
		}
	}
	if content == nil {
		return ExportEntry{}, false
	}
	return ExportEntry{Name: b.text(content), Span: b.file.SpanOf(content)}, true
}

// exportCall handles `__all__.append("x")` and `__all__.extend([...])`.
func (b *builder) exportCall(call *sitter.Node) {
	fn := call.ChildByFieldName("function")
	if parser.KindOf(fn) != parser.KindAttribute {
		return
	}
	object := fn.ChildByFieldName("object")
	method := b.text(fn.ChildByFieldName("attribute"))
	if parser.KindOf(object) != parser.KindIdentifier || b.text(object) != "__all__" {
		return
	}
	if method != "append" && method != "extend" {
		return
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return
	}
	b.tree.Exports.Explicit = true
	for i := uint(0); i < args.NamedChildCount(); i++ {
		b.exportStrings(args.NamedChild(i))
	}
}
