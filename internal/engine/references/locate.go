package references

import (
	"pyrename/internal/core/errors"
	"pyrename/internal/engine/graph"
	"pyrename/internal/engine/parser"
	"pyrename/internal/engine/scope"
)

// Locate resolves a cursor to the canonical in-project definition. Uses and
// aliases are followed through imports, re-exports and star imports.
func Locate(g *graph.Graph, pos parser.Position) (graph.Symbol, error) {
	m, ok := g.ModuleByPath(pos.File)
	if !ok {
		return graph.Symbol{}, notFound("file is not a project module", pos)
	}
	tree := m.Tree
	offset, ok := tree.File.OffsetAt(pos.Line, pos.Column)
	if !ok {
		return graph.Symbol{}, notFound("position outside file", pos)
	}

	var v graph.Value
	switch {
	case tree.OccurrenceAt(offset) != nil:
		v = g.NameValue(m.Index, tree.OccurrenceAt(offset))
	case tree.ImportNameAt(offset) != nil:
		if sym, ok := g.Follow(tree.ImportNameAt(offset)); ok {
			v = graph.Value{Kind: graph.ValueSymbol, Symbol: sym}
		}
	case tree.AttributeAt(offset) != nil:
		attr := tree.AttributeAt(offset)
		if member := selfMember(attr); member != nil {
			v = graph.Value{Kind: graph.ValueSymbol, Symbol: graph.Symbol{Module: m.Index, Binding: member}}
		} else {
			v = g.AttributeValue(m.Index, attr)
		}
	case tree.ExportAt(offset) != nil:
		if sym, ok := g.Definition(m.Index, tree.ExportAt(offset).Name); ok {
			v = graph.Value{Kind: graph.ValueSymbol, Symbol: sym}
		}
	default:
		return graph.Symbol{}, notFound("no identifier at position", pos)
	}

	switch v.Kind {
	case graph.ValueSymbol:
		return v.Symbol, nil
	case graph.ValueModule:
		return graph.Symbol{}, errors.AddContext(notFound("position names a module, not a symbol", pos), errors.CtxModule, v.Module)
	default:
		return graph.Symbol{}, notFound("no binding in the project for the name at position", pos)
	}
}

// selfMember resolves `self.name` / `cls.name` inside a method to the
// class-level binding of name.
func selfMember(attr *scope.Attribute) *scope.Binding {
	if len(attr.Chain) != 1 || attr.Head == nil || attr.Head.Binding == nil {
		return nil
	}
	param := attr.Head.Binding
	fn := param.Scope
	if param.Kind != scope.BindParameter || fn.SelfParam != param.Name {
		return nil
	}
	if fn.Parent == nil || fn.Parent.Kind != scope.ClassScope {
		return nil
	}
	return fn.Parent.Local(attr.Name)
}

func notFound(msg string, pos parser.Position) error {
	return errors.AddContext(errors.New(errors.CodeSymbolNotFound, msg), errors.CtxPosition, pos.String())
}
