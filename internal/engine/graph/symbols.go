package graph

import (
	"pyrename/internal/engine/scope"
)

// Symbol is a binding together with the module whose tree owns it.
type Symbol struct {
	Module  int
	Binding *scope.Binding
}

// Same reports whether both symbols name the same binding.
func (s Symbol) Same(other Symbol) bool {
	return s.Binding != nil && s.Module == other.Module && s.Binding == other.Binding
}

type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueModule
	ValueSymbol
)

// Value is what a name or dotted expression statically denotes.
type Value struct {
	Kind   ValueKind
	Module string
	Symbol Symbol
}

const maxFollow = 64

type visitKey struct {
	module int
	name   string
}

// Definition resolves a top-level name of module idx to its defining
// binding, following imports and star imports inside the project.
func (g *Graph) Definition(idx int, name string) (Symbol, bool) {
	return g.definition(idx, name, make(map[visitKey]bool))
}

func (g *Graph) definition(idx int, name string, visited map[visitKey]bool) (Symbol, bool) {
	k := visitKey{idx, name}
	if visited[k] {
		return Symbol{}, false
	}
	visited[k] = true

	tree := g.Modules[idx].Tree
	if b := tree.TopLevel(name); b != nil {
		if b.Import == nil {
			return Symbol{Module: idx, Binding: b}, true
		}
		return g.follow(b.Import, visited)
	}
	return g.starDefinition(idx, name, visited)
}

func (g *Graph) starDefinition(idx int, name string, visited map[visitKey]bool) (Symbol, bool) {
	for _, imp := range g.Modules[idx].Tree.StarImports() {
		e, ok := g.EdgeFor(imp)
		if !ok || e.SourceIndex < 0 || !g.exported(e.SourceIndex, name) {
			continue
		}
		if sym, ok := g.definition(e.SourceIndex, name, visited); ok {
			return sym, true
		}
	}
	return Symbol{}, false
}

// StarDefinition resolves a name that module idx only receives through
// `from X import *`.
func (g *Graph) StarDefinition(idx int, name string) (Symbol, bool) {
	return g.starDefinition(idx, name, make(map[visitKey]bool))
}

// Follow resolves a from-import clause to the binding it imports.
func (g *Graph) Follow(imp *scope.ImportInfo) (Symbol, bool) {
	return g.follow(imp, make(map[visitKey]bool))
}

func (g *Graph) follow(imp *scope.ImportInfo, visited map[visitKey]bool) (Symbol, bool) {
	e, ok := g.EdgeFor(imp)
	if !ok || e.SourceIndex < 0 || e.Name == "" || e.Name == "*" {
		return Symbol{}, false
	}
	return g.definition(e.SourceIndex, e.Name, visited)
}

// ValueOf returns what binding b of module idx denotes.
func (g *Graph) ValueOf(idx int, b *scope.Binding) Value {
	return g.valueOf(idx, b, 0)
}

func (g *Graph) valueOf(idx int, b *scope.Binding, depth int) Value {
	if b == nil || depth > maxFollow {
		return Value{}
	}
	if b.Import == nil {
		return Value{Kind: ValueSymbol, Symbol: Symbol{Module: idx, Binding: b}}
	}
	imp := b.Import
	if !imp.IsFrom() {
		if g.isModule(imp.Target) {
			return Value{Kind: ValueModule, Module: imp.Target}
		}
		return Value{}
	}
	e, ok := g.EdgeFor(imp)
	if !ok {
		return Value{}
	}
	if e.Submodule {
		return Value{Kind: ValueModule, Module: e.Source}
	}
	if e.SourceIndex < 0 || e.Name == "" || e.Name == "*" {
		return Value{}
	}
	if next := g.Modules[e.SourceIndex].Tree.TopLevel(e.Name); next != nil {
		return g.valueOf(e.SourceIndex, next, depth+1)
	}
	if sym, ok := g.StarDefinition(e.SourceIndex, e.Name); ok {
		return Value{Kind: ValueSymbol, Symbol: sym}
	}
	return Value{}
}

// Member evaluates `v.name`: module attributes (bindings, submodules and
// star-imported names) or class-level members of a class symbol.
func (g *Graph) Member(v Value, name string) Value {
	switch v.Kind {
	case ValueModule:
		idx, registered := g.byName[v.Module]
		if registered {
			if b := g.Modules[idx].Tree.TopLevel(name); b != nil {
				return g.ValueOf(idx, b)
			}
		}
		if sub := joinModule(v.Module, name); g.isModule(sub) {
			return Value{Kind: ValueModule, Module: sub}
		}
		if registered {
			if sym, ok := g.StarDefinition(idx, name); ok {
				return Value{Kind: ValueSymbol, Symbol: sym}
			}
		}
	case ValueSymbol:
		body := v.Symbol.Binding.Body
		if body != nil && body.Kind == scope.ClassScope {
			if member := body.Local(name); member != nil {
				return Value{Kind: ValueSymbol, Symbol: Symbol{Module: v.Symbol.Module, Binding: member}}
			}
		}
	}
	return Value{}
}

// NameValue evaluates a bare name occurrence. Unbound module-level names
// fall back to star imports.
func (g *Graph) NameValue(idx int, occ *scope.Occurrence) Value {
	if occ == nil {
		return Value{}
	}
	if occ.Binding != nil {
		return g.ValueOf(idx, occ.Binding)
	}
	if sym, ok := g.StarDefinition(idx, occ.Name); ok {
		return Value{Kind: ValueSymbol, Symbol: sym}
	}
	return Value{}
}

// AttributeValue evaluates the object chain of an attribute access and
// then the accessed member.
func (g *Graph) AttributeValue(idx int, attr *scope.Attribute) Value {
	if attr.Head == nil || len(attr.Chain) == 0 {
		return Value{}
	}
	v := g.NameValue(idx, attr.Head)
	for _, part := range attr.Chain[1:] {
		if v.Kind == ValueNone {
			return v
		}
		v = g.Member(v, part)
	}
	return g.Member(v, attr.Name)
}

func (g *Graph) isModule(name string) bool {
	if _, ok := g.byName[name]; ok {
		return true
	}
	return g.resolver.IsPackage(name)
}
