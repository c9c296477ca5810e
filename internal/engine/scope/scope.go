package scope

import (
	"sort"

	"pyrename/internal/engine/parser"
)

// Kind classifies a lexical scope.
type Kind int

const (
	ModuleScope Kind = iota
	ClassScope
	FunctionScope
	ComprehensionScope
)

func (k Kind) String() string {
	switch k {
	case ModuleScope:
		return "module"
	case ClassScope:
		return "class"
	case FunctionScope:
		return "function"
	case ComprehensionScope:
		return "comprehension"
	default:
		return "unknown"
	}
}

// BindingKind is the declaration form that created a Binding.
type BindingKind int

const (
	BindVariable BindingKind = iota
	BindFunction
	BindClass
	BindParameter
	BindModule
	BindImport
)

func (k BindingKind) String() string {
	switch k {
	case BindVariable:
		return "variable"
	case BindFunction:
		return "function"
	case BindClass:
		return "class"
	case BindParameter:
		return "parameter"
	case BindModule:
		return "module"
	case BindImport:
		return "import"
	default:
		return "unknown"
	}
}

// ImportInfo describes the import clause that created a binding.
//
// For `import a.b.c` the binding is `a` and Target is "a"; for
// `import a.b as x` the binding is `x` and Target is "a.b". For
// `from .m import n as k` Module is "m", Level 1, Name "n", Alias "k".
type ImportInfo struct {
	Module    string
	Level     int
	Name      string
	Alias     string
	Target    string
	NameSpan  parser.Span
	AliasSpan *parser.Span
	Star      bool
	TopLevel  bool
	// Binding is the local binding the clause created; nil for star imports.
	Binding *Binding
}

// IsFrom reports whether the clause came from a `from ... import` statement.
func (i *ImportInfo) IsFrom() bool {
	return i.Name != "" || i.Star
}

// Aliased reports whether the clause carries an `as` alias.
func (i *ImportInfo) Aliased() bool {
	return i.Alias != ""
}

// Binding is a unique symbol identity within one scope.
type Binding struct {
	ID     int
	Name   string
	Kind   BindingKind
	Scope  *Scope
	Span   parser.Span
	Defs   []parser.Span
	Import *ImportInfo
	// Body is the scope opened by a def or class binding.
	Body *Scope
}

// Scope owns the name to Binding mapping of one lexical region.
type Scope struct {
	Kind     Kind
	Name     string
	Parent   *Scope
	Children []*Scope
	Start    int
	End      int
	// SelfParam is the first parameter name of a method defined directly in a class.
	SelfParam string
	Owner     *Binding

	bindings  map[string]*Binding
	globals   map[string]bool
	nonlocals map[string]bool
}

func newScope(kind Kind, name string, parent *Scope, start, end int) *Scope {
	s := &Scope{
		Kind:      kind,
		Name:      name,
		Parent:    parent,
		Start:     start,
		End:       end,
		bindings:  make(map[string]*Binding),
		globals:   make(map[string]bool),
		nonlocals: make(map[string]bool),
	}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

// Local returns the binding declared directly in this scope.
func (s *Scope) Local(name string) *Binding {
	return s.bindings[name]
}

// Names lists the names bound directly in this scope, sorted.
func (s *Scope) Names() []string {
	names := make([]string, 0, len(s.bindings))
	for name := range s.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsGlobal reports whether the scope declared name global.
func (s *Scope) IsGlobal(name string) bool {
	return s.globals[name]
}

// Role is how an identifier occurrence participates in binding.
type Role int

const (
	RoleLoad Role = iota
	RoleStore
	RoleImport
	RoleDeclaration
)

func (r Role) String() string {
	switch r {
	case RoleLoad:
		return "load"
	case RoleStore:
		return "store"
	case RoleImport:
		return "import"
	case RoleDeclaration:
		return "declaration"
	default:
		return "unknown"
	}
}

// Occurrence is one identifier token bound (or not) to a Binding.
type Occurrence struct {
	Name    string
	Span    parser.Span
	Scope   *Scope
	Role    Role
	Binding *Binding
}

// IsDefinition reports whether the occurrence introduces its binding.
func (o *Occurrence) IsDefinition() bool {
	return o.Role == RoleStore || o.Role == RoleImport
}

// Attribute is one `obj.name` access whose object is a plain dotted chain.
type Attribute struct {
	// Chain holds the identifiers of the object, head first. Empty when
	// the object is not a dotted identifier chain.
	Chain []string
	Head  *Occurrence
	Name  string
	Span  parser.Span
	Scope *Scope
	Store bool
}

// ExportEntry is one string in `__all__`.
type ExportEntry struct {
	Name string
	Span parser.Span
}

// Exports is the declared `__all__` of a module.
type Exports struct {
	Explicit bool
	Entries  []ExportEntry
}

// Contains reports whether name is listed.
func (e Exports) Contains(name string) bool {
	for _, entry := range e.Entries {
		if entry.Name == name {
			return true
		}
	}
	return false
}

// Tree is the resolved scope structure of one module.
type Tree struct {
	File        *parser.SourceFile
	Root        *Scope
	Scopes      []*Scope
	Bindings    []*Binding
	Occurrences []*Occurrence
	Attributes  []*Attribute
	Imports     []*ImportInfo
	Exports     Exports
}

// TopLevel returns the module-scope binding of name.
func (t *Tree) TopLevel(name string) *Binding {
	return t.Root.bindings[name]
}

// Lookup performs the upward name lookup from scope at byte offset.
//
// Class scopes are only consulted when they are the starting scope, and a
// class-level binding is only visible after its first definition.
func (t *Tree) Lookup(name string, from *Scope, offset int) *Binding {
	if from == nil {
		return nil
	}
	if from.globals[name] {
		return t.Root.bindings[name]
	}
	s := from
	if from.nonlocals[name] {
		return t.lookupEnclosingFunction(name, from.Parent)
	}
	for ; s != nil; s = s.Parent {
		if s.Kind == ClassScope && s != from {
			continue
		}
		if b, ok := s.bindings[name]; ok {
			if s.Kind == ClassScope && offset < b.Span.Start.Offset {
				continue
			}
			return b
		}
		if s != from && s.globals[name] {
			return t.Root.bindings[name]
		}
	}
	return nil
}

func (t *Tree) lookupEnclosingFunction(name string, s *Scope) *Binding {
	for ; s != nil; s = s.Parent {
		if s.Kind != FunctionScope && s.Kind != ComprehensionScope {
			continue
		}
		if b, ok := s.bindings[name]; ok {
			return b
		}
	}
	return nil
}

// ScopeAt returns the innermost scope whose range contains offset.
func (t *Tree) ScopeAt(offset int) *Scope {
	s := t.Root
	for {
		var next *Scope
		for _, child := range s.Children {
			if offset >= child.Start && offset < child.End {
				next = child
				break
			}
		}
		if next == nil {
			return s
		}
		s = next
	}
}

// OccurrenceAt returns the identifier occurrence whose span contains offset.
func (t *Tree) OccurrenceAt(offset int) *Occurrence {
	i := sort.Search(len(t.Occurrences), func(i int) bool {
		return t.Occurrences[i].Span.End.Offset >= offset
	})
	if i < len(t.Occurrences) && t.Occurrences[i].Span.Contains(offset) {
		return t.Occurrences[i]
	}
	return nil
}

// AttributeAt returns the attribute access whose name token contains offset.
func (t *Tree) AttributeAt(offset int) *Attribute {
	for _, attr := range t.Attributes {
		if attr.Span.Contains(offset) {
			return attr
		}
	}
	return nil
}

// ImportNameAt returns the import clause whose original-name token contains
// offset. Only aliased clauses are returned; unaliased tokens are occurrences.
func (t *Tree) ImportNameAt(offset int) *ImportInfo {
	for _, imp := range t.Imports {
		if imp.Aliased() && imp.NameSpan.Contains(offset) {
			return imp
		}
	}
	return nil
}

// ExportAt returns the `__all__` entry containing offset.
func (t *Tree) ExportAt(offset int) *ExportEntry {
	for i := range t.Exports.Entries {
		if t.Exports.Entries[i].Span.Contains(offset) {
			return &t.Exports.Entries[i]
		}
	}
	return nil
}

// StarImports lists the `from X import *` clauses in source order.
func (t *Tree) StarImports() []*ImportInfo {
	var out []*ImportInfo
	for _, imp := range t.Imports {
		if imp.Star {
			out = append(out, imp)
		}
	}
	return out
}

// OccurrencesOf lists every occurrence resolved to b, in source order.
func (t *Tree) OccurrencesOf(b *Binding) []*Occurrence {
	var out []*Occurrence
	for _, occ := range t.Occurrences {
		if occ.Binding == b {
			out = append(out, occ)
		}
	}
	return out
}

// Unresolved lists load occurrences of name that no scope binds.
func (t *Tree) Unresolved(name string) []*Occurrence {
	var out []*Occurrence
	for _, occ := range t.Occurrences {
		if occ.Binding == nil && occ.Name == name {
			out = append(out, occ)
		}
	}
	return out
}

// PublicNames lists the module's public top-level names: `__all__` when
// declared, otherwise every bound name not starting with an underscore.
func (t *Tree) PublicNames() []string {
	if t.Exports.Explicit {
		seen := make(map[string]bool)
		var names []string
		for _, e := range t.Exports.Entries {
			if !seen[e.Name] {
				seen[e.Name] = true
				names = append(names, e.Name)
			}
		}
		sort.Strings(names)
		return names
	}
	var names []string
	for _, name := range t.Root.Names() {
		if !isPrivate(name) {
			names = append(names, name)
		}
	}
	return names
}

func isPrivate(name string) bool {
	return len(name) > 0 && name[0] == '_'
}
