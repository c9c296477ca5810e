package references

import (
	"fmt"

	"pyrename/internal/engine/graph"
	"pyrename/internal/engine/parser"
	"pyrename/internal/engine/scope"
)

// Kind classifies a reference for the edit planner.
type Kind int

const (
	KindDefinition Kind = iota
	KindUsage
	KindImportAliasTarget
)

func (k Kind) String() string {
	switch k {
	case KindDefinition:
		return "definition"
	case KindUsage:
		return "usage"
	case KindImportAliasTarget:
		return "import-alias-target"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Reference is one token that spells the target symbol (or an alias of it).
type Reference struct {
	Span   parser.Span `json:"span"`
	Kind   Kind        `json:"kind"`
	Module string      `json:"module"`
	Text   string      `json:"text"`
	// Alias marks an `as` alias token; it is reported but never edited.
	Alias bool `json:"alias,omitempty"`
	// Qualified marks attribute accesses such as `mod.name` or `self.name`.
	Qualified bool `json:"qualified,omitempty"`
	// Export marks a string entry of `__all__`.
	Export bool `json:"export,omitempty"`

	Binding *scope.Binding `json:"-"`
}

// Symbol describes the resolved rename target.
type Symbol struct {
	Name       string      `json:"name"`
	Kind       string      `json:"kind"`
	Module     string      `json:"module"`
	Scope      string      `json:"scope"`
	Definition parser.Span `json:"definition"`
}

// Conflict warns that the new name is already bound where a reference
// resolves.
type Conflict struct {
	Span    parser.Span `json:"span"`
	Message string      `json:"message"`
}

// Result is everything collected for one target.
type Result struct {
	Symbol       Symbol
	Target       graph.Symbol
	References   []Reference
	Observations map[string][]string
	Warnings     []graph.Warning
	Conflicts    []Conflict
}

// Files lists the distinct files that carry references, sorted.
func (r *Result) Files() []string {
	var out []string
	for i, ref := range r.References {
		if i == 0 || r.References[i-1].Span.File != ref.Span.File {
			out = append(out, ref.Span.File)
		}
	}
	return out
}

func describe(g *graph.Graph, target graph.Symbol) Symbol {
	b := target.Binding
	m := g.Modules[target.Module]
	scopeName := b.Scope.Kind.String()
	if b.Scope.Name != "" {
		scopeName = fmt.Sprintf("%s %s", scopeName, b.Scope.Name)
	}
	return Symbol{
		Name:       b.Name,
		Kind:       b.Kind.String(),
		Module:     m.Name,
		Scope:      scopeName,
		Definition: b.Span,
	}
}
