package graph

import (
	"sort"
	"strings"
)

// Via is how an observing module sees the symbol.
type Via int

const (
	ViaDefinition Via = iota
	ViaImport
	ViaStar
	ViaQualified
)

func (v Via) String() string {
	switch v {
	case ViaDefinition:
		return "definition"
	case ViaImport:
		return "import"
	case ViaStar:
		return "star"
	case ViaQualified:
		return "qualified"
	default:
		return "unknown"
	}
}

// Observation records one module seeing the symbol under a local name.
type Observation struct {
	Module    int
	LocalName string
	Via       Via
	// Edge is the import edge responsible, -1 for the defining module.
	Edge    int
	Source  int
	Aliased bool
}

// Closure is the transitive set of modules that observe a top-level name.
type Closure struct {
	Name         string
	Definition   int
	Sources      []int
	Observations []Observation

	sources map[int]bool
}

// IsSource reports whether module idx re-exports the symbol under its
// original name (the defining module included).
func (c *Closure) IsSource(idx int) bool {
	return c.sources[idx]
}

// Modules lists the distinct observing modules, definition included.
func (c *Closure) Modules() []int {
	seen := make(map[int]bool)
	var out []int
	for _, o := range c.Observations {
		if !seen[o.Module] {
			seen[o.Module] = true
			out = append(out, o.Module)
		}
	}
	return out
}

// Observers computes the fixed point of modules observing the top-level
// name defined in module def. Every module is expanded at most once, so
// import cycles terminate.
func (g *Graph) Observers(def int, name string) *Closure {
	c := &Closure{
		Name:       name,
		Definition: def,
		Sources:    []int{def},
		sources:    map[int]bool{def: true},
	}
	c.Observations = append(c.Observations, Observation{
		Module: def, LocalName: name, Via: ViaDefinition, Edge: -1, Source: def,
	})

	type key struct{ module, edge int }
	seen := map[key]bool{{def, -1}: true}
	add := func(o Observation) {
		k := key{o.Module, o.Edge}
		if seen[k] {
			return
		}
		seen[k] = true
		c.Observations = append(c.Observations, o)
	}

	queue := []int{def}
	enqueue := func(idx int) {
		if c.sources[idx] {
			return
		}
		c.sources[idx] = true
		c.Sources = append(c.Sources, idx)
		queue = append(queue, idx)
	}

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		for _, e := range g.Importers(curr) {
			switch e.Name {
			case name:
				add(Observation{
					Module:    e.From,
					LocalName: e.LocalName(),
					Via:       ViaImport,
					Edge:      e.Index,
					Source:    curr,
					Aliased:   e.Aliased(),
				})
				if !e.Aliased() && e.TopLevel && g.reexports(e.From, name) {
					enqueue(e.From)
				}
			case "*":
				if !g.starCarries(curr, e.From, name) {
					continue
				}
				add(Observation{Module: e.From, LocalName: name, Via: ViaStar, Edge: e.Index, Source: curr})
				if e.TopLevel && g.reexports(e.From, name) {
					enqueue(e.From)
				}
			}
		}

		for _, e := range g.qualifiedEdges(g.Modules[curr].Name) {
			add(Observation{Module: e.From, LocalName: name, Via: ViaQualified, Edge: e.Index, Source: curr})
		}
	}

	sort.SliceStable(c.Observations, func(i, j int) bool {
		a, b := c.Observations[i], c.Observations[j]
		if a.Module != b.Module {
			return g.Modules[a.Module].Path < g.Modules[b.Module].Path
		}
		return a.Edge < b.Edge
	})
	return c
}

// qualifiedEdges returns module-binding edges through which `module.name`
// can be spelled: the module itself, an ancestor package, or (for unaliased
// dotted imports, which bind the top package) a descendant.
func (g *Graph) qualifiedEdges(module string) []*ImportEdge {
	var out []*ImportEdge
	for _, e := range g.Edges {
		if e.Name != "" || e.Source == "" {
			continue
		}
		switch {
		case e.Source == module:
		case strings.HasPrefix(module, e.Source+"."):
		case !e.Import.Aliased() && !e.Submodule && strings.HasPrefix(e.Source, module+"."):
		default:
			continue
		}
		out = append(out, e)
	}
	return out
}

// reexports reports whether module idx exposes name to its own importers.
func (g *Graph) reexports(idx int, name string) bool {
	if !g.opts.StrictReexports {
		return true
	}
	return g.exported(idx, name)
}

// exported reports whether name is in the module's export surface.
func (g *Graph) exported(idx int, name string) bool {
	exports := g.Modules[idx].Tree.Exports
	if exports.Explicit {
		return exports.Contains(name)
	}
	return !strings.HasPrefix(name, "_")
}

// starCarries reports whether `from src import *` in consumer provides name.
// An explicit top-level binding in the consumer shadows the star import.
func (g *Graph) starCarries(src, consumer int, name string) bool {
	if !g.exported(src, name) {
		return false
	}
	return g.Modules[consumer].Tree.TopLevel(name) == nil
}
