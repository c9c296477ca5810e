package graph

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"pyrename/internal/core/errors"
	"pyrename/internal/engine/parser"
	"pyrename/internal/engine/resolver"
	"pyrename/internal/engine/scope"
	"pyrename/internal/shared/observability"
)

// Unit is one parsed project module handed to Build.
type Unit struct {
	Path      string
	Name      string
	IsPackage bool
	Tree      *scope.Tree
}

type Module struct {
	Index     int
	Name      string
	Path      string
	IsPackage bool
	Tree      *scope.Tree
	Edges     []int
}

// ImportEdge is one imported name (or module) of one import clause.
type ImportEdge struct {
	Index int
	From  int
	// Raw is the module reference as written, including leading dots.
	Raw    string
	Source string
	// SourceIndex is the resolved module, or -1 when the source is external
	// or unresolved.
	SourceIndex int
	// Name is the imported name, "*" for star imports and "" when the edge
	// binds a module (plain import or `from pkg import submodule`).
	Name      string
	Alias     string
	Level     int
	TopLevel  bool
	Submodule bool
	Import    *scope.ImportInfo
}

// Aliased reports whether the importer binds the symbol under another name.
func (e *ImportEdge) Aliased() bool {
	return e.Alias != "" && e.Alias != e.Name
}

// LocalName is the name the importer binds.
func (e *ImportEdge) LocalName() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Name
}

// Warning is a non-fatal problem found while building the graph.
type Warning struct {
	Code     errors.ErrorCode `json:"code"`
	Module   string           `json:"module"`
	Position parser.Position  `json:"position"`
	Message  string           `json:"message"`
}

type Options struct {
	Workers int
	// StrictReexports limits re-export to names in the importer's export
	// surface. When false any unaliased top-level import re-exports.
	StrictReexports bool
}

type Graph struct {
	Modules  []*Module
	Edges    []*ImportEdge
	Warnings []Warning

	resolver  *resolver.PythonResolver
	opts      Options
	byName    map[string]int
	byPath    map[string]int
	importers map[int][]int
	edgeOf    map[*scope.ImportInfo]int
}

type moduleResult struct {
	edges    []*ImportEdge
	warnings []Warning
}

// Build resolves the imports of every unit, one module per task.
func Build(ctx context.Context, units []Unit, r *resolver.PythonResolver, opts Options) (*Graph, error) {
	start := time.Now()
	defer func() {
		observability.GraphBuildDuration.Observe(time.Since(start).Seconds())
	}()

	g := &Graph{
		resolver:  r,
		opts:      opts,
		byName:    make(map[string]int, len(units)),
		byPath:    make(map[string]int, len(units)),
		importers: make(map[int][]int),
		edgeOf:    make(map[*scope.ImportInfo]int),
	}

	sorted := append([]Unit(nil), units...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for _, u := range sorted {
		// A .py module shadows its .pyi stub, which sorts after it.
		if _, dup := g.byName[u.Name]; dup {
			continue
		}
		idx := len(g.Modules)
		g.Modules = append(g.Modules, &Module{Index: idx, Name: u.Name, Path: u.Path, IsPackage: u.IsPackage, Tree: u.Tree})
		g.byName[u.Name] = idx
		g.byPath[u.Path] = idx
		r.Register(u.Name, u.Path)
	}

	results := make([]moduleResult, len(g.Modules))
	eg, ctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		eg.SetLimit(opts.Workers)
	}
	for i, m := range g.Modules {
		i, m := i, m
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = g.resolveModule(m)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for i, res := range results {
		for _, e := range res.edges {
			e.Index = len(g.Edges)
			g.Edges = append(g.Edges, e)
			g.Modules[i].Edges = append(g.Modules[i].Edges, e.Index)
			g.edgeOf[e.Import] = e.Index
			if e.SourceIndex >= 0 {
				g.importers[e.SourceIndex] = append(g.importers[e.SourceIndex], e.Index)
			}
		}
		g.Warnings = append(g.Warnings, res.warnings...)
	}

	observability.ModulesIndexed.Set(float64(len(g.Modules)))
	slog.Debug("import graph built", "modules", len(g.Modules), "edges", len(g.Edges), "warnings", len(g.Warnings))
	return g, nil
}

// resolveModule only reads shared state; its output is merged by Build.
func (g *Graph) resolveModule(m *Module) moduleResult {
	var res moduleResult
	for _, imp := range m.Tree.Imports {
		edge := &ImportEdge{
			From:        m.Index,
			Raw:         strings.Repeat(".", imp.Level) + imp.Module,
			SourceIndex: -1,
			Alias:       imp.Alias,
			Level:       imp.Level,
			TopLevel:    imp.TopLevel,
			Import:      imp,
		}

		if !imp.IsFrom() {
			edge.Source = imp.Module
			if imp.Aliased() {
				edge.Source = imp.Target
			}
			if idx, ok := g.byName[edge.Source]; ok {
				edge.SourceIndex = idx
			} else if g.resolver.InProject(edge.Source) && !g.resolver.IsPackage(edge.Source) {
				res.warnings = append(res.warnings, g.unresolved(m, imp, "module "+edge.Source+" not found in project"))
			}
			res.edges = append(res.edges, edge)
			continue
		}

		base, err := g.resolver.ResolveImport(m.Name, m.IsPackage, imp.Module, imp.Level)
		if err != nil {
			res.warnings = append(res.warnings, g.unresolved(m, imp, "relative import "+edge.Raw+" goes beyond the top-level package"))
			res.edges = append(res.edges, edge)
			continue
		}
		edge.Source = base

		if imp.Star {
			edge.Name = "*"
			if idx, ok := g.byName[base]; ok {
				edge.SourceIndex = idx
			} else if imp.Level > 0 || g.resolver.InProject(base) {
				res.warnings = append(res.warnings, g.unresolved(m, imp, "module "+edge.Raw+" not found in project"))
			}
			res.edges = append(res.edges, edge)
			continue
		}

		edge.Name = imp.Name
		sub := joinModule(base, imp.Name)
		idx, baseFound := g.byName[base]
		subIdx, subFound := g.byName[sub]
		switch {
		case baseFound && (!subFound || g.Modules[idx].Tree.TopLevel(imp.Name) != nil):
			edge.SourceIndex = idx
		case subFound:
			edge.Source = sub
			edge.SourceIndex = subIdx
			edge.Name = ""
			edge.Submodule = true
		case imp.Level > 0 || g.resolver.InProject(base) || (base == "" && g.resolver.InProject(imp.Name)):
			if !g.resolver.IsPackage(base) || base == "" {
				res.warnings = append(res.warnings, g.unresolved(m, imp, "module "+edge.Raw+" not found in project"))
			} else {
				res.warnings = append(res.warnings, g.unresolved(m, imp, "name "+imp.Name+" not found in "+base))
			}
		}
		res.edges = append(res.edges, edge)
	}
	return res
}

func joinModule(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

func (g *Graph) unresolved(m *Module, imp *scope.ImportInfo, msg string) Warning {
	return Warning{
		Code:     errors.CodeUnresolvedImport,
		Module:   m.Name,
		Position: imp.NameSpan.Start,
		Message:  msg,
	}
}

// ModuleByName returns the module registered under a dotted name.
func (g *Graph) ModuleByName(name string) (*Module, bool) {
	idx, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.Modules[idx], true
}

// ModuleByPath returns the module parsed from a project-relative path.
func (g *Graph) ModuleByPath(path string) (*Module, bool) {
	idx, ok := g.byPath[path]
	if !ok {
		return nil, false
	}
	return g.Modules[idx], true
}

// EdgeFor returns the edge created for an import clause.
func (g *Graph) EdgeFor(imp *scope.ImportInfo) (*ImportEdge, bool) {
	idx, ok := g.edgeOf[imp]
	if !ok {
		return nil, false
	}
	return g.Edges[idx], true
}

// Importers lists the edges whose resolved source is module idx.
func (g *Graph) Importers(idx int) []*ImportEdge {
	out := make([]*ImportEdge, 0, len(g.importers[idx]))
	for _, e := range g.importers[idx] {
		out = append(out, g.Edges[e])
	}
	return out
}

// WarningsFor filters warnings to the given module names.
func (g *Graph) WarningsFor(modules map[string]bool) []Warning {
	var out []Warning
	for _, w := range g.Warnings {
		if modules[w.Module] {
			out = append(out, w)
		}
	}
	return out
}
