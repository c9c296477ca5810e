package references

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"pyrename/internal/engine/graph"
	"pyrename/internal/engine/scope"
	"pyrename/internal/shared/observability"
)

type Collector struct {
	graph   *graph.Graph
	workers int
	logger  *slog.Logger
}

func NewCollector(g *graph.Graph, workers int) *Collector {
	return &Collector{
		graph:   g,
		workers: workers,
		logger:  slog.Default().With("component", "references"),
	}
}

// moduleTask is the per-module work unit; each task writes only its own slot.
type moduleTask struct {
	module       int
	observations []graph.Observation
	refs         []Reference
	conflicts    []Conflict
}

// Collect gathers every reference to target across its observing modules.
// newName, when set, is checked for conflicts against each reference scope.
func (c *Collector) Collect(ctx context.Context, target graph.Symbol, newName string) (*Result, error) {
	g := c.graph
	b := target.Binding
	res := &Result{
		Symbol:       describe(g, target),
		Target:       target,
		Observations: make(map[string][]string),
	}

	var tasks []*moduleTask
	var collect func(t *moduleTask)
	var closure *graph.Closure

	switch {
	case b.Scope.Kind == scope.ModuleScope:
		closure = g.Observers(target.Module, b.Name)
		byModule := make(map[int]*moduleTask)
		for _, o := range closure.Observations {
			t, ok := byModule[o.Module]
			if !ok {
				t = &moduleTask{module: o.Module}
				byModule[o.Module] = t
				tasks = append(tasks, t)
			}
			t.observations = append(t.observations, o)
		}
		collect = func(t *moduleTask) { c.collectTopLevel(t, target, closure, newName) }
	case b.Scope.Kind == scope.ClassScope && b.Scope.Owner != nil:
		tasks = append(tasks, &moduleTask{module: target.Module})
		if class := b.Scope.Owner; class.Scope.Kind == scope.ModuleScope {
			closure = g.Observers(target.Module, class.Name)
			for _, idx := range closure.Modules() {
				if idx != target.Module {
					tasks = append(tasks, &moduleTask{module: idx})
				}
			}
		}
		collect = func(t *moduleTask) { c.collectMember(t, target, newName) }
	default:
		tasks = append(tasks, &moduleTask{module: target.Module})
		collect = func(t *moduleTask) { c.collectLocal(t, target, newName) }
	}

	eg, ctx := errgroup.WithContext(ctx)
	if c.workers > 0 {
		eg.SetLimit(c.workers)
	}
	for _, t := range tasks {
		t := t
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			collect(t)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, t := range tasks {
		for _, ref := range t.refs {
			key := fmt.Sprintf("%s:%d", ref.Span.File, ref.Span.Start.Offset)
			if seen[key] {
				continue
			}
			seen[key] = true
			res.References = append(res.References, ref)
		}
		res.Conflicts = append(res.Conflicts, t.conflicts...)
	}
	sort.SliceStable(res.References, func(i, j int) bool {
		return res.References[i].Span.Before(res.References[j].Span)
	})
	sort.SliceStable(res.Conflicts, func(i, j int) bool {
		return res.Conflicts[i].Span.Before(res.Conflicts[j].Span)
	})

	if closure != nil && b.Scope.Kind == scope.ModuleScope {
		for _, o := range closure.Observations {
			name := g.Modules[o.Module].Name
			res.Observations[name] = appendUnique(res.Observations[name], o.LocalName)
		}
	}
	// Unresolved imports exclude their module from the closure, so every
	// warning of the project is relevant to the report.
	res.Warnings = append(res.Warnings, g.Warnings...)
	if len(res.Observations) == 0 {
		res.Observations[g.Modules[target.Module].Name] = []string{b.Name}
	}

	observability.ReferencesCollected.Add(float64(len(res.References)))
	c.logger.Debug("references collected",
		"symbol", b.Name,
		"module", res.Symbol.Module,
		"modules", len(tasks),
		"references", len(res.References))
	return res, nil
}

func (c *Collector) collectTopLevel(t *moduleTask, target graph.Symbol, closure *graph.Closure, newName string) {
	g := c.graph
	m := g.Modules[t.module]
	tree := m.Tree
	name := target.Binding.Name
	cc := newConflictChecker(tree, newName)

	if t.module == target.Module {
		for _, occ := range tree.OccurrencesOf(target.Binding) {
			t.refs = append(t.refs, occurrenceRef(m, occ))
			cc.check(occ, t)
		}
	}

	for _, o := range t.observations {
		switch o.Via {
		case graph.ViaImport:
			imp := g.Edges[o.Edge].Import
			if imp.Aliased() && imp.Alias != imp.Name {
				t.refs = append(t.refs,
					Reference{Span: imp.NameSpan, Kind: KindImportAliasTarget, Module: m.Name, Text: imp.Name, Binding: target.Binding},
					Reference{Span: *imp.AliasSpan, Kind: KindImportAliasTarget, Module: m.Name, Text: imp.Alias, Alias: true, Binding: imp.Binding},
				)
				continue
			}
			if imp.Aliased() {
				// `import n as n` spells the name twice; both tokens follow the rename.
				t.refs = append(t.refs, Reference{Span: imp.NameSpan, Kind: KindImportAliasTarget, Module: m.Name, Text: imp.Name, Binding: target.Binding})
			}
			for _, occ := range tree.OccurrencesOf(imp.Binding) {
				t.refs = append(t.refs, occurrenceRef(m, occ))
				cc.check(occ, t)
			}
		case graph.ViaStar:
			for _, occ := range tree.Unresolved(name) {
				ref := occurrenceRef(m, occ)
				ref.Binding = target.Binding
				t.refs = append(t.refs, ref)
				cc.check(occ, t)
			}
		}
	}

	if closure.IsSource(t.module) && tree.Exports.Explicit {
		for _, entry := range tree.Exports.Entries {
			if entry.Name == name {
				t.refs = append(t.refs, Reference{Span: entry.Span, Kind: KindUsage, Module: m.Name, Text: entry.Name, Export: true, Binding: target.Binding})
			}
		}
	}

	for _, attr := range tree.Attributes {
		if attr.Name != name {
			continue
		}
		if g.AttributeValue(t.module, attr).Symbol.Same(target) {
			t.refs = append(t.refs, attributeRef(m, attr, target.Binding))
		}
	}
}

func (c *Collector) collectMember(t *moduleTask, target graph.Symbol, newName string) {
	g := c.graph
	m := g.Modules[t.module]
	tree := m.Tree
	member := target.Binding
	cc := newConflictChecker(tree, newName)

	if t.module == target.Module {
		for _, occ := range tree.OccurrencesOf(member) {
			t.refs = append(t.refs, occurrenceRef(m, occ))
			cc.check(occ, t)
		}
		if newName != "" && member.Scope.Local(newName) != nil {
			existing := member.Scope.Local(newName)
			t.conflicts = append(t.conflicts, Conflict{
				Span:    existing.Span,
				Message: fmt.Sprintf("%q is already a member of class %s", newName, member.Scope.Name),
			})
		}
	}

	for _, attr := range tree.Attributes {
		if attr.Name != member.Name {
			continue
		}
		hit := t.module == target.Module && selfMember(attr) == member
		if !hit {
			hit = g.AttributeValue(t.module, attr).Symbol.Same(target)
		}
		if hit {
			t.refs = append(t.refs, attributeRef(m, attr, member))
		}
	}
}

func (c *Collector) collectLocal(t *moduleTask, target graph.Symbol, newName string) {
	m := c.graph.Modules[t.module]
	cc := newConflictChecker(m.Tree, newName)
	for _, occ := range m.Tree.OccurrencesOf(target.Binding) {
		t.refs = append(t.refs, occurrenceRef(m, occ))
		cc.check(occ, t)
	}
}

func occurrenceRef(m *graph.Module, occ *scope.Occurrence) Reference {
	kind := KindUsage
	switch occ.Role {
	case scope.RoleStore:
		kind = KindDefinition
	case scope.RoleImport:
		kind = KindImportAliasTarget
	}
	return Reference{Span: occ.Span, Kind: kind, Module: m.Name, Text: occ.Name, Binding: occ.Binding}
}

func attributeRef(m *graph.Module, attr *scope.Attribute, b *scope.Binding) Reference {
	kind := KindUsage
	if attr.Store {
		kind = KindDefinition
	}
	return Reference{Span: attr.Span, Kind: kind, Module: m.Name, Text: attr.Name, Qualified: true, Binding: b}
}

// conflictChecker reports each existing binding of the new name once per
// module.
type conflictChecker struct {
	tree    *scope.Tree
	newName string
	seen    map[*scope.Binding]bool
}

func newConflictChecker(tree *scope.Tree, newName string) *conflictChecker {
	return &conflictChecker{tree: tree, newName: newName, seen: make(map[*scope.Binding]bool)}
}

func (cc *conflictChecker) check(occ *scope.Occurrence, t *moduleTask) {
	if cc.newName == "" {
		return
	}
	existing := cc.tree.Lookup(cc.newName, occ.Scope, occ.Span.Start.Offset)
	if existing == nil || cc.seen[existing] {
		return
	}
	cc.seen[existing] = true
	t.conflicts = append(t.conflicts, Conflict{
		Span: occ.Span,
		Message: fmt.Sprintf("%q is already bound in %s scope at %s; the renamed reference would be shadowed or clobber it",
			cc.newName, existing.Scope.Kind, existing.Span.Start),
	})
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
