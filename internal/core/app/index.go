package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"pyrename/internal/core/errors"
	"pyrename/internal/engine/graph"
	"pyrename/internal/engine/parser"
	"pyrename/internal/engine/resolver"
	"pyrename/internal/engine/scope"
	"pyrename/internal/shared/observability"
	"pyrename/internal/shared/util"
)

type IndexOptions struct {
	// Root is the absolute project root.
	Root            string
	SourceRoots     []string
	ExcludeDirs     []string
	ExcludeFiles    []string
	Workers         int
	StrictReexports bool
	CacheSize       int
}

type cachedTree struct {
	hash uint64
	tree *scope.Tree
}

// ProjectIndex owns the analysed state of one project. Scope trees are cached
// per file and reused while the file's content hash is unchanged, so a
// rebuild only reparses what changed.
type ProjectIndex struct {
	opts     IndexOptions
	parser   *parser.Parser
	excludes *excludeMatcher
	trees    *lru.Cache[string, cachedTree]
	logger   *slog.Logger

	mu    sync.Mutex
	graph *graph.Graph
	dirty bool
}

func NewProjectIndex(p *parser.Parser, opts IndexOptions) (*ProjectIndex, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4096
	}
	ex, err := compileExcludes(opts.ExcludeDirs, opts.ExcludeFiles)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "compile exclude patterns")
	}
	cache, err := lru.New[string, cachedTree](opts.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "create scope-tree cache")
	}
	return &ProjectIndex{
		opts:     opts,
		parser:   p,
		excludes: ex,
		trees:    cache,
		logger:   slog.Default().With("component", "index"),
	}, nil
}

// Graph returns the import graph, building it on first use and after
// Invalidate.
func (ix *ProjectIndex) Graph(ctx context.Context) (*graph.Graph, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.graph != nil && !ix.dirty {
		return ix.graph, nil
	}
	g, err := ix.build(ctx)
	if err != nil {
		return nil, err
	}
	ix.graph = g
	ix.dirty = false
	return g, nil
}

// Invalidate evicts the cached trees of paths, absolute or project-relative,
// and marks the graph for rebuild. Files that were added or removed are
// picked up by the rescan.
func (ix *ProjectIndex) Invalidate(paths ...string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, p := range paths {
		if rel, ok := util.RelativeTo(ix.opts.Root, p); ok {
			ix.trees.Remove(rel)
		}
	}
	ix.dirty = true
}

// Cached reports how many scope trees are held.
func (ix *ProjectIndex) Cached() int {
	return ix.trees.Len()
}

func (ix *ProjectIndex) build(ctx context.Context) (*graph.Graph, error) {
	ctx, span := observability.Tracer.Start(ctx, "index.Build")
	defer span.End()
	start := time.Now()

	files, err := scanProject(ix.opts.Root, ix.excludes)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "scan project"), errors.CtxPath, ix.opts.Root)
	}

	r := resolver.NewPythonResolver(ix.opts.SourceRoots)
	units := make([]graph.Unit, len(files))
	eg, gctx := errgroup.WithContext(ctx)
	if ix.opts.Workers > 0 {
		eg.SetLimit(ix.opts.Workers)
	}
	for i, rel := range files {
		i, rel := i, rel
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tree, err := ix.load(rel)
			if err != nil {
				return err
			}
			name, isPkg := r.GetModuleName(rel)
			units[i] = graph.Unit{Path: rel, Name: name, IsPackage: isPkg, Tree: tree}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g, err := graph.Build(ctx, units, r, graph.Options{
		Workers:         ix.opts.Workers,
		StrictReexports: ix.opts.StrictReexports,
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	observability.AnalysisDuration.WithLabelValues("index").Observe(elapsed.Seconds())
	span.SetAttributes(attribute.Int("files", len(files)), attribute.Int("modules", len(g.Modules)))
	ix.logger.Debug("project indexed",
		"files", len(files),
		"modules", len(g.Modules),
		"cached_trees", ix.trees.Len(),
		"heap_mb", util.GetHeapAllocMB(),
		"duration", elapsed)
	return g, nil
}

// load returns the scope tree of rel, from the cache when the content hash
// still matches.
func (ix *ProjectIndex) load(rel string) (*scope.Tree, error) {
	abs := filepath.Join(ix.opts.Root, filepath.FromSlash(rel))
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "read source file"), errors.CtxPath, rel)
	}
	hash := parser.HashContent(content)
	if cached, ok := ix.trees.Get(rel); ok && cached.hash == hash {
		observability.IndexCacheLookups.WithLabelValues("hit").Inc()
		return cached.tree, nil
	}
	observability.IndexCacheLookups.WithLabelValues("miss").Inc()

	file, err := ix.parser.Parse(rel, abs, content)
	if err != nil {
		return nil, err
	}
	if file.HasErrors() {
		ix.logger.Warn("source file has syntax errors; indexing what parsed", "path", rel)
	}
	tree := scope.Build(file)
	file.Close()
	ix.trees.Add(rel, cachedTree{hash: hash, tree: tree})
	return tree, nil
}
