package graph

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyrename/internal/core/errors"
	"pyrename/internal/engine/parser"
	"pyrename/internal/engine/resolver"
	"pyrename/internal/engine/scope"
)

func buildProject(t *testing.T, files map[string]string, strict bool) *Graph {
	t.Helper()
	p := parser.NewParser()
	r := resolver.NewPythonResolver(nil)
	var units []Unit
	for path, src := range files {
		file, err := p.Parse(path, path, []byte(src))
		require.NoError(t, err)
		t.Cleanup(file.Close)
		name, isPkg := r.GetModuleName(path)
		units = append(units, Unit{Path: path, Name: name, IsPackage: isPkg, Tree: scope.Build(file)})
	}
	g, err := Build(context.Background(), units, r, Options{Workers: 4, StrictReexports: strict})
	require.NoError(t, err)
	return g
}

func observed(g *Graph, c *Closure) map[string][]string {
	out := make(map[string][]string)
	for _, o := range c.Observations {
		m := g.Modules[o.Module].Name
		out[m] = append(out[m], o.Via.String()+":"+o.LocalName)
	}
	for _, v := range out {
		sort.Strings(v)
	}
	return out
}

func mustModule(t *testing.T, g *Graph, name string) *Module {
	t.Helper()
	m, ok := g.ModuleByName(name)
	require.True(t, ok, "module %s", name)
	return m
}

func TestObserversFollowReexportChain(t *testing.T) {
	g := buildProject(t, map[string]string{
		"a.py": "def n():\n    pass\n",
		"b.py": "from a import n\n__all__ = [\"n\"]\n",
		"c.py": "from b import n\nn()\n",
		"d.py": "from b import n\n__all__ = []\nn()\n",
	}, true)

	c := g.Observers(mustModule(t, g, "a").Index, "n")
	assert.Equal(t, map[string][]string{
		"a": {"definition:n"},
		"b": {"import:n"},
		"c": {"import:n"},
		"d": {"import:n"},
	}, observed(g, c))
	assert.True(t, c.IsSource(mustModule(t, g, "b").Index))
	// c has no __all__, so the imported name is public by default.
	assert.True(t, c.IsSource(mustModule(t, g, "c").Index))
	assert.False(t, c.IsSource(mustModule(t, g, "d").Index))
}

func TestReexportRequiresExportSurface(t *testing.T) {
	g := buildProject(t, map[string]string{
		"a.py": "def n():\n    pass\n",
		"b.py": "from a import n\n__all__ = [\"other\"]\nother = 1\n",
		"c.py": "from b import n\n",
	}, true)

	c := g.Observers(mustModule(t, g, "a").Index, "n")
	assert.NotContains(t, observed(g, c), "c")

	loose := buildProject(t, map[string]string{
		"a.py": "def n():\n    pass\n",
		"b.py": "from a import n\n__all__ = [\"other\"]\nother = 1\n",
		"c.py": "from b import n\n",
	}, false)
	c = loose.Observers(mustModule(t, loose, "a").Index, "n")
	assert.Contains(t, observed(loose, c), "c")
}

func TestAliasedImporterIsNotASource(t *testing.T) {
	g := buildProject(t, map[string]string{
		"a.py": "def n():\n    pass\n",
		"d.py": "from a import n as m\n__all__ = [\"m\"]\n",
		"e.py": "from d import m\n",
	}, true)

	c := g.Observers(mustModule(t, g, "a").Index, "n")
	obs := observed(g, c)
	assert.Equal(t, []string{"import:m"}, obs["d"])
	assert.NotContains(t, obs, "e")
}

func TestStarImportGating(t *testing.T) {
	exporting := buildProject(t, map[string]string{
		"exp.py":  "__all__ = [\"n\"]\ndef n():\n    pass\n",
		"cons.py": "from exp import *\nn()\n",
	}, true)
	c := exporting.Observers(mustModule(t, exporting, "exp").Index, "n")
	assert.Equal(t, []string{"star:n"}, observed(exporting, c)["cons"])

	hidden := buildProject(t, map[string]string{
		"exp.py":  "__all__ = [\"other\"]\nother = 1\ndef n():\n    pass\n",
		"cons.py": "from exp import *\nn = 2\n",
	}, true)
	c = hidden.Observers(mustModule(t, hidden, "exp").Index, "n")
	assert.NotContains(t, observed(hidden, c), "cons")
}

func TestExplicitBindingShadowsStar(t *testing.T) {
	g := buildProject(t, map[string]string{
		"exp.py":  "def n():\n    pass\n",
		"cons.py": "from exp import *\nn = 2\n",
	}, true)
	c := g.Observers(mustModule(t, g, "exp").Index, "n")
	assert.NotContains(t, observed(g, c), "cons")
}

func TestStarChainWithoutAll(t *testing.T) {
	g := buildProject(t, map[string]string{
		"base.py":  "def n():\n    pass\n",
		"mid.py":   "from base import *\n",
		"final.py": "from mid import *\nn()\n",
	}, true)
	c := g.Observers(mustModule(t, g, "base").Index, "n")
	obs := observed(g, c)
	assert.Equal(t, []string{"star:n"}, obs["mid"])
	assert.Equal(t, []string{"star:n"}, obs["final"])

	sym, ok := g.Definition(mustModule(t, g, "final").Index, "n")
	require.True(t, ok)
	assert.Equal(t, mustModule(t, g, "base").Index, sym.Module)
}

func TestRelativeDepthResolution(t *testing.T) {
	g := buildProject(t, map[string]string{
		"top/__init__.py":     "",
		"top/pkg/__init__.py": "",
		"top/pkg/module.py":   "def n():\n    pass\n",
		"top/x/__init__.py":   "",
		"top/x/y/__init__.py": "",
		"top/x/y/consumer.py": "from ...pkg.module import n\nn()\n",
		"top/x/y/shallow.py":  "from ......nowhere import n\n",
	}, true)

	consumer := mustModule(t, g, "top.x.y.consumer")
	require.Len(t, consumer.Edges, 1)
	edge := g.Edges[consumer.Edges[0]]
	assert.Equal(t, "top.pkg.module", edge.Source)
	assert.Equal(t, 3, edge.Level)

	c := g.Observers(mustModule(t, g, "top.pkg.module").Index, "n")
	assert.Contains(t, observed(g, c), "top.x.y.consumer")

	require.Len(t, g.Warnings, 1)
	assert.Equal(t, errors.CodeUnresolvedImport, g.Warnings[0].Code)
	assert.Equal(t, "top.x.y.shallow", g.Warnings[0].Module)
}

func TestRelativeImportBeyondTopLevelPackage(t *testing.T) {
	g := buildProject(t, map[string]string{
		"top.py":          "def n():\n    pass\n",
		"pkg/__init__.py": "",
		"pkg/mod.py":      "from ..top import n\nn()\n",
	}, true)

	require.Len(t, g.Warnings, 1)
	assert.Equal(t, errors.CodeUnresolvedImport, g.Warnings[0].Code)
	assert.Equal(t, "pkg.mod", g.Warnings[0].Module)

	c := g.Observers(mustModule(t, g, "top").Index, "n")
	assert.NotContains(t, observed(g, c), "pkg.mod")
}

func TestUnresolvedAndExternalImports(t *testing.T) {
	g := buildProject(t, map[string]string{
		"pkg/__init__.py": "",
		"pkg/a.py":        "import os\nimport numpy as np\nfrom pkg import missing_mod\nimport pkg.gone\n",
	}, true)

	var messages []string
	for _, w := range g.Warnings {
		messages = append(messages, w.Message)
	}
	assert.Len(t, g.Warnings, 1, messages)
	assert.Equal(t, "module pkg.gone not found in project", g.Warnings[0].Message)
}

func TestCyclesTerminate(t *testing.T) {
	g := buildProject(t, map[string]string{
		"a.py": "from b import n\ndef n2():\n    pass\n",
		"b.py": "from a import n\n",
	}, true)
	c := g.Observers(mustModule(t, g, "a").Index, "n")
	assert.Len(t, c.Sources, 2)
	_, ok := g.Definition(mustModule(t, g, "a").Index, "n")
	assert.False(t, ok)
}

func TestQualifiedObserversAndSubmodules(t *testing.T) {
	g := buildProject(t, map[string]string{
		"pkg/__init__.py": "",
		"pkg/utils.py":    "def n():\n    pass\n",
		"main.py":         "import pkg.utils\npkg.utils.n()\n",
		"other.py":        "from pkg import utils\nutils.n()\n",
		"alias.py":        "import pkg.utils as u\nu.n()\n",
	}, true)

	utils := mustModule(t, g, "pkg.utils")
	c := g.Observers(utils.Index, "n")
	obs := observed(g, c)
	assert.Equal(t, []string{"qualified:n"}, obs["main"])
	assert.Equal(t, []string{"qualified:n"}, obs["other"])
	assert.Equal(t, []string{"qualified:n"}, obs["alias"])

	other := mustModule(t, g, "other")
	edge := g.Edges[other.Edges[0]]
	assert.True(t, edge.Submodule)
	assert.Equal(t, "pkg.utils", edge.Source)

	target, ok := g.Definition(utils.Index, "n")
	require.True(t, ok)
	for _, name := range []string{"main", "other", "alias"} {
		m := mustModule(t, g, name)
		var hit bool
		for _, attr := range m.Tree.Attributes {
			if attr.Name == "n" && g.AttributeValue(m.Index, attr).Symbol.Same(target) {
				hit = true
			}
		}
		assert.True(t, hit, name)
	}
}

func TestClassMemberValue(t *testing.T) {
	g := buildProject(t, map[string]string{
		"shapes.py": "class Circle:\n    def area(self):\n        return 1\n",
		"use.py":    "from shapes import Circle\nCircle.area(None)\n",
	}, true)

	shapes := mustModule(t, g, "shapes")
	area := shapes.Tree.TopLevel("Circle").Body.Local("area")
	require.NotNil(t, area)

	use := mustModule(t, g, "use")
	var found bool
	for _, attr := range use.Tree.Attributes {
		v := g.AttributeValue(use.Index, attr)
		if v.Kind == ValueSymbol && v.Symbol.Binding == area {
			found = true
		}
	}
	assert.True(t, found)
}
