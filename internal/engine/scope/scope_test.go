package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyrename/internal/core/errors"
	"pyrename/internal/engine/parser"
)

func build(t *testing.T, src string) *Tree {
	t.Helper()
	file, err := parser.NewParser().Parse("m.py", "m.py", []byte(src))
	require.NoError(t, err)
	t.Cleanup(file.Close)
	return Build(file)
}

func occAt(t *testing.T, tree *Tree, line, col int) *Occurrence {
	t.Helper()
	offset, ok := tree.File.OffsetAt(line, col)
	require.True(t, ok)
	occ := tree.OccurrenceAt(offset)
	require.NotNil(t, occ, "no occurrence at %d:%d", line, col)
	return occ
}

func TestFunctionLocalShadowsModuleName(t *testing.T) {
	tree := build(t, `x = 1
def f():
    x = 2
    return x
print(x)
`)
	top := tree.TopLevel("x")
	require.NotNil(t, top)
	assert.Len(t, tree.OccurrencesOf(top), 2)

	inner := occAt(t, tree, 4, 12)
	assert.NotSame(t, top, inner.Binding)
	assert.Equal(t, FunctionScope, inner.Binding.Scope.Kind)
}

func TestGlobalRedirectsStores(t *testing.T) {
	tree := build(t, `counter = 0
def inc():
    global counter
    counter += 1
`)
	top := tree.TopLevel("counter")
	require.NotNil(t, top)
	assert.Len(t, tree.OccurrencesOf(top), 3)
	assert.Len(t, top.Defs, 2)
}

func TestNonlocalRedirectsToEnclosingFunction(t *testing.T) {
	tree := build(t, `def outer():
    n = 0
    def inner():
        nonlocal n
        n = n + 1
    return n
`)
	n := occAt(t, tree, 2, 5).Binding
	require.NotNil(t, n)
	assert.Len(t, tree.OccurrencesOf(n), 5)
	assert.Equal(t, "outer", n.Scope.Name)
}

func TestClassScopeSkippedForNestedFunctions(t *testing.T) {
	tree := build(t, `y = 1
class C:
    y = 2
    def m(self):
        return y
`)
	use := occAt(t, tree, 5, 16)
	assert.Same(t, tree.TopLevel("y"), use.Binding)
}

func TestClassBodyIsPositionSensitive(t *testing.T) {
	tree := build(t, `x = 1
class C:
    y = x
    x = 2
    z = x
`)
	assert.Same(t, tree.TopLevel("x"), occAt(t, tree, 3, 9).Binding)
	classX := occAt(t, tree, 5, 9).Binding
	require.NotNil(t, classX)
	assert.Equal(t, ClassScope, classX.Scope.Kind)
}

func TestComprehensionTargetsAreIsolated(t *testing.T) {
	tree := build(t, `items = [1]
i = 0
squares = [i * i for i in items]
`)
	assert.Len(t, tree.OccurrencesOf(tree.TopLevel("i")), 1)
	assert.Len(t, tree.OccurrencesOf(tree.TopLevel("items")), 2)
	assert.Equal(t, ComprehensionScope, occAt(t, tree, 3, 12).Binding.Scope.Kind)
}

func TestWalrusInComprehensionBindsEnclosingFunction(t *testing.T) {
	tree := build(t, `def f(data):
    if any((hit := d) > 0 for d in data):
        return hit
`)
	ret := occAt(t, tree, 3, 16)
	require.NotNil(t, ret.Binding)
	assert.Equal(t, FunctionScope, ret.Binding.Scope.Kind)
	assert.Same(t, ret.Binding, occAt(t, tree, 2, 13).Binding)
}

func TestParametersAndDefaults(t *testing.T) {
	tree := build(t, `default = 3
def f(x=default, *args, y: int = 2, **kw):
    return x
`)
	assert.Len(t, tree.OccurrencesOf(tree.TopLevel("default")), 2)
	body := tree.TopLevel("f").Body
	require.NotNil(t, body)
	assert.Equal(t, []string{"args", "kw", "x", "y"}, body.Names())
	assert.Equal(t, BindParameter, body.Local("x").Kind)
}

func TestExceptAndWithTargets(t *testing.T) {
	tree := build(t, `try:
    pass
except ValueError as err:
    print(err)
with open("f") as fh:
    fh.read()
`)
	require.NotNil(t, tree.TopLevel("err"))
	require.NotNil(t, tree.TopLevel("fh"))
	assert.Len(t, tree.OccurrencesOf(tree.TopLevel("err")), 2)
	assert.Len(t, tree.OccurrencesOf(tree.TopLevel("fh")), 2)
}

func TestMethodSelfParameter(t *testing.T) {
	tree := build(t, `class C:
    def m(self, a):
        return self.a
`)
	cls := tree.TopLevel("C")
	require.NotNil(t, cls.Body)
	m := cls.Body.Local("m")
	require.NotNil(t, m)
	assert.Equal(t, "self", m.Body.SelfParam)

	attr := tree.AttributeAt(mustOffset(t, tree, 3, 21))
	require.NotNil(t, attr)
	assert.Equal(t, []string{"self"}, attr.Chain)
	assert.Equal(t, "a", attr.Name)
}

func TestStaticMethodHasNoSelfParameter(t *testing.T) {
	tree := build(t, `class C:
    @staticmethod
    def helper(job):
        return job.run()

    @classmethod
    def build(cls):
        return cls()
`)
	cls := tree.TopLevel("C")
	require.NotNil(t, cls.Body)
	assert.Equal(t, "", cls.Body.Local("helper").Body.SelfParam)
	assert.Equal(t, "cls", cls.Body.Local("build").Body.SelfParam)
}

func TestImportBindings(t *testing.T) {
	tree := build(t, `import os.path
import numpy as np
from .utils import helper as h, other
from pkg import *
`)
	require.Len(t, tree.Imports, 5)
	assert.Len(t, tree.StarImports(), 1)
	assert.Equal(t, "pkg", tree.StarImports()[0].Module)

	osb := tree.TopLevel("os")
	require.NotNil(t, osb)
	assert.Equal(t, BindModule, osb.Kind)
	assert.Equal(t, "os", osb.Import.Target)
	assert.Equal(t, "os.path", osb.Import.Module)

	np := tree.TopLevel("np").Import
	assert.Equal(t, "numpy", np.Target)
	assert.True(t, np.Aliased())

	h := tree.TopLevel("h").Import
	assert.Equal(t, "helper", h.Name)
	assert.Equal(t, "utils", h.Module)
	assert.Equal(t, 1, h.Level)
	assert.Equal(t, 3, h.NameSpan.Start.Line)
	assert.Equal(t, 20, h.NameSpan.Start.Column)
	assert.Same(t, h, tree.ImportNameAt(h.NameSpan.Start.Offset))

	other := tree.TopLevel("other")
	require.NotNil(t, other)
	assert.Equal(t, BindImport, other.Kind)
	assert.False(t, other.Import.Aliased())
}

func TestRelativeImportDepth(t *testing.T) {
	tree := build(t, "from ...pkg.module import n\nfrom . import sibling\n")
	n := tree.TopLevel("n").Import
	assert.Equal(t, 3, n.Level)
	assert.Equal(t, "pkg.module", n.Module)

	sibling := tree.TopLevel("sibling").Import
	assert.Equal(t, 1, sibling.Level)
	assert.Equal(t, "", sibling.Module)
}

func TestExportsFromAllForms(t *testing.T) {
	tree := build(t, `__all__ = ["a", 'b']
__all__ += ["c"]
__all__.append("d")
__all__.extend(("e",))
`)
	require.True(t, tree.Exports.Explicit)
	var names []string
	for _, e := range tree.Exports.Entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, names)
	assert.Equal(t, 13, tree.Exports.Entries[0].Span.Start.Column)
	assert.True(t, tree.Exports.Contains("c"))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, tree.PublicNames())
}

func TestPublicNamesWithoutAll(t *testing.T) {
	tree := build(t, `import os
from x import y as _hidden
def run(): pass
_private = 1
VALUE = 2
`)
	assert.False(t, tree.Exports.Explicit)
	assert.Equal(t, []string{"VALUE", "os", "run"}, tree.PublicNames())
}

func TestMatchCaptures(t *testing.T) {
	tree := build(t, `def f(cmd):
    match cmd:
        case Point(x=px, y=py) as whole:
            return px, py, whole
        case [first, *rest]:
            return first, rest
`)
	body := tree.TopLevel("f").Body
	for _, name := range []string{"px", "py", "whole", "first", "rest"} {
		assert.NotNil(t, body.Local(name), name)
	}
	assert.Nil(t, body.Local("Point"))
}

func TestResolve(t *testing.T) {
	tree := build(t, "value = 1\nprint(value)\n")

	occ, err := tree.Resolve(parser.Position{File: "m.py", Line: 2, Column: 7})
	require.NoError(t, err)
	assert.Same(t, tree.TopLevel("value"), occ.Binding)

	_, err = tree.Resolve(parser.Position{File: "m.py", Line: 2, Column: 2})
	assert.True(t, errors.IsCode(err, errors.CodeSymbolNotFound))

	_, err = tree.Resolve(parser.Position{File: "m.py", Line: 9, Column: 1})
	assert.True(t, errors.IsCode(err, errors.CodeSymbolNotFound))
}

func TestLambdaParameters(t *testing.T) {
	tree := build(t, "k = 1\nf = lambda k, j=k: k + j\n")
	assert.Len(t, tree.OccurrencesOf(tree.TopLevel("k")), 2)
}

func TestKeywordArgumentNamesAreNotOccurrences(t *testing.T) {
	tree := build(t, "name = 1\ncall(name=name)\n")
	assert.Len(t, tree.OccurrencesOf(tree.TopLevel("name")), 2)
}

func mustOffset(t *testing.T, tree *Tree, line, col int) int {
	t.Helper()
	offset, ok := tree.File.OffsetAt(line, col)
	require.True(t, ok)
	return offset
}
