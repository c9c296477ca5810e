package resolver

import (
	"path"
	"sort"
	"strings"

	"pyrename/internal/core/errors"
)

// PythonResolver maps project files to dotted module names and resolves
// import references against the set of modules present in the project.
type PythonResolver struct {
	sourceRoots []string

	modules  map[string]string
	packages map[string]bool
	tops     map[string]bool
}

// NewPythonResolver takes slash-separated source roots relative to the
// project root. An empty list means the project root itself.
func NewPythonResolver(sourceRoots []string) *PythonResolver {
	roots := make([]string, 0, len(sourceRoots))
	for _, root := range sourceRoots {
		root = strings.Trim(path.Clean("/"+root), "/")
		roots = append(roots, root)
	}
	if len(roots) == 0 {
		roots = append(roots, "")
	}
	// Longest root first so nested roots win.
	sort.SliceStable(roots, func(i, j int) bool { return len(roots[i]) > len(roots[j]) })
	return &PythonResolver{
		sourceRoots: roots,
		modules:     make(map[string]string),
		packages:    make(map[string]bool),
		tops:        make(map[string]bool),
	}
}

// GetModuleName returns the dotted module name of a project-relative file and
// whether the file is a package `__init__`. A root-level `__init__.py` is
// named "__init__".
func (r *PythonResolver) GetModuleName(relPath string) (string, bool) {
	rel := strings.TrimPrefix(path.Clean("/"+relPath), "/")
	for _, root := range r.sourceRoots {
		if root == "" {
			break
		}
		if strings.HasPrefix(rel, root+"/") {
			rel = strings.TrimPrefix(rel, root+"/")
			break
		}
	}

	parts := strings.Split(rel, "/")
	last := parts[len(parts)-1]
	last = strings.TrimSuffix(strings.TrimSuffix(last, ".py"), ".pyi")
	parts[len(parts)-1] = last

	if last == "__init__" {
		if len(parts) == 1 {
			return "__init__", true
		}
		return strings.Join(parts[:len(parts)-1], "."), true
	}
	return strings.Join(parts, "."), false
}

// Register records a module so later lookups and resolutions can see it.
// A `.py` file wins over a `.pyi` stub of the same module.
func (r *PythonResolver) Register(module, file string) {
	if existing, ok := r.modules[module]; ok && strings.HasSuffix(existing, ".py") && strings.HasSuffix(file, ".pyi") {
		return
	}
	r.modules[module] = file
	parts := strings.Split(module, ".")
	r.tops[parts[0]] = true
	for i := 1; i < len(parts); i++ {
		r.packages[strings.Join(parts[:i], ".")] = true
	}
}

// Lookup returns the file registered for module.
func (r *PythonResolver) Lookup(module string) (string, bool) {
	file, ok := r.modules[module]
	return file, ok
}

// IsPackage reports whether module has submodules in the project, including
// PEP 420 namespace directories without an `__init__`.
func (r *PythonResolver) IsPackage(module string) bool {
	return r.packages[module]
}

// InProject reports whether the first component of module is a package or
// module of the project. Imports outside the project are external.
func (r *PythonResolver) InProject(module string) bool {
	if module == "" {
		return false
	}
	top, _, _ := strings.Cut(module, ".")
	return r.tops[top]
}

// PackageOf returns the package components that relative imports inside
// module are anchored at.
func PackageOf(module string, isPackage bool) []string {
	if module == "" || module == "__init__" {
		return nil
	}
	parts := strings.Split(module, ".")
	if isPackage {
		return parts
	}
	return parts[:len(parts)-1]
}

// ResolveImport turns an import reference into an absolute module name. A
// level of one anchors at the importer's own package; each further dot walks
// one package up. Walking above the top-level package, or a relative import
// in a module outside any package, is an unresolved import.
func (r *PythonResolver) ResolveImport(fromModule string, fromPackage bool, module string, level int) (string, error) {
	if level == 0 {
		return module, nil
	}

	pkg := PackageOf(fromModule, fromPackage)
	up := level - 1
	if up >= len(pkg) {
		err := errors.New(errors.CodeUnresolvedImport, "relative import beyond top-level package")
		err = errors.AddContext(err, errors.CtxModule, fromModule)
		return "", errors.AddContext(err, errors.CtxLevel, level)
	}

	base := pkg[:len(pkg)-up]
	parts := append([]string(nil), base...)
	if module != "" {
		parts = append(parts, module)
	}
	return strings.Join(parts, "."), nil
}

// Modules lists every registered module name, sorted.
func (r *PythonResolver) Modules() []string {
	out := make([]string, 0, len(r.modules))
	for name := range r.modules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
