// Package testutil provides test helpers that keep the package layering of
// rentalcore honest.
package testutil

import (
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Module is the import path prefix of this repository.
const Module = "rentalcore"

// AssertNoTransitiveDependency loads pattern with its full import graph and
// fails if any dependency satisfies forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	deps, err := loadDeps(pattern)
	if err != nil {
		t.Fatalf("load %s: %v", pattern, err)
	}
	var viols []string
	for _, dep := range deps {
		if forbidden(dep) {
			viols = append(viols, dep)
		}
	}
	failIf(t, "forbidden transitive dependency", reason, viols)
}

// AssertNoDirectImports parses the non-test .go files directly inside dir
// and fails if any import satisfies forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := importViolations(dir, false, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failIf(t, "forbidden direct imports", reason, viols)
}

// AssertNoImportsUnder is AssertNoDirectImports applied to every package
// below root.
func AssertNoImportsUnder(t testing.TB, root string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := importViolations(root, true, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", root, err)
	}
	failIf(t, "forbidden imports", reason, viols)
}

// Internal matches imports of the given packages under rentalcore/internal,
// including their subpackages. With no names it matches all of internal.
func Internal(names ...string) func(string) bool {
	return func(path string) bool {
		rest, ok := strings.CutPrefix(path, Module+"/internal/")
		if !ok {
			return false
		}
		if len(names) == 0 {
			return true
		}
		for _, n := range names {
			if rest == n || strings.HasPrefix(rest, n+"/") {
				return true
			}
		}
		return false
	}
}

// ThirdParty matches imports outside the standard library and this module.
func ThirdParty(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

// AnyOf combines predicates.
func AnyOf(preds ...func(string) bool) func(string) bool {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

// loadDeps returns the sorted import paths reachable from pattern, excluding
// the roots themselves.
var loadDeps = func(pattern string) ([]string, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	roots, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, err
	}
	rootSet := make(map[string]bool, len(roots))
	for _, p := range roots {
		rootSet[p.PkgPath] = true
	}
	var loadErr error
	seen := map[string]bool{}
	packages.Visit(roots, nil, func(p *packages.Package) {
		if len(p.Errors) > 0 && loadErr == nil {
			loadErr = p.Errors[0]
		}
		if !rootSet[p.PkgPath] {
			seen[p.PkgPath] = true
		}
	})
	if loadErr != nil {
		return nil, loadErr
	}
	deps := make([]string, 0, len(seen))
	for path := range seen {
		deps = append(deps, path)
	}
	sort.Strings(deps)
	return deps, nil
}

func importViolations(root string, recursive bool, forbidden func(string) bool) ([]string, error) {
	fset := token.NewFileSet()
	var viols []string
	check := func(path string) error {
		file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		for _, imp := range file.Imports {
			ip := strings.Trim(imp.Path.Value, `"`)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+filepath.ToSlash(rel)+")")
			}
		}
		return nil
	}
	isSource := func(name string) bool {
		return strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go")
	}
	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !isSource(e.Name()) {
				continue
			}
			if err := check(filepath.Join(root, e.Name())); err != nil {
				return nil, err
			}
		}
		return viols, nil
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), "_") || strings.HasPrefix(d.Name(), ".") || d.Name() == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isSource(d.Name()) {
			return nil
		}
		return check(path)
	})
	sort.Strings(viols)
	return viols, err
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIf(t fatalLogger, what, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("%s detected (%s):\n%s", what, reason, strings.Join(viols, "\n"))
	}
}
