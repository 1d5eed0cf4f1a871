package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type capture struct {
	msg string
}

func (c *capture) Fatalf(format string, args ...any) {
	c.msg = fmt.Sprintf(format, args...)
}

func writeFile(t *testing.T, path, src string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestInternalPredicate(t *testing.T) {
	cases := []struct {
		names []string
		in    string
		want  bool
	}{
		{nil, "rentalcore/internal/hub", true},
		{nil, "rentalcore/pkg/domain", false},
		{[]string{"core"}, "rentalcore/internal/core", true},
		{[]string{"core"}, "rentalcore/internal/corex", false},
		{[]string{"infra"}, "rentalcore/internal/infra/blob/s3", true},
		{[]string{"hub"}, "example.com/other/internal/hub", false},
	}
	for _, c := range cases {
		if got := Internal(c.names...)(c.in); got != c.want {
			t.Fatalf("Internal(%v)(%q)=%v want %v", c.names, c.in, got, c.want)
		}
	}
}

func TestThirdPartyAndAnyOf(t *testing.T) {
	if !ThirdParty("github.com/gorilla/mux") || ThirdParty("net/http") || ThirdParty("rentalcore/pkg/domain") {
		t.Fatalf("unexpected ThirdParty classification")
	}
	pred := AnyOf(Internal("hub"), ThirdParty)
	if !pred("rentalcore/internal/hub") || !pred("golang.org/x/sync/errgroup") || pred("strings") {
		t.Fatalf("unexpected AnyOf result")
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "package tmp\nimport \"rentalcore/internal/hub\"\nvar _ = hub.New\n")
	writeFile(t, filepath.Join(dir, "a_test.go"), "package tmp\nimport \"rentalcore/internal/core\"\n")
	writeFile(t, filepath.Join(dir, "sub", "b.go"), "package sub\nimport \"rentalcore/internal/core\"\n")

	viols, err := importViolations(dir, false, Internal())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "rentalcore/internal/hub (in a.go)" {
		t.Fatalf("unexpected direct violations %v", viols)
	}
	viols, err = importViolations(dir, true, Internal())
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(viols) != 2 || viols[1] != "rentalcore/internal/hub (in a.go)" {
		t.Fatalf("unexpected recursive violations %v", viols)
	}

	c := &capture{}
	failIf(c, "forbidden imports", "test", viols)
	if !strings.Contains(c.msg, "sub/b.go") {
		t.Fatalf("expected failure to list violations, got %q", c.msg)
	}
	c = &capture{}
	failIf(c, "forbidden imports", "test", nil)
	if c.msg != "" {
		t.Fatalf("unexpected failure %q", c.msg)
	}
}

func TestImportViolationsSkipsHiddenAndUnderscoreDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "_examples", "x.go"), "package x\nimport \"rentalcore/internal/hub\"\n")
	writeFile(t, filepath.Join(dir, "testdata", "y.go"), "package y\nimport \"rentalcore/internal/hub\"\n")
	writeFile(t, filepath.Join(dir, "ok.go"), "package ok\nimport \"fmt\"\nvar _ = fmt.Sprint\n")
	AssertNoImportsUnder(t, dir, Internal(), "skipped directories are not scanned")
}

func TestImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.go"), "package bad\nimport (\n")
	if _, err := importViolations(dir, false, Internal()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestAssertNoTransitiveDependencyFiltersLoadedGraph(t *testing.T) {
	orig := loadDeps
	t.Cleanup(func() { loadDeps = orig })
	loadDeps = func(string) ([]string, error) {
		return []string{"fmt", "rentalcore/pkg/domain"}, nil
	}
	AssertNoTransitiveDependency(t, "./...", Internal(), "fake graph has no internal packages")
}
