// Package testutil provides test helpers that enforce package layering.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Fataler is the subset of testing.TB used by the guards.
type Fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// AssertNoDirectImports parses the non-test .go files in dir and fails if any
// import path satisfies forbidden.
func AssertNoDirectImports(t Fataler, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := DirectImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan imports of %s: %v", dir, err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// DirectImportViolations lists "path (in file.go)" for every forbidden import
// of the non-test files in dir, sorted.
func DirectImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				viols = append(viols, path+" (in "+name+")")
			}
		}
	}
	sort.Strings(viols)
	return viols, nil
}

// InternalImportForbidden matches any package under an internal/ tree.
func InternalImportForbidden(path string) bool {
	return strings.HasPrefix(path, "eegrecords/internal/") || strings.Contains(path, "/internal/")
}

// ThirdPartyImportForbidden matches imports outside the standard library and this module.
func ThirdPartyImportForbidden(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

// ServiceImportForbidden matches the service layer and the CLI.
func ServiceImportForbidden(path string) bool {
	return path == "eegrecords/internal/core" || strings.HasPrefix(path, "eegrecords/cmd/")
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
