package manifest

import (
	"context"
	"fmt"
	"go/ast"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/tools/go/packages"
)

// Discover statically enumerates Test functions in the target packages by
// loading their syntax, without running anything. dir is the working
// directory for package resolution; patterns follow go list conventions.
func Discover(ctx context.Context, dir string, patterns ...string) (*Manifest, error) {
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	cfg := &packages.Config{
		Context: ctx,
		Dir:     dir,
		Mode:    packages.NeedName | packages.NeedFiles | packages.NeedSyntax,
		Tests:   true,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading packages: %w", err)
	}

	var loadErrs []string
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			loadErrs = append(loadErrs, e.Error())
		}
	}
	if len(loadErrs) > 0 {
		// A package that does not load yields an incomplete manifest,
		// which would misreport valid table entries as stale.
		return nil, fmt.Errorf("loading packages: %s", strings.Join(loadErrs, "; "))
	}

	m := New()
	for _, pkg := range pkgs {
		path := normalizePkgPath(pkg.PkgPath)
		if path == "" {
			continue
		}
		for _, file := range pkg.Syntax {
			for _, decl := range file.Decls {
				fn, ok := decl.(*ast.FuncDecl)
				if !ok || fn.Recv != nil {
					continue
				}
				if isTestFunc(fn) {
					m.Add(path, fn.Name.Name)
				}
			}
		}
	}
	if m.Len() == 0 {
		return nil, fmt.Errorf("no tests found in %s", strings.Join(patterns, " "))
	}
	return m, nil
}

// normalizePkgPath folds the synthetic test variants go/packages reports
// ("pkg.test", "pkg [pkg.test]", "pkg_test [pkg.test]") onto the package's
// import path. Returns "" for variants that carry no test sources of their
// own.
func normalizePkgPath(path string) string {
	if strings.HasSuffix(path, ".test") {
		return "" // generated test main, never holds Test funcs
	}
	if i := strings.Index(path, " ["); i >= 0 {
		path = path[:i]
	}
	return strings.TrimSuffix(path, "_test")
}

// isTestFunc reports whether fn has the shape the go tool treats as a test:
// named Test or TestXxx where Xxx does not start lowercase, one parameter
// of type *testing.T, no results.
func isTestFunc(fn *ast.FuncDecl) bool {
	name := fn.Name.Name
	if !strings.HasPrefix(name, "Test") {
		return false
	}
	if len(name) > len("Test") {
		r, _ := utf8.DecodeRuneInString(name[len("Test"):])
		if unicode.IsLower(r) {
			return false
		}
	}
	ft := fn.Type
	if ft.Results != nil && len(ft.Results.List) > 0 {
		return false
	}
	if ft.Params == nil || len(ft.Params.List) != 1 {
		return false
	}
	star, ok := ft.Params.List[0].Type.(*ast.StarExpr)
	if !ok {
		return false
	}
	sel, ok := star.X.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "T" {
		return false
	}
	ident, ok := sel.X.(*ast.Ident)
	return ok && ident.Name == "testing"
}
