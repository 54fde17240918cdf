// Package manifest inventories the tests a target suite defines, so an
// expectation table can be checked against reality before anything runs.
// A table naming a test that no longer exists is a maintenance bug and must
// fail loudly up front, not silently classify nothing.
package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/halvard/xpect/pkg/expect"
	"github.com/halvard/xpect/pkg/testjson"
)

// Manifest is a set of top-level test names per package.
type Manifest struct {
	tests map[string]map[string]bool
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{tests: make(map[string]map[string]bool)}
}

// Add records a top-level test in a package.
func (m *Manifest) Add(pkg, test string) {
	if m.tests[pkg] == nil {
		m.tests[pkg] = make(map[string]bool)
	}
	m.tests[pkg][test] = true
}

// Has reports whether the test exists. An empty pkg matches any package.
func (m *Manifest) Has(pkg, test string) bool {
	if pkg != "" {
		return m.tests[pkg][test]
	}
	for _, names := range m.tests {
		if names[test] {
			return true
		}
	}
	return false
}

// Len returns the total number of tests.
func (m *Manifest) Len() int {
	n := 0
	for _, names := range m.tests {
		n += len(names)
	}
	return n
}

// Packages returns the package paths in sorted order.
func (m *Manifest) Packages() []string {
	pkgs := make([]string, 0, len(m.tests))
	for pkg := range m.tests {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	return pkgs
}

// TestsIn returns the sorted test names of one package.
func (m *Manifest) TestsIn(pkg string) []string {
	names := make([]string, 0, len(m.tests[pkg]))
	for name := range m.tests[pkg] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromResults builds a manifest from a parsed run. Subtest paths collapse to
// their top-level parent.
func FromResults(results []testjson.PackageResult) *Manifest {
	m := New()
	for _, pkg := range results {
		for _, tr := range pkg.Tests {
			name := tr.Name
			if i := strings.IndexByte(name, '/'); i >= 0 {
				name = name[:i]
			}
			m.Add(pkg.Name, name)
		}
	}
	return m
}

// Verify checks that every table entry targets a test the manifest knows.
// Subtest entries verify against their top-level parent; subtests are not
// statically enumerable. All missing targets are reported in one error.
func (m *Manifest) Verify(table *expect.Table) error {
	var missing []string
	for _, e := range table.Entries() {
		if !m.Has(e.Package, e.TopLevel()) {
			target := e.TopLevel()
			if e.Package != "" {
				target = e.Package + "." + target
			}
			missing = append(missing, target)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("expectation table names %d unknown test(s): %s", len(missing), strings.Join(missing, ", "))
	}
	return nil
}
