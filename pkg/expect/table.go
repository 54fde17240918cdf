package expect

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Table is an immutable, validated set of expectation entries.
type Table struct {
	// Suite is a human label for the expectation set.
	Suite string

	// Packages are the default package patterns the harness runs when
	// the command line names none.
	Packages []string

	entries []Entry
	index   map[tableKey]int
}

type tableKey struct {
	pkg  string
	test string
}

// New validates entries and builds a table. Duplicate targets, empty test
// names, skip entries on subtest paths, and message constraints on skip
// entries are all load-time errors.
func New(suite string, packages []string, entries []Entry) (*Table, error) {
	t := &Table{
		Suite:    suite,
		Packages: packages,
		entries:  make([]Entry, 0, len(entries)),
		index:    make(map[tableKey]int, len(entries)),
	}
	for i, e := range entries {
		if e.Test == "" {
			return nil, fmt.Errorf("entry %d: empty test name", i)
		}
		if e.Disposition == Skip && strings.Contains(e.Test, "/") {
			return nil, fmt.Errorf("entry %q: skip applies to top-level tests only (a subtest cannot be excluded without running its parent's setup)", e.Test)
		}
		if e.Disposition == Skip && e.Message != "" {
			return nil, fmt.Errorf("entry %q: message constraint is meaningless on a skipped test", e.Test)
		}
		k := tableKey{pkg: e.Package, test: e.Test}
		if prev, dup := t.index[k]; dup {
			return nil, fmt.Errorf("entry %q duplicates entry %d", e.Test, prev)
		}
		t.index[k] = len(t.entries)
		t.entries = append(t.entries, e)
	}
	return t, nil
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Entries returns the entries in declaration order. The slice is a copy.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Lookup finds the entry governing a test. Package-qualified entries take
// precedence over unqualified ones.
func (t *Table) Lookup(pkg, test string) (Entry, bool) {
	if i, ok := t.index[tableKey{pkg: pkg, test: test}]; ok {
		return t.entries[i], true
	}
	if i, ok := t.index[tableKey{test: test}]; ok {
		return t.entries[i], true
	}
	return Entry{}, false
}

// SkipEntries returns the entries with the Skip disposition, sorted by test
// name for stable reporting.
func (t *Table) SkipEntries() []Entry {
	var skips []Entry
	for _, e := range t.entries {
		if e.Disposition == Skip {
			skips = append(skips, e)
		}
	}
	sort.Slice(skips, func(i, j int) bool { return skips[i].Test < skips[j].Test })
	return skips
}

// SkipPattern builds the anchored regexp handed to go test -skip so that
// skip-listed tests never execute. Returns "" when nothing is skipped.
func (t *Table) SkipPattern() string {
	skips := t.SkipEntries()
	if len(skips) == 0 {
		return ""
	}
	names := make([]string, 0, len(skips))
	seen := make(map[string]bool, len(skips))
	for _, e := range skips {
		if seen[e.Test] {
			continue
		}
		seen[e.Test] = true
		names = append(names, regexp.QuoteMeta(e.Test))
	}
	return "^(" + strings.Join(names, "|") + ")$"
}
