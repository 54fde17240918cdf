package expect

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileDoc mirrors the expectations YAML document.
type fileDoc struct {
	Suite        string     `yaml:"suite,omitempty"`
	Packages     []string   `yaml:"packages,omitempty"`
	Expectations []entryDoc `yaml:"expectations"`
}

type entryDoc struct {
	Test        string `yaml:"test"`
	Package     string `yaml:"package,omitempty"`
	Disposition string `yaml:"disposition"`
	Reason      string `yaml:"reason,omitempty"`
	Message     string `yaml:"message,omitempty"`
}

// Load reads an expectations document. Decoding is strict: unknown fields
// and unknown dispositions are errors, so a typo in the table fails the
// harness before any test runs.
func Load(r io.Reader) (*Table, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc fileDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding expectations: %w", err)
	}
	if len(doc.Expectations) == 0 {
		return nil, fmt.Errorf("expectations document lists no entries")
	}

	entries := make([]Entry, 0, len(doc.Expectations))
	for i, d := range doc.Expectations {
		disp, err := ParseDisposition(d.Disposition)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%q): %w", i, d.Test, err)
		}
		entries = append(entries, Entry{
			Test:        d.Test,
			Package:     d.Package,
			Disposition: disp,
			Reason:      d.Reason,
			Message:     d.Message,
		})
	}
	return New(doc.Suite, doc.Packages, entries)
}

// LoadFile reads an expectations document from disk.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening expectations file: %w", err)
	}
	defer f.Close()

	t, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
