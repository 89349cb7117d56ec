// Package alias defines query aliases and the global alias table, a YAML
// file mapping names to expressions. Catalog-local aliases live in the
// store package; on expansion local entries override global ones.
package alias

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Alias is a named replacement for a query sub-expression. Recursive
// aliases are re-parsed and re-expanded after substitution.
type Alias struct {
	Expression string `yaml:"expression" json:"expression"`
	Recursive  bool   `yaml:"recursive" json:"recursive"`
}

// Table is the global alias table backed by a YAML file on disk.
type Table struct {
	path  string
	table map[string]Alias
}

// Open loads the table at path. A missing file yields an empty table.
func Open(path string) (*Table, error) {
	t := &Table{path: path, table: map[string]Alias{}}

	source, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("reading alias file: %w", err)
	}
	if err := yaml.Unmarshal(source, &t.table); err != nil {
		return nil, fmt.Errorf("parsing alias file: %w", err)
	}
	if t.table == nil {
		t.table = map[string]Alias{}
	}
	return t, nil
}

// Add inserts or replaces an alias.
func (t *Table) Add(name, expression string, recursive bool) {
	t.table[name] = Alias{Expression: expression, Recursive: recursive}
}

// Delete removes an alias by name.
func (t *Table) Delete(name string) {
	delete(t.table, name)
}

// Get looks up an alias by name.
func (t *Table) Get(name string) (Alias, bool) {
	a, ok := t.table[name]
	return a, ok
}

// Names returns the alias names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.table))
	for name := range t.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the table suitable for merging with local aliases.
func (t *Table) Map() map[string]Alias {
	m := make(map[string]Alias, len(t.table))
	for k, v := range t.table {
		m[k] = v
	}
	return m
}

// Save writes the table back to its file, creating parent directories.
func (t *Table) Save() error {
	if dir := filepath.Dir(t.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating alias directory: %w", err)
		}
	}
	source, err := yaml.Marshal(t.table)
	if err != nil {
		return fmt.Errorf("encoding alias file: %w", err)
	}
	if err := os.WriteFile(t.path, source, 0o644); err != nil {
		return fmt.Errorf("writing alias file: %w", err)
	}
	return nil
}
