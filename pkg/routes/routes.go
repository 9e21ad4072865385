// Package routes maps request paths to logical content paths.
//
// A logical content path is a slash separated name such as "concepts/strings".
// The fetcher turns it into a file path by adding a fixed prefix and extension.
// The table is plain data: it is either the compiled-in default or loaded from
// a YAML file, and lookups never touch the network.
package routes

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidTable is wrapped by every table validation failure.
var ErrInvalidTable = errors.New("routes: invalid table")

// Entry associates one request path with one logical content path.
type Entry struct {
	Path    string `yaml:"path" json:"path"`
	Content string `yaml:"content" json:"content"`
}

// Table is an immutable request path lookup. The zero value matches nothing.
type Table struct {
	byPath map[string]string
}

// defaultEntries is the documentation site's page list. "/silverorb" is an
// alias for a nested document.
var defaultEntries = []Entry{
	{Path: "/", Content: "readme"},
	{Path: "/install", Content: "install"},
	{Path: "/concepts/core-webassembly", Content: "concepts/core-webassembly"},
	{Path: "/concepts/elixir-compiler", Content: "concepts/elixir-compiler"},
	{Path: "/concepts/strings", Content: "concepts/strings"},
	{Path: "/concepts/composable-modules", Content: "concepts/composable-modules"},
	{Path: "/concepts/custom-types", Content: "concepts/custom-types"},
	{Path: "/concepts/platform-agnostic", Content: "concepts/platform-agnostic"},
	{Path: "/run/elixir", Content: "run/elixir"},
	{Path: "/run/javascript", Content: "run/javascript"},
	{Path: "/silverorb", Content: "silverorb/silverorb"},
	{Path: "/silverorb/parse", Content: "silverorb/parse"},
	{Path: "/silverorb/format", Content: "silverorb/format"},
}

// Default returns the compiled-in table.
func Default() *Table {
	t, err := New(defaultEntries)
	if err != nil {
		panic(err)
	}
	return t
}

// New builds a table from entries. Request paths must start with "/" and be
// unique; several request paths may share one logical path.
func New(entries []Entry) (*Table, error) {
	byPath := make(map[string]string, len(entries))
	for i, e := range entries {
		if !strings.HasPrefix(e.Path, "/") {
			return nil, fmt.Errorf("%w: entry %d: path %q must start with /", ErrInvalidTable, i, e.Path)
		}
		content := strings.Trim(e.Content, "/")
		if content == "" {
			return nil, fmt.Errorf("%w: entry %d: empty content for %q", ErrInvalidTable, i, e.Path)
		}
		if strings.Contains("/"+content+"/", "/../") {
			return nil, fmt.Errorf("%w: entry %d: content %q escapes the content prefix", ErrInvalidTable, i, e.Content)
		}
		if prev, dup := byPath[e.Path]; dup {
			return nil, fmt.Errorf("%w: duplicate path %q (already maps to %q)", ErrInvalidTable, e.Path, prev)
		}
		byPath[e.Path] = content
	}
	return &Table{byPath: byPath}, nil
}

type fileFormat struct {
	Routes []Entry `yaml:"routes"`
}

// Load reads a YAML routes file of the form:
//
//	routes:
//	  - path: /
//	    content: readme
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}
	var f fileFormat
	if err = yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse routes file %s: %w", path, err)
	}
	if len(f.Routes) == 0 {
		return nil, fmt.Errorf("%w: %s defines no routes", ErrInvalidTable, path)
	}
	return New(f.Routes)
}

// RouteFor returns the logical content path for requestPath. Paths that do
// not begin with "/" are malformed and never match.
func (t *Table) RouteFor(requestPath string) (string, bool) {
	if t == nil || !strings.HasPrefix(requestPath, "/") {
		return "", false
	}
	content, ok := t.byPath[requestPath]
	return content, ok
}

// Entries returns the table sorted by request path.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	entries := make([]Entry, 0, len(t.byPath))
	for p, c := range t.byPath {
		entries = append(entries, Entry{Path: p, Content: c})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// Len reports the number of request paths.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byPath)
}
