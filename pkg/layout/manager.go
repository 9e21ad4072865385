package layout

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// PageTemplate is the name of the template used for every documentation page.
const PageTemplate = "page.tmpl.html"

//go:embed templates/*.html
var embedded embed.FS

// Page is the data handed to PageTemplate.
type Page struct {
	Title string
	// Path is the request path, exposed to client side styling as data-path.
	Path   string
	Nav    template.HTML
	Body   template.HTML
	Footer template.HTML
}

// Manager holds the parsed layout templates. The embedded defaults are always
// loaded first; files in an optional override directory replace templates of
// the same name. All methods are concurrent-safe.
type Manager struct {
	logger    *slog.Logger
	dir       string
	templates *template.Template
	names     []string
	mu        sync.RWMutex
}

// NewManager loads the layout templates. dir may be empty to use only the
// embedded defaults.
func NewManager(logger *slog.Logger, dir string) (*Manager, error) {
	m := &Manager{logger: logger, dir: dir}
	if err := m.Refresh(); err != nil {
		return nil, err
	}
	return m, nil
}

// Refresh re-parses the embedded templates and the override directory.
func (m *Manager) Refresh() error {
	tmpl, err := template.New("").ParseFS(embedded, "templates/*.html")
	if err != nil {
		return fmt.Errorf("failed to parse embedded layout templates: %w", err)
	}

	if m.dir != "" {
		for _, pattern := range []string{"*.tmpl.html", "*.part.html"} {
			matches, globErr := filepath.Glob(filepath.Join(m.dir, pattern))
			if globErr != nil {
				return fmt.Errorf("bad layout pattern: %w", globErr)
			}
			if len(matches) == 0 {
				continue
			}
			if tmpl, err = tmpl.ParseFiles(matches...); err != nil {
				m.logger.Error("Failed to parse layout overrides", "dir", m.dir, "error", err)
				return fmt.Errorf("failed to parse layout overrides: %w", err)
			}
			m.logger.Info("Loaded layout overrides", "pattern", pattern, "count", len(matches))
		}
	}

	if tmpl.Lookup(PageTemplate) == nil {
		return fmt.Errorf("layout is missing %s", PageTemplate)
	}

	var names []string
	for _, t := range tmpl.Templates() {
		if strings.HasSuffix(t.Name(), ".html") {
			names = append(names, t.Name())
		}
	}
	sort.Strings(names)

	m.mu.Lock()
	m.templates = tmpl
	m.names = names
	m.mu.Unlock()
	return nil
}

// Execute renders the named template to w.
func (m *Manager) Execute(w io.Writer, name string, data any) error {
	m.mu.RLock()
	tmpl := m.templates
	m.mu.RUnlock()
	return tmpl.ExecuteTemplate(w, name, data)
}

// Render writes a full documentation page.
func (m *Manager) Render(w io.Writer, page Page) error {
	return m.Execute(w, PageTemplate, page)
}

// TemplateNames returns the loaded template names, partials included.
func (m *Manager) TemplateNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.names...)
}
