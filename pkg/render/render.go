// Package render converts Markdown documents to HTML fragments.
//
// Bodies written by the site's own authors are rendered with raw HTML passed
// through untouched. Auxiliary fragments (navigation, footer) are rendered
// the same way and then run through an HTML sanitizer.
package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Options selects how a single document is rendered.
type Options struct {
	// Sanitize strips any markup outside the fragment policy.
	Sanitize bool
}

// Renderer is stateless after construction and safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// New returns a Renderer configured for GitHub flavoured Markdown.
func New() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			extension.DefinitionList,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)
	return &Renderer{md: md, policy: fragmentPolicy()}
}

// fragmentPolicy is the user-generated-content policy plus collapsible
// sections, whose data-path attribute drives client side navigation state.
func fragmentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("details", "summary", "nav")
	p.AllowAttrs("data-path").OnElements("details")
	p.AllowAttrs("open").OnElements("details")
	return p
}

// Render converts markdown to HTML.
func (r *Renderer) Render(markdown string, opts Options) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("markdown render: %w", err)
	}
	if opts.Sanitize {
		return template.HTML(r.policy.SanitizeBytes(buf.Bytes())), nil
	}
	return template.HTML(buf.String()), nil
}
