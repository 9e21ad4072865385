package render

import (
	"strings"
	"testing"
)

func TestRender_Body(t *testing.T) {
	r := New()

	got, err := r.Render("# Orb\n\nWrite **WebAssembly** with Elixir.\n", Options{})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	html := string(got)
	if !strings.Contains(html, `<h1 id="orb">Orb</h1>`) {
		t.Errorf("expected heading with auto id, got %q", html)
	}
	if !strings.Contains(html, "<strong>WebAssembly</strong>") {
		t.Errorf("expected emphasis, got %q", html)
	}
}

func TestRender_UnsanitizedKeepsRawHTML(t *testing.T) {
	r := New()
	md := `<form action=/search><input name=q value="x"></form>` + "\n\n- https://webassembly.org/specs/\n"

	got, err := r.Render(md, Options{Sanitize: false})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	html := string(got)
	if !strings.Contains(html, "<form action=/search>") {
		t.Errorf("raw form should pass through, got %q", html)
	}
	if !strings.Contains(html, `<a href="https://webassembly.org/specs/">`) {
		t.Errorf("bare URL should be linkified, got %q", html)
	}
}

func TestRender_SanitizedFragment(t *testing.T) {
	r := New()
	md := "<details data-path=\"/concepts\" onclick=\"steal()\">\n<summary>Concepts</summary>\n\n- [Strings](/concepts/strings)\n\n</details>\n\n<script>alert(1)</script>\n"

	got, err := r.Render(md, Options{Sanitize: true})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	html := string(got)
	if !strings.Contains(html, `<details data-path="/concepts">`) {
		t.Errorf("details with data-path should survive, got %q", html)
	}
	if strings.Contains(html, "onclick") || strings.Contains(html, "<script") {
		t.Errorf("sanitizer should strip handlers and scripts, got %q", html)
	}
	if !strings.Contains(html, `<a href="/concepts/strings"`) {
		t.Errorf("links should survive sanitizing, got %q", html)
	}
}

func TestRender_Table(t *testing.T) {
	r := New()
	got, err := r.Render("| a | b |\n|---|---|\n| 1 | 2 |\n", Options{})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(string(got), "<table>") {
		t.Errorf("expected GFM table, got %q", got)
	}
}
