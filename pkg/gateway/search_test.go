package gateway

import (
	"strings"
	"testing"
)

func TestNormalizeQuery(t *testing.T) {
	tests := map[string]string{
		"  github \t":       "github",
		"web\r\n\tassembly": "web assembly",
		"a\x00\x01b":        "a b",
		"":                  "",
		" \t\n ":            "",
		"spec":              "spec",
	}
	for in, expected := range tests {
		if got := NormalizeQuery(in); got != expected {
			t.Errorf("NormalizeQuery(%q) = %q, expected %q", in, got, expected)
		}
	}
}

func TestSearchMarkdown(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantValue string
		wantLinks []string
	}{
		{"github", "  github \t", "github", []string{"https://github.com/RoyalIcing/Orb", "https://github.com/RoyalIcing/SilverOrb"}},
		{"spec", "spec", "spec", specLinks},
		{"specs", "specs", "specs", specLinks},
		{"near miss", "spects", "spects", nil},
		{"case sensitive", "GitHub", "GitHub", nil},
		{"quote escaped", `say "hi"`, "say &quot;hi&quot;", nil},
		{"markup escaped", `<b>&'`, "&lt;b&gt;&amp;&#39;", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := SearchMarkdown(tt.query)

			form, list, found := strings.Cut(md, "\n\n")
			if !found {
				t.Fatalf("expected a blank line after the form, got %q", md)
			}
			expectedForm := `<form action=/search><input placeholder="Search" name=q value="` + tt.wantValue + `" style="margin-bottom: 1rem"></form>`
			if form != expectedForm {
				t.Errorf("form = %q, expected %q", form, expectedForm)
			}

			var links []string
			if list != "" {
				for _, line := range strings.Split(list, "\n") {
					links = append(links, strings.TrimPrefix(line, "- "))
				}
			}
			if strings.Join(links, ",") != strings.Join(tt.wantLinks, ",") {
				t.Errorf("links = %v, expected %v", links, tt.wantLinks)
			}
		})
	}
}
