package gateway

import (
	"strings"
	"unicode"
)

// SearchPath is the request path of the search form.
const SearchPath = "/search"

var specLinks = []string{
	"https://webassembly.org/specs/",
	"https://www.w3.org/TR/wasm-core-1/",
	"https://github.com/WebAssembly/WASI/blob/main/Proposals.md",
}

// searchIndex maps an exact, case-sensitive query to its result links.
var searchIndex = map[string][]string{
	"github": {
		"https://github.com/RoyalIcing/Orb",
		"https://github.com/RoyalIcing/SilverOrb",
	},
	"spec":  specLinks,
	"specs": specLinks,
}

var attrEscaper = strings.NewReplacer(
	`&`, "&amp;",
	`"`, "&quot;",
	`<`, "&lt;",
	`>`, "&gt;",
	`'`, "&#39;",
)

// NormalizeQuery collapses every run of whitespace and control characters
// into a single space and trims both ends.
func NormalizeQuery(q string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, q)
	return strings.Join(strings.Fields(mapped), " ")
}

// SearchResults returns the links for a normalized query, or nil.
func SearchResults(query string) []string {
	return searchIndex[query]
}

// SearchMarkdown builds the search page: a form carrying the normalized query
// as its value, a blank line, then one list item per result.
func SearchMarkdown(rawQuery string) string {
	query := NormalizeQuery(rawQuery)

	var b strings.Builder
	b.WriteString(`<form action=/search><input placeholder="Search" name=q value="`)
	b.WriteString(attrEscaper.Replace(query))
	b.WriteString(`" style="margin-bottom: 1rem"></form>`)
	b.WriteString("\n\n")
	for i, link := range SearchResults(query) {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(link)
	}
	return b.String()
}
