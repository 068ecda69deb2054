package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Clean collapses consecutive whitespace into a single space and trims the
// result. Used for human-facing fields; it never touches markup.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StripMarkup returns the visible text of an HTML fragment.
//
// Inline elements (b, i, span, font, ...) are removed without introducing
// spacing, so "Lap<b>top</b>" and "Laptop" yield the same text. Block-level
// elements and <br> act as word boundaries. Entities are unescaped. Content of
// script and style elements is dropped.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way we keep what we have.
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				skip++
			}
			if isBoundary(a) {
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if (a == atom.Script || a == atom.Style) && skip > 0 {
				skip--
			}
			if isBoundary(a) {
				b.WriteByte(' ')
			}
		}
	}
}

func isBoundary(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol,
		atom.Td, atom.Th, atom.Tr, atom.Table, atom.Tbody, atom.Thead,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Hr:
		return true
	}
	return false
}

// Fold decomposes s (NFKD) and removes combining marks: "Adquisición" becomes
// "Adquisicion". Letters without a decomposition are kept as they are.
func Fold(s string) string {
	// A transform chain carries state, so each call builds its own.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// MatchKey canonicalizes text for identity decisions only: markup stripped,
// diacritics removed, lowercased, whitespace collapsed. The result is never
// stored as display text.
func MatchKey(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(Clean(Fold(StripMarkup(s))))
}
