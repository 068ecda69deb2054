package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/roach88/procura/internal/normalize"
)

// walk visits n and its descendants in document order until fn returns
// false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func find(root *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if pred(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

func isElem(n *html.Node, a atom.Atom) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == a
}

func isCell(n *html.Node) bool {
	return isElem(n, atom.Td) || isElem(n, atom.Th)
}

func hasClass(n *html.Node, class string) bool {
	if class == "" {
		return true
	}
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if strings.EqualFold(c, class) {
				return true
			}
		}
	}
	return false
}

func ancestor(n *html.Node, pred func(*html.Node) bool) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if pred(p) {
			return p
		}
	}
	return nil
}

func nextSibling(n *html.Node, pred func(*html.Node) bool) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if pred(s) {
			return s
		}
	}
	return nil
}

// textOf returns the visible text of n with whitespace collapsed.
func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		switch {
		case c.Type == html.TextNode:
			b.WriteString(c.Data)
		case isElem(c, atom.Br), isCell(c):
			b.WriteByte(' ')
		}
		return true
	})
	return normalize.Clean(b.String())
}

// innerHTML renders the children of n.
func innerHTML(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return textOf(n)
		}
	}
	return strings.TrimSpace(b.String())
}

// findCell returns the cell holding the first text node whose match key
// satisfies match, restricted to cells accepted by accept.
func findCell(root *html.Node, match func(key string) bool, accept func(*html.Node) bool) *html.Node {
	var cell *html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type != html.TextNode {
			return true
		}
		key := normalize.MatchKey(n.Data)
		if key == "" || !match(key) {
			return true
		}
		c := ancestor(n, isCell)
		if c == nil || (accept != nil && !accept(c)) {
			return true
		}
		cell = c
		return false
	})
	return cell
}

func containing(text string) func(string) bool {
	want := normalize.MatchKey(text)
	return func(key string) bool {
		return strings.Contains(key, want)
	}
}

func equalTo(text string) func(string) bool {
	want := normalize.MatchKey(text)
	return func(key string) bool {
		return key == want
	}
}

// rows returns the rows of table, excluding rows of nested tables.
func rows(table *html.Node) []*html.Node {
	var out []*html.Node
	walk(table, func(n *html.Node) bool {
		if isElem(n, atom.Tr) && enclosingTable(n) == table {
			out = append(out, n)
		}
		return true
	})
	return out
}

// cells returns the direct cells of a row.
func cells(tr *html.Node) []*html.Node {
	var out []*html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if isCell(c) {
			out = append(out, c)
		}
	}
	return out
}

func enclosingTable(n *html.Node) *html.Node {
	return ancestor(n, func(p *html.Node) bool { return isElem(p, atom.Table) })
}

func enclosingRow(n *html.Node) *html.Node {
	return ancestor(n, func(p *html.Node) bool { return isElem(p, atom.Tr) })
}
