package pipeline

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Node is the query surface the extractor needs from a parsed page.
// Every lookup that can miss returns an explicit ok flag.
type Node interface {
	// First returns the first descendant with the given tag whose class
	// list contains class. An empty class matches any element of that tag.
	First(tag, class string) (Node, bool)
	// All returns every matching descendant in document order.
	All(tag, class string) []Node
	// Attr returns an attribute value and whether it was present.
	Attr(name string) (string, bool)
	// Text returns the visible text with whitespace collapsed.
	Text() string
	// Remove detaches the node from its tree.
	Remove()
}

// ParseDocument parses HTML into a Node rooted at the document.
func ParseDocument(r io.Reader) (Node, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse HTML failed: %w", err)
	}
	return selNode{sel: doc.Selection}, nil
}

// ParseDocumentString is ParseDocument for an in-memory page.
func ParseDocumentString(html string) (Node, error) {
	return ParseDocument(strings.NewReader(html))
}

// selNode is the goquery-backed Node. Every method works on the wrapped
// Selection, which holds exactly one element except at the document root.
type selNode struct {
	sel *goquery.Selection
}

// First is Find(selector).First(); an empty result maps to ok=false
// rather than an empty Selection, so callers cannot chain on a miss.
func (n selNode) First(tag, class string) (Node, bool) {
	found := n.sel.Find(selector(tag, class)).First()
	if found.Length() == 0 {
		return nil, false
	}
	return selNode{sel: found}, true
}

// All wraps each match separately so a candidate can be processed (and
// mutated by Remove) without touching its siblings.
func (n selNode) All(tag, class string) []Node {
	found := n.sel.Find(selector(tag, class))
	out := make([]Node, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, selNode{sel: s})
	})
	return out
}

func (n selNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

// Text joins all descendant text nodes, then collapses runs of
// whitespace, e.g. "\n  Kurs   złotego\n" becomes "Kurs złotego".
func (n selNode) Text() string {
	return normalizeWhitespace(n.sel.Text())
}

// Remove detaches the element from the parsed tree, so later Text calls
// on any ancestor no longer include it.
func (n selNode) Remove() {
	n.sel.Remove()
}

// selector builds a goquery selector from a tag and one class token:
//
//	selector("div", "article") // "div.article"
//	selector("p", "")          // "p"
//
// Tag and class come from fixed markup settings, so no escaping is
// attempted.
func selector(tag, class string) string {
	if class == "" {
		return tag
	}
	return tag + "." + class
}
