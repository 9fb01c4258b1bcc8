// Package doctree holds the format-neutral structure every parser produces.
package doctree

import "strings"

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // From metadata, or the file name without extension
	Children []*DocNode // Top-level sections, in document order
}

// DocNode is a section heading, a block of text, or both.
type DocNode struct {
	Title    string // Section heading
	Text     string
	Page     int // 1-based source page, 0 for formats without pages
	Children []*DocNode
}

// Walk visits every node depth-first in document order. depth is 0 for
// top-level nodes.
func (t *DocTree) Walk(fn func(n *DocNode, depth int)) {
	var walk func(nodes []*DocNode, depth int)
	walk = func(nodes []*DocNode, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			walk(n.Children, depth+1)
		}
	}
	walk(t.Children, 0)
}

// HasText reports whether any node carries non-blank text or a heading.
func (t *DocTree) HasText() bool {
	found := false
	t.Walk(func(n *DocNode, _ int) {
		if strings.TrimSpace(n.Text) != "" || strings.TrimSpace(n.Title) != "" {
			found = true
		}
	})
	return found
}
