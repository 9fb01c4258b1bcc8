package parser

import (
	"strings"

	"github.com/dgallion1/docsum/internal/doctree"
)

// sections nests a flat stream of headings and paragraphs by heading level.
// Paragraphs attach to the most recent heading; text before any heading
// attaches to the root.
type sections struct {
	root  *doctree.DocNode
	stack []openSection
	text  strings.Builder
}

type openSection struct {
	node  *doctree.DocNode
	level int
}

func newSections() *sections {
	root := &doctree.DocNode{}
	return &sections{root: root, stack: []openSection{{node: root}}}
}

func (s *sections) heading(level int, title string) {
	s.flush()
	n := &doctree.DocNode{Title: title}
	for len(s.stack) > 1 && s.stack[len(s.stack)-1].level >= level {
		s.stack = s.stack[:len(s.stack)-1]
	}
	parent := s.stack[len(s.stack)-1].node
	parent.Children = append(parent.Children, n)
	s.stack = append(s.stack, openSection{node: n, level: level})
}

func (s *sections) para(t string) {
	if t == "" {
		return
	}
	if s.text.Len() > 0 {
		s.text.WriteString("\n\n")
	}
	s.text.WriteString(t)
}

func (s *sections) flush() {
	t := strings.TrimSpace(s.text.String())
	s.text.Reset()
	if t == "" {
		return
	}
	top := s.stack[len(s.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

// tree closes the builder. Leading text that precedes the first heading comes
// first so document order is kept.
func (s *sections) tree(title string) *doctree.DocTree {
	s.flush()
	t := &doctree.DocTree{Title: title}
	if s.root.Text != "" {
		t.Children = append(t.Children, &doctree.DocNode{Text: s.root.Text})
	}
	t.Children = append(t.Children, s.root.Children...)
	return t
}
