package parser

import (
	"io"
	"strings"

	"github.com/dgallion1/docsum/internal/doctree"
)

// TextParser handles plain text. Form feeds separate pages, as in pdftotext
// output; text without them is a single unpaged body.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := strings.ReplaceAll(string(src), "\r\n", "\n")

	tree := &doctree.DocTree{Title: Title(filename)}
	pages := strings.Split(text, "\f")
	for i, page := range pages {
		num := i + 1
		if len(pages) == 1 {
			num = 0
		}
		for _, para := range paragraphs(page) {
			tree.Children = append(tree.Children, &doctree.DocNode{Text: para, Page: num})
		}
	}
	return tree, nil
}

// paragraphs splits text on blank lines, treating whitespace-only lines as blank.
func paragraphs(text string) []string {
	var out []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, "\n"))
			cur = cur[:0]
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cur = append(cur, strings.TrimRight(line, " \t"))
	}
	flush()
	return out
}
