package document

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dgallion1/docsum/internal/doctree"
)

// MarkerPattern matches inline page anchors such as <p=12>.
var MarkerPattern = regexp.MustCompile(`<p=(\d+)>`)

// Document is an identified body of text annotated with <p=N> page markers.
// It is never mutated after construction.
type Document struct {
	ID    string
	Title string
	Text  string
	Pages int // Number of pages that contributed text.
}

// Marker renders the page anchor for page n.
func Marker(n int) string {
	return fmt.Sprintf("<p=%d>", n)
}

// FromPages builds a document from per-page text. Page numbers are 1-based and
// follow slice order. Blank pages are treated as missing: they get no marker.
func FromPages(id, title string, pages []string) Document {
	var sb strings.Builder
	n := 0
	for i, page := range pages {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(Marker(i + 1))
		sb.WriteString("\n")
		sb.WriteString(page)
		n++
	}
	return Document{ID: id, Title: title, Text: sb.String(), Pages: n}
}

// FromTree flattens a parsed tree into document text. Nodes that carry a page
// number open a page marker the first time that page is seen; formats without
// pages (text, Markdown, HTML, DOCX) are treated as a single page 1.
func FromTree(id string, tree *doctree.DocTree) Document {
	var sb strings.Builder
	seen := map[int]bool{}
	paged := false

	tree.Walk(func(n *doctree.DocNode, _ int) {
		if n.Page > 0 && !seen[n.Page] {
			seen[n.Page] = true
			paged = true
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(Marker(n.Page))
			sb.WriteString("\n")
		}
		if n.Title != "" && n.Text == "" {
			writePara(&sb, n.Title)
		}
		if n.Text != "" {
			if n.Title != "" && n.Page == 0 {
				writePara(&sb, n.Title)
			}
			writePara(&sb, n.Text)
		}
	})

	text := sb.String()
	pages := len(seen)
	if !paged && strings.TrimSpace(text) != "" {
		text = Marker(1) + "\n" + text
		pages = 1
	}
	return Document{ID: id, Title: tree.Title, Text: text, Pages: pages}
}

func writePara(sb *strings.Builder, s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
		sb.WriteString("\n\n")
	}
	sb.WriteString(s)
}

// PageSet returns the set of page numbers whose markers appear in text.
func PageSet(text string) map[int]bool {
	set := map[int]bool{}
	for _, m := range MarkerPattern.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			set[n] = true
		}
	}
	return set
}

// SortedPages returns the pages of a set in ascending order.
func SortedPages(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// CharCount is the rune length of the text.
func (d Document) CharCount() int {
	return len([]rune(d.Text))
}
