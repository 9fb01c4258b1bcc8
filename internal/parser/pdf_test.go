package parser

import (
	"strings"
	"testing"
)

func TestPDFParser_RejectsGarbage(t *testing.T) {
	_, err := (&PDFParser{}).Parse(strings.NewReader("not a pdf"), "broken.pdf")
	if err == nil {
		t.Fatal("expected error for non-PDF input")
	}
	if !strings.Contains(err.Error(), "extract pdf text") {
		t.Errorf("expected wrapped extraction error, got %v", err)
	}
}

func TestBlank(t *testing.T) {
	tests := []struct {
		pages []string
		want  bool
	}{
		{nil, true},
		{[]string{"", "  \n"}, true},
		{[]string{"", "text"}, false},
	}
	for _, tc := range tests {
		if got := blank(tc.pages); got != tc.want {
			t.Errorf("blank(%q): expected %v, got %v", tc.pages, tc.want, got)
		}
	}
}
