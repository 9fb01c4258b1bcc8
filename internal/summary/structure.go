package summary

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Structure is the summary of one document, chunk or merge.
type Structure struct {
	MainIdea     []string `json:"main_idea"`
	Objective    []string `json:"objective"`
	Design       []string `json:"design"`
	Methods      []string `json:"methods"`
	Results      []string `json:"results"`
	MainFindings []string `json:"main_findings"`
}

// FieldNames lists the structure's fields in output order.
var FieldNames = []string{"main_idea", "objective", "design", "methods", "results", "main_findings"}

// Labels are the human-readable section titles used in reports.
var Labels = map[string]string{
	"main_idea":     "Main idea / summary",
	"objective":     "Objective",
	"design":        "Design",
	"methods":       "Methods",
	"results":       "Results",
	"main_findings": "Main findings",
}

// Field returns a pointer to the named bullet list, or nil for an unknown name.
func (s *Structure) Field(name string) *[]string {
	switch name {
	case "main_idea":
		return &s.MainIdea
	case "objective":
		return &s.Objective
	case "design":
		return &s.Design
	case "methods":
		return &s.Methods
	case "results":
		return &s.Results
	case "main_findings":
		return &s.MainFindings
	}
	return nil
}

// Get returns the named bullet list.
func (s Structure) Get(name string) []string {
	if f := s.Field(name); f != nil {
		return *f
	}
	return nil
}

// BulletCount is the number of bullets across all fields.
func (s Structure) BulletCount() int {
	n := 0
	for _, name := range FieldNames {
		n += len(s.Get(name))
	}
	return n
}

// Volume is the number of characters across all bullets.
func (s Structure) Volume() int {
	n := 0
	for _, name := range FieldNames {
		for _, b := range s.Get(name) {
			n += len([]rune(b))
		}
	}
	return n
}

// IsEmpty reports whether no field has a bullet.
func (s Structure) IsEmpty() bool {
	return s.BulletCount() == 0
}

// JSON renders the structure with every field present, empty lists included.
func (s Structure) JSON() string {
	out := s
	for _, name := range FieldNames {
		if f := out.Field(name); *f == nil {
			*f = []string{}
		}
	}
	b, _ := json.Marshal(out)
	return string(b)
}

var spaceRe = regexp.MustCompile(`\s+`)

// normKey is the dedup key: lower case with collapsed whitespace.
func normKey(s string) string {
	return strings.ToLower(strings.TrimSpace(spaceRe.ReplaceAllString(s, " ")))
}

func dedup(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		k := normKey(it)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, it)
	}
	return out
}

func capList(items []string, n int) []string {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
