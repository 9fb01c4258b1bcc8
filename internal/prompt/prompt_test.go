package prompt

import (
	"errors"
	"strings"
	"testing"
)

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected default set to validate, got %v", err)
	}
}

func TestMerge_OnlyNonEmptyOverrides(t *testing.T) {
	s := Default().Merge(Set{Map: "custom {chunk}", Reduce: "   "})
	if s.Map != "custom {chunk}" {
		t.Errorf("expected map override, got %q", s.Map)
	}
	if s.Reduce != defaultReduce {
		t.Error("expected blank reduce override to be ignored")
	}
	if s.System != defaultSystem {
		t.Error("expected system prompt unchanged")
	}
}

func TestValidate_MissingPlaceholder(t *testing.T) {
	s := Default().Merge(Set{Reduce: "merge these please"})
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "{partials}") {
		t.Errorf("expected missing placeholder error, got %v", err)
	}
}

func TestMapPrompt_IncludesContext(t *testing.T) {
	p := Default().MapPrompt("Paper A", 1, 3, "<p=2>\nchunk body")
	for _, want := range []string{`Document: "Paper A"`, "Section: Part 2 of 3", "CHUNK:\n<p=2>\nchunk body"} {
		if !strings.Contains(p, want) {
			t.Errorf("expected %q in prompt:\n%s", want, p)
		}
	}
}

func TestSinglePrompt_NoHeaderWithoutTitle(t *testing.T) {
	p := Default().SinglePrompt("", "body")
	if strings.HasPrefix(p, "---") {
		t.Errorf("expected no header, got %q", p[:10])
	}
	if !strings.HasSuffix(p, "TEXT:\nbody") {
		t.Errorf("expected text substituted, got %q", p)
	}
}

func TestReducePrompt_NumbersPartials(t *testing.T) {
	p := Default().ReducePrompt("Doc", 2, []string{`{"a":1}`, `{"b":2}`})
	if !strings.Contains(p, "--- partial 1 ---\n{\"a\":1}") || !strings.Contains(p, "--- partial 2 ---\n{\"b\":2}") {
		t.Errorf("expected numbered partials, got:\n%s", p)
	}
	if !strings.Contains(p, "Reduction level 2") {
		t.Error("expected reduction level in header")
	}
}

func TestRepairPrompt(t *testing.T) {
	p := Default().RepairPrompt("the input", "not json", errors.New("no JSON object"))
	for _, want := range []string{"no JSON object", "PREVIOUS ANSWER:\nnot json", "ORIGINAL INPUT:\nthe input"} {
		if !strings.Contains(p, want) {
			t.Errorf("expected %q in repair prompt", want)
		}
	}
}
