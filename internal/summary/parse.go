package summary

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dgallion1/docsum/internal/apperr"
)

// SchemaJSON is the JSON Schema a model response must satisfy.
const SchemaJSON = `{
  "type": "object",
  "properties": {
    "main_idea":     {"type": "array", "items": {"type": "string"}},
    "objective":     {"type": "array", "items": {"type": "string"}},
    "design":        {"type": "array", "items": {"type": "string"}},
    "methods":       {"type": "array", "items": {"type": "string"}},
    "results":       {"type": "array", "items": {"type": "string"}},
    "main_findings": {"type": "array", "items": {"type": "string"}}
  }
}`

var schema = jsonschema.MustCompileString("summary.json", SchemaJSON)

var (
	fenceRe     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	bulletRe    = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
	notReported = regexp.MustCompile(`(?i)^\s*(?:not reported|n/?a|none reported)\.?\s*(?:\[\s*p\s*=\s*\d+\s*\])?\s*$`)
	keyRe       = regexp.MustCompile(`[\s\-/]+`)
)

// Parse turns raw model output into a Structure. It accepts fenced or
// prose-wrapped JSON and repairs field-level type mistakes with a warning.
// Output with no JSON object, or with none of the summary fields, is a schema error.
func Parse(raw string) (Structure, []string, error) {
	obj := FindFirstJSON(StripCodeFences(raw))
	if obj == "" {
		return Structure{}, nil, apperr.New(apperr.KindSchema, "no JSON object in model output: "+apperr.Clip(raw, 120), nil)
	}

	var v any
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return Structure{}, nil, apperr.New(apperr.KindSchema, "invalid JSON in model output", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return Structure{}, nil, apperr.New(apperr.KindSchema, "model output is not a JSON object", nil)
	}
	m = canonicalKeys(m)

	known := 0
	for _, name := range FieldNames {
		if _, ok := m[name]; ok {
			known++
		}
	}
	if known == 0 {
		return Structure{}, nil, apperr.New(apperr.KindSchema, "model output has none of the summary fields", nil)
	}

	var warnings []string
	if err := schema.Validate(m); err != nil {
		m, warnings = sanitize(m)
		if err := schema.Validate(m); err != nil {
			return Structure{}, warnings, apperr.New(apperr.KindSchema, "model output does not match schema", err)
		}
	}

	var s Structure
	for _, name := range FieldNames {
		items, _ := m[name].([]any)
		f := s.Field(name)
		*f = []string{}
		for _, it := range items {
			str, _ := it.(string)
			str = strings.TrimSpace(bulletRe.ReplaceAllString(str, ""))
			if str == "" || notReported.MatchString(str) {
				continue
			}
			*f = append(*f, str)
		}
	}
	return s, warnings, nil
}

// canonicalKeys lower-cases keys and folds spaces, dashes and slashes into underscores,
// so "Main Findings" and "main-findings" both land on main_findings.
func canonicalKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		ck := keyRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(k)), "_")
		if _, dup := out[ck]; dup && ck != k {
			continue
		}
		out[ck] = v
	}
	return out
}

// sanitize coerces known fields into string lists: a string becomes one item per
// line, non-string items are dropped, and any other type empties the field.
func sanitize(m map[string]any) (map[string]any, []string) {
	var warnings []string
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, name := range FieldNames {
		v, ok := m[name]
		if !ok {
			continue
		}
		switch tv := v.(type) {
		case []any:
			kept := make([]any, 0, len(tv))
			for i, it := range tv {
				if s, ok := it.(string); ok {
					kept = append(kept, s)
				} else {
					warnings = append(warnings, fmt.Sprintf("%s[%d]: dropped non-string item", name, i))
				}
			}
			out[name] = kept
		case string:
			var lines []any
			for _, line := range strings.Split(tv, "\n") {
				if strings.TrimSpace(line) != "" {
					lines = append(lines, line)
				}
			}
			if lines == nil {
				lines = []any{}
			}
			out[name] = lines
			warnings = append(warnings, fmt.Sprintf("%s: split string into %d bullets", name, len(lines)))
		case nil:
			out[name] = []any{}
		default:
			out[name] = []any{}
			warnings = append(warnings, fmt.Sprintf("%s: dropped value of type %T", name, v))
		}
	}
	return out, warnings
}

// StripCodeFences removes a surrounding Markdown code fence, if any.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// FindFirstJSON returns the first balanced {...} span in s, skipping braces inside strings.
func FindFirstJSON(s string) string {
	start, depth := -1, 0
	inString, escaped := false, false
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if start != -1 {
				inString = true
			}
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			if start != -1 {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
