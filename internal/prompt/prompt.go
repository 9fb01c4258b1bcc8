package prompt

import (
	"fmt"
	"strings"
)

// Set holds the prompt templates for every call stage.
// Templates use {text}, {chunk}, {partials} and {output} placeholders.
type Set struct {
	System string `yaml:"system"`
	Single string `yaml:"single"`
	Map    string `yaml:"map"`
	Reduce string `yaml:"reduce"`
	Repair string `yaml:"repair"`
}

const defaultSystem = `You are an expert scientific summarizer.
Return a STRICT JSON object with EXACT keys:
  main_idea, objective, design, methods, results, main_findings.
Each value is a JSON array of 2-4 ultra-concise bullets (max 25 words each).
The text contains explicit page anchors in the form <p=N> before each page.
End each bullet with the page reference [p=N] of the most relevant page (pick one).
Copy numbers and terms exactly; do NOT invent or infer. If nothing is reported, write "Not reported".
No extra keys or commentary.`

const defaultSingle = `Summarize into the required fields using ONLY the text below.
Prioritize research question(s), sample/population, design/manipulations, measures, statistical methods,
key effect sizes/coefficients, and the main conclusion(s).

TEXT:
{text}`

const defaultMap = `This is a PART of one paper. Extract ONLY what is present in this chunk.
Return the same strict JSON with bullet style and page references.

CHUNK:
{chunk}`

const defaultReduce = `You are given multiple partial JSON summaries from chunks of the SAME paper.
Merge into ONE final JSON with the exact keys. Remove duplicates, keep the most specific bullets,
and preserve page references. If a field is never reported, write "Not reported".

PARTIALS:
{partials}`

const defaultRepair = `Your previous answer could not be used: {error}.
Return ONLY a JSON object with the keys main_idea, objective, design, methods, results, main_findings,
each an array of strings ending in a [p=N] page reference. Do not add commentary.

PREVIOUS ANSWER:
{output}

ORIGINAL INPUT:
{text}`

// Default returns the built-in prompt set.
func Default() Set {
	return Set{
		System: defaultSystem,
		Single: defaultSingle,
		Map:    defaultMap,
		Reduce: defaultReduce,
		Repair: defaultRepair,
	}
}

// Merge returns s with every non-empty template of override applied.
func (s Set) Merge(override Set) Set {
	if strings.TrimSpace(override.System) != "" {
		s.System = override.System
	}
	if strings.TrimSpace(override.Single) != "" {
		s.Single = override.Single
	}
	if strings.TrimSpace(override.Map) != "" {
		s.Map = override.Map
	}
	if strings.TrimSpace(override.Reduce) != "" {
		s.Reduce = override.Reduce
	}
	if strings.TrimSpace(override.Repair) != "" {
		s.Repair = override.Repair
	}
	return s
}

// Validate checks that each template contains the placeholder its stage fills.
func (s Set) Validate() error {
	checks := []struct {
		name, tmpl, placeholder string
	}{
		{"single", s.Single, "{text}"},
		{"map", s.Map, "{chunk}"},
		{"reduce", s.Reduce, "{partials}"},
		{"repair", s.Repair, "{output}"},
	}
	for _, c := range checks {
		if !strings.Contains(c.tmpl, c.placeholder) {
			return fmt.Errorf("%s prompt must contain %s", c.name, c.placeholder)
		}
	}
	if strings.TrimSpace(s.System) == "" {
		return fmt.Errorf("system prompt is empty")
	}
	return nil
}

// SinglePrompt renders the single-pass prompt for a whole document.
func (s Set) SinglePrompt(title, text string) string {
	return withHeader(title, "", strings.ReplaceAll(s.Single, "{text}", text))
}

// MapPrompt renders the prompt for one chunk.
func (s Set) MapPrompt(title string, index, total int, chunk string) string {
	section := fmt.Sprintf("Part %d of %d", index+1, total)
	return withHeader(title, section, strings.ReplaceAll(s.Map, "{chunk}", chunk))
}

// ReducePrompt renders the prompt that merges serialized partial summaries.
func (s Set) ReducePrompt(title string, depth int, partials []string) string {
	var sb strings.Builder
	for i, p := range partials {
		fmt.Fprintf(&sb, "--- partial %d ---\n%s\n", i+1, p)
	}
	section := ""
	if depth > 1 {
		section = fmt.Sprintf("Reduction level %d", depth)
	}
	return withHeader(title, section, strings.ReplaceAll(s.Reduce, "{partials}", strings.TrimRight(sb.String(), "\n")))
}

// RepairPrompt re-asks for a usable structure after output failed validation.
func (s Set) RepairPrompt(input, output string, cause error) string {
	msg := "it was not valid JSON for the required schema"
	if cause != nil {
		msg = cause.Error()
	}
	r := strings.NewReplacer("{error}", msg, "{output}", output, "{text}", input)
	return r.Replace(s.Repair)
}

// withHeader prefixes a rendered template with document and section context.
func withHeader(title, section, body string) string {
	if title == "" && section == "" {
		return body
	}
	var sb strings.Builder
	sb.WriteString("---\n")
	if title != "" {
		sb.WriteString(fmt.Sprintf("Document: %q\n", title))
	}
	if section != "" {
		sb.WriteString("Section: ")
		sb.WriteString(section)
		sb.WriteString("\n")
	}
	sb.WriteString("---\n")
	sb.WriteString(body)
	return sb.String()
}
