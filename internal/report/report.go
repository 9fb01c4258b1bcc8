package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dgallion1/docsum/internal/apperr"
	"github.com/dgallion1/docsum/internal/pipeline"
	"github.com/dgallion1/docsum/internal/summary"
)

// DefaultTitle heads the Markdown report.
const DefaultTitle = "Research Paper Summaries"

// Meta is the run-level summary shown at the top of every report.
type Meta struct {
	FilesProcessed   int
	Successful       int
	TotalPages       int
	TotalChars       int
	Model            string
	Mode             string
	PromptTokens     int
	CompletionTokens int
	Runtime          time.Duration
}

// TotalTokens is prompt plus completion tokens.
func (m Meta) TotalTokens() int {
	return m.PromptTokens + m.CompletionTokens
}

// Rows returns the metadata as ordered label/value pairs.
func (m Meta) Rows() [][2]string {
	return [][2]string{
		{"Files processed", fmt.Sprint(m.FilesProcessed)},
		{"Successful", fmt.Sprint(m.Successful)},
		{"Total pages", fmt.Sprint(m.TotalPages)},
		{"Total chars", fmt.Sprint(m.TotalChars)},
		{"Model", m.Model},
		{"Mode", m.Mode},
		{"Prompt tokens", fmt.Sprint(m.PromptTokens)},
		{"Completion tokens", fmt.Sprint(m.CompletionTokens)},
		{"Total tokens", fmt.Sprint(m.TotalTokens())},
		{"Runtime (s)", fmt.Sprintf("%.2f", m.Runtime.Seconds())},
	}
}

// BuildMeta totals a batch of outcomes.
func BuildMeta(outcomes []pipeline.Outcome, model, mode string, runtime time.Duration) Meta {
	m := Meta{FilesProcessed: len(outcomes), Model: model, Mode: mode, Runtime: runtime}
	for _, o := range outcomes {
		if o.OK() {
			m.Successful++
		}
		m.TotalPages += o.Result.Pages
		m.TotalChars += o.Result.Chars
		m.PromptTokens += o.Result.Usage.Totals.PromptTokens
		m.CompletionTokens += o.Result.Usage.Totals.CompletionTokens
	}
	return m
}

// WriteMarkdown writes the metadata table followed by one section per file.
func WriteMarkdown(w io.Writer, title string, meta Meta, outcomes []pipeline.Outcome) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s\n\n", title)
	bw.WriteString("| Metric | Value |\n|---|---|\n")
	for _, row := range meta.Rows() {
		fmt.Fprintf(bw, "| %s | %s |\n", row[0], escapeCell(row[1]))
	}
	bw.WriteString("\n")
	for _, o := range outcomes {
		bw.WriteString(Section(o))
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// Section renders one file's summary, or its error.
func Section(o pipeline.Outcome) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", o.File)
	if !o.OK() {
		fmt.Fprintf(&sb, "**Error:** %s\n", errorText(o.Err))
		return sb.String()
	}
	for _, name := range summary.FieldNames {
		fmt.Fprintf(&sb, "**%s:**\n", summary.Labels[name])
		bullets := o.Result.Summary.Get(name)
		if len(bullets) == 0 {
			sb.WriteString("- Not reported\n")
		}
		for _, b := range bullets {
			fmt.Fprintf(&sb, "- %s\n", b)
		}
		sb.WriteString("\n")
	}
	if len(o.Result.FailedChunks) > 0 {
		parts := make([]string, len(o.Result.FailedChunks))
		for i, c := range o.Result.FailedChunks {
			parts[i] = fmt.Sprint(c)
		}
		fmt.Fprintf(&sb, "_Summary omits chunks %s of %d._\n", strings.Join(parts, ", "), o.Result.Chunks)
	}
	return sb.String()
}

// Record is one file's machine-readable result: a JSONL line, or the body of
// a job result request.
type Record struct {
	File     string          `json:"file"`
	Summary  json.RawMessage `json:"summary"`
	Strategy string          `json:"strategy,omitempty"`
	Chunks   int             `json:"chunks,omitempty"`
	Failed   []int           `json:"failed_chunks,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Error    string          `json:"error,omitempty"`
	Kind     string          `json:"error_kind,omitempty"`
}

// NewRecord builds the record for o. Failed files carry a null summary and
// the error.
func NewRecord(o pipeline.Outcome) Record {
	rec := Record{File: o.File, Summary: json.RawMessage("null")}
	if o.OK() {
		rec.Summary = json.RawMessage(o.Result.Summary.JSON())
		rec.Strategy = string(o.Result.Strategy)
		rec.Chunks = o.Result.Chunks
		rec.Failed = o.Result.FailedChunks
		rec.Warnings = o.Result.Warnings
	} else {
		rec.Error = o.Err.Error()
		rec.Kind = string(apperr.KindOf(o.Err))
	}
	return rec
}

// WriteJSONL writes one record per outcome.
func WriteJSONL(w io.Writer, outcomes []pipeline.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, o := range outcomes {
		if err := enc.Encode(NewRecord(o)); err != nil {
			return fmt.Errorf("encode %s: %w", o.File, err)
		}
	}
	return nil
}

func errorText(err error) string {
	if ae, ok := apperr.As(err); ok {
		msg := ae.Message
		if ae.Cause != nil {
			msg += ": " + ae.Cause.Error()
		}
		return fmt.Sprintf("%s (%s)", msg, ae.Kind)
	}
	return err.Error()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
