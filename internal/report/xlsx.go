package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/dgallion1/docsum/internal/apperr"
	"github.com/dgallion1/docsum/internal/pipeline"
	"github.com/dgallion1/docsum/internal/summary"
	"github.com/dgallion1/docsum/internal/usage"
)

const (
	summarySheet = "Summaries"
	usageSheet   = "Usage"
)

// WriteXLSX returns a workbook with one summary row per file and a usage
// sheet with per-file token counts and the run metadata.
func WriteXLSX(meta Meta, outcomes []pipeline.Outcome) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(usageSheet); err != nil {
		return nil, err
	}

	headers := []string{"File", "Status"}
	for _, name := range summary.FieldNames {
		headers = append(headers, summary.Labels[name])
	}
	writeRow(f, summarySheet, 1, headers)

	for i, o := range outcomes {
		row := []string{o.File, "ok"}
		if !o.OK() {
			row[1] = string(apperr.KindOf(o.Err))
			if row[1] == "" {
				row[1] = "error"
			}
		}
		for _, name := range summary.FieldNames {
			row = append(row, joinBullets(o.Result.Summary.Get(name)))
		}
		writeRow(f, summarySheet, i+2, row)
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 32)
	_ = f.SetColWidth(summarySheet, "B", "B", 14)
	_ = f.SetColWidth(summarySheet, "C", "H", 60)

	writeRow(f, usageSheet, 1, []string{"File", "Strategy", "Chunks", "Failed chunks", "Calls", "Retries",
		"Prompt tokens", "Completion tokens", "Total tokens", "Runtime (s)"})
	for i, o := range outcomes {
		t := o.Result.Usage.Totals
		writeValues(f, usageSheet, i+2, []any{o.File, string(o.Result.Strategy), o.Result.Chunks,
			len(o.Result.FailedChunks), t.Calls, t.Retries, t.PromptTokens, t.CompletionTokens,
			t.TotalTokens(), round2(o.Result.Duration.Seconds())})
	}
	metaRow := len(outcomes) + 3
	for i, r := range meta.Rows() {
		writeRow(f, usageSheet, metaRow+i, []string{r[0], r[1]})
	}
	_ = f.SetColWidth(usageSheet, "A", "A", 32)
	_ = f.SetColWidth(usageSheet, "B", "J", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// UsageRows flattens a snapshot's per-stage totals for tabular output.
func UsageRows(snap usage.Snapshot) [][]any {
	var rows [][]any
	for _, st := range []usage.Stage{usage.StageSingle, usage.StageMap, usage.StageReduce, usage.StageRepair} {
		t, ok := snap.ByStage[st]
		if !ok {
			continue
		}
		rows = append(rows, []any{string(st), t.Calls, t.Successes, t.Retries, t.Failures, t.TotalTokens()})
	}
	return rows
}

func writeRow(f *excelize.File, sheet string, row int, cells []string) {
	vals := make([]any, len(cells))
	for i, c := range cells {
		vals[i] = c
	}
	writeValues(f, sheet, row, vals)
}

func writeValues(f *excelize.File, sheet string, row int, vals []any) {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	_ = f.SetSheetRow(sheet, cell, &vals)
}

func joinBullets(bullets []string) string {
	out := ""
	for i, b := range bullets {
		if i > 0 {
			out += "\n"
		}
		out += "• " + b
	}
	return out
}

func round2(x float64) float64 {
	return float64(int64(x*100+0.5)) / 100
}
