package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docsum/internal/apperr"
	"github.com/dgallion1/docsum/internal/document"
	"github.com/dgallion1/docsum/internal/engine"
	"github.com/dgallion1/docsum/internal/parser"
)

// Outcome is the result of summarizing one input file.
type Outcome struct {
	File   string
	Result engine.Result
	Err    error
}

// OK reports whether a summary was produced.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Worker turns one input file into a summary: parse, build the page-annotated
// document, run the engine.
type Worker struct {
	engine    *engine.Engine
	log       *slog.Logger
	parseOpts parser.Options
}

func NewWorker(e *engine.Engine, opts parser.Options, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{engine: e, log: log, parseOpts: opts}
}

// Summarize parses data as filename and summarizes it under docID.
// Parse failures are reported in the outcome like engine failures.
func (w *Worker) Summarize(ctx context.Context, docID, filename, title string, data []byte, obs engine.Observer) Outcome {
	log := w.log.With("doc_id", docID, "file", filename)
	out := Outcome{File: filename, Result: engine.Result{DocumentID: docID, State: engine.StateFailed}}

	p, err := parser.ForFile(filename, w.parseOpts)
	if err != nil {
		log.Error("unsupported format", "error", err)
		out.Err = apperr.New(apperr.KindEmptyInput, "unsupported input", err).WithDocument(docID)
		return out
	}

	start := time.Now()
	tree, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		log.Error("parse failed", "error", err)
		out.Err = apperr.New(apperr.KindEmptyInput, "parse failed", err).WithDocument(docID)
		return out
	}
	if !tree.HasText() {
		log.Warn("no extractable text")
		out.Err = apperr.New(apperr.KindEmptyInput, "no extractable text in "+filename, nil).WithDocument(docID)
		return out
	}
	if title != "" {
		tree.Title = title
	}

	doc := document.FromTree(docID, tree)
	log.Info("parsed document", "pages", doc.Pages, "chars", doc.CharCount(), "parse_ms", time.Since(start).Milliseconds())

	res, err := w.engine.Run(ctx, doc, obs)
	out.Result = res
	if err != nil {
		out.Err = err
	}
	return out
}

// Process runs a queued job to completion.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)

	job.SetStatus(StatusParsing, "parsing")
	data := job.FileData()
	if len(data) == 0 {
		job.Finish(Outcome{File: job.Filename, Err: fmt.Errorf("job %s has no file data", job.ID)})
		return
	}

	o := w.Summarize(ctx, job.DocID, job.Filename, job.Title, data, job)
	job.Finish(o)

	snap := job.Snapshot()
	log.Info("job finished", "status", snap.Status, "chunks", o.Result.Chunks,
		"failed_chunks", len(o.Result.FailedChunks), "tokens", o.Result.Usage.Totals.TotalTokens())
}
