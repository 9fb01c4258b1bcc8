package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/docsum/internal/apperr"
	"github.com/dgallion1/docsum/internal/document"
	"github.com/dgallion1/docsum/internal/model"
	"github.com/dgallion1/docsum/internal/prompt"
	"github.com/dgallion1/docsum/internal/segment"
	"github.com/dgallion1/docsum/internal/summary"
	"github.com/dgallion1/docsum/internal/usage"
)

// State is a document's position in the summarization lifecycle.
type State string

const (
	StateSegmenting State = "SEGMENTING"
	StateMapping    State = "MAPPING"
	StateReducing   State = "REDUCING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Strategy records how a document was summarized.
type Strategy string

const (
	StrategySingle    Strategy = "single"
	StrategyMapReduce Strategy = "map_reduce"
)

// Observer receives progress notifications. Implementations must be safe to
// call from the goroutine running the document.
type Observer interface {
	OnState(docID string, s State)
	OnChunk(docID string, done, total int)
}

// Config holds the engine's limits.
type Config struct {
	Segment           segment.Config
	Rules             summary.Rules // Pages is filled per unit.
	ReduceCapacity    int           // Merged volume, in characters, above which a reduce call is made.
	MaxReductionDepth int
}

// Result is the outcome of summarizing one document.
type Result struct {
	DocumentID     string
	Title          string
	State          State
	Strategy       Strategy
	Summary        summary.Structure
	Chunks         int
	FailedChunks   []int
	Warnings       []string
	ReductionCalls int
	Truncated      bool // A references section was cut before segmenting.
	Pages          int
	Chars          int
	Duration       time.Duration
	Usage          usage.Snapshot
}

// Engine summarizes documents: one call for short input, map-reduce over
// overlapping chunks for long input.
type Engine struct {
	invoker *model.Invoker
	prompts prompt.Set
	cfg     Config
	log     *slog.Logger
}

// New validates cfg and returns an engine.
func New(inv *model.Invoker, prompts prompt.Set, cfg Config, log *slog.Logger) (*Engine, error) {
	if inv == nil {
		return nil, apperr.New(apperr.KindConfiguration, "engine requires a model invoker", nil)
	}
	if err := cfg.Segment.Validate(); err != nil {
		return nil, err
	}
	if err := prompts.Validate(); err != nil {
		return nil, apperr.New(apperr.KindConfiguration, "invalid prompts", err)
	}
	if cfg.Rules.BulletCap <= 0 || cfg.Rules.MaxWords <= 0 {
		return nil, apperr.Newf(apperr.KindConfiguration, "bullet cap and max words must be positive, got %d/%d",
			cfg.Rules.BulletCap, cfg.Rules.MaxWords)
	}
	if cfg.ReduceCapacity <= 0 || cfg.MaxReductionDepth <= 0 {
		return nil, apperr.Newf(apperr.KindConfiguration, "reduce capacity and depth must be positive, got %d/%d",
			cfg.ReduceCapacity, cfg.MaxReductionDepth)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{invoker: inv, prompts: prompts, cfg: cfg, log: log}, nil
}

// Model returns the model identifier calls are sent to.
func (e *Engine) Model() string {
	return e.invoker.Model()
}

// Mode returns the configured segmentation mode.
func (e *Engine) Mode() segment.Mode {
	return e.cfg.Segment.Mode
}

// run carries the per-document state of one Run call.
type run struct {
	e      *Engine
	inv    *model.Invoker
	doc    document.Document
	pages  map[int]bool
	obs    Observer
	log    *slog.Logger
	res    *Result
	warned map[string]bool
	start  time.Time
}

func (r *run) setState(s State) {
	r.res.State = s
	r.log.Debug("state change", "state", s)
	if r.obs != nil {
		r.obs.OnState(r.doc.ID, s)
	}
}

func (r *run) warn(w string) {
	if r.warned[w] {
		return
	}
	r.warned[w] = true
	r.res.Warnings = append(r.res.Warnings, w)
}

func (r *run) fail(err error) (Result, error) {
	r.setState(StateFailed)
	if ae, ok := apperr.As(err); ok && ae.DocumentID == "" {
		err = ae.WithDocument(r.doc.ID)
	}
	r.log.Error("document failed", "kind", apperr.KindOf(err), "error", err)
	return r.finish(), err
}

// chunkFailed tags a unit failure that survived retries and repair. The
// underlying kind stays reachable through apperr.IsKind.
func (r *run) chunkFailed(err error, idx int) error {
	return &apperr.Error{
		Kind:       apperr.KindChunkFailed,
		DocumentID: r.doc.ID,
		Chunk:      idx,
		Message:    "chunk could not be summarized",
		Cause:      err,
	}
}

func (r *run) finish() Result {
	r.res.Usage = r.inv.Tracker().Snapshot()
	r.res.Duration = time.Since(r.start)
	return *r.res
}

// Run summarizes doc. Model calls are never interrupted mid-flight by ctx;
// cancellation is observed between chunks and before reduction. The returned
// Result is populated even on failure so usage can be reported.
func (e *Engine) Run(ctx context.Context, doc document.Document, obs Observer) (Result, error) {
	tracker := e.invoker.Tracker().Child()
	r := &run{
		e:      e,
		inv:    e.invoker.WithTracker(tracker),
		doc:    doc,
		pages:  sourcePages(doc),
		obs:    obs,
		log:    e.log.With("doc_id", doc.ID),
		warned: map[string]bool{},
		start:  time.Now(),
		res: &Result{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Pages:      doc.Pages,
			Chars:      doc.CharCount(),
		},
	}
	r.setState(StateSegmenting)
	plan, err := segment.Segment(doc, e.cfg.Segment)
	if err != nil {
		return r.fail(err)
	}
	r.res.Truncated = plan.Truncated
	if plan.Truncated {
		r.log.Info("references section truncated", "length", plan.Length)
	}

	if !plan.Chunked {
		r.res.Strategy = StrategySingle
		r.res.Chunks = 1
		s, err := r.process(ctx, documentUnit{chunk: plan.Chunks[0], total: 1, single: true})
		if err == nil {
			r.res.Summary = s
			r.setState(StateDone)
			r.log.Info("document summarized", "strategy", r.res.Strategy)
			return r.finish(), nil
		}
		err = r.chunkFailed(err, plan.Chunks[0].Index)
		if e.cfg.Segment.Mode != segment.ModeAuto || !apperr.IsKind(err, apperr.KindContextLength) {
			return r.fail(err)
		}

		r.warn("single pass exceeded the model context; fell back to chunked summarization")
		r.log.Warn("single pass too large, falling back to map-reduce", "length", plan.Length)
		plan, err = segment.Segment(doc, fallbackConfig(e.cfg.Segment, plan.Length))
		if err != nil {
			return r.fail(err)
		}
	}

	return r.mapReduce(ctx, plan)
}

// fallbackConfig forces chunking and, for text that fits one window, halves it.
func fallbackConfig(cfg segment.Config, length int) segment.Config {
	cfg.Mode = segment.ModeAlways
	if half := length/2 + cfg.Overlap; half < cfg.Threshold && half > cfg.Overlap {
		cfg.Threshold = half
	}
	return cfg
}

func (r *run) mapReduce(ctx context.Context, plan segment.Plan) (Result, error) {
	r.res.Strategy = StrategyMapReduce
	r.res.Chunks = len(plan.Chunks)
	r.setState(StateMapping)
	r.log.Info("mapping chunks", "chunks", len(plan.Chunks), "length", plan.Length)

	partials := make([]summary.Structure, 0, len(plan.Chunks))
	var lastErr error
	for i, c := range plan.Chunks {
		s, err := r.process(ctx, documentUnit{chunk: c, total: len(plan.Chunks)})
		if err != nil {
			err = r.chunkFailed(err, c.Index)
			lastErr = err
			r.res.FailedChunks = append(r.res.FailedChunks, c.Index)
			r.log.Warn("chunk failed", "chunk", c.Index, "cause_kind", apperr.KindOf(errors.Unwrap(err)), "error", err)
		} else {
			partials = append(partials, s)
		}
		if r.obs != nil {
			r.obs.OnChunk(r.doc.ID, i+1, len(plan.Chunks))
		}
		if ctx.Err() != nil {
			return r.fail(apperr.New(apperr.KindCanceled,
				fmt.Sprintf("canceled after %d of %d chunks", i+1, len(plan.Chunks)), ctx.Err()))
		}
	}

	if len(partials) == 0 {
		return r.fail(apperr.New(apperr.KindAllChunksFailed,
			fmt.Sprintf("all %d chunks failed", len(plan.Chunks)), lastErr))
	}
	if len(r.res.FailedChunks) > 0 {
		cf := &apperr.Error{
			Kind:       apperr.KindChunkFailed,
			DocumentID: r.doc.ID,
			Chunk:      apperr.NoChunk,
			Message:    "summary omits chunks " + joinInts(r.res.FailedChunks),
		}
		r.warn(cf.Error())
	}

	if err := ctx.Err(); err != nil {
		return r.fail(apperr.New(apperr.KindCanceled, "canceled before reduction", err))
	}

	r.setState(StateReducing)
	s, err := r.reduce(ctx, partials, 1)
	if err != nil {
		return r.fail(err)
	}
	r.res.Summary = s
	r.setState(StateDone)
	r.log.Info("document summarized", "strategy", r.res.Strategy, "chunks", r.res.Chunks,
		"failed_chunks", len(r.res.FailedChunks), "reduce_calls", r.res.ReductionCalls)
	return r.finish(), nil
}

// reduce merges partials mechanically while they fit ReduceCapacity and
// otherwise asks the model to reduce them, group by group, one level deeper
// per round.
func (r *run) reduce(ctx context.Context, partials []summary.Structure, depth int) (summary.Structure, error) {
	cfg := r.e.cfg
	merged, volume := summary.Merge(partials, cfg.Rules.BulletCap)
	if len(partials) == 1 || volume <= cfg.ReduceCapacity {
		return merged, nil
	}
	if depth > cfg.MaxReductionDepth {
		return summary.Structure{}, &apperr.Error{
			Kind:       apperr.KindReductionDepthExceeded,
			DocumentID: r.doc.ID,
			Chunk:      apperr.NoChunk,
			Message: fmt.Sprintf("%d partials (%d chars) still exceed capacity %d at depth %d",
				len(partials), volume, cfg.ReduceCapacity, depth),
		}
	}

	groups := groupPartials(partials, cfg.Segment.Threshold)
	r.log.Info("reducing partials", "depth", depth, "partials", len(partials), "groups", len(groups), "volume", volume)

	next := make([]summary.Structure, 0, len(groups))
	for _, g := range groups {
		if len(g) == 1 {
			next = append(next, g[0])
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary.Structure{}, apperr.New(apperr.KindCanceled, "canceled during reduction", err)
		}
		r.res.ReductionCalls++
		s, err := r.process(ctx, mergedUnit{partials: g, depth: depth})
		if err != nil {
			fallback, _ := summary.Merge(g, cfg.Rules.BulletCap)
			r.warn(fmt.Sprintf("reduce call at depth %d failed (%s); used mechanical merge", depth, apperr.KindOf(err)))
			r.log.Warn("reduce call failed, using mechanical merge", "depth", depth, "error", err)
			s = fallback
		}
		next = append(next, s)
	}

	return r.reduce(ctx, next, depth+1)
}

// groupPartials packs partials in order into groups whose serialized size stays
// within limit. Every group but the last holds at least two partials, so
// each round strictly shrinks the set.
func groupPartials(partials []summary.Structure, limit int) [][]summary.Structure {
	var groups [][]summary.Structure
	var cur []summary.Structure
	size := 0
	for _, p := range partials {
		n := len([]rune(p.JSON()))
		if len(cur) > 1 && size+n > limit {
			groups = append(groups, cur)
			cur, size = nil, 0
		}
		cur = append(cur, p)
		size += n
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// process sends one unit through the invoker and the validator. A schema
// error gets one repair call of a single attempt, so a unit costs at most
// MaxAttempts + 1 model calls.
func (r *run) process(ctx context.Context, u unit) (summary.Structure, error) {
	call := u.call(r.e.prompts, r.doc)
	call.DocumentID = r.doc.ID
	label := u.label()
	log := r.log.With("unit", label)

	// In-flight calls finish even if ctx is canceled.
	callCtx := context.WithoutCancel(ctx)

	resp, err := r.inv.Invoke(callCtx, call)
	if err != nil {
		return summary.Structure{}, err
	}
	if call.Stage == usage.StageSingle && truncatedFinish(resp.FinishReason) {
		return summary.Structure{}, &apperr.Error{
			Kind:       apperr.KindContextLength,
			DocumentID: r.doc.ID,
			Chunk:      call.Chunk,
			Message:    "single-pass output truncated (finish reason " + resp.FinishReason + ")",
		}
	}

	s, warnings, err := summary.Parse(resp.Text)
	if apperr.IsKind(err, apperr.KindSchema) {
		log.Warn("model output failed validation, requesting repair", "error", err)
		repair := call
		repair.Stage = usage.StageRepair
		repair.MaxAttempts = 1
		repair.Prompt = r.e.prompts.RepairPrompt(u.input(r.e.prompts, r.doc), resp.Text, err)
		resp, err = r.inv.Invoke(callCtx, repair)
		if err != nil {
			return summary.Structure{}, err
		}
		s, warnings, err = summary.Parse(resp.Text)
		if err != nil {
			if ae, ok := apperr.As(err); ok {
				err = ae.WithDocument(r.doc.ID).WithChunk(call.Chunk)
			}
			return summary.Structure{}, err
		}
	} else if err != nil {
		return summary.Structure{}, err
	}

	rules := r.e.cfg.Rules
	rules.Pages = u.pages(r.pages)
	norm, nw := summary.Normalize(s, rules)
	for _, w := range append(warnings, nw...) {
		r.warn(label + ": " + w)
	}
	log.Debug("unit summarized", "bullets", norm.BulletCount(), "warnings", len(warnings)+len(nw))
	return norm, nil
}

// sourcePages returns the pages marked in doc, or nil when it carries no markers.
func sourcePages(doc document.Document) map[int]bool {
	set := document.PageSet(doc.Text)
	if len(set) == 0 {
		return nil
	}
	return set
}

func truncatedFinish(reason string) bool {
	switch strings.ToLower(reason) {
	case "length", "max_tokens":
		return true
	}
	return false
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}
