package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/docsum/internal/apperr"
	"github.com/dgallion1/docsum/internal/usage"
)

// Config is the per-run invocation policy.
type Config struct {
	Model       string
	Temperature float64
	MaxAttempts int           // Total attempts per call, first one included.
	CallTimeout time.Duration // Deadline for a single attempt; 0 disables it.
	MaxTokens   int
}

// Call identifies one logical model call.
type Call struct {
	DocumentID string
	Chunk      int // apperr.NoChunk for whole-document and reduction calls.
	Stage      usage.Stage
	System     string
	Prompt     string

	// MaxAttempts lowers the invoker's attempt budget for this call; 0 keeps it.
	MaxAttempts int
}

type callState int

const (
	stateAttempting callState = iota
	stateBackoff
	stateSucceeded
	stateExhausted
)

// Invoker sends calls through a Provider with bounded retries, recording
// every attempt in a usage tracker.
type Invoker struct {
	provider Provider
	cfg      Config
	tracker  *usage.Tracker
	log      *slog.Logger

	// Backoff and Sleep are replaceable so tests can run without real delays.
	Backoff func(attempt int) time.Duration
	Sleep   func(ctx context.Context, d time.Duration) error
}

// NewInvoker validates cfg against the model's constraints before any call is made.
func NewInvoker(p Provider, cfg Config, tracker *usage.Tracker, log *slog.Logger) (*Invoker, error) {
	if p == nil {
		return nil, apperr.New(apperr.KindConfiguration, "no model provider configured", nil)
	}
	if cfg.Model == "" {
		return nil, apperr.New(apperr.KindConfiguration, "model is required", nil)
	}
	if err := CheckTemperature(cfg.Model, cfg.Temperature); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts <= 0 {
		return nil, apperr.Newf(apperr.KindConfiguration, "max attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if tracker == nil {
		tracker = usage.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Invoker{
		provider: p,
		cfg:      cfg,
		tracker:  tracker,
		log:      log,
		Backoff:  Backoff,
		Sleep:    Sleep,
	}, nil
}

// Model returns the configured model identifier.
func (inv *Invoker) Model() string {
	return inv.cfg.Model
}

// Tracker returns the tracker attempts are recorded in.
func (inv *Invoker) Tracker() *usage.Tracker {
	return inv.tracker
}

// WithTracker returns a copy of the invoker that records into t.
func (inv *Invoker) WithTracker(t *usage.Tracker) *Invoker {
	c := *inv
	c.tracker = t
	return &c
}

// Invoke runs one call to completion. Transient failures (rate limits, server
// errors, empty responses, per-attempt timeouts) are retried up to MaxAttempts;
// anything else fails on the spot. The returned error is an *apperr.Error
// whose kind is that of the last attempt.
func (inv *Invoker) Invoke(ctx context.Context, call Call) (Response, error) {
	maxAttempts := inv.cfg.MaxAttempts
	if call.MaxAttempts > 0 && call.MaxAttempts < maxAttempts {
		maxAttempts = call.MaxAttempts
	}
	reqID := uuid.NewString()
	log := inv.log.With("doc_id", call.DocumentID, "chunk", call.Chunk, "stage", call.Stage, "request_id", reqID)

	var (
		state    = stateAttempting
		attempt  int
		resp     Response
		lastErr  error
		lastKind apperr.Kind
	)
	for {
		switch state {
		case stateAttempting:
			attempt++
			var elapsed time.Duration
			resp, elapsed, lastKind, lastErr = inv.attempt(ctx, call)

			rec := usage.Record{
				DocumentID:       call.DocumentID,
				Chunk:            call.Chunk,
				Stage:            call.Stage,
				Attempt:          attempt,
				PromptTokens:     resp.PromptTokens,
				CompletionTokens: resp.CompletionTokens,
				Duration:         elapsed,
			}
			switch {
			case lastErr == nil:
				rec.Outcome = usage.OutcomeSuccess
				state = stateSucceeded
			case lastKind.Transient() && attempt < maxAttempts:
				rec.Outcome = usage.OutcomeRetry
				rec.Error = lastErr.Error()
				state = stateBackoff
			default:
				rec.Outcome = usage.OutcomeFailure
				rec.Error = lastErr.Error()
				state = stateExhausted
			}
			inv.tracker.Add(rec)

		case stateBackoff:
			d := inv.Backoff(attempt - 1)
			log.Warn("retryable model error", "attempt", attempt, "max_attempts", maxAttempts,
				"kind", lastKind, "backoff_ms", d.Milliseconds(), "error", lastErr)
			if err := inv.Sleep(ctx, d); err != nil {
				return Response{}, &apperr.Error{
					Kind:       apperr.KindCanceled,
					DocumentID: call.DocumentID,
					Chunk:      call.Chunk,
					Message:    fmt.Sprintf("canceled during backoff after %d attempts", attempt),
					Cause:      lastErr,
				}
			}
			state = stateAttempting

		case stateSucceeded:
			if attempt > 1 {
				log.Info("model call succeeded after retry", "attempts", attempt)
			}
			return resp, nil

		case stateExhausted:
			msg := fmt.Sprintf("%s call failed after %d attempt(s)", call.Stage, attempt)
			if !lastKind.Transient() {
				msg = fmt.Sprintf("%s call failed with non-retryable error on attempt %d", call.Stage, attempt)
			}
			log.Error("model call failed", "attempts", attempt, "kind", lastKind, "error", lastErr)
			return Response{}, &apperr.Error{
				Kind:       lastKind,
				DocumentID: call.DocumentID,
				Chunk:      call.Chunk,
				Message:    msg,
				Cause:      lastErr,
			}
		}
	}
}

// attempt performs a single provider call under the per-call deadline.
func (inv *Invoker) attempt(ctx context.Context, call Call) (Response, time.Duration, apperr.Kind, error) {
	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if inv.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, inv.cfg.CallTimeout)
	}
	defer cancel()

	start := time.Now()
	resp, err := inv.provider.Complete(callCtx, Request{
		Model:       inv.cfg.Model,
		System:      call.System,
		Prompt:      call.Prompt,
		Temperature: inv.cfg.Temperature,
		JSON:        true,
		MaxTokens:   inv.cfg.MaxTokens,
	})
	elapsed := time.Since(start)
	if err == nil && resp.Text == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		return resp, elapsed, classify(err, timedOut), err
	}
	return resp, elapsed, "", nil
}
