package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/docsum/internal/apperr"
)

// Provider sends one completion request to a language model API.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
}

// Request is a provider-neutral completion request.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	JSON        bool // Ask the provider for a JSON object response where supported.
	MaxTokens   int
}

// Response is a provider-neutral completion result.
type Response struct {
	Text             string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// RetryableError indicates a transient failure that can be retried:
// rate limiting, server errors and transport failures (StatusCode 0).
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	if e.StatusCode == 0 {
		return "retryable error: " + apperr.Clip(e.Message, 200)
	}
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, apperr.Clip(e.Message, 200))
}

// ErrEmptyResponse is returned by providers when a call succeeds but carries no text.
var ErrEmptyResponse = errors.New("empty response from model")

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr) || errors.Is(err, ErrEmptyResponse)
}

var contextLengthSignals = []string{
	"context length",
	"context_length",
	"maximum context",
	"context window",
	"too many tokens",
	"input is too long",
	"prompt is too long",
	"exceeds the token limit",
}

// IsContextLength reports whether err says the input did not fit the model.
func IsContextLength(err error) bool {
	if err == nil {
		return false
	}
	if apperr.IsKind(err, apperr.KindContextLength) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range contextLengthSignals {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// classify maps a provider error onto the engine's error kinds.
// timedOut is set when the per-call deadline fired while the caller was still waiting.
func classify(err error, timedOut bool) apperr.Kind {
	switch {
	case timedOut:
		return apperr.KindTimeout
	case IsContextLength(err):
		return apperr.KindContextLength
	case IsRetryable(err):
		return apperr.KindTransientAPI
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.KindTimeout
	}
	return apperr.KindFatalAPI
}

// fixedTemperatureModels sample at a fixed temperature and reject any other value.
var fixedTemperatureModels = []string{"gpt-5", "o1", "o3", "o4"}

// FixedTemperature returns the only temperature a model accepts, if it has one.
func FixedTemperature(model string) (float64, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	for _, prefix := range fixedTemperatureModels {
		if m == prefix || strings.HasPrefix(m, prefix+"-") {
			return 1.0, true
		}
	}
	return 0, false
}

// CheckTemperature rejects a temperature the model does not allow.
func CheckTemperature(model string, t float64) error {
	if t < 0 || t > 2 {
		return apperr.Newf(apperr.KindConfiguration, "temperature %.2f out of range [0, 2]", t)
	}
	if fixed, ok := FixedTemperature(model); ok && t != fixed {
		return apperr.Newf(apperr.KindConfiguration, "model %s only supports temperature %.1f, got %.2f", model, fixed, t)
	}
	return nil
}
