package apperr

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind classifies a failure so callers can decide whether to retry, degrade, or give up.
type Kind string

const (
	KindConfiguration          Kind = "configuration_error"
	KindEmptyInput             Kind = "empty_input_error"
	KindTransientAPI           Kind = "transient_api_error"
	KindTimeout                Kind = "timeout_error"
	KindFatalAPI               Kind = "fatal_api_error"
	KindContextLength          Kind = "context_length_error"
	KindSchema                 Kind = "schema_error"
	KindChunkFailed            Kind = "chunk_failed_error"
	KindAllChunksFailed        Kind = "all_chunks_failed_error"
	KindReductionDepthExceeded Kind = "reduction_depth_exceeded_error"
	KindCanceled               Kind = "canceled"
)

// NoChunk marks an error that is not tied to a single chunk.
const NoChunk = -1

// Error is a tagged engine failure. It carries enough context for a logger or an
// HTTP handler to present it without knowing where it came from.
type Error struct {
	Kind       Kind
	DocumentID string
	Chunk      int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.DocumentID != "" {
		fmt.Fprintf(&b, ": doc=%s", e.DocumentID)
	}
	if e.Chunk != NoChunk {
		fmt.Fprintf(&b, " chunk=%d", e.Chunk)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an error that is not yet tied to a document or chunk.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Chunk: NoChunk, Message: message, Cause: cause}
}

// Newf is New with a formatted message and no cause.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...), nil)
}

// WithDocument returns a copy tagged with a document id.
func (e *Error) WithDocument(id string) *Error {
	c := *e
	c.DocumentID = id
	return &c
}

// WithChunk returns a copy tagged with a chunk index.
func (e *Error) WithChunk(idx int) *Error {
	c := *e
	c.Chunk = idx
	return &c
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// Transient reports whether failures of this kind are worth another attempt.
func (k Kind) Transient() bool {
	return k == KindTransientAPI || k == KindTimeout
}

// IsTransient reports whether the failure is worth another attempt.
func IsTransient(err error) bool {
	return KindOf(err).Transient()
}

// Clip shortens s to at most n bytes for log and error messages, backing up
// to a rune boundary so the result stays valid UTF-8.
func Clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
