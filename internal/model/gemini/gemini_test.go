package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/dgallion1/docsum/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg       string
		retryable bool
		ctxLen    bool
	}{
		{"Error 429, Message: Resource has been exhausted, Status: RESOURCE_EXHAUSTED", true, false},
		{"Error 503, Message: The model is overloaded, Status: UNAVAILABLE", true, false},
		{"Error 500, Message: Internal error, Status: INTERNAL", true, false},
		{"Error 400, Message: The input token count exceeds the maximum; input is too long, Status: INVALID_ARGUMENT", false, true},
		{"Error 403, Message: API key not valid, Status: PERMISSION_DENIED", false, false},
		{"dial tcp: lookup generativelanguage.googleapis.com: no such host", true, false},
	}
	for _, tc := range tests {
		t.Run(tc.msg, func(t *testing.T) {
			err := classify(errors.New(tc.msg))
			if model.IsRetryable(err) != tc.retryable {
				t.Errorf("IsRetryable = %v, want %v", model.IsRetryable(err), tc.retryable)
			}
			if model.IsContextLength(err) != tc.ctxLen {
				t.Errorf("IsContextLength = %v, want %v", model.IsContextLength(err), tc.ctxLen)
			}
		})
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), "", ""); err == nil {
		t.Error("expected error for missing API key")
	}
}
