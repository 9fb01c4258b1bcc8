package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgallion1/docsum/internal/model"
)

func TestComplete_Success(t *testing.T) {
	var got messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "k" {
			t.Errorf("expected api key header, got %q", r.Header.Get("x-api-key"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"main_idea\":[]}"}],"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":5}}`))
	}))
	defer srv.Close()

	c := New("k", srv.URL, 1024)
	resp, err := c.Complete(context.Background(), model.Request{Model: "claude-x", System: "sys", Prompt: "hello", Temperature: 0.3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != `{"main_idea":[]}` || resp.PromptTokens != 12 || resp.CompletionTokens != 5 || resp.FinishReason != "end_turn" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if got.System != "sys" || got.MaxTokens != 1024 || got.Temperature == nil || *got.Temperature != 0.3 {
		t.Errorf("unexpected request: %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
}

func TestComplete_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		ctxLen    bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"type":"rate_limit_error"}}`, true, false},
		{"overloaded", 529, `{"error":{"type":"overloaded_error"}}`, true, false},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"type":"authentication_error"}}`, false, false},
		{"too long", http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"prompt is too long: 250000 tokens"}}`, false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := New("k", srv.URL, 0).Complete(context.Background(), model.Request{Model: "m", Prompt: "p"})
			if err == nil {
				t.Fatal("expected error")
			}
			if model.IsRetryable(err) != tc.retryable {
				t.Errorf("IsRetryable = %v, want %v (%v)", model.IsRetryable(err), tc.retryable, err)
			}
			if model.IsContextLength(err) != tc.ctxLen {
				t.Errorf("IsContextLength = %v, want %v", model.IsContextLength(err), tc.ctxLen)
			}
		})
	}
}

func TestComplete_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	_, err := New("k", srv.URL, 0).Complete(context.Background(), model.Request{Model: "m"})
	if !errors.Is(err, model.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}
