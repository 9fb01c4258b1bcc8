package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgallion1/docsum/internal/model"
)

func TestComplete_Success(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"results\":[]}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":30,"completion_tokens":4,"total_tokens":34}}`))
	}))
	defer srv.Close()

	c := New("k", srv.URL+"/v1")
	resp, err := c.Complete(context.Background(), model.Request{Model: "gpt-4o", System: "sys", Prompt: "p", Temperature: 0.5, JSON: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != `{"results":[]}` || resp.PromptTokens != 30 || resp.CompletionTokens != 4 || resp.FinishReason != "stop" {
		t.Errorf("unexpected response: %+v", resp)
	}

	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %v", body["messages"])
	}
	rf, _ := body["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("expected json_object response format, got %v", body["response_format"])
	}
}

func TestComplete_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		ctxLen    bool
	}{
		{"rate limit", 429, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`, true, false},
		{"server", 502, `{"error":{"message":"bad gateway","type":"server_error"}}`, true, false},
		{"context length", 400, `{"error":{"message":"This model's maximum context length is 8192 tokens","type":"invalid_request_error","code":"context_length_exceeded"}}`, false, true},
		{"auth", 401, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := New("k", srv.URL+"/v1").Complete(context.Background(), model.Request{Model: "gpt-4o", Prompt: "p"})
			if err == nil {
				t.Fatal("expected error")
			}
			if model.IsRetryable(err) != tc.retryable {
				t.Errorf("IsRetryable = %v, want %v (%v)", model.IsRetryable(err), tc.retryable, err)
			}
			if model.IsContextLength(err) != tc.ctxLen {
				t.Errorf("IsContextLength = %v, want %v (%v)", model.IsContextLength(err), tc.ctxLen, err)
			}
		})
	}
}

func TestComplete_NoChoicesIsEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","choices":[]}`))
	}))
	defer srv.Close()

	_, err := New("k", srv.URL+"/v1").Complete(context.Background(), model.Request{Model: "gpt-4o"})
	if !model.IsRetryable(err) {
		t.Errorf("expected retryable empty response, got %v", err)
	}
}
