package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docsum/internal/config"
	"github.com/dgallion1/docsum/internal/engine"
	"github.com/dgallion1/docsum/internal/model"
	"github.com/dgallion1/docsum/internal/parser"
	"github.com/dgallion1/docsum/internal/pipeline"
	"github.com/dgallion1/docsum/internal/prompt"
	"github.com/dgallion1/docsum/internal/segment"
	"github.com/dgallion1/docsum/internal/summary"
	"github.com/dgallion1/docsum/internal/usage"
)

const testKey = "secret"

const summaryJSON = `{"main_idea":["Spacing improves recall [p=1]"],"objective":["Test spacing [p=1]"],
"design":["Between-subjects [p=1]"],"methods":["N = 80 adults [p=1]"],
"results":[],"main_findings":["Spaced study wins [p=1]"]}`

type fixedProvider struct{}

func (fixedProvider) Name() string { return "fixed" }

func (fixedProvider) Complete(context.Context, model.Request) (model.Response, error) {
	return model.Response{Text: summaryJSON, PromptTokens: 40, CompletionTokens: 8}, nil
}

// newTestServer builds a server over a real pipeline with a canned provider.
// The orchestrator is started only when start is true.
func newTestServer(t *testing.T, start bool) (*Server, *usage.Tracker) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := usage.NewAggregate(time.Hour)
	inv, err := model.NewInvoker(fixedProvider{}, model.Config{Model: "test-model", MaxAttempts: 1}, tracker, log)
	if err != nil {
		t.Fatal(err)
	}
	e, err := engine.New(inv, prompt.Default(), engine.Config{
		Segment:           segment.DefaultConfig(),
		Rules:             summary.DefaultRules(),
		ReduceCapacity:    6000,
		MaxReductionDepth: 3,
	}, log)
	if err != nil {
		t.Fatal(err)
	}
	orch := pipeline.NewOrchestrator(pipeline.NewWorker(e, parser.Options{}, log), 1, 4, time.Hour, log)
	if start {
		orch.Start(context.Background())
		t.Cleanup(orch.Stop)
	}

	cfg := config.Defaults()
	cfg.DocsumAPIKey = testKey
	cfg.Model = "test-model"
	cfg.MaxUploadBytes = 1 << 20
	return NewServer(orch, tracker, log, cfg), tracker
}

func upload(t *testing.T, srv http.Handler, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	mw.WriteField("title", "Spacing Study")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/summarize", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func get(srv http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func submit(t *testing.T, srv http.Handler) string {
	t.Helper()
	rec := upload(t, srv, "paper.txt", "We tested spaced study in 80 adults.")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	id, _ := resp["job_id"].(string)
	if id == "" {
		t.Fatalf("expected job_id, got %v", resp)
	}
	return id
}

func waitFinished(t *testing.T, srv http.Handler, id string) pipeline.JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := get(srv, "/api/summarize/"+id+"/status")
		if rec.Code != http.StatusOK {
			t.Fatalf("status: expected 200, got %d", rec.Code)
		}
		var snap pipeline.JobSnapshot
		if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
			t.Fatal(err)
		}
		if snap.Status.Done() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return pipeline.JobSnapshot{}
}

func TestHealth_NoAuth(t *testing.T) {
	srv, _ := newTestServer(t, false)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	srv, _ := newTestServer(t, false)
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + testKey},
		{"wrong key", "Bearer nope"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stats/usage", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestSummarize_EndToEnd(t *testing.T) {
	srv, tracker := newTestServer(t, true)
	id := submit(t, srv)

	snap := waitFinished(t, srv, id)
	if snap.Status != pipeline.StatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Title != "Spacing Study" {
		t.Errorf("expected form title, got %q", snap.Title)
	}

	rec := get(srv, "/api/summarize/"+id+"/result")
	if rec.Code != http.StatusOK {
		t.Fatalf("result: expected 200, got %d", rec.Code)
	}
	var body struct {
		Result struct {
			File     string              `json:"file"`
			Summary  map[string][]string `json:"summary"`
			Strategy string              `json:"strategy"`
		} `json:"result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Result.File != "paper.txt" {
		t.Errorf("expected paper.txt, got %q", body.Result.File)
	}
	if body.Result.Strategy != string(engine.StrategySingle) {
		t.Errorf("expected single strategy, got %q", body.Result.Strategy)
	}
	if got := body.Result.Summary["main_idea"]; len(got) != 1 {
		t.Errorf("expected one main idea bullet, got %v", got)
	}

	md := get(srv, "/api/summarize/"+id+"/result?format=md")
	if !strings.Contains(md.Body.String(), "## paper.txt") || !strings.Contains(md.Body.String(), "- Not reported") {
		t.Errorf("unexpected markdown result:\n%s", md.Body.String())
	}
	if ct := md.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("expected markdown content type, got %q", ct)
	}

	page := get(srv, "/api/summarize/"+id+"/result?format=html")
	if !strings.Contains(page.Body.String(), "<h2>paper.txt</h2>") {
		t.Errorf("unexpected html result:\n%s", page.Body.String())
	}

	if got := tracker.Totals().Calls; got != 1 {
		t.Errorf("expected 1 model call in aggregate, got %d", got)
	}
}

func TestSummarize_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, false)
	tests := []struct {
		name     string
		filename string
		want     int
	}{
		{"missing file", "", http.StatusBadRequest},
		{"unsupported type", "data.exe", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := upload(t, srv, tc.filename, "payload")
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSummarize_TooLarge(t *testing.T) {
	srv, _ := newTestServer(t, false)
	srv.cfg.MaxUploadBytes = 10
	rec := upload(t, srv, "paper.txt", strings.Repeat("x", 100))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestResult_NotFinished(t *testing.T) {
	srv, _ := newTestServer(t, false)
	id := submit(t, srv)

	rec := get(srv, "/api/summarize/"+id+"/result")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"queued"`) {
		t.Errorf("expected queued status in body, got %s", rec.Body.String())
	}
}

func TestUnknownJob(t *testing.T) {
	srv, _ := newTestServer(t, false)
	for _, path := range []string{"/api/summarize/nope/status", "/api/summarize/nope/result"} {
		if rec := get(srv, path); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestUsageStats(t *testing.T) {
	srv, _ := newTestServer(t, true)
	waitFinished(t, srv, submit(t, srv))

	rec := get(srv, "/api/stats/usage")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Model string         `json:"model"`
		Usage usage.Snapshot `json:"usage"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Model != "test-model" {
		t.Errorf("expected test-model, got %q", body.Model)
	}
	if body.Usage.Totals.PromptTokens != 40 || body.Usage.Totals.CompletionTokens != 8 {
		t.Errorf("unexpected totals %+v", body.Usage.Totals)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"paper.pdf", "paper.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\docs\paper.pdf`, "paper.pdf"},
		{"", "unnamed"},
	}
	for _, tc := range tests {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}
