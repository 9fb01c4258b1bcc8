package gemini

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/dgallion1/docsum/internal/model"
)

// Client calls the Gemini API through the genai SDK.
type Client struct {
	client *genai.Client
}

// New creates a Gemini API client. baseURL may be empty.
func New(ctx context.Context, apiKey, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("missing Gemini API key")
	}
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: c}, nil
}

func (c *Client) Name() string { return "gemini" }

// Complete generates content for a single user turn.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	res, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		if ctx.Err() != nil {
			return model.Response{}, fmt.Errorf("gemini: %w", err)
		}
		return model.Response{}, classify(err)
	}

	out := model.Response{Text: res.Text()}
	if len(res.Candidates) > 0 {
		out.FinishReason = string(res.Candidates[0].FinishReason)
	}
	if res.UsageMetadata != nil {
		out.PromptTokens = int(res.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(res.UsageMetadata.CandidatesTokenCount)
	}
	if out.Text == "" {
		return out, fmt.Errorf("%w: finish reason %q", model.ErrEmptyResponse, out.FinishReason)
	}
	return out, nil
}

var statusCodeRe = regexp.MustCompile(`Error (\d{3})`)

// classify marks rate limiting and server-side failures as retryable. The SDK's
// error text carries both the HTTP code and the RPC status name.
func classify(err error) error {
	msg := err.Error()
	status := 0
	if m := statusCodeRe.FindStringSubmatch(msg); m != nil {
		status, _ = strconv.Atoi(m[1])
	}
	upper := strings.ToUpper(msg)
	switch {
	case status == 429 || status >= 500,
		strings.Contains(upper, "RESOURCE_EXHAUSTED"),
		strings.Contains(upper, "UNAVAILABLE"),
		strings.Contains(upper, "DEADLINE_EXCEEDED"):
		return &model.RetryableError{StatusCode: status, Message: msg}
	case status == 0 && !strings.Contains(upper, "INVALID_ARGUMENT") && !strings.Contains(upper, "PERMISSION_DENIED"):
		// No HTTP status: the request never got an answer.
		return &model.RetryableError{Message: "gemini: " + msg}
	}
	return fmt.Errorf("gemini: %w", err)
}
