package openai

import (
	"context"
	"errors"
	"fmt"
	"math"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/dgallion1/docsum/internal/model"
)

// Client calls the OpenAI chat completions API, or any server that speaks it.
type Client struct {
	client *goopenai.Client
}

// New returns a client. baseURL may be empty for the public API.
func New(apiKey, baseURL string) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{client: goopenai.NewClientWithConfig(cfg)}
}

func (c *Client) Name() string { return "openai" }

// Complete sends a system + user message pair and returns the first choice.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	temp := float32(req.Temperature)
	if temp == 0 {
		// The library drops a zero temperature from the request body.
		temp = math.SmallestNonzeroFloat32
	}

	var msgs []goopenai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt})

	ccr := goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: temp,
	}
	if req.JSON {
		ccr.ResponseFormat = &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject}
	}
	if req.MaxTokens > 0 {
		ccr.MaxCompletionTokens = req.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return model.Response{}, classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return model.Response{}, fmt.Errorf("%w: no choices", model.ErrEmptyResponse)
	}

	choice := resp.Choices[0]
	return model.Response{
		Text:             choice.Message.Content,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func classify(ctx context.Context, err error) error {
	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	case ctx.Err() != nil:
		return fmt.Errorf("openai: %w", err)
	default:
		// Transport failure before any HTTP status.
		return &model.RetryableError{Message: "openai: " + err.Error()}
	}
	if status == 429 || status >= 500 {
		return &model.RetryableError{StatusCode: status, Message: err.Error()}
	}
	return fmt.Errorf("openai status %d: %w", status, err)
}
