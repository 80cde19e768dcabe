package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	base
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(s Settings) (*OpenAIProvider, error) {
	if s.APIKey == "" {
		return nil, errors.New("openai provider: api key is required")
	}
	if s.Model == "" {
		return nil, errors.New("openai provider: model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		// Retries are owned by the caller.
		option.WithMaxRetries(0),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}

	name := "openai"
	if strings.Contains(s.BaseURL, "groq.com") {
		name = "groq"
	}

	return &OpenAIProvider{
		base:   newBase(name),
		client: openai.NewClient(opts...),
		model:  s.Model,
	}, nil
}

// Complete sends a system and user message and returns the first choice.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", p.classify(err)
	}
	p.recordSuccess(time.Since(start))

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices in completion", ErrTransient)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		p.recordFailure(apiErr.StatusCode)
		return statusError(apiErr.StatusCode, err)
	}
	p.recordFailure(0)
	if errors.Is(err, context.Canceled) {
		return err
	}
	if p.Monitor.DetectThrottlePattern(err.Error()) {
		return statusError(429, err)
	}
	return statusError(0, err)
}

// Close releases resources.
func (p *OpenAIProvider) Close() error {
	return nil
}
