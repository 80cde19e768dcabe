package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GeminiProvider calls Google Gemini through the genai SDK.
type GeminiProvider struct {
	base
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(ctx context.Context, s Settings) (*GeminiProvider, error) {
	if s.APIKey == "" {
		return nil, errors.New("gemini provider: api key is required")
	}
	model := s.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiProvider{
		base:   newBase("gemini"),
		client: client,
		model:  model,
	}, nil
}

// Complete generates content with the system prompt as instruction.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(req.Temperature)),
		ResponseMIMEType:  "application/json",
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.UserPrompt), cfg)
	if err != nil {
		return "", p.classify(err)
	}
	p.recordSuccess(time.Since(start))

	return resp.Text(), nil
}

func (p *GeminiProvider) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		p.recordFailure(apiErr.Code)
		return statusError(apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		p.recordFailure(apiErrPtr.Code)
		return statusError(apiErrPtr.Code, err)
	}
	p.recordFailure(0)
	if errors.Is(err, context.Canceled) {
		return err
	}
	return statusError(0, err)
}

// Close releases resources.
func (p *GeminiProvider) Close() error {
	return nil
}
