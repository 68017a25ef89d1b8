// Package gemini implements the study-note provider backed by Google's
// Gemini API. It serves as the fallback in the note generation chain.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/lectio/lectio-api/internal/fault"
	"github.com/lectio/lectio-api/internal/notegen"
)

// Provider generates note JSON via the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// New creates a Gemini-backed note provider.
func New(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}
	if model == "" {
		return nil, errors.New("gemini model name cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Provider{
		client: client,
		model:  model,
		logger: logger.With("component", "gemini_provider"),
	}, nil
}

// Name identifies this provider in note metadata and logs.
func (p *Provider) Name() string { return "gemini" }

// Generate sends the transcript prompt to Gemini and returns the raw model
// output for parsing by the caller.
func (p *Provider) Generate(ctx context.Context, transcript string) (string, error) {
	p.logger.DebugContext(ctx, "calling Gemini API", "model", p.model, "transcript_length", len(transcript))

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(notegen.Prompt(transcript)), nil)
	if err != nil {
		return "", classifyError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", fault.New(fault.CodeProviderDown, "gemini returned an empty response")
	}
	return text, nil
}

// classifyError maps genai API errors onto failure codes so retry decisions
// work the same across providers.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("gemini API call failed: %w",
			&fault.StatusError{Status: apiErr.Code, Body: apiErr.Message})
	}
	return fmt.Errorf("gemini API call failed: %w", err)
}
