// Package openai implements the primary study-note provider on top of the
// OpenAI chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lectio/lectio-api/internal/fault"
	"github.com/lectio/lectio-api/internal/notegen"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	requestTimeout = 5 * time.Minute
)

// Provider generates note JSON via OpenAI chat completions.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an OpenAI-backed note provider.
func New(apiKey, model string, logger *slog.Logger) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai API key cannot be empty")
	}
	if model == "" {
		return nil, errors.New("openai model name cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With("component", "openai_provider"),
	}, nil
}

// Name identifies this provider in note metadata and logs.
func (p *Provider) Name() string { return "gpt" }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends the transcript prompt to the chat completions endpoint and
// returns the raw model output.
func (p *Provider) Generate(ctx context.Context, transcript string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "user", Content: notegen.Prompt(transcript)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	p.logger.DebugContext(ctx, "calling OpenAI API", "model", p.model, "transcript_length", len(transcript))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai API call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read openai response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai API call failed: %w",
			&fault.StatusError{Status: resp.StatusCode, Body: string(body)})
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode openai response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fault.New(fault.CodeProviderDown, "openai returned no completion")
	}

	return parsed.Choices[0].Message.Content, nil
}
