// Package soniox implements the speech-to-text provider on the Soniox
// cloud transcription API. Audio is handed over by URL; the caller is
// responsible for making the URL reachable (a signed blob URL in practice).
package soniox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lectio/lectio-api/internal/fault"
	"github.com/lectio/lectio-api/internal/transcribe"
)

const defaultEndpoint = "https://api.soniox.com/v1/cloud/transcribe"

// Client calls the Soniox cloud transcribe endpoint.
type Client struct {
	apiKey     string
	endpoint   string
	language   string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Soniox speech provider. endpoint may be empty to use the
// public API; tests point it at a local server.
func New(apiKey, endpoint string, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("soniox API key cannot be empty")
	}
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		apiKey:   apiKey,
		endpoint: endpoint,
		language: "en",
		// No client-level timeout: the per-chunk deadline arrives via ctx.
		httpClient: &http.Client{},
		logger:     logger.With("component", "soniox"),
	}, nil
}

type transcribeRequest struct {
	Config struct {
		Language string `json:"language"`
	} `json:"config"`
	Audio struct {
		URL string `json:"url"`
	} `json:"audio"`
}

// transcribeResponse tolerates the response shapes Soniox has used: text
// and confidence at the top level, nested under result, or per segment.
type transcribeResponse struct {
	Result *struct {
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence"`
	} `json:"result"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	Segments   []struct {
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence"`
	} `json:"segments"`
}

type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// Transcribe converts the audio at audioURL into text.
func (c *Client) Transcribe(ctx context.Context, audioURL string) (transcribe.Result, error) {
	var reqBody transcribeRequest
	reqBody.Config.Language = c.language
	reqBody.Audio.URL = audioURL

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("failed to encode soniox request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("failed to build soniox request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("soniox request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("failed to read soniox response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return transcribe.Result{}, c.classifyFailure(resp.StatusCode, body)
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return transcribe.Result{}, fmt.Errorf("failed to decode soniox response: %w", err)
	}

	// Empty text is a valid outcome for a silent chunk. The pipeline
	// rejects a transcript only when every chunk came back empty.
	return extractResult(parsed), nil
}

// extractResult picks the best text and confidence from the response,
// preferring result over top-level over joined segments.
func extractResult(parsed transcribeResponse) transcribe.Result {
	if parsed.Result != nil && parsed.Result.Text != "" {
		return transcribe.Result{
			Text:       strings.TrimSpace(parsed.Result.Text),
			Confidence: clamp(parsed.Result.Confidence),
		}
	}
	if parsed.Text != "" {
		return transcribe.Result{
			Text:       strings.TrimSpace(parsed.Text),
			Confidence: clamp(parsed.Confidence),
		}
	}

	var texts []string
	var sum float64
	var n int
	for _, segment := range parsed.Segments {
		if segment.Text != "" {
			texts = append(texts, segment.Text)
		}
		if segment.Confidence != nil {
			sum += *segment.Confidence
			n++
		}
	}

	result := transcribe.Result{Text: strings.TrimSpace(strings.Join(texts, " "))}
	if n > 0 {
		avg := sum / float64(n)
		result.Confidence = clamp(&avg)
	}
	return result
}

func clamp(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return &c
}

// classifyFailure maps Soniox error codes onto our failure codes; anything
// unrecognized falls back to HTTP status classification.
func (c *Client) classifyFailure(status int, body []byte) error {
	var parsed errorResponse
	_ = json.Unmarshal(body, &parsed)

	message := parsed.Message
	if message == "" {
		message = fmt.Sprintf("soniox request failed with status %d", status)
	}

	switch parsed.ErrorCode {
	case "audio_too_long":
		return fault.New(fault.CodeTooLong, message)
	case "invalid_audio", "audio_too_quiet", "unsupported_format":
		return fault.New(fault.CodeBadAudio, message)
	case "quota_exceeded", "insufficient_credits":
		return fault.New(fault.CodeQuotaExceeded, message)
	default:
		return fmt.Errorf("soniox request failed: %w", &fault.StatusError{Status: status, Body: string(body)})
	}
}
