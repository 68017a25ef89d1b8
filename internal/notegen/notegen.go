// Package notegen turns transcripts into structured study notes using a
// chain of LLM providers. The primary provider is retried with exponential
// backoff before the chain falls over to the secondary.
package notegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Note is the structured study note produced from a transcript.
type Note struct {
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	KeyPoints      []string `json:"keyPoints"`
	ActionItems    []string `json:"actionItems"`
	StudyQuestions []string `json:"studyQuestions"`
}

// Provider generates raw model output for a transcript. The output is
// expected to contain a JSON note, possibly wrapped in prose or fences;
// Parse handles the unwrapping.
type Provider interface {
	Name() string
	Generate(ctx context.Context, transcript string) (string, error)
}

// Outcome reports a successful generation: the note, which provider in the
// chain produced it, and how many attempts were spent across the chain.
type Outcome struct {
	Note     Note
	Provider string
	Attempts int
}

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	// MaxRetries is the attempt budget per provider.
	MaxRetries int

	// BaseDelay seeds the exponential backoff between attempts.
	BaseDelay time.Duration
}

// Generator runs the provider fallback chain.
type Generator struct {
	providers  []Provider
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewGenerator constructs a Generator over the given providers, tried in order.
func NewGenerator(providers []Provider, cfg GeneratorConfig, logger *slog.Logger) *Generator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Generator{
		providers:  providers,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		logger:     logger.With("component", "notegen"),
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Generate runs the chain: each provider gets maxRetries attempts with
// exponential backoff between them, and the next provider starts only after
// the previous one is exhausted. A parse failure counts as a failed attempt.
// When every provider is exhausted the per-provider errors are returned
// joined, so classification still sees the underlying causes.
func (g *Generator) Generate(ctx context.Context, transcript string) (Outcome, error) {
	if len(g.providers) == 0 {
		return Outcome{}, errors.New("no note providers configured")
	}

	totalAttempts := 0
	var chainErrs []error

	for _, provider := range g.providers {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = g.baseDelay
		bo.Multiplier = 2
		bo.RandomizationFactor = 0
		bo.MaxElapsedTime = 0
		// Reset recomputes the current interval from InitialInterval;
		// the constructor already ran it with the library default.
		bo.Reset()

		var lastErr error
		for attempt := 1; attempt <= g.maxRetries; attempt++ {
			totalAttempts++

			note, err := g.attempt(ctx, provider, transcript)
			if err == nil {
				g.logger.Info("note generated",
					"provider", provider.Name(),
					"attempt", attempt,
					"total_attempts", totalAttempts)
				return Outcome{Note: note, Provider: provider.Name(), Attempts: totalAttempts}, nil
			}

			lastErr = err
			g.logger.Warn("note generation attempt failed",
				"provider", provider.Name(),
				"attempt", attempt,
				"error", err)

			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			if attempt < g.maxRetries {
				if err := g.sleep(ctx, bo.NextBackOff()); err != nil {
					return Outcome{}, err
				}
			}
		}

		chainErrs = append(chainErrs,
			fmt.Errorf("provider %s exhausted after %d attempts: %w", provider.Name(), g.maxRetries, lastErr))
	}

	return Outcome{}, fmt.Errorf("all note providers failed: %w", errors.Join(chainErrs...))
}

func (g *Generator) attempt(ctx context.Context, provider Provider, transcript string) (Note, error) {
	raw, err := provider.Generate(ctx, transcript)
	if err != nil {
		return Note{}, err
	}

	note, err := Parse(raw)
	if err != nil {
		return Note{}, err
	}
	return note, nil
}
