package notegen

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectio/lectio-api/internal/fault"
)

const validNoteJSON = `{
	"title": "Thermodynamics Lecture",
	"summary": "Covers the first and second laws with worked examples.",
	"keyPoints": ["energy conservation", "entropy", "heat engines", "Carnot cycle"],
	"actionItems": ["review problem set 3", "read chapter 5"],
	"studyQuestions": ["state the first law", "define entropy", "what limits engine efficiency?"]
}`

// scriptedProvider returns canned responses in sequence.
type scriptedProvider struct {
	name      string
	responses []func() (string, error)
	calls     int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Generate(_ context.Context, _ string) (string, error) {
	idx := p.calls
	p.calls++
	if idx >= len(p.responses) {
		return "", fmt.Errorf("unexpected call %d to %s", idx, p.name)
	}
	return p.responses[idx]()
}

func succeed() func() (string, error) {
	return func() (string, error) { return validNoteJSON, nil }
}

func failWith(err error) func() (string, error) {
	return func() (string, error) { return "", err }
}

func newTestGenerator(cfg GeneratorConfig, providers ...Provider) (*Generator, *[]time.Duration) {
	g := NewGenerator(providers, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var slept []time.Duration
	g.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return g, &slept
}

func TestGeneratorFirstProviderFirstTry(t *testing.T) {
	t.Parallel()

	primary := &scriptedProvider{name: "gpt", responses: []func() (string, error){succeed()}}
	secondary := &scriptedProvider{name: "gemini"}
	g, slept := newTestGenerator(GeneratorConfig{MaxRetries: 3, BaseDelay: time.Second}, primary, secondary)

	outcome, err := g.Generate(context.Background(), "transcript text")
	require.NoError(t, err)
	assert.Equal(t, "gpt", outcome.Provider)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, "Thermodynamics Lecture", outcome.Note.Title)
	assert.Zero(t, secondary.calls, "fallback must not be touched")
	assert.Empty(t, *slept)
}

func TestGeneratorRetriesWithExponentialBackoff(t *testing.T) {
	t.Parallel()

	primary := &scriptedProvider{name: "gpt", responses: []func() (string, error){
		failWith(fault.New(fault.CodeProviderDown, "503")),
		failWith(fault.New(fault.CodeProviderDown, "503")),
		succeed(),
	}}
	g, slept := newTestGenerator(GeneratorConfig{MaxRetries: 3, BaseDelay: time.Second}, primary)

	outcome, err := g.Generate(context.Background(), "transcript")
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestGeneratorFallsOverToSecondProvider(t *testing.T) {
	t.Parallel()

	primaryErr := fault.New(fault.CodeQuotaExceeded, "quota exhausted")
	primary := &scriptedProvider{name: "gpt", responses: []func() (string, error){
		failWith(primaryErr), failWith(primaryErr), failWith(primaryErr),
	}}
	secondary := &scriptedProvider{name: "gemini", responses: []func() (string, error){
		failWith(fault.New(fault.CodeProviderDown, "overloaded")),
		succeed(),
	}}
	g, _ := newTestGenerator(GeneratorConfig{MaxRetries: 3, BaseDelay: time.Millisecond}, primary, secondary)

	outcome, err := g.Generate(context.Background(), "transcript")
	require.NoError(t, err)
	assert.Equal(t, "gemini", outcome.Provider)
	assert.Equal(t, 5, outcome.Attempts, "three primary attempts plus two fallback attempts")
}

func TestGeneratorAggregatesFailuresAcrossChain(t *testing.T) {
	t.Parallel()

	primary := &scriptedProvider{name: "gpt", responses: []func() (string, error){
		failWith(fault.New(fault.CodeUnauthorized, "bad key")),
		failWith(fault.New(fault.CodeUnauthorized, "bad key")),
		failWith(fault.New(fault.CodeUnauthorized, "bad key")),
	}}
	secondary := &scriptedProvider{name: "gemini", responses: []func() (string, error){
		failWith(fault.New(fault.CodeProviderDown, "down")),
		failWith(fault.New(fault.CodeProviderDown, "down")),
		failWith(fault.New(fault.CodeProviderDown, "down")),
	}}
	g, _ := newTestGenerator(GeneratorConfig{MaxRetries: 3, BaseDelay: time.Millisecond}, primary, secondary)

	_, err := g.Generate(context.Background(), "transcript")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpt")
	assert.Contains(t, err.Error(), "gemini")

	code, retryable := fault.Classify(err)
	assert.Equal(t, fault.CodeUnauthorized, code, "joined error still carries a classifiable cause")
	assert.False(t, retryable)
}

func TestGeneratorParseFailureCountsAsAttempt(t *testing.T) {
	t.Parallel()

	primary := &scriptedProvider{name: "gpt", responses: []func() (string, error){
		func() (string, error) { return "I could not produce JSON, sorry.", nil },
		succeed(),
	}}
	g, slept := newTestGenerator(GeneratorConfig{MaxRetries: 3, BaseDelay: time.Second}, primary)

	outcome, err := g.Generate(context.Background(), "transcript")
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, []time.Duration{time.Second}, *slept)
}

func TestGeneratorStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	primary := &scriptedProvider{name: "gpt", responses: []func() (string, error){
		func() (string, error) {
			cancel()
			return "", fault.New(fault.CodeProviderDown, "down")
		},
	}}
	g, _ := newTestGenerator(GeneratorConfig{MaxRetries: 3, BaseDelay: time.Second}, primary)

	_, err := g.Generate(ctx, "transcript")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, primary.calls)
}

func TestGeneratorNoProviders(t *testing.T) {
	t.Parallel()

	g, _ := newTestGenerator(GeneratorConfig{})
	_, err := g.Generate(context.Background(), "transcript")
	require.Error(t, err)
}
