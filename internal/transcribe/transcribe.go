// Package transcribe runs speech-to-text over segmented audio with bounded
// concurrency. Chunks are staged in blob storage only for the duration of
// their provider call and removed afterwards regardless of outcome.
package transcribe

import (
	"context"
	"strings"
)

// Result is the transcription output for a single audio chunk.
type Result struct {
	Text       string
	Confidence *float64
}

// SpeechProvider converts a single audio file, addressed by URL, into text.
// Implementations must honor context cancellation and return errors that
// the fault package can classify.
type SpeechProvider interface {
	Transcribe(ctx context.Context, audioURL string) (Result, error)
}

// Join concatenates per-chunk transcripts in order, collapsing runs of
// whitespace so chunk boundaries do not leave double spaces.
func Join(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Text != "" {
			parts = append(parts, r.Text)
		}
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// AggregateConfidence averages the chunk confidences that are present.
// Returns nil when no chunk reported one.
func AggregateConfidence(results []Result) *float64 {
	var sum float64
	var n int
	for _, r := range results {
		if r.Confidence != nil {
			sum += *r.Confidence
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}
