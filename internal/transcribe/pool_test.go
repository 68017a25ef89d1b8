package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectio/lectio-api/internal/blob"
	"github.com/lectio/lectio-api/internal/fault"
)

// fakeProvider maps chunk URLs to scripted outcomes.
type fakeProvider struct {
	mu       sync.Mutex
	inFlight int32
	maxSeen  int32
	delay    time.Duration
	fn       func(audioURL string) (Result, error)
}

func (p *fakeProvider) Transcribe(ctx context.Context, audioURL string) (Result, error) {
	current := atomic.AddInt32(&p.inFlight, 1)
	defer atomic.AddInt32(&p.inFlight, -1)

	p.mu.Lock()
	if current > p.maxSeen {
		p.maxSeen = current
	}
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	if p.fn != nil {
		return p.fn(audioURL)
	}
	return Result{Text: "text for " + audioURL}, nil
}

func newTestPool(provider SpeechProvider, blobs blob.Store, cfg PoolConfig) *Pool {
	pool := NewPool(provider, blobs, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	pool.readFile = func(name string) ([]byte, error) {
		return []byte("pcm:" + name), nil
	}
	return pool
}

func chunkPaths(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("/tmp/chunks/chunk_%03d.wav", i)
	}
	return paths
}

func ptr(v float64) *float64 { return &v }

func TestPoolTranscribesAllChunksInOrder(t *testing.T) {
	t.Parallel()

	blobs := blob.NewMemoryStore()
	provider := &fakeProvider{
		fn: func(audioURL string) (Result, error) {
			return Result{Text: audioURL}, nil
		},
	}
	pool := newTestPool(provider, blobs, PoolConfig{Concurrency: 3})

	jobID := uuid.New()
	results, err := pool.Transcribe(context.Background(), jobID, chunkPaths(7), nil)
	require.NoError(t, err)
	require.Len(t, results, 7)

	for i, r := range results {
		assert.Contains(t, r.Text, fmt.Sprintf("/chunks/%d.wav", i),
			"result %d must hold the transcript of chunk %d", i, i)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	blobs := blob.NewMemoryStore()
	provider := &fakeProvider{delay: 30 * time.Millisecond}
	pool := newTestPool(provider, blobs, PoolConfig{Concurrency: 3})

	_, err := pool.Transcribe(context.Background(), uuid.New(), chunkPaths(10), nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, provider.maxSeen, int32(3))
	assert.Equal(t, int32(3), provider.maxSeen, "all three workers should run")
}

func TestPoolUsesFewerWorkersThanChunksWhenSmall(t *testing.T) {
	t.Parallel()

	blobs := blob.NewMemoryStore()
	provider := &fakeProvider{delay: 20 * time.Millisecond}
	pool := newTestPool(provider, blobs, PoolConfig{Concurrency: 3})

	results, err := pool.Transcribe(context.Background(), uuid.New(), chunkPaths(1), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(1), provider.maxSeen)
}

func TestPoolDeletesStagedBlobsOnSuccessAndFailure(t *testing.T) {
	t.Parallel()

	t.Run("success path leaves no blobs", func(t *testing.T) {
		t.Parallel()

		blobs := blob.NewMemoryStore()
		pool := newTestPool(&fakeProvider{}, blobs, PoolConfig{Concurrency: 2})

		_, err := pool.Transcribe(context.Background(), uuid.New(), chunkPaths(5), nil)
		require.NoError(t, err)
		assert.Zero(t, blobs.Len(), "all staged chunk blobs must be deleted")
	})

	t.Run("provider failure still deletes the staged blob", func(t *testing.T) {
		t.Parallel()

		blobs := blob.NewMemoryStore()
		provider := &fakeProvider{
			fn: func(string) (Result, error) {
				return Result{}, fault.New(fault.CodeProviderDown, "service unavailable")
			},
		}
		pool := newTestPool(provider, blobs, PoolConfig{Concurrency: 2})

		_, err := pool.Transcribe(context.Background(), uuid.New(), chunkPaths(3), nil)
		require.Error(t, err)
		assert.Zero(t, blobs.Len())
	})
}

func TestPoolFailFast(t *testing.T) {
	t.Parallel()

	blobs := blob.NewMemoryStore()
	var calls atomic.Int32
	provider := &fakeProvider{
		delay: 10 * time.Millisecond,
		fn: func(audioURL string) (Result, error) {
			if calls.Add(1) == 1 {
				return Result{}, fault.New(fault.CodeQuotaExceeded, "quota exhausted")
			}
			return Result{Text: "ok"}, nil
		},
	}
	pool := newTestPool(provider, blobs, PoolConfig{Concurrency: 1})

	_, err := pool.Transcribe(context.Background(), uuid.New(), chunkPaths(20), nil)
	require.Error(t, err)

	code, retryable := fault.Classify(err)
	assert.Equal(t, fault.CodeQuotaExceeded, code)
	assert.False(t, retryable)
	assert.Less(t, calls.Load(), int32(20), "remaining chunks must be abandoned")
}

func TestPoolDeadlineSurfacesAsTimeout(t *testing.T) {
	t.Parallel()

	blobs := blob.NewMemoryStore()
	provider := &fakeProvider{delay: time.Second}
	pool := newTestPool(provider, blobs, PoolConfig{
		Concurrency:     1,
		PerChunkTimeout: 20 * time.Millisecond,
		BaseTimeout:     20 * time.Millisecond,
	})

	_, err := pool.Transcribe(context.Background(), uuid.New(), chunkPaths(4), nil)
	require.Error(t, err)

	code, retryable := fault.Classify(err)
	assert.Equal(t, fault.CodeTimeout, code)
	assert.True(t, retryable)
}

func TestPoolDeadlineScaling(t *testing.T) {
	t.Parallel()

	pool := newTestPool(&fakeProvider{}, blob.NewMemoryStore(), PoolConfig{
		Concurrency:     3,
		PerChunkTimeout: 10 * time.Minute,
		BaseTimeout:     10 * time.Minute,
	})

	// Small job: the fixed base dominates.
	assert.Equal(t, 30*time.Minute, pool.poolDeadline(2))

	// Large job: the 1.2x serial floor takes over past the crossover.
	assert.Equal(t, 1200*time.Minute, pool.poolDeadline(100))
	assert.Greater(t, pool.poolDeadline(100), 1000*time.Minute)
}

func TestPoolReportsProgress(t *testing.T) {
	t.Parallel()

	blobs := blob.NewMemoryStore()
	pool := newTestPool(&fakeProvider{}, blobs, PoolConfig{Concurrency: 2})

	var mu sync.Mutex
	var seen []int
	onProgress := func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 6, total)
		seen = append(seen, done)
	}

	_, err := pool.Transcribe(context.Background(), uuid.New(), chunkPaths(6), onProgress)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 6)
	assert.Contains(t, seen, 6, "final callback reports all chunks done")
}

func TestPoolRejectsEmptyChunkList(t *testing.T) {
	t.Parallel()

	pool := newTestPool(&fakeProvider{}, blob.NewMemoryStore(), PoolConfig{})
	_, err := pool.Transcribe(context.Background(), uuid.New(), nil, nil)
	require.Error(t, err)

	code, _ := fault.Classify(err)
	assert.Equal(t, fault.CodeBadAudio, code)
}

func TestJoin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		results []Result
		want    string
	}{
		{
			name:    "joins in order with single spaces",
			results: []Result{{Text: "hello there"}, {Text: "general kenobi"}},
			want:    "hello there general kenobi",
		},
		{
			name:    "collapses internal whitespace",
			results: []Result{{Text: "  hello \n there  "}, {Text: "\tworld"}},
			want:    "hello there world",
		},
		{
			name:    "skips empty chunks",
			results: []Result{{Text: "start"}, {Text: ""}, {Text: "end"}},
			want:    "start end",
		},
		{
			name:    "empty input",
			results: nil,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Join(tt.results))
		})
	}
}

func TestAggregateConfidence(t *testing.T) {
	t.Parallel()

	t.Run("averages present confidences", func(t *testing.T) {
		t.Parallel()

		results := []Result{
			{Confidence: ptr(0.9)},
			{Confidence: ptr(0.85)},
			{Confidence: ptr(0.95)},
			{Confidence: ptr(0.8)},
		}
		got := AggregateConfidence(results)
		require.NotNil(t, got)
		assert.InDelta(t, 0.875, *got, 1e-9)
	})

	t.Run("ignores chunks without confidence", func(t *testing.T) {
		t.Parallel()

		results := []Result{{Confidence: ptr(0.5)}, {}, {Confidence: ptr(1.0)}}
		got := AggregateConfidence(results)
		require.NotNil(t, got)
		assert.InDelta(t, 0.75, *got, 1e-9)
	})

	t.Run("nil when no chunk reported one", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, AggregateConfidence([]Result{{}, {}}))
	})
}

func TestPoolSurfacesBlobErrors(t *testing.T) {
	t.Parallel()

	blobs := blob.NewMemoryStore()
	blobs.SaveFn = func(ctx context.Context, path string, data []byte, contentType string) error {
		return errors.New("bucket unavailable")
	}
	pool := newTestPool(&fakeProvider{}, blobs, PoolConfig{Concurrency: 2})

	_, err := pool.Transcribe(context.Background(), uuid.New(), chunkPaths(2), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage chunk")
}
