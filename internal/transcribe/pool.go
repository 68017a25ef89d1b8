package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lectio/lectio-api/internal/blob"
	"github.com/lectio/lectio-api/internal/fault"
)

const chunkCleanupTimeout = 30 * time.Second

// PoolConfig configures a transcription Pool.
type PoolConfig struct {
	// Concurrency caps the number of chunks in flight at once.
	Concurrency int

	// PerChunkTimeout bounds each individual provider call.
	PerChunkTimeout time.Duration

	// BaseTimeout is the fixed component of the whole-pool deadline.
	BaseTimeout time.Duration

	// SignedURLTTL is the validity window of chunk URLs handed to the provider.
	SignedURLTTL time.Duration
}

// Pool transcribes segmented audio with a fixed worker count. Workers pull
// chunk indexes from a shared counter, so a slow chunk never idles the
// other workers.
type Pool struct {
	provider    SpeechProvider
	blobs       blob.Store
	concurrency int
	perChunk    time.Duration
	base        time.Duration
	signedTTL   time.Duration
	logger      *slog.Logger
	readFile    func(name string) ([]byte, error)
}

// NewPool constructs a Pool with defaults applied for zero config fields.
func NewPool(provider SpeechProvider, blobs blob.Store, cfg PoolConfig, logger *slog.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.PerChunkTimeout <= 0 {
		cfg.PerChunkTimeout = 10 * time.Minute
	}
	if cfg.BaseTimeout <= 0 {
		cfg.BaseTimeout = 10 * time.Minute
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		provider:    provider,
		blobs:       blobs,
		concurrency: cfg.Concurrency,
		perChunk:    cfg.PerChunkTimeout,
		base:        cfg.BaseTimeout,
		signedTTL:   cfg.SignedURLTTL,
		logger:      logger.With("component", "transcribe_pool"),
		readFile:    os.ReadFile,
	}
}

// poolDeadline scales the whole-pool budget with chunk count. The 1.2 factor
// keeps the budget above the theoretical serial floor even when the fixed
// base is dwarfed by a very long recording.
func (p *Pool) poolDeadline(total int) time.Duration {
	linear := p.base + time.Duration(total)*p.perChunk
	floor := time.Duration(float64(total) * 1.2 * float64(p.perChunk))
	if floor > linear {
		return floor
	}
	return linear
}

// Transcribe runs all chunks through the provider and returns their results
// in chunk order. The first chunk failure cancels the remaining work and is
// returned as-is; a blown pool deadline surfaces as a timeout fault. Staged
// chunk blobs are deleted whether or not their provider call succeeded.
// onProgress, if non-nil, is invoked after each completed chunk.
func (p *Pool) Transcribe(
	ctx context.Context,
	jobID uuid.UUID,
	chunkPaths []string,
	onProgress func(done, total int),
) ([]Result, error) {
	total := len(chunkPaths)
	if total == 0 {
		return nil, fault.New(fault.CodeBadAudio, "no audio chunks to transcribe")
	}

	ctx, cancel := context.WithTimeout(ctx, p.poolDeadline(total))
	defer cancel()

	p.logger.Info("starting transcription pool",
		"job_id", jobID,
		"chunks", total,
		"workers", min(p.concurrency, total))

	results := make([]Result, total)
	var next atomic.Int64
	var done atomic.Int64

	var firstErr error
	var errOnce sync.Once
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	var wg sync.WaitGroup
	for w := 0; w < min(p.concurrency, total); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				idx := int(next.Add(1)) - 1
				if idx >= total {
					return
				}
				// Refuse to start a chunk once the pool is cancelled,
				// whether by deadline or by a sibling's failure.
				if err := ctx.Err(); err != nil {
					fail(fault.Wrap(fault.CodeTimeout,
						fmt.Errorf("transcription pool deadline reached before chunk %d: %w", idx, err)))
					return
				}

				result, err := p.transcribeChunk(ctx, jobID, idx, chunkPaths[idx])
				if err != nil {
					fail(err)
					return
				}

				results[idx] = result
				if onProgress != nil {
					onProgress(int(done.Add(1)), total)
				}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// transcribeChunk stages one chunk in blob storage, transcribes it through
// a signed URL, and removes the staged blob on the way out.
func (p *Pool) transcribeChunk(ctx context.Context, jobID uuid.UUID, idx int, path string) (Result, error) {
	data, err := p.readFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read chunk %d: %w", idx, err)
	}

	blobPath := fmt.Sprintf("transcription_jobs/%s/chunks/%d.wav", jobID, idx)
	if err := p.blobs.Save(ctx, blobPath, data, "audio/wav"); err != nil {
		return Result{}, fmt.Errorf("stage chunk %d: %w", idx, err)
	}
	defer func() {
		// Cleanup must survive pool cancellation.
		cleanupCtx, cleanupCancel := context.WithTimeout(context.WithoutCancel(ctx), chunkCleanupTimeout)
		defer cleanupCancel()
		if err := p.blobs.Delete(cleanupCtx, blobPath); err != nil {
			p.logger.Warn("failed to delete staged chunk blob",
				"job_id", jobID,
				"path", blobPath,
				"error", err)
		}
	}()

	audioURL, err := p.blobs.SignedURL(ctx, blobPath, p.signedTTL)
	if err != nil {
		return Result{}, fmt.Errorf("sign chunk %d: %w", idx, err)
	}

	chunkCtx, chunkCancel := context.WithTimeout(ctx, p.perChunk)
	defer chunkCancel()

	result, err := p.provider.Transcribe(chunkCtx, audioURL)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe chunk %d: %w", idx, err)
	}
	return result, nil
}
