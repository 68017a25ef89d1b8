// Package audio prepares source audio for transcription: probing codec
// metadata, re-encoding to the canonical mono 16 kHz WAV form, and splitting
// into fixed-duration segments. All work shells out to ffmpeg/ffprobe.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lectio/lectio-api/internal/fault"
)

// Canonical form accepted by the segmenter and the transcription provider.
const (
	canonicalSampleRate = 16000
	canonicalChannels   = 1
	canonicalFormat     = "wav"
)

// Info is the probed metadata of an audio file.
type Info struct {
	SampleRate int
	Channels   int
	Format     string
}

// Canonical reports whether the file is already mono, 16 kHz, WAV.
func (i Info) Canonical() bool {
	return i.SampleRate == canonicalSampleRate &&
		i.Channels == canonicalChannels &&
		strings.Contains(strings.ToLower(i.Format), canonicalFormat)
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	FFmpegPath   string
	FFprobePath  string
	ChunkSeconds int
}

// Processor probes, normalizes, and segments audio files.
type Processor struct {
	ffmpegPath   string
	ffprobePath  string
	chunkSeconds int
	runner       commandRunner
	logger       *slog.Logger
	readDir      func(name string) ([]os.DirEntry, error)
}

// NewProcessor constructs a Processor with OS dependencies.
func NewProcessor(cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.ChunkSeconds <= 0 {
		cfg.ChunkSeconds = 360
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		ffmpegPath:   cfg.FFmpegPath,
		ffprobePath:  cfg.FFprobePath,
		chunkSeconds: cfg.ChunkSeconds,
		runner:       &execRunner{},
		logger:       logger.With("component", "audio"),
		readDir:      os.ReadDir,
	}
}

// probePayload mirrors the subset of ffprobe JSON output we read.
type probePayload struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// Probe inspects the audio file at path. Probe failures are classified
// bad_audio: an unreadable file is corrupt or unsupported, not transient.
func (p *Processor) Probe(ctx context.Context, path string) (Info, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	}

	result, err := p.runner.Run(ctx, p.ffprobePath, args...)
	if err != nil {
		return Info{}, fault.Wrap(fault.CodeBadAudio,
			fmt.Errorf("ffprobe failed (exit=%d): %w", result.ExitCode, err))
	}

	var payload probePayload
	if err := json.Unmarshal([]byte(result.Stdout), &payload); err != nil {
		return Info{}, fault.Wrap(fault.CodeBadAudio,
			fmt.Errorf("cannot parse ffprobe output: %w", err))
	}

	info := Info{Format: payload.Format.FormatName}
	for _, stream := range payload.Streams {
		if stream.CodecType != "" && stream.CodecType != "audio" {
			continue
		}
		if stream.SampleRate != "" {
			if rate, err := strconv.Atoi(stream.SampleRate); err == nil {
				info.SampleRate = rate
			}
		}
		info.Channels = stream.Channels
		break
	}

	if info.SampleRate == 0 && info.Channels == 0 {
		return Info{}, fault.New(fault.CodeBadAudio, "no audio stream found")
	}

	return info, nil
}

// Normalize returns a path to the file in canonical form. If the input is
// already canonical the input path is returned unchanged; otherwise the
// file is re-encoded next to the original. Re-encode failures are bad_audio.
func (p *Processor) Normalize(ctx context.Context, path string) (string, error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return "", err
	}

	if info.Canonical() {
		p.logger.Debug("audio already canonical, skipping re-encode", "path", path)
		return path, nil
	}

	outPath := filepath.Join(
		filepath.Dir(path),
		fmt.Sprintf("%s_mono16k.wav", uuid.New().String()),
	)

	p.logger.Debug("re-encoding audio to canonical form",
		"path", path,
		"sample_rate", info.SampleRate,
		"channels", info.Channels,
		"format", info.Format)

	result, err := p.runner.Run(ctx, p.ffmpegPath, encodeArgs(path, outPath)...)
	if err != nil {
		return "", fault.Wrap(fault.CodeBadAudio,
			fmt.Errorf("ffmpeg re-encode failed (exit=%d): %w", result.ExitCode, err))
	}

	return outPath, nil
}

// Segment splits the canonical file at src into sequential fixed-length
// WAV segments under chunkDir and returns their paths in order. Sources
// shorter than one segment produce exactly one whole-file segment.
func (p *Processor) Segment(ctx context.Context, src, chunkDir string) ([]string, error) {
	pattern := filepath.Join(chunkDir, "chunk_%03d.wav")
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", src,
		"-ac", strconv.Itoa(canonicalChannels),
		"-ar", strconv.Itoa(canonicalSampleRate),
		"-f", "segment",
		"-segment_time", strconv.Itoa(p.chunkSeconds),
		"-reset_timestamps", "1",
		pattern,
	}

	result, err := p.runner.Run(ctx, p.ffmpegPath, args...)
	if err != nil {
		return nil, fault.Wrap(fault.CodeBadAudio,
			fmt.Errorf("ffmpeg segmentation failed (exit=%d): %w", result.ExitCode, err))
	}

	chunks, err := p.listChunks(chunkDir)
	if err != nil {
		return nil, fault.Wrap(fault.CodeBadAudio, err)
	}

	// Shorter than one segment: encode the whole file as the only chunk.
	if len(chunks) == 0 {
		fallback := filepath.Join(chunkDir, "chunk_000.wav")
		result, err = p.runner.Run(ctx, p.ffmpegPath, encodeArgs(src, fallback)...)
		if err != nil {
			return nil, fault.Wrap(fault.CodeBadAudio,
				fmt.Errorf("ffmpeg whole-file encode failed (exit=%d): %w", result.ExitCode, err))
		}

		chunks, err = p.listChunks(chunkDir)
		if err != nil {
			return nil, fault.Wrap(fault.CodeBadAudio, err)
		}
	}

	if len(chunks) == 0 {
		return nil, fault.New(fault.CodeBadAudio, "audio chunking produced no segments")
	}

	return chunks, nil
}

func (p *Processor) listChunks(chunkDir string) ([]string, error) {
	entries, err := p.readDir(chunkDir)
	if err != nil {
		return nil, fmt.Errorf("cannot read chunk directory: %w", err)
	}

	var chunks []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "chunk_") && strings.HasSuffix(name, ".wav") {
			chunks = append(chunks, filepath.Join(chunkDir, name))
		}
	}

	sort.Strings(chunks)
	return chunks, nil
}

// encodeArgs builds the ffmpeg CLI args for mono 16k WAV output.
func encodeArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", strconv.Itoa(canonicalChannels),
		"-ar", strconv.Itoa(canonicalSampleRate),
		"-c:a", "pcm_s16le",
		outPath,
	}
}
