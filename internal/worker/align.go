package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rhasspy/kaldi-align/internal/align"
	"github.com/rhasspy/kaldi-align/internal/engine"
	"github.com/rhasspy/kaldi-align/internal/ffmpeg"
	"github.com/rhasspy/kaldi-align/internal/metadata"
	"github.com/rhasspy/kaldi-align/internal/phonemize"
)

// AlignOptions configures the alignment stage.
type AlignOptions struct {
	MetadataPath   string
	AudioFilesPath string
	OutputPath     string
	// CleanMetadataPath, when set, receives a metadata file with the
	// cleaned transcripts actually fed to the aligner.
	CleanMetadataPath string
	HasSpeaker        bool

	NumJobs         int
	AlignTimeout    time.Duration
	RateLimitPerMin int
}

// AlignStats summarizes an alignment run.
type AlignStats struct {
	Total   int
	Aligned int
	Failed  int
}

// RunAlign aligns every utterance in the metadata file and appends one
// record per utterance to the output JSONL file. Utterances are independent
// and processed by a bounded worker pool; only the append to the shared
// output stream is serialized. Per-utterance alignment failures are
// recorded, never fatal.
func RunAlign(ctx context.Context, aligner engine.Aligner, phonemizer phonemize.Phonemizer, opts AlignOptions) (AlignStats, error) {
	var stats AlignStats

	if opts.NumJobs < 1 {
		opts.NumJobs = 1
	}

	meta, err := metadata.Load(opts.MetadataPath, opts.HasSpeaker)
	if err != nil {
		return stats, err
	}
	slog.Info("loaded metadata", "utterances", meta.Len())

	audioPaths, err := LoadAudioPaths(opts.AudioFilesPath)
	if err != nil {
		return stats, err
	}

	// Every utterance must have audio before any work starts; a missing
	// file means the inputs are misconfigured.
	for _, entry := range meta.Entries {
		if _, ok := audioPaths[entry.ID]; !ok {
			return stats, fmt.Errorf("no audio file for utterance %q", entry.ID)
		}
	}

	out, err := os.Create(opts.OutputPath)
	if err != nil {
		return stats, fmt.Errorf("create alignment output: %w", err)
	}
	defer out.Close()
	writer := align.NewWriter(out)

	var limiter *rate.Limiter
	if opts.RateLimitPerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RateLimitPerMin)/60.0), 1)
	}

	var (
		mu        sync.Mutex
		aligned   int
		cleanText = make(map[string]string, meta.Len())
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.NumJobs)

	for i := range meta.Entries {
		entry := &meta.Entries[i]
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					return fmt.Errorf("rate limiter: %w", err)
				}
			}

			rec, err := alignOne(gctx, aligner, phonemizer, entry, audioPaths[entry.ID], opts.AlignTimeout, cleanText, &mu)
			if err != nil {
				return err
			}

			if err := writer.Append(rec); err != nil {
				return err
			}

			if rec.Aligned() {
				mu.Lock()
				aligned++
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}

	stats.Total = meta.Len()
	stats.Aligned = aligned
	stats.Failed = stats.Total - aligned

	slog.Info("alignment finished",
		"total", stats.Total, "aligned", stats.Aligned, "failed", stats.Failed)

	if opts.CleanMetadataPath != "" {
		if err := writeCleanMetadata(opts.CleanMetadataPath, meta, cleanText, opts.HasSpeaker); err != nil {
			return stats, err
		}
		slog.Info("clean metadata saved", "path", opts.CleanMetadataPath)
	}

	return stats, nil
}

// alignOne runs the full per-utterance task: resample if needed, clean the
// transcript, invoke the engine under its timeout, and build the record.
func alignOne(ctx context.Context, aligner engine.Aligner, phonemizer phonemize.Phonemizer,
	entry *metadata.Entry, audioPath string, timeout time.Duration,
	cleanText map[string]string, mu *sync.Mutex) (align.Record, error) {

	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		if info, err := ffmpeg.Probe(ctx, audioPath); err == nil {
			slog.Debug("source audio", "id", entry.ID,
				"duration", info.Duration, "codec", info.Codec)
		}
	}

	wavPath := audioPath
	if !ffmpeg.IsWAV(audioPath) {
		if !ffmpeg.Available() {
			return align.Record{}, fmt.Errorf("ffmpeg required to convert %s", filepath.Base(audioPath))
		}
		tmp, err := os.CreateTemp("", "kaldi-align-*.wav")
		if err != nil {
			return align.Record{}, fmt.Errorf("create temp wav: %w", err)
		}
		tmp.Close()
		defer os.Remove(tmp.Name())

		if err := ffmpeg.ToAlignWAV(ctx, audioPath, tmp.Name()); err != nil {
			return align.Record{}, fmt.Errorf("convert %s: %w", filepath.Base(audioPath), err)
		}
		wavPath = tmp.Name()
	}

	words, err := phonemizer.Words(ctx, entry.Text)
	if err != nil || len(words) == 0 {
		if err != nil {
			slog.Warn("text cleaning failed", "id", entry.ID, "err", err)
		} else {
			slog.Warn("no words after cleaning", "id", entry.ID)
		}
		return align.Build(entry.ID, entry.Speaker, nil, nil), nil
	}

	mu.Lock()
	cleanText[entry.ID] = strings.Join(words, " ")
	mu.Unlock()

	alignCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		alignCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	timings, err := aligner.Align(alignCtx, wavPath, words)
	if err != nil {
		// Includes per-utterance timeouts. The record captures the failure;
		// retries belong to the caller's orchestration, not here.
		slog.Warn("engine alignment failed", "id", entry.ID, "err", err)
		return align.Build(entry.ID, entry.Speaker, words, nil), nil
	}

	return align.Build(entry.ID, entry.Speaker, words, timings), nil
}

func writeCleanMetadata(path string, meta *metadata.Set, cleanText map[string]string, hasSpeaker bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create clean metadata: %w", err)
	}

	for i := range meta.Entries {
		entry := meta.Entries[i]
		if text, ok := cleanText[entry.ID]; ok {
			entry.Text = text
		}
		if err := metadata.WriteEntry(f, &entry, hasSpeaker); err != nil {
			f.Close()
			return fmt.Errorf("write clean metadata: %w", err)
		}
	}
	return f.Close()
}
