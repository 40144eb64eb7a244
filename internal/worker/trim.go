package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rhasspy/kaldi-align/internal/align"
	"github.com/rhasspy/kaldi-align/internal/config"
	"github.com/rhasspy/kaldi-align/internal/ffmpeg"
	"github.com/rhasspy/kaldi-align/internal/metadata"
	"github.com/rhasspy/kaldi-align/internal/trim"
)

// TrimOptions configures the trim stage.
type TrimOptions struct {
	AlignmentsPath string
	MetadataPath   string
	AudioFilesPath string
	OutputDir      string
	HasSpeaker     bool

	NumJobs  int
	Settings config.TrimSettings
}

// TrimStats summarizes a trim run.
type TrimStats struct {
	Total   int
	Trimmed int
	Skipped int
}

// RunTrim cuts each aligned utterance's audio to its word boundaries and
// writes <id>.wav files plus a metadata.csv listing only the utterances
// that produced output. Unaligned records are skipped. Records without a
// metadata entry or without audio abort the stage.
func RunTrim(ctx context.Context, opts TrimOptions) (TrimStats, error) {
	var stats TrimStats

	if opts.NumJobs < 1 {
		opts.NumJobs = 1
	}

	meta, err := metadata.Load(opts.MetadataPath, opts.HasSpeaker)
	if err != nil {
		return stats, err
	}

	audioPaths, err := LoadAudioPaths(opts.AudioFilesPath)
	if err != nil {
		return stats, err
	}

	records, err := readAlignments(opts.AlignmentsPath)
	if err != nil {
		return stats, err
	}
	stats.Total = len(records)

	// Consistency checks before any file is written.
	for i := range records {
		rec := &records[i]
		if meta.Get(rec.ID) == nil {
			return stats, fmt.Errorf("alignment record %q has no metadata entry", rec.ID)
		}
		if rec.Aligned() {
			if _, ok := audioPaths[rec.ID]; !ok {
				return stats, fmt.Errorf("no audio file for utterance %q", rec.ID)
			}
		}
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return stats, fmt.Errorf("create output dir: %w", err)
	}

	var (
		mu   sync.Mutex
		kept = make(map[string]bool, len(records))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.NumJobs)

	for i := range records {
		rec := &records[i]
		g.Go(func() error {
			if !rec.Aligned() {
				slog.Debug("skipping unaligned utterance", "id", rec.ID)
				return nil
			}

			ok, err := trimOne(gctx, rec, audioPaths[rec.ID], opts.OutputDir, opts.Settings)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				kept[rec.ID] = true
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}

	stats.Trimmed = len(kept)
	stats.Skipped = stats.Total - stats.Trimmed

	// Filtered metadata in alignment order, only utterances with output.
	outMetaPath := filepath.Join(opts.OutputDir, "metadata.csv")
	f, err := os.Create(outMetaPath)
	if err != nil {
		return stats, fmt.Errorf("create output metadata: %w", err)
	}
	for i := range records {
		if !kept[records[i].ID] {
			continue
		}
		if err := metadata.WriteEntry(f, meta.Get(records[i].ID), opts.HasSpeaker); err != nil {
			f.Close()
			return stats, fmt.Errorf("write output metadata: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return stats, fmt.Errorf("write output metadata: %w", err)
	}

	slog.Info("trimming finished",
		"total", stats.Total, "trimmed", stats.Trimmed, "skipped", stats.Skipped)
	return stats, nil
}

func trimOne(ctx context.Context, rec *align.Record, audioPath, outputDir string, settings config.TrimSettings) (bool, error) {
	srcPath := audioPath
	if !ffmpeg.IsWAV(audioPath) {
		if !ffmpeg.Available() {
			return false, fmt.Errorf("ffmpeg required to convert %s", filepath.Base(audioPath))
		}
		tmp, err := os.CreateTemp("", "kaldi-align-*.wav")
		if err != nil {
			return false, fmt.Errorf("create temp wav: %w", err)
		}
		tmp.Close()
		defer os.Remove(tmp.Name())

		if err := ffmpeg.ToAlignWAV(ctx, audioPath, tmp.Name()); err != nil {
			return false, fmt.Errorf("convert %s: %w", filepath.Base(audioPath), err)
		}
		srcPath = tmp.Name()
	}

	buf, err := trim.ReadWAV(srcPath)
	if err != nil {
		return false, err
	}

	out, ok := trim.Trim(rec, buf, trim.Options{
		PadSec: settings.BufferSec,
		MinSec: settings.MinSec,
	})
	if !ok {
		slog.Warn("trim produced no audio", "id", rec.ID)
		return false, nil
	}

	destPath := filepath.Join(outputDir, rec.ID+".wav")
	if err := trim.WriteWAV(destPath, out); err != nil {
		return false, err
	}

	slog.Debug("trimmed", "id", rec.ID,
		"samples", len(out.Data), "path", filepath.Base(destPath))
	return true, nil
}

// readAlignments loads the whole alignment store, failing on the first
// malformed line.
func readAlignments(path string) ([]align.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open alignments: %w", err)
	}
	defer f.Close()

	var records []align.Record
	r := align.NewReader(f)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
