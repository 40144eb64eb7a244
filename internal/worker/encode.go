package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rhasspy/kaldi-align/internal/align"
	"github.com/rhasspy/kaldi-align/internal/phoneme"
	"github.com/rhasspy/kaldi-align/internal/phonemize"
)

// EncodeOptions configures the encode stage.
type EncodeOptions struct {
	AlignmentsPath string
	// TablePath is the persisted phoneme id map. Loaded before encoding
	// when it exists, written back afterwards. Without it ids restart at 0
	// every run and will not match previously encoded data.
	TablePath  string
	HasSpeaker bool
}

// EncodeStats summarizes an encode run.
type EncodeStats struct {
	Total   int
	Encoded int
	Skipped int
}

// RunEncode renders each aligned utterance's words to phonemes and writes
// one id|i1 i2 i3 row per utterance. Id assignment mutates a single shared
// table, so utterances are processed sequentially in store order.
func RunEncode(ctx context.Context, phonemizer phonemize.Phonemizer, out io.Writer, opts EncodeOptions) (EncodeStats, error) {
	var stats EncodeStats

	table := phoneme.NewTable()
	if opts.TablePath != "" {
		var err error
		table, err = phoneme.LoadTable(opts.TablePath)
		if err != nil {
			return stats, err
		}
		if table.Len() > 0 {
			slog.Info("loaded phoneme table", "path", opts.TablePath, "symbols", table.Len())
		}
	}
	encoder := phoneme.NewEncoder(table)

	f, err := os.Open(opts.AlignmentsPath)
	if err != nil {
		return stats, fmt.Errorf("open alignments: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(out)
	r := align.NewReader(f)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("%s: %w", opts.AlignmentsPath, err)
		}
		stats.Total++

		if !rec.Aligned() {
			slog.Debug("skipping unaligned utterance", "id", rec.ID)
			stats.Skipped++
			continue
		}

		// Word boundaries are not kept: phonemes from consecutive words
		// concatenate into one flat sequence.
		var phonemes []string
		ok := true
		for _, span := range rec.Words {
			ph, err := phonemizer.Phonemes(ctx, span.Text)
			if err != nil {
				slog.Warn("phonemization failed", "id", rec.ID, "word", span.Text, "err", err)
				ok = false
				break
			}
			phonemes = append(phonemes, ph...)
		}
		if !ok {
			stats.Skipped++
			continue
		}

		ids := encoder.Encode(phonemes)
		row := phoneme.FormatRow(rec.ID, rec.Speaker, ids, opts.HasSpeaker)
		if _, err := fmt.Fprintln(w, row); err != nil {
			return stats, fmt.Errorf("write encoded row: %w", err)
		}
		stats.Encoded++
	}

	if err := w.Flush(); err != nil {
		return stats, fmt.Errorf("write encoded rows: %w", err)
	}

	if opts.TablePath != "" {
		if err := table.Save(opts.TablePath); err != nil {
			return stats, err
		}
		slog.Info("phoneme table saved", "path", opts.TablePath, "symbols", table.Len())
	}

	slog.Info("encoding finished",
		"total", stats.Total, "encoded", stats.Encoded, "skipped", stats.Skipped)
	return stats, nil
}
