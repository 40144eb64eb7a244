// Package engine abstracts the forced-alignment engine as an injected
// capability so the pipeline never deals with process management directly.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/rhasspy/kaldi-align/internal/align"
)

// Aligner produces per-word timings for an utterance. A non-nil error means
// the engine could not align this utterance; the caller records an
// empty-span alignment and moves on, it never aborts the batch. The engine
// must return exactly one timing per word and must not reorder them.
type Aligner interface {
	Align(ctx context.Context, wavPath string, words []string) ([]align.Timing, error)
}

// Command invokes an external aligner executable once per utterance. The
// word sequence is written to stdin, one word per line, and the engine is
// expected to print a JSON array of {"start": s, "end": e} objects in word
// order on stdout.
type Command struct {
	// Path is the aligner executable.
	Path string
	// Args are fixed arguments placed before the WAV path (model directory,
	// language, etc.).
	Args []string
}

// Available reports whether the aligner executable can be found.
func (c *Command) Available() bool {
	_, err := exec.LookPath(c.Path)
	return err == nil
}

type rawTiming struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (c *Command) Align(ctx context.Context, wavPath string, words []string) ([]align.Timing, error) {
	args := append(append([]string(nil), c.Args...), wavPath)
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Stdin = strings.NewReader(strings.Join(words, "\n") + "\n")

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if msg := strings.TrimSpace(string(exitErr.Stderr)); msg != "" {
				slog.Debug("aligner stderr", "output", msg)
			}
		}
		return nil, fmt.Errorf("aligner failed: %w", err)
	}

	var raw []rawTiming
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("aligner output: %w", err)
	}

	timings := make([]align.Timing, len(raw))
	for i, t := range raw {
		timings[i] = align.Timing{Start: t.Start, End: t.End}
	}
	return timings, nil
}
