// Package phonemize abstracts the text normalization and phonemization
// service used for transcript cleaning and phoneme-id encoding.
package phonemize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Phonemizer is the text/phoneme collaborator. Words cleans raw transcript
// text into the ordered word sequence fed to the aligner; Phonemes renders
// one cleaned word as its ordered phoneme symbols (possibly none).
type Phonemizer interface {
	Words(ctx context.Context, text string) ([]string, error)
	Phonemes(ctx context.Context, word string) ([]string, error)
}

// Gruut shells out to the gruut CLI for both cleaning and phonemization.
// One gruut invocation per call; gruut prints one JSON object per input
// line with word tokens and their phonemes.
type Gruut struct {
	// Path is the gruut executable, normally just "gruut".
	Path string
	// Language is the gruut language code, e.g. "en-us".
	Language string
}

// Available reports whether the gruut executable can be found.
func (g *Gruut) Available() bool {
	_, err := exec.LookPath(g.Path)
	return err == nil
}

// gruutSentence mirrors the per-line JSON gruut emits.
type gruutSentence struct {
	Words []struct {
		Text     string   `json:"text"`
		Phonemes []string `json:"phonemes"`
	} `json:"words"`
}

func (g *Gruut) run(ctx context.Context, input string) ([]gruutSentence, error) {
	cmd := exec.CommandContext(ctx, g.Path, "--language", g.Language)
	cmd.Stdin = strings.NewReader(input + "\n")

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if msg := strings.TrimSpace(string(exitErr.Stderr)); msg != "" {
				return nil, fmt.Errorf("gruut failed: %s: %w", msg, err)
			}
		}
		return nil, fmt.Errorf("gruut failed: %w", err)
	}

	var sentences []gruutSentence
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		var s gruutSentence
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			return nil, fmt.Errorf("gruut output: %w", err)
		}
		sentences = append(sentences, s)
	}
	return sentences, nil
}

func (g *Gruut) Words(ctx context.Context, text string) ([]string, error) {
	sentences, err := g.run(ctx, text)
	if err != nil {
		return nil, err
	}

	var words []string
	for _, s := range sentences {
		for _, w := range s.Words {
			if w.Text != "" {
				words = append(words, w.Text)
			}
		}
	}
	return words, nil
}

func (g *Gruut) Phonemes(ctx context.Context, word string) ([]string, error) {
	sentences, err := g.run(ctx, word)
	if err != nil {
		return nil, err
	}

	var phonemes []string
	for _, s := range sentences {
		for _, w := range s.Words {
			phonemes = append(phonemes, w.Phonemes...)
		}
	}
	return phonemes, nil
}
