package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"

	"github.com/rhasspy/kaldi-align/internal/align"
	"github.com/rhasspy/kaldi-align/internal/config"
	"github.com/rhasspy/kaldi-align/internal/trim"
)

// fakeAligner returns canned timings keyed by the wav file's stem.
type fakeAligner struct {
	timings map[string][]align.Timing
}

func (f *fakeAligner) Align(ctx context.Context, wavPath string, words []string) ([]align.Timing, error) {
	stem := strings.TrimSuffix(filepath.Base(wavPath), filepath.Ext(wavPath))
	t, ok := f.timings[stem]
	if !ok {
		return nil, errors.New("no alignment produced")
	}
	return t, nil
}

// fakePhonemizer lowercases and splits text for Words, and spells words out
// rune by rune for Phonemes.
type fakePhonemizer struct{}

func (fakePhonemizer) Words(ctx context.Context, text string) ([]string, error) {
	return strings.Fields(strings.ToLower(text)), nil
}

func (fakePhonemizer) Phonemes(ctx context.Context, word string) ([]string, error) {
	var out []string
	for _, r := range word {
		out = append(out, string(r))
	}
	return out, nil
}

// writeTestWAV creates a mono 16kHz wav of the given duration.
func writeTestWAV(t *testing.T, path string, seconds float64) {
	t.Helper()
	n := int(seconds * 16000)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: 16000, NumChannels: 1},
		Data:           make([]int, n),
		SourceBitDepth: 16,
	}
	if err := trim.WriteWAV(path, buf); err != nil {
		t.Fatalf("write test wav: %v", err)
	}
}

// setupCorpus builds a two-utterance corpus where only u1 aligns.
func setupCorpus(t *testing.T) (dir, metaPath, audioFilesPath string) {
	t.Helper()
	dir = t.TempDir()

	writeTestWAV(t, filepath.Join(dir, "u1.wav"), 2.0)
	writeTestWAV(t, filepath.Join(dir, "u2.wav"), 1.0)

	metaPath = filepath.Join(dir, "metadata.csv")
	meta := "u1|Hello world\nu2|No luck here\n"
	if err := os.WriteFile(metaPath, []byte(meta), 0644); err != nil {
		t.Fatal(err)
	}

	audioFilesPath = filepath.Join(dir, "audio_files.txt")
	list := filepath.Join(dir, "u1.wav") + "\n" + filepath.Join(dir, "u2.wav") + "\n"
	if err := os.WriteFile(audioFilesPath, []byte(list), 0644); err != nil {
		t.Fatal(err)
	}
	return dir, metaPath, audioFilesPath
}

func testAligner() *fakeAligner {
	return &fakeAligner{timings: map[string][]align.Timing{
		"u1": {{Start: 0.0, End: 0.4}, {Start: 0.5, End: 0.9}},
	}}
}

func runAlignStage(t *testing.T, dir, metaPath, audioFilesPath string) string {
	t.Helper()
	outPath := filepath.Join(dir, "alignments.jsonl")

	stats, err := RunAlign(context.Background(), testAligner(), fakePhonemizer{}, AlignOptions{
		MetadataPath:   metaPath,
		AudioFilesPath: audioFilesPath,
		OutputPath:     outPath,
		NumJobs:        2,
		AlignTimeout:   time.Minute,
	})
	if err != nil {
		t.Fatalf("RunAlign: %v", err)
	}
	if stats.Total != 2 || stats.Aligned != 1 || stats.Failed != 1 {
		t.Fatalf("stats = %+v, want total 2, aligned 1, failed 1", stats)
	}
	return outPath
}

func TestRunAlign_EndToEnd(t *testing.T) {
	dir, metaPath, audioFilesPath := setupCorpus(t)
	outPath := runAlignStage(t, dir, metaPath, audioFilesPath)

	records, err := readAlignments(outPath)
	if err != nil {
		t.Fatalf("readAlignments: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	byID := map[string]align.Record{}
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	u1 := byID["u1"]
	if len(u1.Words) != 2 {
		t.Fatalf("u1 has %d spans, want 2", len(u1.Words))
	}
	if u1.Words[0].Text != "hello" || u1.Words[1].Text != "world" {
		t.Errorf("u1 words = %q, %q", u1.Words[0].Text, u1.Words[1].Text)
	}
	if u1.Words[1].End != 0.9 {
		t.Errorf("u1 last span end = %v, want 0.9", u1.Words[1].End)
	}

	if byID["u2"].Aligned() {
		t.Error("u2 should be unaligned")
	}
}

func TestRunAlign_MissingAudioIsFatal(t *testing.T) {
	dir, metaPath, _ := setupCorpus(t)

	// Audio list without u2.
	listPath := filepath.Join(dir, "partial.txt")
	if err := os.WriteFile(listPath, []byte(filepath.Join(dir, "u1.wav")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := RunAlign(context.Background(), testAligner(), fakePhonemizer{}, AlignOptions{
		MetadataPath:   metaPath,
		AudioFilesPath: listPath,
		OutputPath:     filepath.Join(dir, "out.jsonl"),
		NumJobs:        1,
	})
	if err == nil || !strings.Contains(err.Error(), "u2") {
		t.Fatalf("expected fatal error naming u2, got %v", err)
	}
}

func TestRunAlign_CleanMetadata(t *testing.T) {
	dir, metaPath, audioFilesPath := setupCorpus(t)
	cleanPath := filepath.Join(dir, "clean.csv")

	_, err := RunAlign(context.Background(), testAligner(), fakePhonemizer{}, AlignOptions{
		MetadataPath:      metaPath,
		AudioFilesPath:    audioFilesPath,
		OutputPath:        filepath.Join(dir, "alignments.jsonl"),
		CleanMetadataPath: cleanPath,
		NumJobs:           2,
	})
	if err != nil {
		t.Fatalf("RunAlign: %v", err)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		t.Fatalf("read clean metadata: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("clean metadata has %d lines, want 2", len(lines))
	}
	if lines[0] != "u1|hello world" {
		t.Errorf("first clean line = %q, want %q", lines[0], "u1|hello world")
	}
}

func TestRunTrim_EndToEnd(t *testing.T) {
	dir, metaPath, audioFilesPath := setupCorpus(t)
	alignPath := runAlignStage(t, dir, metaPath, audioFilesPath)
	outDir := filepath.Join(dir, "trimmed")

	stats, err := RunTrim(context.Background(), TrimOptions{
		AlignmentsPath: alignPath,
		MetadataPath:   metaPath,
		AudioFilesPath: audioFilesPath,
		OutputDir:      outDir,
		NumJobs:        2,
		Settings:       config.TrimSettings{BufferSec: 0, MinSec: 0.5},
	})
	if err != nil {
		t.Fatalf("RunTrim: %v", err)
	}
	if stats.Trimmed != 1 || stats.Skipped != 1 {
		t.Fatalf("stats = %+v, want trimmed 1, skipped 1", stats)
	}

	// u1 spans [0.0, 0.9] at 16kHz.
	buf, err := trim.ReadWAV(filepath.Join(outDir, "u1.wav"))
	if err != nil {
		t.Fatalf("read trimmed wav: %v", err)
	}
	if len(buf.Data) != 14400 {
		t.Errorf("trimmed length = %d samples, want 14400", len(buf.Data))
	}

	if _, err := os.Stat(filepath.Join(outDir, "u2.wav")); !os.IsNotExist(err) {
		t.Error("u2.wav should not exist")
	}

	data, err := os.ReadFile(filepath.Join(outDir, "metadata.csv"))
	if err != nil {
		t.Fatalf("read output metadata: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "u1|Hello world" {
		t.Errorf("output metadata = %q, want only u1's line", got)
	}
}

func TestRunTrim_RecordWithoutMetadataIsFatal(t *testing.T) {
	dir, metaPath, audioFilesPath := setupCorpus(t)

	alignPath := filepath.Join(dir, "alignments.jsonl")
	line := `{"id":"ghost","words":[{"text":"a","start":0,"end":0.5}]}` + "\n"
	if err := os.WriteFile(alignPath, []byte(line), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := RunTrim(context.Background(), TrimOptions{
		AlignmentsPath: alignPath,
		MetadataPath:   metaPath,
		AudioFilesPath: audioFilesPath,
		OutputDir:      filepath.Join(dir, "trimmed"),
		NumJobs:        1,
	})
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("expected fatal error naming the record, got %v", err)
	}
}

func TestRunEncode_EndToEnd(t *testing.T) {
	dir, metaPath, audioFilesPath := setupCorpus(t)
	alignPath := runAlignStage(t, dir, metaPath, audioFilesPath)
	tablePath := filepath.Join(dir, "phonemes.txt")

	var out bytes.Buffer
	stats, err := RunEncode(context.Background(), fakePhonemizer{}, &out, EncodeOptions{
		AlignmentsPath: alignPath,
		TablePath:      tablePath,
	})
	if err != nil {
		t.Fatalf("RunEncode: %v", err)
	}
	if stats.Encoded != 1 || stats.Skipped != 1 {
		t.Fatalf("stats = %+v, want encoded 1, skipped 1", stats)
	}

	row := strings.TrimSpace(out.String())
	// "helloworld" spelled out: h e l l o w o r l d with first-seen ids.
	want := "u1|0 1 2 2 3 4 3 5 2 6"
	if row != want {
		t.Errorf("row = %q, want %q", row, want)
	}

	// Re-encoding against the persisted table reproduces the row exactly.
	var out2 bytes.Buffer
	if _, err := RunEncode(context.Background(), fakePhonemizer{}, &out2, EncodeOptions{
		AlignmentsPath: alignPath,
		TablePath:      tablePath,
	}); err != nil {
		t.Fatalf("second RunEncode: %v", err)
	}
	if out2.String() != out.String() {
		t.Errorf("re-encode diverged: %q vs %q", out2.String(), out.String())
	}
}

func TestLoadAudioPaths_DuplicateStem(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "files.txt")
	list := "/a/u1.wav\n/b/u1.mp3\n"
	if err := os.WriteFile(listPath, []byte(list), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadAudioPaths(listPath)
	if err == nil {
		t.Fatal("expected error for duplicate stem")
	}
	if !strings.Contains(err.Error(), "u1") {
		t.Errorf("error should name the utterance: %v", err)
	}
}

func TestLoadAudioPaths(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "files.txt")
	list := fmt.Sprintf("%s\n\n%s\n", "/data/u1.wav", "/data/deeper/u2.flac")
	if err := os.WriteFile(listPath, []byte(list), 0644); err != nil {
		t.Fatal(err)
	}

	paths, err := LoadAudioPaths(listPath)
	if err != nil {
		t.Fatalf("LoadAudioPaths: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d paths, want 2", len(paths))
	}
	if paths["u2"] != "/data/deeper/u2.flac" {
		t.Errorf("u2 path = %q", paths["u2"])
	}
}
