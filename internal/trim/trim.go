// Package trim cuts leading and trailing silence from utterance audio using
// forced-alignment word boundaries.
package trim

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/rhasspy/kaldi-align/internal/align"
)

// Options control how much audio is kept around the aligned words.
type Options struct {
	// PadSec widens the cut symmetrically on both sides, clamped to the
	// audio's bounds.
	PadSec float64
	// MinSec drops utterances whose trimmed audio would be shorter than
	// this.
	MinSec float64
}

// Trim returns the samples between the first word's start and the last
// word's end, widened by Options.PadSec. The second return value is false
// when the utterance should be skipped: empty alignment, a degenerate cut,
// or a result shorter than Options.MinSec.
func Trim(rec *align.Record, buf *audio.IntBuffer, opts Options) (*audio.IntBuffer, bool) {
	if !rec.Aligned() {
		return nil, false
	}

	sampleRate := buf.Format.SampleRate
	channels := buf.Format.NumChannels
	totalFrames := len(buf.Data) / channels

	startSec, endSec := rec.Bounds()
	startSec = math.Max(0, startSec-opts.PadSec)
	endSec = endSec + opts.PadSec

	startFrame := frameIndex(startSec, sampleRate)
	endFrame := frameIndex(endSec, sampleRate)
	if endFrame > totalFrames {
		endFrame = totalFrames
	}
	if startFrame >= endFrame {
		return nil, false
	}
	if float64(endFrame-startFrame)/float64(sampleRate) < opts.MinSec {
		return nil, false
	}

	data := buf.Data[startFrame*channels : endFrame*channels]
	out := &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		Data:           append([]int(nil), data...),
		SourceBitDepth: buf.SourceBitDepth,
	}
	return out, true
}

func frameIndex(sec float64, sampleRate int) int {
	return int(math.Round(sec * float64(sampleRate)))
}

// ReadWAV decodes a whole WAV file into memory.
func ReadWAV(path string) (*audio.IntBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if buf.SourceBitDepth == 0 {
		buf.SourceBitDepth = int(dec.BitDepth)
	}
	return buf, nil
}

// WriteWAV writes a PCM buffer as a 16-bit WAV file.
func WriteWAV(path string, buf *audio.IntBuffer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audio: %w", err)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}

	enc := wav.NewEncoder(f, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return f.Close()
}
