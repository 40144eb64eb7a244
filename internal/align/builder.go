package align

import (
	"log/slog"
)

// Timing is a raw (start, end) pair from the alignment engine, in seconds.
type Timing struct {
	Start float64
	End   float64
}

// Build converts raw engine timings into a validated Record. A nil timings
// slice means the engine reported failure for the whole utterance. Any
// validation problem (word count mismatch, inverted span, misordered or
// overlapping spans) degrades to an empty-span record for this utterance
// only; it is logged and never aborts the batch.
func Build(id, speaker string, words []string, timings []Timing) Record {
	rec := Record{ID: id, Speaker: speaker, Words: []WordSpan{}}

	if timings == nil {
		slog.Warn("alignment failed", "id", id)
		return rec
	}

	if len(timings) != len(words) {
		slog.Warn("word count mismatch", "id", id,
			"words", len(words), "timings", len(timings))
		return rec
	}

	spans := make([]WordSpan, 0, len(words))
	prevEnd := 0.0
	for i, t := range timings {
		switch {
		case t.Start < 0:
			slog.Warn("negative span start", "id", id, "word", words[i])
			return rec
		case t.End <= t.Start:
			slog.Warn("inverted span", "id", id, "word", words[i],
				"start", t.Start, "end", t.End)
			return rec
		case t.Start < prevEnd:
			// Covers both misordered and overlapping spans: word order is
			// the transcript order and the aligner must preserve it.
			slog.Warn("misordered or overlapping span", "id", id,
				"word", words[i], "start", t.Start, "prev_end", prevEnd)
			return rec
		}

		spans = append(spans, WordSpan{Text: words[i], Start: t.Start, End: t.End})
		prevEnd = t.End
	}

	rec.Words = spans
	return rec
}
