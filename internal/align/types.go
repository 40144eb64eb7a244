package align

// WordSpan is one word's time interval within an utterance's audio.
type WordSpan struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Record is the alignment of one utterance: its id, optional speaker, and
// word spans in transcript order. An empty Words slice means the aligner
// produced no usable alignment for the utterance; consumers skip such
// records instead of failing.
type Record struct {
	ID      string     `json:"id"`
	Speaker string     `json:"speaker,omitempty"`
	Words   []WordSpan `json:"words"`
}

// Aligned reports whether the record carries a usable alignment.
func (r Record) Aligned() bool {
	return len(r.Words) > 0
}

// Bounds returns the start of the first word and the end of the last word.
// Only meaningful when Aligned() is true.
func (r Record) Bounds() (start, end float64) {
	return r.Words[0].Start, r.Words[len(r.Words)-1].End
}
