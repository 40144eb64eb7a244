package phoneme

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Silence and noise markers emitted by Kaldi alignments; they carry no
// phonetic content and are dropped before encoding.
var skipSymbols = map[string]bool{
	"SIL": true,
	"SPN": true,
	"NSN": true,
}

// IPA primary and secondary stress marks.
const (
	stressPrimary   = 'ˈ'
	stressSecondary = 'ˌ'
)

// Encoder turns flat phoneme sequences into id-encoded rows, growing its
// table as new symbols appear.
type Encoder struct {
	Table *Table
}

func NewEncoder(table *Table) *Encoder {
	return &Encoder{Table: table}
}

// Encode maps an utterance's phoneme symbols to ids. Leading stress marks
// are split off as their own symbols and silence markers are dropped, so
// "ˈhɛloʊ" rendered as [ˈhɛ l oʊ] encodes the stress mark independently of
// the vowel it attaches to.
func (e *Encoder) Encode(phonemes []string) []int {
	ids := make([]int, 0, len(phonemes))
	for _, symbol := range splitStress(phonemes) {
		if skipSymbols[symbol] {
			continue
		}
		ids = append(ids, e.Table.ID(symbol))
	}
	return ids
}

func splitStress(phonemes []string) []string {
	out := make([]string, 0, len(phonemes))
	for _, p := range phonemes {
		for p != "" {
			r, size := utf8.DecodeRuneInString(p)
			if r != stressPrimary && r != stressSecondary {
				break
			}
			out = append(out, string(r))
			p = p[size:]
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FormatRow serializes one encoded utterance as id|i1 i2 i3, or
// id|speaker|i1 i2 i3 when a speaker column was requested.
func FormatRow(id, speaker string, ids []int, hasSpeaker bool) string {
	strs := make([]string, len(ids))
	for i, v := range ids {
		strs[i] = strconv.Itoa(v)
	}
	idStr := strings.Join(strs, " ")

	if hasSpeaker {
		return id + "|" + speaker + "|" + idStr
	}
	return id + "|" + idStr
}
