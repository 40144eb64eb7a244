// Package phoneme encodes per-utterance phoneme sequences as integer id
// rows against a stable phoneme/id table.
package phoneme

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rhasspy/kaldi-align/internal/align"
)

// Table maps phoneme symbols to integer ids in first-seen order. Ids are
// never reassigned; persisting the table and loading it before the next run
// keeps ids stable across runs. Table is not safe for concurrent use — id
// assignment is serialized by the encode stage.
type Table struct {
	symbols []string
	ids     map[string]int
}

func NewTable() *Table {
	return &Table{ids: make(map[string]int)}
}

// ID returns the id for a symbol, assigning the next free id when the
// symbol has not been seen before.
func (t *Table) ID(symbol string) int {
	if id, ok := t.ids[symbol]; ok {
		return id
	}
	id := len(t.symbols)
	t.symbols = append(t.symbols, symbol)
	t.ids[symbol] = id
	return id
}

// Len returns the number of assigned ids.
func (t *Table) Len() int {
	return len(t.symbols)
}

// Symbols returns the symbols in id order.
func (t *Table) Symbols() []string {
	return append([]string(nil), t.symbols...)
}

// LoadTable reads a persisted table. A missing file yields an empty table,
// so first runs need no setup.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return NewTable(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open phoneme table: %w", err)
	}
	defer f.Close()

	t, err := ParseTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ParseTable reads "symbol id" lines in id order. Ids must be exactly
// 0..n-1 in sequence; anything else means the file was edited or truncated
// and is rejected with a ParseError.
func ParseTable(r io.Reader) (*Table, error) {
	t := NewTable()

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, &align.ParseError{Line: lineNum,
				Err: fmt.Errorf("expected \"symbol id\", got %q", line)}
		}

		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, &align.ParseError{Line: lineNum,
				Err: fmt.Errorf("invalid id %q", fields[1])}
		}
		if id != t.Len() {
			return nil, &align.ParseError{Line: lineNum,
				Err: fmt.Errorf("id %d out of sequence, expected %d", id, t.Len())}
		}
		if _, seen := t.ids[fields[0]]; seen {
			return nil, &align.ParseError{Line: lineNum,
				Err: fmt.Errorf("duplicate symbol %q", fields[0])}
		}

		t.ID(fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read phoneme table: %w", err)
	}

	return t, nil
}

// Save persists the table as "symbol id" lines in id order.
func (t *Table) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create phoneme table: %w", err)
	}

	w := bufio.NewWriter(f)
	for id, symbol := range t.symbols {
		fmt.Fprintf(w, "%s %d\n", symbol, id)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write phoneme table: %w", err)
	}
	return f.Close()
}
