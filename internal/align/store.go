package align

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ParseError reports a malformed line in an alignment JSONL stream or a
// phoneme id map. Line numbers are 1-based.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Writer appends records to a JSONL stream, one JSON object per line. Each
// line is flushed as it is written so a crash loses at most the record being
// appended. Append is safe for concurrent use; the mutex keeps interleaved
// producers from corrupting lines.
type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("append record %s: %w", rec.ID, err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("append record %s: %w", rec.ID, err)
	}
	return w.w.Flush()
}

// Reader yields records from a JSONL stream one line at a time. Read returns
// io.EOF at end of stream and a *ParseError naming the offending line for
// malformed input; records before a malformed line are still delivered.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	// Utterances with long transcripts can exceed the default token size.
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Reader{scanner: sc}
}

func (r *Reader) Read() (Record, error) {
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return Record{}, &ParseError{Line: r.line, Err: err}
		}
		if rec.ID == "" {
			return Record{}, &ParseError{Line: r.line, Err: fmt.Errorf("record has no id")}
		}
		if rec.Words == nil {
			rec.Words = []WordSpan{}
		}
		return rec, nil
	}

	if err := r.scanner.Err(); err != nil {
		return Record{}, &ParseError{Line: r.line + 1, Err: err}
	}
	return Record{}, io.EOF
}
