// Package metadata loads pipe-delimited utterance metadata files with
// id|text or id|speaker|text rows.
package metadata

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultSpeaker is assigned when the metadata schema has no speaker column.
const DefaultSpeaker = "speaker1"

// Entry is one utterance's metadata row.
type Entry struct {
	ID      string
	Speaker string
	Text    string
}

// Set holds a loaded metadata file, preserving row order and offering id
// lookup. It is read-only after loading.
type Set struct {
	Entries []Entry
	byID    map[string]*Entry
}

// Get returns the entry for an utterance id, or nil when absent.
func (s *Set) Get(id string) *Entry {
	return s.byID[id]
}

func (s *Set) Len() int {
	return len(s.Entries)
}

// Load reads a metadata file. hasSpeaker selects the 3-field id|speaker|text
// schema; otherwise rows are id|text and every entry gets DefaultSpeaker.
// Wrong field counts, whitespace in ids, and duplicate ids are input
// consistency errors that abort the load.
func Load(path string, hasSpeaker bool) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()

	set, err := Parse(f, hasSpeaker)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Parse reads metadata rows from r. See Load.
func Parse(r io.Reader, hasSpeaker bool) (*Set, error) {
	wantFields := 2
	if hasSpeaker {
		wantFields = 3
	}

	set := &Set{byID: make(map[string]*Entry)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Split(line, "|")
		if len(fields) != wantFields {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d",
				lineNum, wantFields, len(fields))
		}

		entry := Entry{ID: fields[0], Speaker: DefaultSpeaker}
		if hasSpeaker {
			entry.Speaker = fields[1]
			entry.Text = fields[2]
		} else {
			entry.Text = fields[1]
		}

		if entry.ID == "" || strings.ContainsAny(entry.ID, " \t") {
			return nil, fmt.Errorf("line %d: invalid utterance id %q", lineNum, entry.ID)
		}
		if _, seen := set.byID[entry.ID]; seen {
			return nil, fmt.Errorf("line %d: duplicate utterance id %q", lineNum, entry.ID)
		}

		set.Entries = append(set.Entries, entry)
		set.byID[entry.ID] = nil // placeholder until Entries stops growing
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	for i := range set.Entries {
		set.byID[set.Entries[i].ID] = &set.Entries[i]
	}

	return set, nil
}

// WriteEntry appends one metadata row to w in the same schema it was read
// with.
func WriteEntry(w io.Writer, entry *Entry, hasSpeaker bool) error {
	var err error
	if hasSpeaker {
		_, err = fmt.Fprintf(w, "%s|%s|%s\n", entry.ID, entry.Speaker, entry.Text)
	} else {
		_, err = fmt.Fprintf(w, "%s|%s\n", entry.ID, entry.Text)
	}
	return err
}
