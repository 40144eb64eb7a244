package metadata

import (
	"strings"
	"testing"
)

func TestParse_TwoFieldSchema(t *testing.T) {
	input := "u1|hello world\nu2|good morning\n"

	set, err := Parse(strings.NewReader(input), false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("Len = %d, want 2", set.Len())
	}

	e := set.Get("u1")
	if e == nil {
		t.Fatal("Get(u1) = nil")
	}
	if e.Text != "hello world" {
		t.Errorf("u1 text = %q", e.Text)
	}
	if e.Speaker != DefaultSpeaker {
		t.Errorf("u1 speaker = %q, want %q", e.Speaker, DefaultSpeaker)
	}
}

func TestParse_ThreeFieldSchema(t *testing.T) {
	input := "u1|mary|hello\n"

	set, err := Parse(strings.NewReader(input), true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e := set.Get("u1")
	if e.Speaker != "mary" || e.Text != "hello" {
		t.Errorf("entry = %+v", e)
	}
}

func TestParse_WrongFieldCount(t *testing.T) {
	_, err := Parse(strings.NewReader("u1|mary|hello\n"), false)
	if err == nil {
		t.Fatal("expected error for 3 fields under 2-field schema")
	}
	if !strings.Contains(err.Error(), "line 1") {
		t.Errorf("error should name the line: %v", err)
	}
}

func TestParse_DuplicateID(t *testing.T) {
	input := "u1|hello\nu1|again\n"
	_, err := Parse(strings.NewReader(input), false)
	if err == nil {
		t.Fatal("expected error for duplicate id")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParse_IDWithWhitespace(t *testing.T) {
	_, err := Parse(strings.NewReader("bad id|hello\n"), false)
	if err == nil {
		t.Fatal("expected error for id containing whitespace")
	}
}

func TestWriteEntry(t *testing.T) {
	var sb strings.Builder
	entry := &Entry{ID: "u1", Speaker: "mary", Text: "hello"}

	if err := WriteEntry(&sb, entry, true); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if sb.String() != "u1|mary|hello\n" {
		t.Errorf("got %q", sb.String())
	}

	sb.Reset()
	if err := WriteEntry(&sb, entry, false); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if sb.String() != "u1|hello\n" {
		t.Errorf("got %q", sb.String())
	}
}
