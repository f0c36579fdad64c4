package binfmt

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestFields(t *testing.T) {
	buf := new(bytes.Buffer)
	w := NewWriter(buf)
	w.Int32(-7)
	w.Float32(12.5)
	w.Text("junction area 東")
	w.Bool(true)
	w.Int64(1 << 40)
	w.Text(strings.Repeat("x", 300))
	if err := w.Err(); err != nil {
		t.Fatalf("write: %s", err)
	}
	r := NewReader(buf.Bytes())
	if got := r.Int32(); got != -7 {
		t.Fatalf("int32: got %d", got)
	}
	if got := r.Float32(); got != 12.5 {
		t.Fatalf("float32: got %f", got)
	}
	if got := r.Text(); got != "junction area 東" {
		t.Fatalf("string: got %q", got)
	}
	if got := r.Bool(); !got {
		t.Fatal("bool: got false")
	}
	if got := r.Int64(); got != 1<<40 {
		t.Fatalf("int64: got %d", got)
	}
	if got := r.Text(); len(got) != 300 {
		t.Fatalf("long string: got %d bytes", len(got))
	}
	if err := r.Done(); err != nil {
		t.Fatalf("done: %s", err)
	}
}

func TestNegativeCount(t *testing.T) {
	buf := new(bytes.Buffer)
	w := NewWriter(buf)
	w.Int32(-1)
	r := NewReader(buf.Bytes())
	if n := r.Count("group"); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
	if !errors.Is(r.Err(), ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", r.Err())
	}
}

func TestStringOverrun(t *testing.T) {
	data := []byte{10, 'a', 'b'}
	r := NewReader(data)
	_ = r.Text()
	if !errors.Is(r.Err(), ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", r.Err())
	}
}

func TestShortRead(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_ = r.Int32()
	if !errors.Is(r.Err(), ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", r.Err())
	}
	// sticky
	_ = r.Bool()
	if !errors.Is(r.Err(), ErrDecode) {
		t.Fatalf("error not sticky: %v", r.Err())
	}
}

func TestIntOverflow(t *testing.T) {
	w := NewWriter(new(bytes.Buffer))
	w.Int(1 << 40)
	if w.Err() == nil {
		t.Fatal("expected overflow error")
	}
}
