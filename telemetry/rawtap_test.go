package telemetry

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestRawTapPlain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.bin")

	tap, err := OpenRawTap(path)
	if err != nil {
		t.Fatalf("OpenRawTap() error: %v", err)
	}
	if _, err := tap.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if err := tap.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("content = %q, want %q", got, "hello")
	}
}

func TestRawTapGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.bin.gz")

	tap, err := OpenRawTap(path)
	if err != nil {
		t.Fatalf("OpenRawTap() error: %v", err)
	}
	if _, err := tap.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if err := tap.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader() error: %v", err)
	}
	defer gr.Close()
	got, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("content = %q, want %q", got, "hello")
	}
}
