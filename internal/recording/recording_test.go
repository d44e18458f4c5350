// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

package recording

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestRecordAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.ftr")

	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	if err := rec.Note("session started on %s", "web01:22"); err != nil {
		t.Fatalf("Note failed: %v", err)
	}
	if err := rec.Write(StreamOutput, []byte("$ uptime\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := rec.Write(StreamInput, []byte("exit\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// File must carry the zstd magic bytes.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte{0x28, 0xb5, 0x2f, 0xfd}) {
		t.Errorf("transcript does not start with zstd magic: % x", raw[:4])
	}

	entries, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Stream != StreamNote || entries[0].Data != "session started on web01:22" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Stream != StreamOutput || entries[1].Data != "$ uptime\n" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
	if entries[2].Stream != StreamInput {
		t.Errorf("unexpected third entry: %+v", entries[2])
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].OffsetMs < entries[i-1].OffsetMs {
			t.Errorf("offsets not monotonic: %d after %d", entries[i].OffsetMs, entries[i-1].OffsetMs)
		}
	}
}

func TestWriteAfterCloseIsDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.ftr")
	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	if err := rec.Write(StreamOutput, []byte("before")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := rec.Write(StreamOutput, []byte("after")); err != nil {
		t.Errorf("Write after Close should be a silent no-op, got %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("double Close should be a no-op, got %v", err)
	}

	entries, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Data != "before" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.ftr")
	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = rec.Write(StreamOutput, []byte("chunk"))
			}
		}()
	}
	wg.Wait()
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(entries) != 8*50 {
		t.Errorf("expected %d entries, got %d", 8*50, len(entries))
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, err := Read(bytes.NewReader([]byte("not a transcript"))); err == nil {
		t.Error("expected error for non-zstd input")
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.ftr")); err == nil {
		t.Error("expected error for missing file")
	}
}
