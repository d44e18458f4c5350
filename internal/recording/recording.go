// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

// package recording writes shell session transcripts to disk. Transcripts
// are zstd-compressed streams of JSON lines, one entry per chunk of
// terminal output, so long sessions stay cheap to store and a recording
// can be replayed or grepped after decompression.
package recording // import "github.com/toeirei/ferry/internal/recording"

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry is one transcript line. Offset is milliseconds since the
// recording started, which keeps replays independent of wall clock.
type Entry struct {
	OffsetMs int64  `json:"offset_ms"`
	Stream   string `json:"stream"`
	Data     string `json:"data"`
}

// Stream labels for transcript entries.
const (
	StreamOutput = "output"
	StreamInput  = "input"
	StreamNote   = "note"
)

// Recorder appends transcript entries to a zstd-compressed file. It is
// safe for concurrent use; shell output and user input arrive from
// different goroutines.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	zw      *zstd.Encoder
	enc     *json.Encoder
	started time.Time
	closed  bool
}

// NewRecorder creates the transcript file at path, truncating any
// existing file.
func NewRecorder(path string) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create transcript file: %w", err)
	}
	zw, err := zstd.NewWriter(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("could not create zstd writer: %w", err)
	}
	return &Recorder{
		file:    file,
		zw:      zw,
		enc:     json.NewEncoder(zw),
		started: time.Now(),
	}, nil
}

// Write appends one entry for the given stream. Writes after Close are
// dropped.
func (r *Recorder) Write(stream string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.enc.Encode(Entry{
		OffsetMs: time.Since(r.started).Milliseconds(),
		Stream:   stream,
		Data:     string(data),
	})
}

// Note appends a free-form marker entry, e.g. "session started" or a
// window resize.
func (r *Recorder) Note(format string, args ...any) error {
	return r.Write(StreamNote, []byte(fmt.Sprintf(format, args...)))
}

// Close flushes the compressed stream and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.zw.Close(); err != nil {
		_ = r.file.Close()
		return fmt.Errorf("could not finish transcript: %w", err)
	}
	return r.file.Close()
}

// Read decodes a transcript written by Recorder.
func Read(rd io.Reader) ([]Entry, error) {
	zr, err := zstd.NewReader(rd)
	if err != nil {
		return nil, fmt.Errorf("could not create zstd reader: %w", err)
	}
	defer zr.Close()

	var entries []Entry
	dec := json.NewDecoder(zr)
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if err == io.EOF {
				return entries, nil
			}
			return nil, fmt.Errorf("could not decode transcript entry: %w", err)
		}
		entries = append(entries, e)
	}
}

// ReadFile decodes the transcript at path.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open transcript file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}
