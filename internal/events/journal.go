package events

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Journal appends events to a file as newline-delimited JSON, flushed after
// every event so a crash loses at most the event being written.
type Journal struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

func NewJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(file)
	return &Journal{path: path, file: file, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (j *Journal) Emit(_ context.Context, event Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(event); err != nil {
		slog.Error("journal write failed", "path", j.path, "type", event.Type, "error", err)
		return
	}
	if err := j.buf.Flush(); err != nil {
		slog.Error("journal flush failed", "path", j.path, "error", err)
	}
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return errors.Join(j.buf.Flush(), j.file.Close())
}
