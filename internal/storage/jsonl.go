package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"chainstate/internal/model"
)

// JsonlStorage appends journal entries to a JSONL file. The file is opened on
// the first batch and kept open until Close; every batch is synced to disk
// before PutEntries returns, so an acknowledged entry survives a crash.
type JsonlStorage struct {
	path string

	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
}

// NewJsonlStorage returns a sink writing to path. Nothing is created until
// the first non-empty batch.
func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutEntries appends a batch of entries, one JSON object per line. A batch
// that fails to encode is not written at all.
func (s *JsonlStorage) PutEntries(ctx context.Context, entries []model.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	lines := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal journal entry %s/%s: %w", entry.Kind, entry.Ref, err)
		}
		lines = append(lines, line)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := s.buf.Write(line); err != nil {
			return fmt.Errorf("write journal entry: %w", err)
		}
		if err := s.buf.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

func (s *JsonlStorage) openLocked() error {
	if s.file != nil {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	s.file = file
	s.buf = bufio.NewWriter(file)
	return nil
}

// Close releases the file. A later batch reopens it in append mode.
func (s *JsonlStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.buf = nil, nil
	if err != nil {
		return fmt.Errorf("close journal file: %w", err)
	}
	return nil
}
