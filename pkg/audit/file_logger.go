package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileLogger appends records to a file as newline-delimited JSON.
type FileLogger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewFileLogger opens (or creates) the log file for appending.
func NewFileLogger(path string) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &FileLogger{file: file, path: path}, nil
}

// Log appends one record as a JSON line.
func (l *FileLogger) Log(ctx context.Context, record *Record) error {
	data, err := record.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log file is closed")
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// Close syncs and closes the file. Further writes fail.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	if err := l.file.Sync(); err != nil {
		l.file.Close()
		l.file = nil
		return fmt.Errorf("failed to sync audit log file: %w", err)
	}

	err := l.file.Close()
	l.file = nil
	return err
}
