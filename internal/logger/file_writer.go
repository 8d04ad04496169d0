package logger

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/deeplyinc/homeaudio-go/internal/errors"
)

const (
	// defaultBufferSize batches log writes (32KB)
	defaultBufferSize = 32 * 1024

	// LogFilePermissions restricts log files to the owner
	LogFilePermissions = 0o600
)

// fileWriter is a thread-safe buffered writer for a log file.
type fileWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	closed bool
}

func newFileWriter(path string) (*fileWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // path comes from user config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return &fileWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, defaultBufferSize),
	}, nil
}

// Write implements io.Writer.
func (w *fileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, os.ErrClosed
	}
	n, err := w.writer.Write(p)
	if err != nil {
		return n, err
	}
	if w.writer.Buffered() >= defaultBufferSize/2 {
		err = w.writer.Flush()
	}
	return n, err
}

// Flush writes buffered data to the OS.
func (w *fileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.writer.Flush()
}

// Close flushes, syncs and closes the file.
func (w *fileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := w.writer.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := w.file.Sync(); err != nil {
		errs = append(errs, err)
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
