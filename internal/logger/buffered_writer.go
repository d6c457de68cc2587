package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	// DefaultBufferSize is the write buffer size for log files.
	DefaultBufferSize = 32 * 1024
	// DefaultFlushInterval bounds how long a log line may sit in the buffer.
	DefaultFlushInterval = 5 * time.Second
)

var errWriterClosed = errors.New("log writer is closed")

// BufferedFileWriter appends to a log file through a bufio.Writer. A
// background goroutine flushes the buffer every flush interval. It is safe
// for concurrent use.
type BufferedFileWriter struct {
	path     string
	size     int
	interval time.Duration

	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer // nil once closed

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// BufferedWriterOption configures a BufferedFileWriter.
type BufferedWriterOption func(*BufferedFileWriter)

// WithBufferSize sets the buffer size. Non-positive sizes are ignored.
func WithBufferSize(size int) BufferedWriterOption {
	return func(w *BufferedFileWriter) {
		if size > 0 {
			w.size = size
		}
	}
}

// WithFlushInterval sets the background flush period. Zero disables the
// background flush.
func WithFlushInterval(interval time.Duration) BufferedWriterOption {
	return func(w *BufferedFileWriter) {
		w.interval = max(interval, 0)
	}
}

// NewBufferedFileWriter opens path for appending, creating it if needed.
func NewBufferedFileWriter(path string, opts ...BufferedWriterOption) (*BufferedFileWriter, error) {
	w := &BufferedFileWriter{
		path:     path,
		size:     DefaultBufferSize,
		interval: DefaultFlushInterval,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // path comes from user config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, w.size)

	if w.interval > 0 {
		w.wg.Go(w.flushLoop)
	}
	return w, nil
}

func (w *BufferedFileWriter) flushLoop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			// a failing flush surfaces on the next Write
			_ = w.Flush()
		}
	}
}

// Write buffers p.
func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return 0, errWriterClosed
	}
	return w.buf.Write(p)
}

// Flush hands buffered bytes to the operating system.
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(false)
}

func (w *BufferedFileWriter) flushLocked(fsync bool) error {
	if w.buf == nil {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush log buffer: %w", err)
	}
	if fsync {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync log file: %w", err)
		}
	}
	return nil
}

// Close stops the background flush, syncs and closes the file. Later calls
// return nil.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	if w.buf == nil {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	// the flusher takes mu, so it must exit before the final sync holds it
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return nil
	}

	syncErr := w.flushLocked(true)
	closeErr := w.file.Close()
	w.buf, w.file = nil, nil
	if closeErr != nil {
		closeErr = fmt.Errorf("failed to close log file: %w", closeErr)
	}
	return errors.Join(syncErr, closeErr)
}

// FilePath returns the path the writer appends to.
func (w *BufferedFileWriter) FilePath() string {
	return w.path
}

// Buffered returns the number of bytes not yet handed to the file.
func (w *BufferedFileWriter) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return 0
	}
	return w.buf.Buffered()
}

var _ io.WriteCloser = (*BufferedFileWriter)(nil)
