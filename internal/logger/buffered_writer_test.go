package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedFileWriter_WriteAndFlush(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "engine.log")
	writer, err := NewBufferedFileWriter(logPath, WithFlushInterval(time.Hour))
	require.NoError(t, err)
	defer func() { _ = writer.Close() }()

	line := "track loaded\n"
	n, err := writer.Write([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, len(line), n)
	assert.Positive(t, writer.Buffered())

	require.NoError(t, writer.Flush())
	assert.Equal(t, 0, writer.Buffered())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, line, string(content))
}

func TestBufferedFileWriter_AutoFlush(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "auto.log")
	writer, err := NewBufferedFileWriter(logPath, WithFlushInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = writer.Close() }()

	_, err = writer.Write([]byte("beat analysis finished\n"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		content, readErr := os.ReadFile(logPath)
		return readErr == nil && strings.Contains(string(content), "beat analysis finished")
	}, time.Second, 10*time.Millisecond)
}

func TestBufferedFileWriter_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "close.log")
	writer, err := NewBufferedFileWriter(logPath)
	require.NoError(t, err)

	_, err = writer.Write([]byte("pending\n"))
	require.NoError(t, err)

	require.NoError(t, writer.Close())
	require.NoError(t, writer.Close())

	_, err = writer.Write([]byte("after close\n"))
	require.Error(t, err)

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "pending\n", string(content))
}

func TestBufferedFileWriter_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	writer, err := NewBufferedFileWriter(logPath, WithBufferSize(256))
	require.NoError(t, err)

	const goroutines, perGoroutine = 8, 50
	var wg sync.WaitGroup
	for range goroutines {
		wg.Go(func() {
			for range perGoroutine {
				_, _ = writer.Write([]byte("x\n"))
			}
		})
	}
	wg.Wait()
	require.NoError(t, writer.Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, goroutines*perGoroutine, strings.Count(string(content), "x\n"))
}

func TestBufferedFileWriter_AppendsToExistingFile(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "append.log")
	require.NoError(t, os.WriteFile(logPath, []byte("first\n"), 0o600))

	writer, err := NewBufferedFileWriter(logPath)
	require.NoError(t, err)
	_, err = writer.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(content))
	assert.Equal(t, logPath, writer.FilePath())
}

func TestNewBufferedFileWriter_InvalidPath(t *testing.T) {
	t.Parallel()

	_, err := NewBufferedFileWriter(filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	require.Error(t, err)
}

func BenchmarkBufferedFileWriter_Write(b *testing.B) {
	writer, err := NewBufferedFileWriter(filepath.Join(b.TempDir(), "bench.log"))
	require.NoError(b, err)
	defer func() { _ = writer.Close() }()

	line := []byte(`{"level":"INFO","msg":"fill","module":"playback"}` + "\n")
	b.ReportAllocs()
	for b.Loop() {
		_, _ = writer.Write(line)
	}
}
