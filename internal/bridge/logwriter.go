package bridge

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/zulandar/bankline/internal/models"
	"gorm.io/gorm"
)

// DefaultFlushInterval is the interval between periodic worker log flushes.
const DefaultFlushInterval = 5 * time.Second

// logWriter implements io.Writer, buffering worker output and periodically
// flushing it to worker_logs via an injected writeFn.
type logWriter struct {
	pid        int
	generation int
	stream     string

	mu      sync.Mutex
	buf     bytes.Buffer
	writeFn func(models.WorkerLog) error
}

// newLogWriter creates a logWriter that flushes to the DB via db.Create.
func newLogWriter(db *gorm.DB, pid, generation int, stream string) *logWriter {
	return &logWriter{
		pid:        pid,
		generation: generation,
		stream:     stream,
		writeFn: func(log models.WorkerLog) error {
			return db.Create(&log).Error
		},
	}
}

// Write appends bytes to the internal buffer.
func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

// Flush writes accumulated buffer contents to worker_logs and resets the buffer.
func (w *logWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return nil
	}

	content := w.buf.String()
	w.buf.Reset()

	return w.writeFn(models.WorkerLog{
		PID:        w.pid,
		Generation: w.generation,
		Stream:     w.stream,
		Content:    content,
		CreatedAt:  time.Now(),
	})
}

// Close performs a final flush.
func (w *logWriter) Close() error {
	return w.Flush()
}

// startFlusher launches a goroutine that periodically flushes the logWriter
// until ctx is cancelled.
func startFlusher(ctx context.Context, w *logWriter, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Flush()
			}
		}
	}()
}
