// Package evidence keeps JPEG snapshots of the frames behind outcome changes.
package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ignitiongate/internal/logger"
	"ignitiongate/internal/model"
)

const fileTimeLayout = "2006-01-02_15-04-05.000"

// Snapshot is one buffered evidence image.
type Snapshot struct {
	Timestamp time.Time
	Outcome   model.Outcome
	Data      []byte
}

// Filename is <timestamp>_<outcome>.jpg.
func (s Snapshot) Filename() string {
	return fmt.Sprintf("%s_%s.jpg", s.Timestamp.Format(fileTimeLayout), s.Outcome)
}

// Buffer holds snapshots in memory and writes them out in batches. Snapshots
// arriving while the buffer is full are dropped and counted.
type Buffer struct {
	dir    string
	limit  int
	logger *logger.Logger

	mu      sync.Mutex
	pending []Snapshot
	written uint64
	dropped uint64
}

func NewBuffer(dir string, limit int, logger *logger.Logger) *Buffer {
	return &Buffer{
		dir:     dir,
		limit:   limit,
		logger:  logger,
		pending: make([]Snapshot, 0, limit),
	}
}

// Add buffers data; it reports false when the snapshot was dropped.
func (b *Buffer) Add(data []byte, outcome model.Outcome, ts time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) >= b.limit {
		b.dropped++
		return false
	}
	b.pending = append(b.pending, Snapshot{Timestamp: ts, Outcome: outcome, Data: data})
	return true
}

// Run flushes every interval until ctx is done, then flushes once more.
func (b *Buffer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := b.Flush(); err != nil {
				b.logger.Error("Final evidence flush failed: %v", err)
			}
			return nil
		case <-ticker.C:
			if _, err := b.Flush(); err != nil {
				b.logger.Error("Evidence flush failed: %v", err)
			}
		}
	}
}

// Flush writes all pending snapshots and returns how many were written.
func (b *Buffer) Flush() (int, error) {
	b.mu.Lock()
	batch := b.pending
	b.pending = make([]Snapshot, 0, b.limit)
	b.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create evidence directory: %w", err)
	}

	written := 0
	var firstErr error
	for _, s := range batch {
		path := filepath.Join(b.dir, s.Filename())
		if err := os.WriteFile(path, s.Data, 0644); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to save %s: %w", s.Filename(), err)
			}
			continue
		}
		written++
	}

	b.mu.Lock()
	b.written += uint64(written)
	b.mu.Unlock()

	b.logger.Info("Flushed %d evidence snapshots to %s", written, b.dir)
	return written, firstErr
}

// Stats returns counts of written and dropped snapshots.
func (b *Buffer) Stats() (written, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written, b.dropped
}
