// internal/store/recorder.go
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kbase/jgipush/internal/runner"
)

// DefaultBatchSize is the number of results a Recorder buffers before writing.
const DefaultBatchSize = 50

// Recorder buffers results of one run and writes them in batches.
// It satisfies runner.Recorder.
type Recorder struct {
	store     *Store
	runID     uuid.UUID
	batchSize int

	mu  sync.Mutex
	buf []runner.Result
}

// NewRecorder returns a recorder for runID. batchSize < 1 uses DefaultBatchSize.
func (s *Store) NewRecorder(runID uuid.UUID, batchSize int) *Recorder {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Recorder{store: s, runID: runID, batchSize: batchSize}
}

// Record buffers r and writes the buffer once it is full. A failed write keeps
// the buffer for the next attempt.
func (r *Recorder) Record(ctx context.Context, res runner.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, res)
	if len(r.buf) < r.batchSize {
		return nil
	}
	return r.flushLocked(ctx)
}

// Flush writes whatever is buffered.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

func (r *Recorder) flushLocked(ctx context.Context) error {
	if len(r.buf) == 0 {
		return nil
	}
	if err := r.store.RecordResults(ctx, r.runID, r.buf); err != nil {
		return err
	}
	r.buf = r.buf[:0]
	return nil
}
