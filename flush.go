package tortoisedb

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/tortoisedb/tortoisedb/internal/index"
	"github.com/tortoisedb/tortoisedb/internal/record"
)

// flusher is responsible for turning a retired memtable into a new SST
// and merging its records into the index. flush runs synchronously on
// the caller's goroutine (always the single writer holding the
// engine's write lock), so the semaphore below is a defense-in-depth
// assertion that at most one flush is ever in flight rather than the
// sole thing enforcing it.
type flusher struct {
	dir    string
	idx    *index.Index
	sem    *semaphore.Weighted
	logger *zap.Logger
}

func newFlusher(dir string, idx *index.Index, logger *zap.Logger) *flusher {
	return &flusher{
		dir:    dir,
		idx:    idx,
		sem:    semaphore.NewWeighted(1),
		logger: logger,
	}
}

// flush writes records (already drained from the retired memtable) to
// dir/<seq>.log and, on success, merges every one of them into the
// index. The caller must already hold the engine's write lock; flush
// does not truncate the WAL itself, since the WAL object it should
// truncate is the caller's concern (see Engine.flushLocked).
func (fl *flusher) flush(seq uint64, records []record.Record) error {
	if !fl.sem.TryAcquire(1) {
		// Unreachable under the single-writer discipline; surfaced as
		// an error rather than a panic so a future concurrency bug
		// fails loudly instead of corrupting state.
		return fmt.Errorf("%w: a flush is already in progress", ErrIO)
	}
	defer fl.sem.Release(1)

	fl.logger.Debug("flushing memtable",
		zap.Uint64("sst_seq", seq),
		zap.Int("records", len(records)),
	)

	if err := writeSST(fl.dir, seq, records); err != nil {
		return err
	}

	for _, rec := range records {
		fl.idx.Merge(rec)
	}

	return nil
}
