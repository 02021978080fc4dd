// Package tortoisedb is an embedded, single-node key-value datastore
// with last-write-wins semantics over caller-supplied monotonic
// timestamps. Writes are durably logged to a WAL and buffered in an
// ordered memtable; once the memtable crosses a configurable threshold
// it is flushed to a new immutable SST and folded into an in-memory
// index that serves reads across every SST without touching disk.
package tortoisedb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/tortoisedb/tortoisedb/internal/index"
	"github.com/tortoisedb/tortoisedb/internal/memtable"
	"github.com/tortoisedb/tortoisedb/internal/record"
)

// Record is the value returned by Get: a key, its opaque value, and the
// logical timestamp it was written with.
type Record struct {
	Key       string
	Value     []byte
	Timestamp Timestamp
}

// Timestamp is an unsigned 128-bit logical clock. Ordering is determined
// solely by its value, never by wall-clock arrival.
type Timestamp = record.Timestamp

// TimestampFromMillis builds a Timestamp from a 64-bit
// milliseconds-since-epoch value, the common case for probe events.
func TimestampFromMillis(ms uint64) Timestamp {
	return record.FromMillis(ms)
}

func toRecord(r record.Record) Record {
	return Record{Key: r.Key, Value: r.Value, Timestamp: r.Timestamp}
}

// Engine is an open tortoisedb database. It is safe for concurrent use
// by many goroutines: writes are serialized by a single write lock,
// reads consult the live (and, briefly during a flush, the retiring)
// memtable plus the index without ever blocking on disk I/O.
type Engine struct {
	dir    string
	sstDir string
	cfg    Config
	logger *zap.Logger

	// mu is the engine's single write lock. It is held across the WAL
	// append, the memtable upsert, and the entire flush, so at most one
	// flush can ever be in flight and a flush never races a concurrent
	// writer for the WAL file.
	mu       sync.Mutex
	wal      *wal
	memtable *memtable.MemTable
	nextSST  uint64
	closed   bool

	// memMu guards reads of memtable/flushingMemtable independently of
	// mu, so Get never blocks behind a slow flush's disk I/O.
	memMu            sync.RWMutex
	flushingMemtable *memtable.MemTable

	idx     *index.Index
	flusher *flusher
}

// Open initializes or recovers a database rooted at dir. If dir does not
// exist, it is created along with dir/sst. Recovery proceeds in two
// passes: every existing SST is scanned, in ascending sequence order,
// into a fresh index (a record replaces an earlier SST's record for the
// same key only with a strictly greater timestamp, so on an exact tie
// the earlier SST's record is kept); then the WAL is replayed into a fresh
// memtable. Both passes tolerate the on-disk state left behind by a
// crash at any point during a flush: a crash before an SST's rename
// leaves no trace of it and the WAL intact; a crash after the rename
// but before the WAL truncate is reconciled by the index's
// strict-greater merge and the memtable's tie-tolerant upsert.
func Open(dir string, options ...ConfigOption) (*Engine, error) {
	cfg := Config{
		flushThreshold: DefaultFlushThreshold,
		logger:         zap.NewNop(),
	}
	for _, opt := range options {
		opt(&cfg)
	}

	sstDir := filepath.Join(dir, "sst")
	if err := os.MkdirAll(sstDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: create data dir %q: %v", ErrIO, sstDir, err)
	}

	seqs, err := discoverSSTs(sstDir)
	if err != nil {
		return nil, err
	}

	idx := index.New()
	for _, seq := range seqs {
		path := filepath.Join(sstDir, sstFileName(seq))
		recs, err := scanSST(path)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			idx.Merge(r)
		}
	}

	var nextSST uint64 = 1
	if len(seqs) > 0 {
		nextSST = seqs[len(seqs)-1] + 1
	}

	walPath := filepath.Join(dir, "wal.log")
	walRecords, err := replayWAL(walPath)
	if err != nil {
		return nil, err
	}

	mt := memtable.New()
	for _, r := range walRecords {
		mt.Upsert(r)
	}

	w, err := openAppendonlyWAL(walPath)
	if err != nil {
		return nil, err
	}

	cfg.logger.Info("opened database",
		zap.String("dir", dir),
		zap.Int("sst_count", len(seqs)),
		zap.Int("recovered_records", len(walRecords)),
		zap.Int("indexed_keys", idx.Len()),
	)

	return &Engine{
		dir:      dir,
		sstDir:   sstDir,
		cfg:      cfg,
		logger:   cfg.logger,
		wal:      w,
		memtable: mt,
		nextSST:  nextSST,
		idx:      idx,
		flusher:  newFlusher(sstDir, idx, cfg.logger),
	}, nil
}

// Set durably upserts key with value at the given logical timestamp.
// The record is on stable storage (the WAL, or — if this call triggers
// a flush — the new SST) before Set returns. A subsequent Get for key
// from any goroutine is guaranteed to see a record whose timestamp is
// at least the one just written.
func (e *Engine) Set(key string, value []byte, ts Timestamp) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	rec := record.Record{Key: key, Value: value, Timestamp: ts}
	if err := e.wal.WriteRecord(&rec); err != nil {
		return err
	}
	e.memtable.Upsert(rec)

	if e.memtable.SizeHint() > e.cfg.flushThreshold {
		if err := e.flushLocked(); err != nil {
			return err
		}
	}
	return nil
}

// flushLocked retires the live memtable and flushes it to a new SST.
// The caller must hold mu. The retired memtable is kept reachable from
// Get (via flushingMemtable) for the duration of the flush, and is
// restored into the fresh live memtable if the flush fails, so a flush
// failure never loses a record that Set already reported as successful.
func (e *Engine) flushLocked() error {
	seq := e.nextSST

	e.memMu.Lock()
	records := e.memtable.Drain()
	e.flushingMemtable = memtable.New()
	for _, r := range records {
		e.flushingMemtable.Upsert(r)
	}
	e.memtable = memtable.New()
	e.memMu.Unlock()

	if err := e.flusher.flush(seq, records); err != nil {
		e.logger.Error("flush failed, restoring memtable",
			zap.Uint64("sst_seq", seq),
			zap.Error(err),
		)
		for _, r := range records {
			e.memtable.Upsert(r)
		}
		e.memMu.Lock()
		e.flushingMemtable = nil
		e.memMu.Unlock()
		return err
	}

	e.memMu.Lock()
	e.flushingMemtable = nil
	e.memMu.Unlock()

	if err := e.wal.Truncate(); err != nil {
		// The SST is already committed and merged into the index, so no
		// data is lost; the WAL merely retains records that are now
		// also durable on disk. Replaying them again on the next
		// recovery is harmless (memtable upsert tolerates ties, index
		// merge is strictly-greater), so this is not treated as fatal
		// to the write that triggered the flush.
		e.logger.Error("wal truncate failed after successful flush",
			zap.Uint64("sst_seq", seq),
			zap.Error(err),
		)
	}

	e.nextSST++
	return nil
}

// Get returns the latest record for key, consulting the live memtable,
// the memtable currently being flushed (if any), and the index, and
// returning whichever has the greatest timestamp (ties favor the
// memtable, which is always at least as recent as the index).
func (e *Engine) Get(key string) (Record, bool) {
	e.memMu.RLock()
	m, foundM := e.memtable.Get(key)
	if !foundM && e.flushingMemtable != nil {
		m, foundM = e.flushingMemtable.Get(key)
	}
	e.memMu.RUnlock()

	i, foundI := e.idx.Get(key)

	switch {
	case foundM && foundI:
		if m.Timestamp.Compare(i.Timestamp) >= 0 {
			return toRecord(m), true
		}
		return toRecord(i), true
	case foundM:
		return toRecord(m), true
	case foundI:
		return toRecord(i), true
	default:
		return Record{}, false
	}
}

// Close releases the engine's resources. It does not flush the live
// memtable: the WAL it leaves behind is exactly what recovery needs to
// rebuild that memtable on the next Open.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.wal.Close()
}
