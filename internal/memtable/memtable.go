// Package memtable implements the in-memory ordered table that buffers
// writes between flushes to an SST.
package memtable

import (
	"sync"

	"github.com/google/btree"

	"github.com/tortoisedb/tortoisedb/internal/record"
)

// degree is the branching factor of the underlying B-tree. 32 is the
// value google/btree's own benchmarks recommend for string-keyed trees.
const degree = 32

type entry struct {
	key       string
	value     []byte
	timestamp record.Timestamp
}

func less(a, b entry) bool {
	return a.key < b.key
}

// MemTable is a mapping from key to the highest-timestamp record seen
// for that key since the last flush, held in sorted key order so it can
// be streamed to an SST without a separate sort pass.
//
// At most one record is kept per key, and per-key timestamps are
// monotone non-decreasing over the table's lifetime (Upsert never lets a
// strictly older write clobber a newer one).
type MemTable struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[entry]
	// size is a running, monotone non-decreasing estimate of the
	// table's memory footprint in bytes (len(key)+len(value)+16 per
	// entry). It only ever grows: an update that shrinks a value's
	// length does not reduce it, matching the spec's requirement that
	// size_hint never decrease before a drain.
	size int
}

// New creates an empty memtable.
func New() *MemTable {
	return &MemTable{tree: btree.NewG(degree, less)}
}

// Upsert inserts rec if no entry exists for its key. If an entry exists
// and rec's timestamp is greater than or equal to the stored timestamp,
// it replaces the entry (ties favor the newer write). If strictly less,
// the table is left unchanged.
func (m *MemTable) Upsert(rec record.Record) record.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, found := m.tree.Get(entry{key: rec.Key})
	if !found {
		m.tree.ReplaceOrInsert(entry{key: rec.Key, value: rec.Value, timestamp: rec.Timestamp})
		m.size += len(rec.Key) + len(rec.Value) + 16
		return record.Inserted
	}

	if rec.Timestamp.Compare(existing.timestamp) < 0 {
		return record.Rejected
	}

	m.tree.ReplaceOrInsert(entry{key: rec.Key, value: rec.Value, timestamp: rec.Timestamp})
	if newCost, oldCost := len(rec.Value), len(existing.value); newCost > oldCost {
		m.size += newCost - oldCost
	}
	return record.Updated
}

// Get performs an exact-match lookup.
func (m *MemTable) Get(key string) (record.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, found := m.tree.Get(entry{key: key})
	if !found {
		return record.Record{}, false
	}
	return record.Record{Key: e.key, Value: e.value, Timestamp: e.timestamp}, true
}

// SizeHint returns the running footprint estimate used to trigger a
// flush. It is monotone non-decreasing until Drain resets the table.
func (m *MemTable) SizeHint() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Len returns the number of distinct keys currently held.
func (m *MemTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

// Drain returns all entries in ascending key order, suitable for
// streaming to an SST, and logically empties the table.
func (m *MemTable) Drain() []record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]record.Record, 0, m.tree.Len())
	m.tree.Ascend(func(e entry) bool {
		out = append(out, record.Record{Key: e.key, Value: e.value, Timestamp: e.timestamp})
		return true
	})

	m.tree = btree.NewG(degree, less)
	m.size = 0
	return out
}
