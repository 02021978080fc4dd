// Package index implements the merged, concurrent-safe lookup across all
// SSTs that the engine consults on every read once the memtable has been
// checked.
package index

import (
	"sync"

	"github.com/google/btree"

	"github.com/tortoisedb/tortoisedb/internal/record"
)

const degree = 32

type entry struct {
	key       string
	value     []byte
	timestamp record.Timestamp
}

func less(a, b entry) bool {
	return a.key < b.key
}

// Index is a sorted map from key to the highest-timestamp record
// observed across all SSTs merged into it so far. Records replayed from
// the WAL live only in the memtable, not here. Reads may run concurrently with each
// other; merges are serialized by the caller's single-writer/single-
// flusher discipline, so a plain mutex-guarded tree is sufficient.
type Index struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[entry]
}

// New creates an empty index.
func New() *Index {
	return &Index{tree: btree.NewG(degree, less)}
}

// Merge inserts rec if no entry exists for its key. If an entry exists,
// rec replaces it only when rec's timestamp is strictly greater than the
// stored one — a strict inequality avoids redundant writes when the same
// log is replayed more than once across overlapping SSTs.
func (idx *Index) Merge(rec record.Record) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	existing, found := idx.tree.Get(entry{key: rec.Key})
	if found && rec.Timestamp.Compare(existing.timestamp) <= 0 {
		return
	}
	idx.tree.ReplaceOrInsert(entry{key: rec.Key, value: rec.Value, timestamp: rec.Timestamp})
}

// Get returns the stored record for key, if any.
func (idx *Index) Get(key string) (record.Record, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e, found := idx.tree.Get(entry{key: key})
	if !found {
		return record.Record{}, false
	}
	return record.Record{Key: e.key, Value: e.value, Timestamp: e.timestamp}, true
}

// Len returns the number of distinct keys currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}
