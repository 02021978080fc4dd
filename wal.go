package tortoisedb

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tortoisedb/tortoisedb/internal/record"
)

// wal represents the write-ahead log backing the live memtable. There is
// only one writer by design (the engine's write lock), so WriteRecord
// itself is not concurrency safe.
type wal struct {
	path string
	f    *os.File
}

// openAppendonlyWAL opens (creating if necessary) a WAL file for
// appending records.
func openAppendonlyWAL(path string) (*wal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: open wal %q: %v", ErrIO, path, err)
	}
	return &wal{path: path, f: f}, nil
}

// replayWAL reads every record from the WAL at path in file order. A
// truncated trailing unit (a partial length prefix or a payload shorter
// than its declared length) is dropped rather than treated as an error,
// since the WAL's purpose is best-effort crash recovery, not an
// immutable audit log. A missing file yields an empty slice, since a
// fresh database has no WAL yet.
func replayWAL(path string) ([]record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: open wal %q for replay: %v", ErrIO, path, err)
	}
	defer f.Close()

	var out []record.Record
	for {
		rec, err := record.ReadOne(f)
		switch {
		case err == nil:
			out = append(out, *rec)
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return out, nil
		default:
			// A malformed (not merely truncated) record still must not
			// block recovery of everything written before it.
			return out, nil
		}
	}
}

// WriteRecord serializes rec and appends it to the WAL file, then
// flushes it to stable storage before returning. Ordering of appends
// matches the ordering of the corresponding memtable upserts, since both
// happen under the engine's write lock.
func (w *wal) WriteRecord(rec *record.Record) error {
	if err := record.Encode(w.f, rec); err != nil {
		return fmt.Errorf("%w: write wal record %q: %v", ErrIO, w.path, err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync wal %q: %v", ErrIO, w.path, err)
	}
	return nil
}

// Truncate replaces the WAL's contents with an empty file. It is called
// only after a flush has durably committed its SST.
func (w *wal) Truncate() error {
	if err := w.f.Truncate(0); err != nil {
		return fmt.Errorf("%w: truncate wal %q: %v", ErrIO, w.path, err)
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek wal %q: %v", ErrIO, w.path, err)
	}
	return nil
}

// Close closes the WAL file.
func (w *wal) Close() error {
	return w.f.Close()
}
