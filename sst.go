package tortoisedb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tortoisedb/tortoisedb/internal/record"
)

// sstFileName returns the canonical filename for the SST with the given
// sequence number.
func sstFileName(seq uint64) string {
	return fmt.Sprintf("%d.log", seq)
}

// writeSST writes records (expected to already be in ascending key
// order, as produced by MemTable.Drain) to a new immutable file named by
// seq under dir. The file is written to a temporary name and only
// renamed into place — an atomic operation on the same filesystem —
// once every byte is flushed to stable storage, so readers (the
// recovery scan and discoverSSTs) never observe a partially written SST. If
// any step fails, the partial file is removed and the flush fails.
func writeSST(dir string, seq uint64, records []record.Record) (err error) {
	finalPath := filepath.Join(dir, sstFileName(seq))
	tmpPath := finalPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("%w: create sst tmp %q: %v", ErrIO, tmpPath, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriter(f)
	for i := range records {
		if err = record.Encode(bw, &records[i]); err != nil {
			return fmt.Errorf("%w: write sst record %q: %v", ErrIO, tmpPath, err)
		}
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("%w: flush sst %q: %v", ErrIO, tmpPath, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("%w: sync sst %q: %v", ErrIO, tmpPath, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("%w: close sst %q: %v", ErrIO, tmpPath, err)
	}

	// The rename is the commit point: before this, no reader can see
	// the new SST; after it, every reader does.
	if err = os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("%w: rename sst %q to %q: %v", ErrIO, tmpPath, finalPath, err)
	}
	return nil
}

// scanSST streams every record from the SST at path, in file order.
// Unlike WAL replay, any parse error here is fatal: SSTs are never
// partially written under normal flush, so a corrupt SST indicates
// on-disk damage the engine cannot safely paper over.
func scanSST(path string) ([]record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sst %q: %v", ErrIO, path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var out []record.Record
	for {
		rec, err := record.ReadOne(br)
		switch {
		case err == nil:
			out = append(out, *rec)
		case errors.Is(err, io.EOF):
			return out, nil
		default:
			return nil, fmt.Errorf("%w: parse sst %q: %v", ErrRecovery, path, err)
		}
	}
}

// discoverSSTs lists the sequence numbers of every SST file under dir,
// sorted ascending. Filenames that don't match "<n>.log" are ignored
// (this also skips in-flight "<n>.log.tmp" files from an aborted flush).
func discoverSSTs(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list sst dir %q: %v", ErrIO, dir, err)
	}

	var seqs []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".log") {
			continue
		}
		numPart := strings.TrimSuffix(name, ".log")
		n, err := strconv.ParseUint(numPart, 10, 64)
		if err != nil {
			continue
		}
		seqs = append(seqs, n)
	}

	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}
