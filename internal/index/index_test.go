package index

import (
	"testing"

	"github.com/tortoisedb/tortoisedb/internal/record"
)

func TestIndex_MergeStrictlyGreater(t *testing.T) {
	idx := New()

	idx.Merge(record.Record{Key: "a", Value: []byte("1"), Timestamp: record.FromMillis(100)})
	got, ok := idx.Get("a")
	if !ok || string(got.Value) != "1" {
		t.Fatalf("Get(a) = %v, %v, want value 1", got, ok)
	}

	// Equal timestamp: index merge uses strict-greater, so a replay of
	// the same record must not count as a change.
	idx.Merge(record.Record{Key: "a", Value: []byte("1-again"), Timestamp: record.FromMillis(100)})
	got, _ = idx.Get("a")
	if string(got.Value) != "1" {
		t.Fatalf("equal-timestamp merge replaced value: got %q, want \"1\"", got.Value)
	}

	idx.Merge(record.Record{Key: "a", Value: []byte("2"), Timestamp: record.FromMillis(200)})
	got, _ = idx.Get("a")
	if string(got.Value) != "2" {
		t.Fatalf("strictly-greater merge did not replace value: got %q, want \"2\"", got.Value)
	}

	idx.Merge(record.Record{Key: "a", Value: []byte("stale"), Timestamp: record.FromMillis(150)})
	got, _ = idx.Get("a")
	if string(got.Value) != "2" {
		t.Fatalf("stale merge replaced value: got %q, want \"2\"", got.Value)
	}
}

func TestIndex_Len(t *testing.T) {
	idx := New()
	for _, k := range []string{"a", "b", "c"} {
		idx.Merge(record.Record{Key: k, Value: []byte("v"), Timestamp: record.FromMillis(1)})
	}
	if idx.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", idx.Len())
	}
}

func TestIndex_GetMiss(t *testing.T) {
	idx := New()
	if _, ok := idx.Get("missing"); ok {
		t.Fatal("Get(missing) = found, want miss")
	}
}
