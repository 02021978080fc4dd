package memtable

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tortoisedb/tortoisedb/internal/record"
)

func TestMemTable_Upsert(t *testing.T) {
	m := New()

	if op := m.Upsert(record.Record{Key: "a", Value: []byte("1"), Timestamp: record.FromMillis(100)}); op != record.Inserted {
		t.Fatalf("first upsert = %s, want Inserted", op)
	}

	if op := m.Upsert(record.Record{Key: "a", Value: []byte("0"), Timestamp: record.FromMillis(50)}); op != record.Rejected {
		t.Fatalf("stale upsert = %s, want Rejected", op)
	}
	got, ok := m.Get("a")
	if !ok || string(got.Value) != "1" {
		t.Fatalf("Get(a) = %v, %v, want value 1", got, ok)
	}

	if op := m.Upsert(record.Record{Key: "a", Value: []byte("2"), Timestamp: record.FromMillis(100)}); op != record.Updated {
		t.Fatalf("equal-timestamp upsert = %s, want Updated (ties favor the newer write)", op)
	}
	got, _ = m.Get("a")
	if string(got.Value) != "2" {
		t.Fatalf("Get(a).Value = %q, want \"2\"", got.Value)
	}

	if op := m.Upsert(record.Record{Key: "a", Value: []byte("3"), Timestamp: record.FromMillis(200)}); op != record.Updated {
		t.Fatalf("newer upsert = %s, want Updated", op)
	}
}

func TestMemTable_GetMiss(t *testing.T) {
	m := New()
	if _, ok := m.Get("missing"); ok {
		t.Fatal("Get(missing) = found, want miss")
	}
}

func TestMemTable_DrainSortedOrder(t *testing.T) {
	m := New()
	keys := []string{"banana", "apple", "cherry", "date"}
	for i, k := range keys {
		m.Upsert(record.Record{Key: k, Value: []byte(k), Timestamp: record.FromMillis(uint64(i))})
	}

	drained := m.Drain()
	want := []string{"apple", "banana", "cherry", "date"}
	var got []string
	for _, r := range drained {
		got = append(got, r.Key)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Drain() order (-want +got):\n%s", diff)
	}

	if m.Len() != 0 {
		t.Fatalf("Len() after Drain = %d, want 0", m.Len())
	}
	if m.SizeHint() != 0 {
		t.Fatalf("SizeHint() after Drain = %d, want 0", m.SizeHint())
	}
}

func TestMemTable_SizeHintMonotone(t *testing.T) {
	m := New()
	m.Upsert(record.Record{Key: "a", Value: []byte("1234567890"), Timestamp: record.FromMillis(1)})
	big := m.SizeHint()

	// A same-or-later write with a shorter value must never decrease
	// the running size estimate.
	m.Upsert(record.Record{Key: "a", Value: []byte("x"), Timestamp: record.FromMillis(2)})
	if m.SizeHint() < big {
		t.Fatalf("SizeHint() decreased from %d to %d after shrinking update", big, m.SizeHint())
	}
}

func TestMemTable_AtMostOneRecordPerKey(t *testing.T) {
	m := New()
	for i := 0; i < 5; i++ {
		m.Upsert(record.Record{Key: "a", Value: []byte("v"), Timestamp: record.FromMillis(uint64(i))})
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}
