package watchdog

import (
	"reflect"
	"testing"
	"time"
)

func TestActivityQueueRecord(t *testing.T) {
	q := newActivityQueue()

	if !q.record("a.bin", epoch) {
		t.Fatal("first record should create the entry")
	}
	if q.record("a.bin", epoch.Add(30*time.Second)) {
		t.Fatal("second record should refresh, not create")
	}
	last, ok := q.lastActivity("a.bin")
	if !ok || !last.Equal(epoch.Add(30*time.Second)) {
		t.Fatalf("expected refreshed activity, got %v", last)
	}

	q.record("a.bin", epoch.Add(10*time.Second))
	if last, _ := q.lastActivity("a.bin"); !last.Equal(epoch.Add(30 * time.Second)) {
		t.Fatalf("older activity moved the entry backwards to %v", last)
	}
}

func TestActivityQueueNamesSorted(t *testing.T) {
	q := newActivityQueue()
	for _, name := range []string{"c.bin", "a.bin", "b.bin"} {
		q.record(name, epoch)
	}

	if got := q.names(); !reflect.DeepEqual(got, []string{"a.bin", "b.bin", "c.bin"}) {
		t.Fatalf("unexpected order %v", got)
	}

	q.remove("b.bin")
	if q.has("b.bin") || q.len() != 2 {
		t.Fatalf("remove failed: %v", q.names())
	}
	snap := q.snapshot()
	if len(snap) != 2 || snap[0].Name != "a.bin" || !snap[0].LastActivity.Equal(epoch) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestJobRegistry(t *testing.T) {
	r := newJobRegistry()
	r.add(&Job{ID: "1", Name: "b.bin", Process: &fakeProcess{pid: 7}})
	r.add(&Job{ID: "2", Name: "a.bin"})

	if !r.has("a.bin") || r.len() != 2 {
		t.Fatal("expected two jobs")
	}
	snap := r.snapshot()
	if snap[0].Name != "a.bin" || snap[1].PID != 7 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	r.remove("a.bin")
	if _, ok := r.get("a.bin"); ok {
		t.Fatal("expected job removed")
	}
}
