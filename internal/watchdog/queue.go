package watchdog

import (
	"sort"
	"time"
)

// QueueEntry is a file still arriving in the inbox.
type QueueEntry struct {
	Name         string
	LastActivity time.Time
}

// activityQueue maps inbox filenames to their most recent activity. Callers
// hold the scheduler lock.
type activityQueue struct {
	entries map[string]time.Time
}

func newActivityQueue() *activityQueue {
	return &activityQueue{entries: make(map[string]time.Time)}
}

// record inserts or refreshes name. An activity older than the stored one
// leaves the entry unchanged. It reports whether the entry is new.
func (q *activityQueue) record(name string, at time.Time) bool {
	last, ok := q.entries[name]
	if !ok {
		q.entries[name] = at
		return true
	}
	if at.After(last) {
		q.entries[name] = at
	}
	return false
}

func (q *activityQueue) lastActivity(name string) (time.Time, bool) {
	at, ok := q.entries[name]
	return at, ok
}

func (q *activityQueue) remove(name string) {
	delete(q.entries, name)
}

func (q *activityQueue) has(name string) bool {
	_, ok := q.entries[name]
	return ok
}

func (q *activityQueue) len() int {
	return len(q.entries)
}

// names returns a sorted snapshot so a tick can mutate the queue while
// iterating in a stable order.
func (q *activityQueue) names() []string {
	names := make([]string, 0, len(q.entries))
	for name := range q.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (q *activityQueue) snapshot() []QueueEntry {
	names := q.names()
	out := make([]QueueEntry, 0, len(names))
	for _, name := range names {
		out = append(out, QueueEntry{Name: name, LastActivity: q.entries[name]})
	}
	return out
}
