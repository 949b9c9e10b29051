package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"inboxwatch/internal/logs"
)

func TestLastLines(t *testing.T) {
	cases := []struct {
		name    string
		content string
		limit   int
		want    []string
	}{
		{name: "fewer than limit", content: "a\nb\n", limit: 5, want: []string{"a", "b"}},
		{name: "ring wraps", content: "a\nb\nc\nd\n", limit: 2, want: []string{"c", "d"}},
		{name: "zero limit", content: "a\n", limit: 0, want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "inboxwatch.log")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("write log: %v", err)
			}
			lines, offset, err := logs.Last(path, tc.limit)
			if err != nil {
				t.Fatalf("Last: %v", err)
			}
			if offset != int64(len(tc.content)) {
				t.Fatalf("offset = %d, want %d", offset, len(tc.content))
			}
			if len(lines) != len(tc.want) {
				t.Fatalf("lines = %#v, want %#v", lines, tc.want)
			}
			for i := range lines {
				if lines[i] != tc.want[i] {
					t.Fatalf("lines = %#v, want %#v", lines, tc.want)
				}
			}
		})
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 10)
	if err != nil || len(lines) != 0 || offset != 0 {
		t.Fatalf("expected empty result, got %v %d %v", lines, offset, err)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inboxwatch.log")
	if err := os.WriteFile(path, []byte("start\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	_, offset, err := logs.Last(path, 1)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, 20*time.Millisecond, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\npart"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("follow did not emit appended line")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "later" {
		t.Fatalf("unexpected lines %#v", got)
	}
}
