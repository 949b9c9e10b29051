// Package watcher turns filesystem notifications on the inbox directory into
// activity signals for the scheduler.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"inboxwatch/internal/logging"
)

// Recorder receives activity for inbox files. The scheduler implements it.
type Recorder interface {
	Record(name string, at time.Time)
}

// DirectoryWatcher watches one directory, non-recursively, for writes to
// files carrying the watched extension.
type DirectoryWatcher struct {
	dir       string
	extension string
	logger    *slog.Logger
	now       func() time.Time
	fsw       *fsnotify.Watcher
}

// New registers a watch on dir. Failing to create or register the watch is
// returned to the caller; the daemon treats it as fatal.
func New(dir, extension string, logger *slog.Logger) (*DirectoryWatcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("inbox directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("inbox directory %s is not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &DirectoryWatcher{
		dir:       dir,
		extension: extension,
		logger:    logging.NewComponentLogger(logger, "watcher"),
		now:       time.Now,
		fsw:       fsw,
	}, nil
}

// Run forwards matching events to rec until ctx is cancelled or the
// underlying watcher is closed. Notification errors are logged and do not
// stop the loop.
func (w *DirectoryWatcher) Run(ctx context.Context, rec Recorder) error {
	defer w.fsw.Close()

	w.logger.Info("watching inbox",
		logging.String("dir", w.dir),
		logging.String("extension", w.extension),
		logging.String(logging.FieldEventType, "watch_started"),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event, rec)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logging.WarnWithContext(w.logger, "inotify queue overflowed; events were lost", "watch_overflow",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "raise fs.inotify.max_queued_events or restart with scan_existing"),
					logging.String(logging.FieldImpact, "some inbox writes may not have been recorded"),
				)
				continue
			}
			logging.WarnWithContext(w.logger, "inbox watch error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "watching continues"),
			)
		}
	}
}

func (w *DirectoryWatcher) handle(event fsnotify.Event, rec Recorder) {
	name := filepath.Base(event.Name)
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		w.logger.Debug("event ignored", logging.File(name), logging.String("op", event.Op.String()))
		return
	}
	if !w.Matches(name) {
		w.logger.Debug("file ignored; extension does not match", logging.File(name), logging.String("op", event.Op.String()))
		return
	}
	info, err := os.Lstat(filepath.Join(w.dir, name))
	if err != nil {
		w.logger.Debug("file ignored; no longer in inbox", logging.File(name), logging.Error(err))
		return
	}
	if !info.Mode().IsRegular() {
		w.logger.Debug("file ignored; not a regular file", logging.File(name), logging.String("mode", info.Mode().String()))
		return
	}
	rec.Record(name, w.now())
}

// Matches reports whether name carries the watched extension.
func (w *DirectoryWatcher) Matches(name string) bool {
	return matches(name, w.extension)
}

func matches(name, extension string) bool {
	return len(name) > len(extension) && strings.HasSuffix(name, extension)
}

// Close releases the watch without running the loop.
func (w *DirectoryWatcher) Close() error {
	return w.fsw.Close()
}

// ScanExisting records files already present in dir, using each file's
// modification time as its last activity. It returns the recorded names.
func ScanExisting(dir, extension string, rec Recorder) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan inbox: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !matches(entry.Name(), extension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		rec.Record(entry.Name(), info.ModTime())
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ListFiles returns the regular files in dir, sorted by name.
func ListFiles(dir string) ([]os.FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, info)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })
	return files, nil
}
