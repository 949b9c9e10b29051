package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// LogSet is a directory and the glob of prunable files in it. Name labels
// the set in the sweep summary.
type LogSet struct {
	Name    string
	Dir     string
	Pattern string
}

// LogRetention removes log files whose modification time is older than
// MaxAge. Paths listed in Keep are never removed, so the active run's files
// survive regardless of age. A zero MaxAge disables pruning.
type LogRetention struct {
	MaxAge time.Duration
	Keep   []string
	// Now defaults to time.Now.
	Now func() time.Time
}

// RetentionFromDays converts the logging.retention_days setting.
func RetentionFromDays(days int, keep ...string) LogRetention {
	if days <= 0 {
		return LogRetention{}
	}
	return LogRetention{MaxAge: time.Duration(days) * 24 * time.Hour, Keep: keep}
}

// PruneReport summarizes one sweep.
type PruneReport struct {
	Removed int
	Bytes   int64
	Failed  int
	BySet   map[string]int
}

// Prune sweeps every set once and logs a summary when anything was removed.
func (r LogRetention) Prune(logger *slog.Logger, sets ...LogSet) PruneReport {
	report := PruneReport{BySet: make(map[string]int, len(sets))}
	if r.MaxAge <= 0 {
		return report
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	cutoff := now().Add(-r.MaxAge)
	keep := make(map[string]struct{}, len(r.Keep))
	for _, path := range r.Keep {
		if path != "" {
			keep[canonicalPath(path)] = struct{}{}
		}
	}

	for _, set := range sets {
		if set.Dir == "" {
			continue
		}
		pattern := set.Pattern
		if pattern == "" {
			pattern = "*"
		}
		matches, err := filepath.Glob(filepath.Join(set.Dir, pattern))
		if err != nil {
			WarnWithContext(logger, "invalid log retention pattern", "log_retention_failed",
				String("dir", set.Dir),
				String("pattern", pattern),
				Error(err),
				String(FieldImpact, "files in this set are never pruned"),
			)
			continue
		}
		sort.Strings(matches)
		for _, path := range matches {
			if _, protected := keep[canonicalPath(path)]; protected {
				continue
			}
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				report.Failed++
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check file permissions and log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			report.Removed++
			report.Bytes += info.Size()
			report.BySet[set.Name]++
		}
	}

	if report.Removed > 0 && logger != nil {
		attrs := []Attr{
			Int("removed", report.Removed),
			Int64("bytes", report.Bytes),
			Duration("max_age", r.MaxAge),
			String(FieldEventType, "logs_pruned"),
		}
		for _, set := range sets {
			if n := report.BySet[set.Name]; n > 0 && set.Name != "" {
				attrs = append(attrs, Int("removed_"+set.Name, n))
			}
		}
		logger.Info("old logs pruned", Args(attrs...)...)
	}
	return report
}

func canonicalPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
