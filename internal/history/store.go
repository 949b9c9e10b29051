package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one finished job.
type Entry struct {
	ID         int64
	JobID      string
	RunID      string
	FileName   string
	WorkPath   string
	OutputPath string
	FinalPath  string
	Command    string
	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   int
	Outcome    string
	Error      string
}

// Filter narrows List results. A zero Limit means no limit.
type Filter struct {
	Outcome string
	Limit   int
}

// Store is the SQLite-backed job ledger.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// timeLayout is fixed-width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Open creates or opens the ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Record appends a finished job.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.JobID) == "" {
		return errors.New("job id required")
	}
	return s.execWithRetry(ctx,
		`INSERT INTO jobs (
            job_id, run_id, file_name, work_path, output_path, final_path, command,
            started_at, finished_at, exit_code, outcome, error_message
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.JobID,
		nullableString(entry.RunID),
		entry.FileName,
		entry.WorkPath,
		nullableString(entry.OutputPath),
		nullableString(entry.FinalPath),
		nullableString(entry.Command),
		entry.StartedAt.UTC().Format(timeLayout),
		entry.FinishedAt.UTC().Format(timeLayout),
		entry.ExitCode,
		entry.Outcome,
		nullableString(entry.Error),
	)
}

// List returns entries, most recently finished first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `SELECT id, job_id, run_id, file_name, work_path, output_path, final_path, command,
        started_at, finished_at, exit_code, outcome, error_message FROM jobs`
	var args []any
	if outcome := strings.TrimSpace(filter.Outcome); outcome != "" {
		query += " WHERE outcome = ?"
		args = append(args, outcome)
	}
	query += " ORDER BY finished_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return entries, nil
}

// Counts returns the number of recorded jobs per outcome.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT outcome, COUNT(1) FROM jobs GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job counts: %w", err)
	}
	return counts, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var entry Entry
	var runID, outputPath, finalPath, command, errorMessage sql.NullString
	var startedAt, finishedAt string
	if err := scanner.Scan(
		&entry.ID,
		&entry.JobID,
		&runID,
		&entry.FileName,
		&entry.WorkPath,
		&outputPath,
		&finalPath,
		&command,
		&startedAt,
		&finishedAt,
		&entry.ExitCode,
		&entry.Outcome,
		&errorMessage,
	); err != nil {
		return Entry{}, fmt.Errorf("scan job: %w", err)
	}
	entry.RunID = runID.String
	entry.OutputPath = outputPath.String
	entry.FinalPath = finalPath.String
	entry.Command = command.String
	entry.Error = errorMessage.String
	if t, err := time.Parse(timeLayout, startedAt); err == nil {
		entry.StartedAt = t
	}
	if t, err := time.Parse(timeLayout, finishedAt); err == nil {
		entry.FinishedAt = t
	}
	return entry, nil
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
