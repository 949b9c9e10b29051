package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the stage directories and daemon bookkeeping locations.
type Paths struct {
	InboxDir   string `toml:"inbox_dir"`
	WorkDir    string `toml:"work_dir"`
	ResultsDir string `toml:"results_dir"`
	ArchiveDir string `toml:"archive_dir"`
	ErrorDir   string `toml:"error_dir"`
	LogDir     string `toml:"log_dir"`
	StateDir   string `toml:"state_dir"`
}

// Watch describes which inbox files are picked up and what they become.
type Watch struct {
	Extension            string `toml:"extension"`
	DestinationExtension string `toml:"destination_extension"`
	// ScanExisting records files already present in the inbox at startup.
	ScanExisting bool `toml:"scan_existing"`
}

// Decoder is the external program template invoked once per stable file:
//
//	<program> <flags...> <input_flag> <work_path> <output_flag> <output_path>
type Decoder struct {
	Program       string   `toml:"program"`
	Flags         []string `toml:"flags"`
	InputFlag     string   `toml:"input_flag"`
	OutputFlag    string   `toml:"output_flag"`
	CaptureOutput bool     `toml:"capture_output"`
}

// Scheduler contains tick timing, admission control, and timeout policy.
// All durations are in seconds.
type Scheduler struct {
	TickInterval           int `toml:"tick_interval"`
	StabilizationThreshold int `toml:"stabilization_threshold"`
	MaxConcurrentJobs      int `toml:"max_concurrent_jobs"`
	StuckAfter             int `toml:"stuck_after"`
	KillAfter              int `toml:"kill_after"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// History controls the SQLite job ledger.
type History struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for inboxwatch.
//
// Configuration sections by subsystem:
//   - Paths: inbox, work, results, archive, error, log, and state directories
//   - Watch: watched and destination file extensions
//   - Decoder: external decode program command template
//   - Scheduler: tick interval, stabilization threshold, concurrency, timeouts
//   - Logging: log format, level, and retention
//   - History: job ledger toggle
type Config struct {
	Paths     Paths     `toml:"paths"`
	Watch     Watch     `toml:"watch"`
	Decoder   Decoder   `toml:"decoder"`
	Scheduler Scheduler `toml:"scheduler"`
	Logging   Logging   `toml:"logging"`
	History   History   `toml:"history"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPathValue)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigFile)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// StageDirs returns the five stage directories keyed by their config name, in
// pipeline order.
func (c *Config) StageDirs() []NamedDir {
	return []NamedDir{
		{Name: "inbox", Path: c.Paths.InboxDir},
		{Name: "work", Path: c.Paths.WorkDir},
		{Name: "results", Path: c.Paths.ResultsDir},
		{Name: "archive", Path: c.Paths.ArchiveDir},
		{Name: "error", Path: c.Paths.ErrorDir},
	}
}

// NamedDir pairs a directory with its role.
type NamedDir struct {
	Name string
	Path string
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := make([]string, 0, 7)
	for _, dir := range c.StageDirs() {
		dirs = append(dirs, dir.Path)
	}
	dirs = append(dirs, c.Paths.LogDir, c.Paths.StateDir)
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// TickInterval returns the scheduler tick interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickInterval) * time.Second
}

// StabilizationThreshold returns the idle time required before a file is processed.
func (c *Config) StabilizationThreshold() time.Duration {
	return time.Duration(c.Scheduler.StabilizationThreshold) * time.Second
}

// StuckAfter returns the runtime after which a job is reported as stuck. Zero disables.
func (c *Config) StuckAfter() time.Duration {
	return time.Duration(c.Scheduler.StuckAfter) * time.Second
}

// KillAfter returns the runtime after which a job is terminated. Zero disables.
func (c *Config) KillAfter() time.Duration {
	return time.Duration(c.Scheduler.KillAfter) * time.Second
}

// HistoryPath returns the SQLite job ledger location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "inboxwatch.lock")
}

// JobLogDir returns the directory holding captured decoder output.
func (c *Config) JobLogDir() string {
	return filepath.Join(c.Paths.LogDir, "jobs")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
