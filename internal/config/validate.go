package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNoProgram reports a missing decoder program.
var ErrNoProgram = errors.New("decoder.program must be set")

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateDecoder(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	seen := make(map[string]string, 5)
	for _, dir := range c.StageDirs() {
		if strings.TrimSpace(dir.Path) == "" {
			return fmt.Errorf("paths.%s_dir must be set", dir.Name)
		}
		clean := filepath.Clean(dir.Path)
		if other, ok := seen[clean]; ok {
			return fmt.Errorf("paths.%s_dir and paths.%s_dir must be different directories", other, dir.Name)
		}
		seen[clean] = dir.Name
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.Extension == "" || c.Watch.Extension == "." {
		return errors.New("watch.extension must be set")
	}
	if c.Watch.DestinationExtension == "" || c.Watch.DestinationExtension == "." {
		return errors.New("watch.destination_extension must be set")
	}
	return nil
}

func (c *Config) validateDecoder() error {
	if c.Decoder.Program == "" {
		return fmt.Errorf("%w (or set %s)", ErrNoProgram, decoderProgramEnv)
	}
	if c.Decoder.InputFlag == "" {
		return errors.New("decoder.input_flag must be set")
	}
	if c.Decoder.OutputFlag == "" {
		return errors.New("decoder.output_flag must be set")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if err := ensurePositiveMap(map[string]int{
		"scheduler.tick_interval":           c.Scheduler.TickInterval,
		"scheduler.stabilization_threshold": c.Scheduler.StabilizationThreshold,
	}); err != nil {
		return err
	}
	if c.Scheduler.MaxConcurrentJobs < 0 {
		return errors.New("scheduler.max_concurrent_jobs must be >= 0 (0 means unbounded)")
	}
	if c.Scheduler.StuckAfter < 0 {
		return errors.New("scheduler.stuck_after must be >= 0 (0 disables)")
	}
	if c.Scheduler.KillAfter < 0 {
		return errors.New("scheduler.kill_after must be >= 0 (0 disables)")
	}
	if c.Scheduler.StuckAfter > 0 && c.Scheduler.KillAfter > 0 && c.Scheduler.KillAfter <= c.Scheduler.StuckAfter {
		return errors.New("scheduler.kill_after must be greater than scheduler.stuck_after")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
