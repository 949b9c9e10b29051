package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWatch()
	c.normalizeDecoder()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key   string
		value *string
	}{
		{"paths.inbox_dir", &c.Paths.InboxDir},
		{"paths.work_dir", &c.Paths.WorkDir},
		{"paths.results_dir", &c.Paths.ResultsDir},
		{"paths.archive_dir", &c.Paths.ArchiveDir},
		{"paths.error_dir", &c.Paths.ErrorDir},
		{"paths.log_dir", &c.Paths.LogDir},
		{"paths.state_dir", &c.Paths.StateDir},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeWatch() {
	c.Watch.Extension = normalizeExtension(c.Watch.Extension)
	c.Watch.DestinationExtension = normalizeExtension(c.Watch.DestinationExtension)
}

func normalizeExtension(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(value, ".") {
		value = "." + value
	}
	return value
}

func (c *Config) normalizeDecoder() {
	c.Decoder.Program = strings.TrimSpace(c.Decoder.Program)
	if value, ok := os.LookupEnv(decoderProgramEnv); ok && strings.TrimSpace(value) != "" {
		c.Decoder.Program = strings.TrimSpace(value)
	}
	if strings.HasPrefix(c.Decoder.Program, "~") {
		if expanded, err := expandPath(c.Decoder.Program); err == nil {
			c.Decoder.Program = expanded
		}
	}
	flags := make([]string, 0, len(c.Decoder.Flags))
	for _, flag := range c.Decoder.Flags {
		if trimmed := strings.TrimSpace(flag); trimmed != "" {
			flags = append(flags, trimmed)
		}
	}
	c.Decoder.Flags = flags
	c.Decoder.InputFlag = strings.TrimSpace(c.Decoder.InputFlag)
	c.Decoder.OutputFlag = strings.TrimSpace(c.Decoder.OutputFlag)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
