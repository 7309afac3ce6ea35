package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	Sessions    SessionsConfig   `toml:"sessions"`
	Retention   RetentionConfig  `toml:"retention"`
	Processing  ProcessingConfig `toml:"processing"`
	Logging     LoggingConfig    `toml:"logging"`
	WebSocket   WebSocketConfig  `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// SchedulerConfig bounds concurrent processing operations
type SchedulerConfig struct {
	MaxConcurrent int `toml:"max_concurrent"` // Hard cap on simultaneous executions
}

// SessionsConfig controls time-window grouping and routing of new work.
// Durations are configured as strings (e.g. "5m") and validated at startup.
type SessionsConfig struct {
	Window   string `toml:"window"`    // Time window for session grouping and reuse
	PruneAge string `toml:"prune_age"` // Age after which ended sessions are swept from the registry
}

// WindowDuration returns the parsed session window
func (s *SessionsConfig) WindowDuration() time.Duration {
	return parseDuration(s.Window, 5*time.Minute)
}

// PruneAgeDuration returns the parsed prune age
func (s *SessionsConfig) PruneAgeDuration() time.Duration {
	return parseDuration(s.PruneAge, 24*time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// RetentionConfig controls scheduled cleanup of finished jobs and batches
type RetentionConfig struct {
	Enabled    bool   `toml:"enabled"`
	Schedule   string `toml:"schedule"`     // Cron schedule for the cleanup sweep
	MaxAgeDays int    `toml:"max_age_days"` // Delete completed/failed entities older than this
}

// ProcessingConfig configures the default command-based processor bound to
// the engine by cmd/curo. Any Processor implementation may replace it.
type ProcessingConfig struct {
	Command   string `toml:"command"`    // Command template; {input} and {output} are substituted
	OutputDir string `toml:"output_dir"` // Directory for produced outputs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// WebSocketConfig controls progress-event streaming to connected clients
type WebSocketConfig struct {
	// ProgressThrottle limits job_progress events per connection
	// (e.g. "250ms" for at most 4 updates per second); empty disables throttling
	ProgressThrottle string `toml:"progress_throttle"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Scheduler: SchedulerConfig{
			MaxConcurrent: 2,
		},
		Sessions: SessionsConfig{
			Window:   "5m",
			PruneAge: "24h",
		},
		Retention: RetentionConfig{
			Enabled:    true,
			Schedule:   "0 3 * * *", // Daily sweep at 03:00
			MaxAgeDays: 7,
		},
		Processing: ProcessingConfig{
			OutputDir: "./data/output",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		WebSocket: WebSocketConfig{
			ProgressThrottle: "250ms",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CURO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("CURO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CURO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("CURO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if maxConcurrent := os.Getenv("CURO_SCHEDULER_MAX_CONCURRENT"); maxConcurrent != "" {
		if mc, err := strconv.Atoi(maxConcurrent); err == nil {
			config.Scheduler.MaxConcurrent = mc
		}
	}

	if window := os.Getenv("CURO_SESSIONS_WINDOW"); window != "" {
		if _, err := time.ParseDuration(window); err == nil {
			config.Sessions.Window = window
		}
	}
	if pruneAge := os.Getenv("CURO_SESSIONS_PRUNE_AGE"); pruneAge != "" {
		if _, err := time.ParseDuration(pruneAge); err == nil {
			config.Sessions.PruneAge = pruneAge
		}
	}

	if enabled := os.Getenv("CURO_RETENTION_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Retention.Enabled = e
		}
	}
	if schedule := os.Getenv("CURO_RETENTION_SCHEDULE"); schedule != "" {
		config.Retention.Schedule = schedule
	}
	if maxAge := os.Getenv("CURO_RETENTION_MAX_AGE_DAYS"); maxAge != "" {
		if ma, err := strconv.Atoi(maxAge); err == nil {
			config.Retention.MaxAgeDays = ma
		}
	}

	if command := os.Getenv("CURO_PROCESSING_COMMAND"); command != "" {
		config.Processing.Command = command
	}
	if outputDir := os.Getenv("CURO_PROCESSING_OUTPUT_DIR"); outputDir != "" {
		config.Processing.OutputDir = outputDir
	}

	if level := os.Getenv("CURO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CURO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if throttle := os.Getenv("CURO_WEBSOCKET_PROGRESS_THROTTLE"); throttle != "" {
		if _, err := time.ParseDuration(throttle); err == nil {
			config.WebSocket.ProgressThrottle = throttle
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks configuration consistency at startup
func (c *Config) Validate() error {
	if c.Scheduler.MaxConcurrent < 1 {
		return fmt.Errorf("scheduler max_concurrent must be at least 1, got %d", c.Scheduler.MaxConcurrent)
	}
	if w, err := time.ParseDuration(c.Sessions.Window); err != nil {
		return fmt.Errorf("invalid sessions window %q: %w", c.Sessions.Window, err)
	} else if w <= 0 {
		return fmt.Errorf("sessions window must be positive, got %s", c.Sessions.Window)
	}
	if pa, err := time.ParseDuration(c.Sessions.PruneAge); err != nil {
		return fmt.Errorf("invalid sessions prune_age %q: %w", c.Sessions.PruneAge, err)
	} else if pa <= 0 {
		return fmt.Errorf("sessions prune_age must be positive, got %s", c.Sessions.PruneAge)
	}
	if c.Retention.MaxAgeDays < 1 {
		return fmt.Errorf("retention max_age_days must be at least 1, got %d", c.Retention.MaxAgeDays)
	}
	if c.Retention.Enabled {
		if err := ValidateRetentionSchedule(c.Retention.Schedule); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRetentionSchedule validates a cron schedule expression
func ValidateRetentionSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
