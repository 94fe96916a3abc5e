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
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	SMTP        SMTPConfig      `toml:"smtp"`
	WhatsApp    WhatsAppConfig  `toml:"whatsapp"`
	Notify      NotifyConfig    `toml:"notify"`
	Workflows   WorkflowsConfig `toml:"workflows"`
	Logging     LoggingConfig   `toml:"logging"`
	Schedules   []ScheduleEntry `toml:"schedules"`
}

// StorageConfig holds SQLite storage settings
type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
}

// SQLiteConfig represents SQLite-specific configuration
type SQLiteConfig struct {
	Path          string `toml:"path"`            // Database file path
	WALMode       bool   `toml:"wal_mode"`        // Enable WAL journal mode
	BusyTimeoutMS int    `toml:"busy_timeout_ms"` // SQLite busy timeout in milliseconds
}

// QueueConfig holds background queue settings
type QueueConfig struct {
	Enabled      bool   `toml:"enabled"`       // When false the dispatcher delivers inline
	QueueName    string `toml:"queue_name"`    // goqite queue name
	JobName      string `toml:"job_name"`      // Logical job name recorded on queued deliveries
	PollInterval string `toml:"poll_interval"` // e.g. "1s" - how often workers poll for messages
	Concurrency  int    `toml:"concurrency"`   // Number of concurrent workers
}

// SMTPConfig holds email adapter settings
type SMTPConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	FromEmail string `toml:"from_email"` // Falls back to username when empty
	UseTLS    bool   `toml:"use_tls"`    // STARTTLS when true
	Timeout   string `toml:"timeout"`    // SMTP dial/send deadline, e.g. "10s"
}

// WhatsAppConfig holds the CLI bridge command for the whatsapp channel.
// An empty command selects the built-in simulation.
type WhatsAppConfig struct {
	Command []string `toml:"command"`
	Timeout string   `toml:"timeout"` // Subprocess deadline, e.g. "10s"
}

// NotifyConfig holds dispatcher-wide settings
type NotifyConfig struct {
	Timezone string `toml:"timezone"` // IANA zone used for quiet-hours checks (default: UTC)
}

// WorkflowsConfig holds playbook and template directory locations
type WorkflowsConfig struct {
	PlaybooksDir string `toml:"playbooks_dir"` // Directory containing playbook YAML files
	TemplatesDir string `toml:"templates_dir"` // Directory containing email templates (<name>.txt / <name>.html)
}

// LoggingConfig controls arbor writer setup
type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// ScheduleEntry binds a playbook to a cron expression
type ScheduleEntry struct {
	Playbook string `toml:"playbook"`
	Cron     string `toml:"cron"`
	DryRun   bool   `toml:"dry_run"`
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings are exposed in avisor.toml; technical
// parameters are hardcoded here for stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/avisor.db",
				WALMode:       true,
				BusyTimeoutMS: 5000,
			},
		},
		Queue: QueueConfig{
			Enabled:      false,
			QueueName:    "avisor_notifications",
			JobName:      "app.notify.worker.dispatch",
			PollInterval: "1s",
			Concurrency:  4,
		},
		SMTP: SMTPConfig{
			Port:    587,
			UseTLS:  true,
			Timeout: "10s",
		},
		WhatsApp: WhatsAppConfig{
			Timeout: "10s",
		},
		Notify: NotifyConfig{
			Timezone: "UTC",
		},
		Workflows: WorkflowsConfig{
			PlaybooksDir: "./workflows/playbooks",
			TemplatesDir: "./workflows/templates/email",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFile loads configuration from a TOML file, applying defaults
// for any missing values and environment overrides on top
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies AVISOR_* environment variables over file values
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("AVISOR_ENVIRONMENT"); v != "" {
		config.Environment = v
	}
	if v := os.Getenv("AVISOR_SQLITE_PATH"); v != "" {
		config.Storage.SQLite.Path = v
	}
	if v := os.Getenv("AVISOR_SMTP_HOST"); v != "" {
		config.SMTP.Host = v
	}
	if v := os.Getenv("AVISOR_SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.SMTP.Port = port
		}
	}
	if v := os.Getenv("AVISOR_SMTP_USERNAME"); v != "" {
		config.SMTP.Username = v
	}
	if v := os.Getenv("AVISOR_SMTP_PASSWORD"); v != "" {
		config.SMTP.Password = v
	}
	if v := os.Getenv("AVISOR_SMTP_FROM"); v != "" {
		config.SMTP.FromEmail = v
	}
	if v := os.Getenv("AVISOR_QUEUE_ENABLED"); v != "" {
		config.Queue.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("AVISOR_TIMEZONE"); v != "" {
		config.Notify.Timezone = v
	}
	if v := os.Getenv("AVISOR_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// Validate checks durations, timezone and schedule expressions
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Queue.PollInterval); err != nil {
		return fmt.Errorf("invalid queue.poll_interval %q: %w", c.Queue.PollInterval, err)
	}
	if _, err := time.ParseDuration(c.SMTP.Timeout); err != nil {
		return fmt.Errorf("invalid smtp.timeout %q: %w", c.SMTP.Timeout, err)
	}
	if _, err := time.ParseDuration(c.WhatsApp.Timeout); err != nil {
		return fmt.Errorf("invalid whatsapp.timeout %q: %w", c.WhatsApp.Timeout, err)
	}
	if _, err := time.LoadLocation(c.Notify.Timezone); err != nil {
		return fmt.Errorf("invalid notify.timezone %q: %w", c.Notify.Timezone, err)
	}
	for _, entry := range c.Schedules {
		if entry.Playbook == "" {
			return fmt.Errorf("schedule entry missing playbook name")
		}
		if _, err := cron.ParseStandard(entry.Cron); err != nil {
			return fmt.Errorf("invalid cron expression %q for playbook %s: %w", entry.Cron, entry.Playbook, err)
		}
	}
	return nil
}

// Location resolves the configured quiet-hours timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Notify.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Poll parses the worker poll interval with a safe fallback
func (c *QueueConfig) Poll() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// Workers returns the worker count, never less than one
func (c *QueueConfig) Workers() int {
	if c.Concurrency < 1 {
		return 1
	}
	return c.Concurrency
}

// AdapterTimeout parses the SMTP deadline with a safe fallback
func (c *SMTPConfig) AdapterTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// AdapterTimeout parses the subprocess deadline with a safe fallback
func (c *WhatsAppConfig) AdapterTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
