// Package config loads runtime configuration from a YAML file overlaid with
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no path is given.
var DefaultPath = filepath.Join("config", "backoffice.yaml")

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Sync     SyncConfig     `yaml:"sync"`
	Loans    LoansConfig    `yaml:"loans"`
}

type ServerConfig struct {
	Host         string        `yaml:"host" env:"SERVER_HOST"`
	Port         int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	CORSOrigins  []string      `yaml:"cors_origins" env:"SERVER_CORS_ORIGINS"`
	AuditLogPath string        `yaml:"audit_log_path" env:"AUDIT_LOG_PATH"`
}

// DatabaseConfig holds the local (primary) connection and the optional cloud
// replica used by the sync job.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" env:"DATABASE_URL"`
	CloudDSN        string `yaml:"cloud_dsn" env:"CLOUD_DATABASE_URL"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	AutoMigrate     bool   `yaml:"auto_migrate" env:"DATABASE_AUTO_MIGRATE"`
}

type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL        time.Duration `yaml:"token_ttl" env:"JWT_TOKEN_TTL"`
	LoginRatePerSec int           `yaml:"login_rate_per_sec" env:"LOGIN_RATE_PER_SEC"`
	LoginBurst      int           `yaml:"login_burst" env:"LOGIN_BURST"`
	APIRatePerSec   int           `yaml:"api_rate_per_sec" env:"API_RATE_PER_SEC"`
	APIBurst        int           `yaml:"api_burst" env:"API_BURST"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
	Dir        string `yaml:"dir" env:"LOG_DIR"`
}

// RedisConfig enables distributed job locks and the sync order cache. An
// empty Addr keeps both in-process.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type StorageConfig struct {
	UploadDir      string `yaml:"upload_dir" env:"UPLOAD_DIR"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`
}

// ScheduleConfig holds cron specs. An empty spec disables the job.
type ScheduleConfig struct {
	Enabled       bool   `yaml:"enabled" env:"SCHEDULE_ENABLED"`
	Archive       string `yaml:"archive" env:"SCHEDULE_ARCHIVE"`
	Notifications string `yaml:"notifications" env:"SCHEDULE_NOTIFICATIONS"`
	Delinquency   string `yaml:"delinquency" env:"SCHEDULE_DELINQUENCY"`
	Sync          string `yaml:"sync" env:"SCHEDULE_SYNC"`
}

type SyncConfig struct {
	Enabled        bool          `yaml:"enabled" env:"SYNC_ENABLED"`
	Node           string        `yaml:"node" env:"SYNC_NODE"`
	CloudNode      string        `yaml:"cloud_node" env:"SYNC_CLOUD_NODE"`
	BatchSize      int           `yaml:"batch_size" env:"SYNC_BATCH_SIZE"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"SYNC_CONNECT_TIMEOUT"`
	Tables         []string      `yaml:"tables" env:"SYNC_TABLES"`
}

type LoansConfig struct {
	ReminderDays     int `yaml:"reminder_days" env:"LOAN_REMINDER_DAYS"`
	GraceDays        int `yaml:"grace_days" env:"LOAN_GRACE_DAYS"`
	PenaltyBP        int `yaml:"penalty_bp" env:"LOAN_PENALTY_BP"`
	ArchiveAfterDays int `yaml:"archive_after_days" env:"LOAN_ARCHIVE_AFTER_DAYS"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Auth: AuthConfig{
			TokenTTL:        12 * time.Hour,
			LoginRatePerSec: 1,
			LoginBurst:      5,
			APIRatePerSec:   20,
			APIBurst:        40,
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout", FilePrefix: "backoffice"},
		Storage: StorageConfig{UploadDir: "storage/uploads", MaxUploadBytes: 10 << 20},
		Schedule: ScheduleConfig{
			Enabled:       true,
			Archive:       "0 2 * * *",
			Notifications: "0 * * * *",
			Delinquency:   "30 0 * * *",
			Sync:          "*/5 * * * *",
		},
		Sync: SyncConfig{
			Node:           "local",
			CloudNode:      "cloud",
			BatchSize:      500,
			ConnectTimeout: 5 * time.Second,
			Tables: []string{
				"users", "cooperatives", "members", "programs", "checklists",
				"coop_programs", "checklist_uploads", "amortization_schedules", "notifications",
			},
		},
		Loans: LoansConfig{ReminderDays: 7, GraceDays: 30, PenaltyBP: 200, ArchiveAfterDays: 90},
	}
}

// Load reads path (DefaultPath when empty), then applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Database.DSN) == "" {
		problems = append(problems, "database.dsn is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if len(c.Auth.JWTSecret) < 32 {
		problems = append(problems, "auth.jwt_secret must be at least 32 characters")
	}
	if c.Sync.Enabled {
		if strings.TrimSpace(c.Database.CloudDSN) == "" {
			problems = append(problems, "database.cloud_dsn is required when sync is enabled")
		}
		if strings.TrimSpace(c.Sync.Node) == "" {
			problems = append(problems, "sync.node is required when sync is enabled")
		}
		if c.Sync.Node == c.Sync.CloudNode {
			problems = append(problems, "sync.node and sync.cloud_node must differ")
		}
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"archive":       c.Schedule.Archive,
		"notifications": c.Schedule.Notifications,
		"delinquency":   c.Schedule.Delinquency,
		"sync":          c.Schedule.Sync,
	} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			problems = append(problems, fmt.Sprintf("schedule.%s: %v", name, err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
