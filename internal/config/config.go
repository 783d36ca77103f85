package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sydlexius/confluence/internal/catalog"
	"github.com/sydlexius/confluence/internal/event"
	"github.com/sydlexius/confluence/internal/logging"
	"github.com/sydlexius/confluence/internal/reconcile"
	"github.com/sydlexius/confluence/internal/webhook"
)

// Config holds all application configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Logging     logging.Config    `yaml:"logging"`
	Reconcile   ReconcileConfig   `yaml:"reconcile"`
	Inbox       InboxConfig       `yaml:"inbox"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Backup      BackupConfig      `yaml:"backup"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Webhooks    []webhook.Webhook `yaml:"webhooks" validate:"dive"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// ReconcileConfig tunes the reconciliation engine.
type ReconcileConfig struct {
	DurationBucketMS int     `yaml:"duration_bucket_ms" validate:"gt=0"`
	ScalarPolicy     string  `yaml:"scalar_policy" validate:"scalar_policy"`
	MinConfidence    float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`
	Actor            string  `yaml:"actor"`
}

// InboxConfig holds the watched batch directory and where processed files go.
type InboxConfig struct {
	Path         string        `yaml:"path"`
	ProcessedDir string        `yaml:"processed_dir"`
	FailedDir    string        `yaml:"failed_dir"`
	Debounce     time.Duration `yaml:"debounce" validate:"gte=0"`
}

// MetricsConfig holds the Prometheus endpoint. An empty listen address
// disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`
}

// BackupConfig controls catalog snapshots. A zero interval disables
// scheduled snapshots; the backup command still works.
type BackupConfig struct {
	Dir       string        `yaml:"dir"`
	Retention int           `yaml:"retention" validate:"gte=0"`
	Interval  time.Duration `yaml:"interval" validate:"gte=0"`
}

// MaintenanceConfig controls periodic PRAGMA optimize while watching.
type MaintenanceConfig struct {
	OptimizeInterval time.Duration `yaml:"optimize_interval" validate:"gte=0"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "/data/confluence.db",
		},
		Logging: logging.DefaultConfig(),
		Reconcile: ReconcileConfig{
			DurationBucketMS: 2000,
			ScalarPolicy:     string(catalog.KeepExisting),
			Actor:            "confluence",
		},
		Inbox: InboxConfig{
			Debounce: 2 * time.Second,
		},
		Backup: BackupConfig{
			Retention: 7,
		},
		Maintenance: MaintenanceConfig{
			OptimizeInterval: 24 * time.Hour,
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("CONFLUENCE_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CONFLUENCE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CONFLUENCE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("CONFLUENCE_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("CONFLUENCE_INBOX_PATH"); v != "" {
		c.Inbox.Path = v
	}
	if v := os.Getenv("CONFLUENCE_SCALAR_POLICY"); v != "" {
		c.Reconcile.ScalarPolicy = v
	}
	if v := os.Getenv("CONFLUENCE_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Reconcile.MinConfidence = f
		}
	}
	if v := os.Getenv("CONFLUENCE_BACKUP_DIR"); v != "" {
		c.Backup.Dir = v
	}
	if v := os.Getenv("CONFLUENCE_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("scalar_policy", func(fl validator.FieldLevel) bool {
		return catalog.ScalarPolicy(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("event_type", func(fl validator.FieldLevel) bool {
		return slices.Contains(event.Types, event.Type(fl.Field().String()))
	})
	return v
}

func (c *Config) validate() error {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: rule %q, got %v", fe.Namespace(), fe.Tag(), fe.Value()))
		}
		return errors.New(strings.Join(msgs, "; "))
	}

	if c.Backup.Dir == "" {
		c.Backup.Dir = filepath.Join(filepath.Dir(c.Database.Path), "snapshots")
	}

	if c.Inbox.Path != "" {
		if c.Inbox.ProcessedDir == "" {
			c.Inbox.ProcessedDir = filepath.Join(c.Inbox.Path, "processed")
		}
		if c.Inbox.FailedDir == "" {
			c.Inbox.FailedDir = filepath.Join(c.Inbox.Path, "failed")
		}
		if c.Inbox.ProcessedDir == c.Inbox.Path || c.Inbox.FailedDir == c.Inbox.Path {
			return fmt.Errorf("inbox processed and failed dirs must differ from the inbox")
		}
	}
	return nil
}

// EngineSettings converts the reconcile section for the engine.
func (c *Config) EngineSettings() reconcile.Settings {
	return reconcile.Settings{
		DurationBucketMS: c.Reconcile.DurationBucketMS,
		Scalars:          catalog.ScalarPolicy(c.Reconcile.ScalarPolicy),
		MinConfidence:    c.Reconcile.MinConfidence,
		Actor:            c.Reconcile.Actor,
	}
}
