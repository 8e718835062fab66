package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables that override config keys, e.g.
// THREADMAIL_MAIL_SMTP_HOST.
const EnvPrefix = "THREADMAIL"

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// FilesConfig holds the attachment storage location.
type FilesConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SenderConfig sizes the outbound worker pool.
type SenderConfig struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// FetchConfig controls the reconciliation schedule.
type FetchConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// I18nConfig holds the language and translated strings.
type I18nConfig struct {
	Language string            `mapstructure:"language" yaml:"language"`
	Messages map[string]string `mapstructure:"messages" yaml:"messages"`
}

// AuditConfig names the actor stamped on records written by background
// jobs.
type AuditConfig struct {
	Actor string `mapstructure:"actor" yaml:"actor"`
}

// AppConfig is the top-level application configuration. Mail account
// settings are read directly from the raw settings by the account resolver.
type AppConfig struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Files    FilesConfig    `mapstructure:"files" yaml:"files"`
	Sender   SenderConfig   `mapstructure:"sender" yaml:"sender"`
	Fetch    FetchConfig    `mapstructure:"fetch" yaml:"fetch"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	I18n     I18nConfig     `mapstructure:"i18n" yaml:"i18n"`
	Audit    AuditConfig    `mapstructure:"audit" yaml:"audit"`

	// Selections maps model → field → stored value → display label.
	Selections map[string]map[string]map[string]string `mapstructure:"selections" yaml:"selections"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/threadmail/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "threadmail", "config.yaml")
}

// defaultDataDir returns the directory holding the database and files.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "threadmail")
}

// NewSettings returns a Viper instance with every default applied and
// environment overrides enabled.
func NewSettings() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dataDir := defaultDataDir()
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", filepath.Join(dataDir, "threadmail.db"))
	v.SetDefault("files.dir", filepath.Join(dataDir, "files"))
	v.SetDefault("sender.workers", 4)
	v.SetDefault("sender.queue_size", 64)
	v.SetDefault("fetch.interval", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("i18n.language", "en")
	v.SetDefault("audit.actor", "mailer")

	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, defaults apply. The returned Viper instance
// holds the raw key/value settings, mail account keys included.
func LoadConfig(path string) (*AppConfig, *viper.Viper, error) {
	v := NewSettings()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			var pathErr *os.PathError
			if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
				return nil, nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg, err := DecodeConfig(v)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, v, nil
}

// DecodeConfig unmarshals the typed configuration out of v.
func DecodeConfig(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if cfg.Sender.Workers <= 0 {
		cfg.Sender.Workers = 1
	}
	if cfg.Sender.QueueSize < 0 {
		cfg.Sender.QueueSize = 0
	}
	if cfg.Fetch.Interval <= 0 {
		cfg.Fetch.Interval = 5 * time.Minute
	}
	return cfg, nil
}
