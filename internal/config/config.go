// Package config loads taskion settings.
//
// Values are resolved in order: built-in defaults, the config file (TOML,
// YAML or JSON), a .env file, environment variables and command-line flags.
// Every key can be set from the environment as TASKION_<SECTION>_<KEY>, e.g.
// TASKION_NOTION_TOKEN. The variable names of earlier releases (NOTION_TOKEN,
// COURSES_DB_ID, TODOS_DB_ID, SYNC_INTERVAL_SECS, DATABASE_URL) are still
// honored.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrRemoteNotConfigured reports a missing remote credential or database id.
var ErrRemoteNotConfigured = errors.New("remote not configured")

// DefaultSyncInterval applies when the configured interval is missing or not
// a positive number.
const DefaultSyncInterval = 300 * time.Second

// Config is the resolved configuration.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Notion   NotionConfig   `toml:"notion"`
	Sync     SyncConfig     `toml:"sync"`
	Log      LogConfig      `toml:"log"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	APIToken    string   `toml:"api_token,omitempty"`
	CORSOrigins []string `toml:"cors_origins,omitempty"`
}

type NotionConfig struct {
	Token     string        `toml:"token,omitempty"`
	CoursesDB string        `toml:"courses_db,omitempty"`
	TasksDB   string        `toml:"tasks_db,omitempty"`
	BaseURL   string        `toml:"base_url"`
	Timeout   time.Duration `toml:"-"`
}

type SyncConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

type LogConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file,omitempty"`
	MaxSizeMB int    `toml:"max_size_mb"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "taskion.db"},
		Server:   ServerConfig{Host: "127.0.0.1", Port: 3000},
		Notion: NotionConfig{
			BaseURL: "https://api.notion.com",
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{IntervalSeconds: int(DefaultSyncInterval / time.Second)},
		Log:  LogConfig{Level: "info", MaxSizeMB: 10},
	}
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// SyncInterval returns the scheduler interval.
func (c *Config) SyncInterval() time.Duration {
	if c.Sync.IntervalSeconds <= 0 {
		return DefaultSyncInterval
	}
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// RemoteConfigured returns ErrRemoteNotConfigured naming the first missing
// remote setting, or nil.
func (c *Config) RemoteConfigured() error {
	switch {
	case c.Notion.Token == "":
		return fmt.Errorf("%w: notion.token (NOTION_TOKEN) is not set", ErrRemoteNotConfigured)
	case c.Notion.CoursesDB == "":
		return fmt.Errorf("%w: notion.courses_db (COURSES_DB_ID) is not set", ErrRemoteNotConfigured)
	case c.Notion.TasksDB == "":
		return fmt.Errorf("%w: notion.tasks_db (TODOS_DB_ID) is not set", ErrRemoteNotConfigured)
	}
	return nil
}

// Validate checks values that would make the process fail later.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	return nil
}

// DefaultPath returns $XDG_CONFIG_HOME/taskion/config.toml or the platform
// equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "taskion.toml"
	}
	return filepath.Join(dir, "taskion", "config.toml")
}

// Save writes cfg as TOML, creating parent directories. Secrets are written
// as given; the file is created user-readable only.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return f.Close()
}

// Loader resolves configuration through viper and can watch the file for
// changes.
type Loader struct {
	v        *viper.Viper
	explicit bool
	envFile  string
	log      zerolog.Logger
}

// legacyEnv maps keys to the environment names used before the TASKION_
// prefix existed.
var legacyEnv = map[string]string{
	"notion.token":          "NOTION_TOKEN",
	"notion.courses_db":     "COURSES_DB_ID",
	"notion.tasks_db":       "TODOS_DB_ID",
	"sync.interval_seconds": "SYNC_INTERVAL_SECS",
	"database.path":         "DATABASE_URL",
}

// NewLoader creates a loader. An empty path searches DefaultPath and is not
// an error when no file exists; an explicit path must exist.
func NewLoader(path string, logger zerolog.Logger) *Loader {
	v := viper.New()

	def := Default()
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.api_token", "")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.courses_db", "")
	v.SetDefault("notion.tasks_db", "")
	v.SetDefault("notion.base_url", def.Notion.BaseURL)
	v.SetDefault("notion.timeout", def.Notion.Timeout)
	v.SetDefault("sync.interval_seconds", def.Sync.IntervalSeconds)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", def.Log.MaxSizeMB)

	v.SetEnvPrefix("TASKION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		_ = v.BindEnv(key, "TASKION_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)

	return &Loader{
		v:        v,
		explicit: explicit,
		envFile:  ".env",
		log:      logger.With().Str("component", "config").Logger(),
	}
}

// SetEnvFile changes the .env file read by Load. Empty disables it.
func (l *Loader) SetEnvFile(path string) {
	l.envFile = path
}

// AllowMissing makes a missing config file fall back to defaults even when
// its path was given explicitly.
func (l *Loader) AllowMissing() {
	l.explicit = false
}

// BindFlag lets a command-line flag override key when the flag is set.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	return l.v.BindPFlag(key, flag)
}

// ConfigFile returns the file Load reads, whether or not it exists.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Load reads the .env file and the config file and returns the resolved
// configuration.
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", l.envFile, err)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if !missing || l.explicit {
			return nil, fmt.Errorf("failed to read config %s: %w", l.v.ConfigFileUsed(), err)
		}
		l.log.Debug().Str("file", l.v.ConfigFileUsed()).Msg("no config file; using defaults and environment")
	}

	cfg := l.build()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (l *Loader) build() *Config {
	v := l.v
	cfg := &Config{
		Database: DatabaseConfig{Path: databasePath(v.GetString("database.path"))},
		Server: ServerConfig{
			Host:        v.GetString("server.host"),
			Port:        v.GetInt("server.port"),
			APIToken:    v.GetString("server.api_token"),
			CORSOrigins: v.GetStringSlice("server.cors_origins"),
		},
		Notion: NotionConfig{
			Token:     strings.TrimSpace(v.GetString("notion.token")),
			CoursesDB: strings.TrimSpace(v.GetString("notion.courses_db")),
			TasksDB:   strings.TrimSpace(v.GetString("notion.tasks_db")),
			BaseURL:   v.GetString("notion.base_url"),
			Timeout:   v.GetDuration("notion.timeout"),
		},
		Sync: SyncConfig{IntervalSeconds: v.GetInt("sync.interval_seconds")},
		Log: LogConfig{
			Level:     v.GetString("log.level"),
			File:      v.GetString("log.file"),
			MaxSizeMB: v.GetInt("log.max_size_mb"),
		},
	}
	if cfg.Sync.IntervalSeconds <= 0 {
		l.log.Warn().Str("value", v.GetString("sync.interval_seconds")).
			Dur("default", DefaultSyncInterval).Msg("invalid sync interval; using default")
		cfg.Sync.IntervalSeconds = int(DefaultSyncInterval / time.Second)
	}
	return cfg
}

// databasePath accepts plain paths and sqlite:// URLs.
func databasePath(s string) string {
	for _, prefix := range []string{"sqlite://", "sqlite:", "file:"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return s
}

// Watch calls onChange with the re-read configuration whenever the config
// file changes. Invalid edits are logged and ignored. It only has an effect
// after a successful Load found a file.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg := l.build()
		if err := cfg.Validate(); err != nil {
			l.log.Warn().Err(err).Str("file", e.Name).Msg("ignoring invalid config change")
			return
		}
		l.log.Info().Str("file", e.Name).Msg("config reloaded")
		onChange(cfg)
	})
	l.v.WatchConfig()
}
