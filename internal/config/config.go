package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.tablesmith/tablesmith.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LogConfig      `yaml:"logging,omitempty"`
	Audit    AuditConfig    `yaml:"audit,omitempty"`
	Server   ServerConfig   `yaml:"server,omitempty"`
	Drafts   DraftConfig    `yaml:"drafts,omitempty"`
}

// DatabaseConfig defines the PostgreSQL connection whose tables are edited.
type DatabaseConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Database       string `yaml:"database"`
	Schema         string `yaml:"schema,omitempty"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	SSL            bool   `yaml:"ssl,omitempty"`
	MaxConnections int    `yaml:"max_connections,omitempty"` // default 4, max 20
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default ~/.tablesmith/logs/
}

// AuditConfig controls the statement audit trail.
type AuditConfig struct {
	Enabled    *bool  `yaml:"enabled,omitempty"` // default true
	Path       string `yaml:"path,omitempty"`    // default ~/.tablesmith/audit.log
	BufferSize int    `yaml:"buffer_size,omitempty"`
}

// ServerConfig defines the HTTP session API.
type ServerConfig struct {
	Port    int  `yaml:"port,omitempty"` // default 8230
	DevMode bool `yaml:"dev_mode,omitempty"`
}

// DraftConfig defines where pending change-sets are kept between CLI runs.
type DraftConfig struct {
	Directory string `yaml:"directory,omitempty"` // default ~/.tablesmith/drafts/
}

// AuditEnabled reports whether statements are mirrored to the audit log.
func (c *Config) AuditEnabled() bool {
	return c.Audit.Enabled == nil || *c.Audit.Enabled
}

// ConnString returns a pgx keyword/value DSN.
func (d *DatabaseConfig) ConnString() string {
	ssl := "disable"
	if d.SSL {
		ssl = "require"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Database, d.Username, quoteDSN(d.Password), ssl)
}

// quoteDSN quotes a keyword/value DSN value when it contains spaces or quotes.
func quoteDSN(v string) string {
	if v == "" || strings.ContainsAny(v, ` '\`) {
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `'`, `\'`)
		return "'" + v + "'"
	}
	return v
}

// Default returns a config pointing at a local database.
func Default() *Config {
	cfg := &Config{
		Version: CurrentVersion,
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "postgres",
			Username: "postgres",
			Password: "${ENV:PGPASSWORD}",
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(context.Background()); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.Schema == "" {
		c.Database.Schema = "public"
	}
	if c.Database.MaxConnections == 0 {
		c.Database.MaxConnections = 4
	}
	if c.Database.MaxConnections > 20 {
		c.Database.MaxConnections = 20
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.tablesmith/logs/")
	}
	if c.Audit.Path == "" {
		c.Audit.Path = ExpandHome("~/.tablesmith/audit.log")
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 256
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8230
	}
	if c.Drafts.Directory == "" {
		c.Drafts.Directory = ExpandHome("~/.tablesmith/drafts/")
	}
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets(ctx context.Context) error {
	var err error
	c.Database.Password, err = ResolveValue(ctx, c.Database.Password)
	if err != nil {
		return fmt.Errorf("database password: %w", err)
	}
	c.Database.Username, err = ResolveValue(ctx, c.Database.Username)
	if err != nil {
		return fmt.Errorf("database username: %w", err)
	}
	return nil
}

// ResolveValue resolves secret references in a string value.
func ResolveValue(ctx context.Context, val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ctx, ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ctx, ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
