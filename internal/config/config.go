package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// ConfigDir is the per-workspace settings directory.
	ConfigDir = ".pfls"
	// ConfigFile is the settings file inside ConfigDir.
	ConfigFile = "config.json"
	// EnvPrefix prefixes every environment override, e.g. PFLS_IMPACT_DEFAULTMAXHOPS.
	EnvPrefix = "PFLS"

	currentVersion = 1
)

// Config represents the complete pfls configuration
type Config struct {
	Version int `json:"version" mapstructure:"version" validate:"eq=1"`

	Impact    ImpactConfig    `json:"impact" mapstructure:"impact"`
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Workspace WorkspaceConfig `json:"workspace" mapstructure:"workspace"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
	Telemetry TelemetryConfig `json:"telemetry" mapstructure:"telemetry"`
}

// ImpactConfig contains impact traversal settings
type ImpactConfig struct {
	DefaultMaxHops int    `json:"defaultMaxHops" mapstructure:"defaultMaxHops" validate:"gte=0"`
	MaxHopsLimit   int    `json:"maxHopsLimit" mapstructure:"maxHopsLimit" validate:"gte=0,lte=1024"`
	Policy         string `json:"policy" mapstructure:"policy" validate:"oneof=semantic undirected"`
}

// ServerConfig contains language server settings
type ServerConfig struct {
	MaxConcurrentRequests int `json:"maxConcurrentRequests" mapstructure:"maxConcurrentRequests" validate:"gte=1,lte=1024"`
}

// WorkspaceConfig controls which files are loaded and watched
type WorkspaceConfig struct {
	Roots      []string `json:"roots,omitempty" mapstructure:"roots"`
	Include    []string `json:"include" mapstructure:"include" validate:"dive,required"`
	Exclude    []string `json:"exclude" mapstructure:"exclude" validate:"dive,required"`
	Watch      bool     `json:"watch" mapstructure:"watch"`
	DebounceMs int      `json:"debounceMs" mapstructure:"debounceMs" validate:"gte=0,lte=60000"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `json:"level" mapstructure:"level" validate:"oneof=debug info warn warning error"`
	File        string `json:"file,omitempty" mapstructure:"file"`
	MaxSizeMB   int    `json:"maxSizeMB" mapstructure:"maxSizeMB" validate:"gte=0"`
	MaxBackups  int    `json:"maxBackups" mapstructure:"maxBackups" validate:"gte=0"`
	ClientLevel string `json:"clientLevel" mapstructure:"clientLevel" validate:"oneof=off debug info warn warning error"` // forwarded as window/logMessage
}

// TelemetryConfig contains the metrics endpoint settings
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	MetricsAddr string `json:"metricsAddr" mapstructure:"metricsAddr" validate:"omitempty,hostname_port"`
	ServiceName string `json:"serviceName" mapstructure:"serviceName" validate:"required"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: currentVersion,
		Impact: ImpactConfig{
			DefaultMaxHops: 2,
			MaxHopsLimit:   32,
			Policy:         "semantic",
		},
		Server: ServerConfig{
			MaxConcurrentRequests: 8,
		},
		Workspace: WorkspaceConfig{
			Include:    []string{"**/*.pf"},
			Exclude:    []string{"**/node_modules/**", "**/.git/**"},
			Watch:      true,
			DebounceMs: 200,
		},
		Logging: LoggingConfig{
			Level:       "info",
			MaxSizeMB:   10,
			MaxBackups:  3,
			ClientLevel: "warn",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			MetricsAddr: "127.0.0.1:9464",
			ServiceName: "pfls",
		},
	}
}

// defaults flattens DefaultConfig into viper keys.
func defaults() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"version":                      d.Version,
		"impact.defaultMaxHops":        d.Impact.DefaultMaxHops,
		"impact.maxHopsLimit":          d.Impact.MaxHopsLimit,
		"impact.policy":                d.Impact.Policy,
		"server.maxConcurrentRequests": d.Server.MaxConcurrentRequests,
		"workspace.roots":              d.Workspace.Roots,
		"workspace.include":            d.Workspace.Include,
		"workspace.exclude":            d.Workspace.Exclude,
		"workspace.watch":              d.Workspace.Watch,
		"workspace.debounceMs":         d.Workspace.DebounceMs,
		"logging.level":                d.Logging.Level,
		"logging.file":                 d.Logging.File,
		"logging.maxSizeMB":            d.Logging.MaxSizeMB,
		"logging.maxBackups":           d.Logging.MaxBackups,
		"logging.clientLevel":          d.Logging.ClientLevel,
		"telemetry.enabled":            d.Telemetry.Enabled,
		"telemetry.metricsAddr":        d.Telemetry.MetricsAddr,
		"telemetry.serviceName":        d.Telemetry.ServiceName,
	}
}

// EnvKey returns the environment variable that overrides key.
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func newViper() *viper.Viper {
	v := viper.New()
	// Environment values seed the defaults, so a config file overrides them.
	for key, def := range defaults() {
		if raw, ok := os.LookupEnv(EnvKey(key)); ok {
			v.SetDefault(key, raw)
			continue
		}
		v.SetDefault(key, def)
	}
	return v
}

// LoadConfig loads configuration from <root>/.pfls/config.json. A missing
// file yields the defaults with environment overrides applied.
func LoadConfig(root string) (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(root, ConfigDir))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s: %w", ConfigFile, err)
		}
	}
	return unmarshal(v)
}

// LoadConfigFile loads configuration from an explicit path.
func LoadConfigFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration to <root>/.pfls/config.json
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, ConfigDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ConfigFile), append(data, '\n'), 0644)
}

// RootsFor returns the configured workspace roots with relative entries
// joined to root. Without configured roots the workspace is root itself.
func (c *Config) RootsFor(root string) []string {
	if len(c.Workspace.Roots) == 0 {
		if root == "" {
			return nil
		}
		return []string{root}
	}
	roots := make([]string, 0, len(c.Workspace.Roots))
	for _, r := range c.Workspace.Roots {
		if !filepath.IsAbs(r) && root != "" {
			r = filepath.Join(root, r)
		}
		roots = append(roots, r)
	}
	return roots
}

var validate = validator.New()

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ConfigError{Field: fieldPath(fe.Namespace()), Message: fmt.Sprintf("failed %q check (value %v)", fe.Tag(), fe.Value())}
		}
		return &ConfigError{Field: "", Message: err.Error()}
	}
	if c.Impact.DefaultMaxHops > c.Impact.MaxHopsLimit {
		return &ConfigError{Field: "impact.defaultMaxHops", Message: fmt.Sprintf("exceeds impact.maxHopsLimit (%d)", c.Impact.MaxHopsLimit)}
	}
	if c.Telemetry.Enabled && c.Telemetry.MetricsAddr == "" {
		return &ConfigError{Field: "telemetry.metricsAddr", Message: "required when telemetry is enabled"}
	}
	return nil
}

// fieldPath turns "Config.Impact.MaxHopsLimit" into "impact.maxHopsLimit".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToLower(p[:1]) + p[1:]
	}
	return strings.Join(parts, ".")
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return "config error in field '" + e.Field + "': " + e.Message
}
