package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	API             APIConfig         `yaml:"api"`
	Declarations    string            `yaml:"declarations"` // .yaml/.yml or .lua file
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	Reconciler      ReconcilerConfig  `yaml:"reconciler"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"`
}

// APIConfig contains inventory API connection settings.
// Credentials are passed through untouched to the API client.
type APIConfig struct {
	Account  string   `yaml:"account"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	BaseURL  string   `yaml:"base_url"` // overrides https://<account>.logicmonitor.com/santaba/rest
	Timeout  Duration `yaml:"timeout"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// Ambiguous match policies
const (
	AmbiguousWarn = "warn" // act on the first item, raise an alert
	AmbiguousFail = "fail" // fail the resource, no mutation
)

// ReconcilerConfig contains reconciler settings
type ReconcilerConfig struct {
	PeriodicInterval Duration `yaml:"periodic_interval"`
	RateLimitRPS     float64  `yaml:"rate_limit_rps"` // API requests per second, all calls
	AmbiguousMatch   string   `yaml:"ambiguous_match"`
}

// LedgerConfig contains audit ledger settings
type LedgerConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// Retention returns the retention period as a duration.
func (c LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port.
func (c HealthcheckConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./lmsync.sqlite"
	}
	if cfg.Declarations == "" {
		cfg.Declarations = "resources.yaml"
	}

	// API defaults
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = Duration(30 * time.Second)
	}

	// Reconciler defaults
	if cfg.Reconciler.PeriodicInterval == 0 {
		cfg.Reconciler.PeriodicInterval = Duration(15 * time.Minute)
	}
	if cfg.Reconciler.RateLimitRPS == 0 {
		cfg.Reconciler.RateLimitRPS = 5.0
	}
	switch cfg.Reconciler.AmbiguousMatch {
	case "":
		cfg.Reconciler.AmbiguousMatch = AmbiguousWarn
	case AmbiguousWarn, AmbiguousFail:
	default:
		return nil, fmt.Errorf("reconciler.ambiguous_match: %q is not one of %q, %q",
			cfg.Reconciler.AmbiguousMatch, AmbiguousWarn, AmbiguousFail)
	}

	// Ledger defaults
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// ExpandEnv expands environment variables in the format ${VAR} or ${VAR:default}
func ExpandEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

// ExpandEnvString expands a single string with environment variables
func ExpandEnvString(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return ExpandEnv(s)
	}
	return s
}
