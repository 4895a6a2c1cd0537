package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix scopes environment overrides, e.g. ANTINUKE_ENGINE_DEDUPE_TTL=15s.
const EnvPrefix = "ANTINUKE_"

// DefaultPaths are searched in order when no explicit path is given.
var DefaultPaths = []string{"config.yaml", "config.yml", "/etc/antinuke/config.yaml"}

type Config struct {
	Bot      BotConfig      `koanf:"bot"`
	Database DatabaseConfig `koanf:"database"`
	Logging  LoggingConfig  `koanf:"logging"`
	Engine   EngineConfig   `koanf:"engine"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

type BotConfig struct {
	Token string `koanf:"token"`
	// RegisterCommands pushes the slash command definitions on startup.
	RegisterCommands bool `koanf:"register_commands"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
	// PolicyTTL is how long a cached guild policy is trusted. Zero disables
	// the cache.
	PolicyTTL time.Duration `koanf:"policy_ttl"`
	// IncidentRetention prunes the incident history. Zero keeps everything.
	IncidentRetention time.Duration `koanf:"incident_retention"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

type EngineConfig struct {
	DedupeTTL           time.Duration `koanf:"dedupe_ttl"`
	AttributionAttempts int           `koanf:"attribution_attempts"`
	AttributionDelay    time.Duration `koanf:"attribution_delay"`
	AttributionMaxAge   time.Duration `koanf:"attribution_max_age"`
	AttributionTimeout  time.Duration `koanf:"attribution_timeout"`
	AuditFetchLimit     int           `koanf:"audit_fetch_limit"`
	TimeoutDuration     time.Duration `koanf:"timeout_duration"`
	// ResponseTimeout bounds a revert+punish sequence once it has started.
	ResponseTimeout time.Duration `koanf:"response_timeout"`
	// ActionsPerSecond paces platform side effects per guild.
	ActionsPerSecond float64       `koanf:"actions_per_second"`
	ActionBurst      int           `koanf:"action_burst"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen"`
}

func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			RegisterCommands: true,
		},
		Database: DatabaseConfig{
			Path:              "antinuke.db",
			PolicyTTL:         30 * time.Second,
			IncidentRetention: 30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			DedupeTTL:           10 * time.Second,
			AttributionAttempts: 3,
			AttributionDelay:    500 * time.Millisecond,
			AttributionMaxAge:   10 * time.Second,
			AttributionTimeout:  3 * time.Second,
			AuditFetchLimit:     10,
			TimeoutDuration:     time.Hour,
			ResponseTimeout:     30 * time.Second,
			ActionsPerSecond:    10,
			ActionBurst:         20,
			SweepInterval:       30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9464",
		},
	}
}

// Load layers defaults, an optional YAML file and ANTINUKE_* environment
// variables. An empty path searches DefaultPaths; a missing file is not an
// error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Bot.Token == "" {
		cfg.Bot.Token = os.Getenv("DISCORD_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps ANTINUKE_ENGINE_DEDUPE_TTL to engine.dedupe_ttl.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	return section + "." + rest
}

func findConfigFile() string {
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Database.PolicyTTL < 0 || c.Database.IncidentRetention < 0 {
		errs = append(errs, errors.New("database durations must not be negative"))
	}
	e := c.Engine
	if e.DedupeTTL <= 0 {
		errs = append(errs, errors.New("engine.dedupe_ttl must be positive"))
	}
	if e.AttributionAttempts < 1 {
		errs = append(errs, errors.New("engine.attribution_attempts must be at least 1"))
	}
	if e.AttributionDelay < 0 {
		errs = append(errs, errors.New("engine.attribution_delay must not be negative"))
	}
	if e.AttributionMaxAge <= 0 {
		errs = append(errs, errors.New("engine.attribution_max_age must be positive"))
	}
	if e.AttributionTimeout <= 0 {
		errs = append(errs, errors.New("engine.attribution_timeout must be positive"))
	}
	if e.AuditFetchLimit < 1 || e.AuditFetchLimit > 100 {
		errs = append(errs, errors.New("engine.audit_fetch_limit must be between 1 and 100"))
	}
	if e.TimeoutDuration <= 0 || e.TimeoutDuration > 28*24*time.Hour {
		errs = append(errs, errors.New("engine.timeout_duration must be between 0 and 28 days"))
	}
	if e.ResponseTimeout <= 0 {
		errs = append(errs, errors.New("engine.response_timeout must be positive"))
	}
	if e.ActionsPerSecond <= 0 || e.ActionBurst < 1 {
		errs = append(errs, errors.New("engine.actions_per_second and engine.action_burst must be positive"))
	}
	if e.SweepInterval <= 0 {
		errs = append(errs, errors.New("engine.sweep_interval must be positive"))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen is required when metrics are enabled"))
	}
	return errors.Join(errs...)
}
