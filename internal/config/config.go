package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config models sidequest.yml.
type Config struct {
	Server struct {
		Addr            string `yaml:"addr"`
		BasePath        string `yaml:"base_path"`
		JWTSecret       string `yaml:"jwt_secret"`
		TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Logging struct {
		Mode string `yaml:"mode"`
	} `yaml:"logging"`
	Game struct {
		DefaultReward int `yaml:"default_reward"`
	} `yaml:"game"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

type NotificationsConfig struct {
	Log          bool   `yaml:"log"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`
	MailFrom     string `yaml:"mail_from"`
	RecapHourUTC int    `yaml:"recap_hour_utc"`
	// RecapScheduler runs the daily recap inside `sq serve`. Enable it on one
	// instance only when several share a database.
	RecapScheduler bool            `yaml:"recap_scheduler"`
	TimeoutSecs    int             `yaml:"timeout_seconds"`
	Webhooks       []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// EnvOverrides are read from the process environment and win over the file.
type EnvOverrides struct {
	Addr         string `env:"SIDEQUEST_ADDR"`
	JWTSecret    string `env:"SIDEQUEST_JWT_SECRET"`
	DBPath       string `env:"SIDEQUEST_DB_PATH"`
	LogMode      string `env:"SIDEQUEST_LOG_MODE"`
	RedisAddr    string `env:"SIDEQUEST_REDIS_ADDR"`
	RedisChannel string `env:"SIDEQUEST_REDIS_CHANNEL"`
	MailFrom     string `env:"SIDEQUEST_MAIL_FROM"`
	Recaps       *bool  `env:"SIDEQUEST_RECAP_SCHEDULER"`
}

// Load reads and validates config from workspace, falling back to defaults
// when the file is missing. Environment overrides are applied last.
func Load(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = Default()
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overlays SIDEQUEST_* environment variables.
func (c *Config) ApplyEnv() error {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	c.applyOverrides(o)
	return nil
}

func (c *Config) applyOverrides(o EnvOverrides) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&c.Server.Addr, o.Addr)
	set(&c.Server.JWTSecret, o.JWTSecret)
	set(&c.Database.Path, o.DBPath)
	set(&c.Logging.Mode, o.LogMode)
	set(&c.Notifications.RedisAddr, o.RedisAddr)
	set(&c.Notifications.RedisChannel, o.RedisChannel)
	set(&c.Notifications.MailFrom, o.MailFrom)
	if o.Recaps != nil {
		c.Notifications.RecapScheduler = *o.Recaps
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Game.DefaultReward < 0 {
		return fmt.Errorf("config.game.default_reward must be >= 0")
	}
	if c.Server.TokenTTLMinutes < 0 {
		return fmt.Errorf("config.server.token_ttl_minutes must be >= 0")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if h := c.Notifications.RecapHourUTC; h < 0 || h > 23 {
		return fmt.Errorf("config.notifications.recap_hour_utc must be between 0 and 23")
	}
	switch strings.ToLower(c.Logging.Mode) {
	case "", "dev", "prod", "production":
	default:
		return fmt.Errorf("config.logging.mode must be dev or prod")
	}
	for i, hook := range c.Notifications.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.notifications.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.notifications.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sidequest.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api/v1
  jwt_secret: ""
  token_ttl_minutes: 1440

database:
  path: ""

logging:
  mode: dev

game:
  default_reward: 100

notifications:
  log: true
  redis_addr: ""
  redis_channel: sidequest.notifications
  mail_from: noreply@sidequest.local
  recap_hour_utc: 1
  recap_scheduler: true
  timeout_seconds: 10
  webhooks: []
`
