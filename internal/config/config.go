// Package config provides YAML-based configuration loading for KanbanX,
// with environment overrides for secrets and deployment settings.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the top-level KanbanX configuration, loaded from config.yaml.
type Config struct {
	Port     int            `yaml:"port"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	LLM      LLMConfig      `yaml:"llm"`
	Notify   NotifyConfig   `yaml:"notify"`
	Sweep    SweepConfig    `yaml:"sweep"`
	CORS     CORSConfig     `yaml:"cors"`
}

// DatabaseConfig holds connection settings for the task store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or mysql
	Path   string `yaml:"path"`   // sqlite file path
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
	User   string `yaml:"user"`
	// Password comes from the environment, never from the YAML file.
	Password string `yaml:"-"`
}

// AuthConfig holds token issuance settings. The JWT secret comes from
// the environment, never from the YAML file.
type AuthConfig struct {
	JWTSecret     string        `yaml:"-"`
	HumanTokenTTL time.Duration `yaml:"human_token_ttl"`
	AgentTokenTTL time.Duration `yaml:"agent_token_ttl"`
}

// LLMConfig holds settings for the optional language-model backend.
// An empty APIKey disables the model tier entirely; the rule-based
// classifier and templated responses take over.
type LLMConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"-"`
	Deployment string        `yaml:"deployment"`
	APIVersion string        `yaml:"api_version"`
	Timeout    time.Duration `yaml:"timeout"`
}

// NotifyConfig holds optional board-notification targets.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig configures the Slack notifier.
type SlackConfig struct {
	BotToken string `yaml:"-"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig configures the Discord notifier.
type DiscordConfig struct {
	BotToken  string `yaml:"-"`
	ChannelID string `yaml:"channel_id"`
}

// SweepConfig controls the stale-owner sweeper.
type SweepConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// env holds the KANBANX_* environment overrides. Secrets are env-only.
type env struct {
	Port         int    `envconfig:"PORT"`
	DatabasePath string `envconfig:"DATABASE_PATH"`
	DBPassword   string `envconfig:"DATABASE_PASSWORD"`
	JWTSecret    string `envconfig:"JWT_SECRET"`
	LLMAPIKey    string `envconfig:"LLM_API_KEY"`
	LLMEndpoint  string `envconfig:"LLM_ENDPOINT"`
	SlackToken   string `envconfig:"SLACK_BOT_TOKEN"`
	DiscordToken string `envconfig:"DISCORD_BOT_TOKEN"`
}

const envNamespace = "KANBANX"

// Load reads a YAML config file from path and returns a validated
// Config with environment overrides applied. A missing file is not an
// error: defaults plus environment are enough to run.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			data = nil
		} else {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays KANBANX_* environment variables.
func (c *Config) applyEnv() error {
	var e env
	if err := envconfig.Process(envNamespace, &e); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	if e.Port != 0 {
		c.Port = e.Port
	}
	if e.DatabasePath != "" {
		c.Database.Path = e.DatabasePath
	}
	c.Database.Password = e.DBPassword
	c.Auth.JWTSecret = e.JWTSecret
	c.LLM.APIKey = e.LLMAPIKey
	if e.LLMEndpoint != "" {
		c.LLM.Endpoint = e.LLMEndpoint
	}
	c.Notify.Slack.BotToken = e.SlackToken
	c.Notify.Discord.BotToken = e.DiscordToken
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 3001
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/kanbanx.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "kanbanx"
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Auth.HumanTokenTTL == 0 {
		c.Auth.HumanTokenTTL = 24 * time.Hour
	}
	if c.Auth.AgentTokenTTL == 0 {
		c.Auth.AgentTokenTTL = 7 * 24 * time.Hour
	}
	if c.LLM.APIVersion == "" {
		c.LLM.APIVersion = "2024-02-15-preview"
	}
	if c.LLM.Deployment == "" {
		c.LLM.Deployment = "gpt-4o"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 15 * time.Second
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = 5 * time.Minute
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.Sweep.Enabled && c.Sweep.Interval < time.Minute {
		errs = append(errs, "sweep.interval must be at least 1m")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LLMEnabled reports whether the language-model tier is configured.
func (c *Config) LLMEnabled() bool {
	return c.LLM.APIKey != "" && c.LLM.Endpoint != ""
}
