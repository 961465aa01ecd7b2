// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml, an optional .env file
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/kudos/praisebridge/internal/route"
)

// Dedup backends.
const (
	DedupMemory = "memory"
	DedupRedis  = "redis"
)

// SlackConfig holds Slack app credentials. Environment variables override
// values from config.yaml.
type SlackConfig struct {
	BotToken        string `yaml:"bot_token" envconfig:"SLACK_BOT_TOKEN"`
	SigningSecret   string `yaml:"signing_secret" envconfig:"SLACK_SIGNING_SECRET"`
	WorkspaceDomain string `yaml:"workspace_domain" envconfig:"SLACK_WORKSPACE_DOMAIN"`
	APIURL          string `yaml:"api_url" envconfig:"SLACK_API_URL"`
}

// TrelloConfig holds board API credentials.
type TrelloConfig struct {
	APIKey  string `yaml:"api_key" envconfig:"TRELLO_API_KEY"`
	Token   string `yaml:"token" envconfig:"TRELLO_TOKEN"`
	BaseURL string `yaml:"base_url" envconfig:"TRELLO_BASE_URL"`
}

// DedupConfig selects and sizes the event deduplication registry.
type DedupConfig struct {
	Backend string
	MaxSize int
	TTL     time.Duration
}

// DeliveryConfig tunes attachment download retries.
type DeliveryConfig struct {
	Attempts int
	Delay    time.Duration
}

// Config holds all configuration for the bridge.
type Config struct {
	Port int

	Slack  SlackConfig
	Trello TrelloConfig
	Routes route.ChannelRouteMap

	Dedup    DedupConfig
	Delivery DeliveryConfig

	// Redis (optional unless the redis dedup backend is selected)
	RedisURL  string
	EventsKey string

	// Postgres ledger
	DatabaseURL string

	CommandTimeout  time.Duration
	ProcessTimeout  time.Duration
	DownloadTimeout time.Duration

	LogLevel string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Slack    SlackConfig           `yaml:"slack"`
	Trello   TrelloConfig          `yaml:"trello"`
	Channels route.ChannelRouteMap `yaml:"channels"`
	Dedup    struct {
		Backend string        `yaml:"backend"`
		MaxSize int           `yaml:"max_size"`
		TTL     time.Duration `yaml:"ttl"`
	} `yaml:"dedup"`
	Delivery struct {
		Attempts int           `yaml:"attempts"`
		Delay    time.Duration `yaml:"delay"`
	} `yaml:"delivery"`
	Redis struct {
		URL       string `yaml:"url"`
		EventsKey string `yaml:"events_key"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Timeouts struct {
		Command  time.Duration `yaml:"command"`
		Process  time.Duration `yaml:"process"`
		Download time.Duration `yaml:"download"`
	} `yaml:"timeouts"`
	LogLevel string `yaml:"log_level"`
}

const defaultConfigPath = "config.yaml"

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. A .env file in the working directory, when present,
// is loaded first without overriding variables already set. The config file
// is optional unless CONFIG_PATH names one explicitly.
func Load() (*Config, error) {
	if err := godotenv.Load(envOrDefault("DOTENV_PATH", ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	configPath := envOrDefault("CONFIG_PATH", defaultConfigPath)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || os.Getenv("CONFIG_PATH") != "" {
			return nil, fmt.Errorf("read config file %s: %w", configPath, err)
		}
		slog.Info("no config file, using environment only", "path", configPath)
		data = nil
	}

	return parse(data)
}

// parse builds a Config from YAML bytes and the environment.
func parse(data []byte) (*Config, error) {
	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		Port:   firstPositive(envOrDefaultInt("PORT", 0), raw.Server.Port, 3000),
		Slack:  raw.Slack,
		Trello: raw.Trello,
		Routes: raw.Channels,
		Dedup: DedupConfig{
			Backend: strings.ToLower(firstNonEmpty(os.Getenv("DEDUP_BACKEND"), raw.Dedup.Backend, DedupMemory)),
			MaxSize: firstPositive(envOrDefaultInt("DEDUP_MAX_SIZE", 0), raw.Dedup.MaxSize, 1000),
			TTL:     firstDuration(envOrDefaultDuration("DEDUP_TTL", 0), raw.Dedup.TTL, time.Hour),
		},
		Delivery: DeliveryConfig{
			Attempts: firstPositive(envOrDefaultInt("DELIVERY_ATTEMPTS", 0), raw.Delivery.Attempts, 5),
			Delay:    firstDuration(envOrDefaultDuration("DELIVERY_DELAY", 0), raw.Delivery.Delay, 2*time.Second),
		},
		RedisURL:        firstNonEmpty(os.Getenv("REDIS_URL"), raw.Redis.URL),
		EventsKey:       firstNonEmpty(os.Getenv("EVENTS_KEY"), raw.Redis.EventsKey, "praisebridge:events"),
		DatabaseURL:     firstNonEmpty(os.Getenv("DATABASE_URL"), raw.Database.URL),
		CommandTimeout:  firstDuration(envOrDefaultDuration("COMMAND_TIMEOUT", 0), raw.Timeouts.Command, 2500*time.Millisecond),
		ProcessTimeout:  firstDuration(envOrDefaultDuration("PROCESS_TIMEOUT", 0), raw.Timeouts.Process),
		DownloadTimeout: firstDuration(envOrDefaultDuration("DOWNLOAD_TIMEOUT", 0), raw.Timeouts.Download, 30*time.Second),
		LogLevel:        firstNonEmpty(os.Getenv("LOG_LEVEL"), raw.LogLevel, "info"),
	}

	// Credentials from the environment win over the file
	if err := envconfig.Process("", &cfg.Slack); err != nil {
		return nil, fmt.Errorf("slack env: %w", err)
	}
	if err := envconfig.Process("", &cfg.Trello); err != nil {
		return nil, fmt.Errorf("trello env: %w", err)
	}

	if inline := strings.TrimSpace(os.Getenv("CHANNEL_ROUTES")); inline != "" {
		routes, err := ParseRoutes(inline)
		if err != nil {
			return nil, err
		}
		cfg.Routes = routes
	}
	if cfg.Routes == nil {
		cfg.Routes = route.ChannelRouteMap{}
	}

	budget := DeliveryBudget(cfg.Delivery.Attempts, cfg.Delivery.Delay, cfg.DownloadTimeout)
	switch {
	case cfg.ProcessTimeout == 0:
		cfg.ProcessTimeout = max(2*time.Minute, budget)
	case cfg.ProcessTimeout < budget:
		slog.Warn("process timeout is shorter than the worst-case delivery time; late attachments will be cut off",
			"process_timeout", cfg.ProcessTimeout,
			"delivery_budget", budget,
		)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DeliveryBudget is the longest one event can spend in the background: every
// download attempt timing out, the delays between them, and one timeout each
// for card creation and the final upload.
func DeliveryBudget(attempts int, delay, download time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	n := time.Duration(attempts)
	return n*download + (n-1)*delay + 2*download
}

// ParseRoutes decodes a channel route map given as YAML or JSON, e.g.
// {"general": {"announcement": "list1"}, "support": {"issues": "list2"}}.
func ParseRoutes(s string) (route.ChannelRouteMap, error) {
	var routes route.ChannelRouteMap
	if err := yaml.Unmarshal([]byte(s), &routes); err != nil {
		return nil, fmt.Errorf("parse CHANNEL_ROUTES: %w", err)
	}
	return routes, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.Slack.SigningSecret == "" {
		missing = append(missing, "SLACK_SIGNING_SECRET")
	}
	if c.Slack.BotToken == "" {
		missing = append(missing, "SLACK_BOT_TOKEN")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(c.Routes) > 0 {
		if c.Trello.APIKey == "" {
			missing = append(missing, "TRELLO_API_KEY")
		}
		if c.Trello.Token == "" {
			missing = append(missing, "TRELLO_TOKEN")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	switch c.Dedup.Backend {
	case DedupMemory:
	case DedupRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("dedup backend %q requires REDIS_URL", DedupRedis)
		}
	default:
		return fmt.Errorf("unknown dedup backend %q", c.Dedup.Backend)
	}
	return nil
}

// SlogLevel returns the configured log level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstDuration(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
