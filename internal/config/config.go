// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token      string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
	Workers    int    `yaml:"workers" env:"TELEGRAM_UPDATE_WORKERS"` // polling workers
	InlineMode bool   `yaml:"inline_mode" env:"INLINE_MODE"`
	MaxBatch   int    `yaml:"max_batch" env:"MAX_BATCH"` // urls per message
	Language   string `yaml:"language" env:"BOT_LANGUAGE"`

	AllowedUsers []string `yaml:"allowed_user_ids" env:"ALLOWED_USER_IDS" envSeparator:","`
	Admins       []string `yaml:"admin_user_ids" env:"ADMIN_USER_IDS" envSeparator:","`

	// Parsed from AllowedUsers / Admins by Load.
	AllowedUserIDs []int64 `yaml:"-"`
	AdminIDs       []int64 `yaml:"-"`
}

type AdLinkFlyConfig struct {
	BaseURL        string        `yaml:"base_url" env:"ADLINKFLY_BASE_URL"`
	APIKey         string        `yaml:"api_key" env:"ADLINKFLY_API_KEY"`
	APIPath        string        `yaml:"api_path" env:"ADLINKFLY_API_PATH"`
	Timeout        time.Duration `yaml:"timeout" env:"ADLINKFLY_TIMEOUT"` // per attempt
	MaxAttempts    int           `yaml:"max_attempts" env:"ADLINKFLY_MAX_ATTEMPTS"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" env:"ADLINKFLY_RETRY_BASE_DELAY"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay" env:"ADLINKFLY_RETRY_MAX_DELAY"`
	RPS            float64       `yaml:"rps" env:"ADLINKFLY_RPS"` // <= 0 disables the throttle
}

type FilterConfig struct {
	WhitelistDomains []string `yaml:"whitelist_domains" env:"WHITELIST_DOMAINS" envSeparator:","`
	BlacklistDomains []string `yaml:"blacklist_domains" env:"BLACKLIST_DOMAINS" envSeparator:","`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`       // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"LOG_FORMAT"`     // json|console
	Sampling bool   `yaml:"sampling" env:"LOG_SAMPLING"` // enable sampling in prod
}

type AdminConfig struct {
	Addr string `yaml:"addr" env:"ADMIN_ADDR"` // empty disables the ops server
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	AdLinkFly AdLinkFlyConfig `yaml:"adlinkfly"`
	Filters   FilterConfig    `yaml:"filters"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

// Default returns the configuration used when neither the YAML file nor the
// environment sets a value.
func Default() Config {
	return Config{
		Bot: BotConfig{
			Workers:    8,
			InlineMode: true,
			MaxBatch:   5,
			Language:   "en",
		},
		AdLinkFly: AdLinkFlyConfig{
			APIPath:        "/api",
			Timeout:        20 * time.Second,
			MaxAttempts:    3,
			RetryBaseDelay: 500 * time.Millisecond,
			RetryMaxDelay:  5 * time.Second,
			RPS:            5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads settings in order: defaults, optional YAML file at path,
// dotenv file, process environment. Later sources win.
func LoadConfig(path string, dev bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotenv(); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// loadDotenv loads DOTENV_CONFIG_PATH (or ./.env). Existing variables are kept.
// A missing default file is fine; a missing explicit file is not.
func loadDotenv() error {
	p := strings.TrimSpace(os.Getenv("DOTENV_CONFIG_PATH"))
	if p == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		p = ".env"
	}
	if err := godotenv.Load(p); err != nil {
		return fmt.Errorf("load dotenv %s: %w", p, err)
	}
	return nil
}

func (c *Config) normalize() error {
	c.Bot.Token = strings.TrimSpace(c.Bot.Token)
	c.AdLinkFly.BaseURL = strings.TrimRight(strings.TrimSpace(c.AdLinkFly.BaseURL), "/")
	c.AdLinkFly.APIKey = strings.TrimSpace(c.AdLinkFly.APIKey)
	c.AdLinkFly.APIPath = strings.TrimSpace(c.AdLinkFly.APIPath)
	if c.AdLinkFly.APIPath == "" {
		c.AdLinkFly.APIPath = "/api"
	}
	if !strings.HasPrefix(c.AdLinkFly.APIPath, "/") {
		c.AdLinkFly.APIPath = "/" + c.AdLinkFly.APIPath
	}

	if c.Bot.Workers <= 0 {
		c.Bot.Workers = 8
	}
	if c.Bot.MaxBatch <= 0 {
		c.Bot.MaxBatch = 5
	}
	c.Bot.Language = strings.ToLower(strings.TrimSpace(c.Bot.Language))
	if c.Bot.Language == "" {
		c.Bot.Language = "en"
	}
	if c.AdLinkFly.MaxAttempts <= 0 {
		c.AdLinkFly.MaxAttempts = 3
	}
	if c.AdLinkFly.Timeout <= 0 {
		c.AdLinkFly.Timeout = 20 * time.Second
	}
	if c.AdLinkFly.RetryBaseDelay <= 0 {
		c.AdLinkFly.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.AdLinkFly.RetryMaxDelay < c.AdLinkFly.RetryBaseDelay {
		c.AdLinkFly.RetryMaxDelay = c.AdLinkFly.RetryBaseDelay
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	var err error
	if c.Bot.AllowedUserIDs, err = parseIDList(c.Bot.AllowedUsers); err != nil {
		return fmt.Errorf("allowed user ids: %w", err)
	}
	if c.Bot.AdminIDs, err = parseIDList(c.Bot.Admins); err != nil {
		return fmt.Errorf("admin user ids: %w", err)
	}
	c.Filters.WhitelistDomains = normalizeDomains(c.Filters.WhitelistDomains)
	c.Filters.BlacklistDomains = normalizeDomains(c.Filters.BlacklistDomains)
	return nil
}

func (c *Config) validate() error {
	if c.Bot.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if c.AdLinkFly.BaseURL == "" {
		return errors.New("ADLINKFLY_BASE_URL is required")
	}
	u, err := url.Parse(c.AdLinkFly.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("ADLINKFLY_BASE_URL must be an absolute http(s) url, got %q", c.AdLinkFly.BaseURL)
	}
	if c.AdLinkFly.APIKey == "" {
		return errors.New("ADLINKFLY_API_KEY is required")
	}
	return nil
}

// parseIDList turns "123, 456" style entries into Telegram user ids.
func parseIDList(raw []string) ([]int64, error) {
	var ids []int64
	for _, part := range raw {
		for _, v := range strings.Split(part, ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid id %q", v)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func normalizeDomains(in []string) []string {
	var out []string
	for _, d := range in {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}
