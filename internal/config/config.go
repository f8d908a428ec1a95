package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything required to initialise the extraction engine.
type Config struct {
	Limiter LimiterConfig `yaml:"limiter"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Retry   RetryConfig   `yaml:"retry"`
	Images  ImagesConfig  `yaml:"images"`
	TextAI  TextAIConfig  `yaml:"text_ai"`
	Robots  RobotsConfig  `yaml:"robots"`
	DB      SQLConfig     `yaml:"db"`
	Logging LoggingConfig `yaml:"logging"`
}

// TierConfig holds the politeness parameters for one traffic tier.
type TierConfig struct {
	MinDelay      Duration `yaml:"min_delay"`
	MaxConcurrent int      `yaml:"max_concurrent"`
	Burst         int      `yaml:"burst"`
}

// LimiterConfig controls per-domain throttling. Hosts listed under
// high_traffic/low_traffic get that tier's parameters; everything else is
// treated as medium traffic.
type LimiterConfig struct {
	Window      Duration   `yaml:"window"`
	High        TierConfig `yaml:"high"`
	Medium      TierConfig `yaml:"medium"`
	Low         TierConfig `yaml:"low"`
	HighTraffic []string   `yaml:"high_traffic"`
	LowTraffic  []string   `yaml:"low_traffic"`
}

// FetchConfig controls page fetching and headless rendering.
type FetchConfig struct {
	Timeout            Duration `yaml:"timeout"`
	MaxBodyBytes       int64    `yaml:"max_body_bytes"`
	RenderEnabled      bool     `yaml:"render_enabled"`
	DisableHeadless    bool     `yaml:"disable_headless"`
	ConcurrentSessions int      `yaml:"concurrent_sessions"`
	MinReadPause       Duration `yaml:"min_read_pause"`
	MaxReadPause       Duration `yaml:"max_read_pause"`
	ProxyURL           string   `yaml:"proxy_url"`
}

// RetryConfig controls the retry wrapper around the fetcher.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxJitter   Duration `yaml:"max_jitter"`
}

// ImagesConfig tunes image discovery and the score clamp.
type ImagesConfig struct {
	MaxImages  int `yaml:"max_images"`
	ScoreFloor int `yaml:"score_floor"`
	ScoreCeil  int `yaml:"score_ceil"`
}

// TextAIConfig describes the chat-completions provider used for free-text
// extraction. The API key is read from APIKeyEnv at startup, never stored in
// the config file.
type TextAIConfig struct {
	Endpoint    string   `yaml:"endpoint"`
	Model       string   `yaml:"model"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Timeout     Duration `yaml:"timeout"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature float64  `yaml:"temperature"`
}

// RobotsConfig configures robots.txt handling.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	Overrides []string `yaml:"overrides"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// SQLConfig describes the optional parse-log database.
type SQLConfig struct {
	Driver          string   `yaml:"driver"`
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool     `yaml:"auto_migrate"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Limiter: LimiterConfig{
			Window: DurationFrom(time.Minute),
			High:   TierConfig{MinDelay: DurationFrom(3 * time.Second), MaxConcurrent: 1, Burst: 3},
			Medium: TierConfig{MinDelay: DurationFrom(2 * time.Second), MaxConcurrent: 2, Burst: 5},
			Low:    TierConfig{MinDelay: DurationFrom(1500 * time.Millisecond), MaxConcurrent: 2, Burst: 7},
			HighTraffic: []string{
				"allrecipes.com",
				"bbcgoodfood.com",
				"delish.com",
				"foodnetwork.com",
				"tasty.co",
			},
		},
		Fetch: FetchConfig{
			Timeout:            DurationFrom(45 * time.Second),
			MaxBodyBytes:       6 * 1024 * 1024,
			RenderEnabled:      true,
			ConcurrentSessions: 2,
			MinReadPause:       DurationFrom(time.Second),
			MaxReadPause:       DurationFrom(3 * time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   DurationFrom(time.Second),
			MaxJitter:   DurationFrom(500 * time.Millisecond),
		},
		Images: ImagesConfig{
			MaxImages:  10,
			ScoreFloor: 0,
			ScoreCeil:  100,
		},
		TextAI: TextAIConfig{
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			Timeout:     DurationFrom(30 * time.Second),
			MaxTokens:   1200,
			Temperature: 0.1,
		},
		Robots: RobotsConfig{
			Respect:   true,
			UserAgent: "recipeharvest/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces required invariants for the engine configuration.
func (c Config) Validate() error {
	tiers := []struct {
		name string
		tier TierConfig
	}{
		{"high", c.Limiter.High},
		{"medium", c.Limiter.Medium},
		{"low", c.Limiter.Low},
	}
	for _, t := range tiers {
		if t.tier.MinDelay.Duration < 0 {
			return fmt.Errorf("limiter.%s.min_delay must be >= 0", t.name)
		}
		if t.tier.MaxConcurrent <= 0 {
			return fmt.Errorf("limiter.%s.max_concurrent must be > 0 (got %d)", t.name, t.tier.MaxConcurrent)
		}
		if t.tier.Burst <= 0 {
			return fmt.Errorf("limiter.%s.burst must be > 0 (got %d)", t.name, t.tier.Burst)
		}
	}
	if c.Limiter.Window.IsZero() {
		return errors.New("limiter.window must be set")
	}
	if c.Fetch.Timeout.Duration <= 0 {
		return errors.New("fetch.timeout must be > 0")
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be > 0 (got %d)", c.Fetch.MaxBodyBytes)
	}
	if c.Fetch.MinReadPause.Duration > c.Fetch.MaxReadPause.Duration {
		return errors.New("fetch.min_read_pause must not exceed fetch.max_read_pause")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0 (got %d)", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay.Duration < 0 {
		return errors.New("retry.base_delay must be >= 0")
	}
	if c.Images.ScoreFloor > c.Images.ScoreCeil {
		return fmt.Errorf("images.score_floor %d exceeds images.score_ceil %d", c.Images.ScoreFloor, c.Images.ScoreCeil)
	}
	if strings.TrimSpace(c.TextAI.Endpoint) == "" {
		return errors.New("text_ai.endpoint must be set")
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}
	return nil
}

func (c *Config) normalise() {
	c.Limiter.HighTraffic = dedupeLower(c.Limiter.HighTraffic)
	c.Limiter.LowTraffic = dedupeLower(c.Limiter.LowTraffic)
	c.Robots.Overrides = dedupeLower(c.Robots.Overrides)
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	c.TextAI.Endpoint = strings.TrimSpace(c.TextAI.Endpoint)
	c.TextAI.Model = strings.TrimSpace(c.TextAI.Model)
	c.TextAI.APIKeyEnv = strings.TrimSpace(c.TextAI.APIKeyEnv)
	c.Fetch.ProxyURL = strings.TrimSpace(c.Fetch.ProxyURL)
	c.DB.Driver = strings.TrimSpace(c.DB.Driver)
	c.DB.DSN = strings.TrimSpace(c.DB.DSN)
}

func dedupeLower(values []string) []string {
	if len(values) == 0 {
		return values
	}
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	sort.Strings(cleaned)
	return cleaned
}
