package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFromReaderMergesOverDefaults(t *testing.T) {
	yaml := `
limiter:
  high:
    min_delay: 5s
    max_concurrent: 1
    burst: 2
  high_traffic:
    - Example.com
    - example.com
fetch:
  render_enabled: false
  timeout: 20s
images:
  max_images: 3
  score_ceil: 120
text_ai:
  model: gpt-4o
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := cfg.Limiter.High.MinDelay.Duration; got != 5*time.Second {
		t.Errorf("high.min_delay = %v", got)
	}
	// Untouched sections keep their defaults.
	if got := cfg.Limiter.Medium.MinDelay.Duration; got != 2*time.Second {
		t.Errorf("medium.min_delay = %v, want default", got)
	}
	if cfg.Fetch.RenderEnabled {
		t.Error("render_enabled override ignored")
	}
	if cfg.Images.MaxImages != 3 || cfg.Images.ScoreCeil != 120 {
		t.Errorf("images = %+v", cfg.Images)
	}
	if cfg.TextAI.Model != "gpt-4o" {
		t.Errorf("model = %q", cfg.TextAI.Model)
	}
	if cfg.TextAI.Endpoint == "" {
		t.Error("endpoint default lost")
	}
	if got := cfg.Limiter.HighTraffic; len(got) != 1 || got[0] != "example.com" {
		t.Errorf("high_traffic = %v, want deduped lowercase", got)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("limiterr:\n  window: 1m\n")); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestValidateCatchesBadValues(t *testing.T) {
	cases := []struct {
		label  string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Limiter.High.MaxConcurrent = 0 }},
		{"zero burst", func(c *Config) { c.Limiter.Medium.Burst = 0 }},
		{"zero fetch timeout", func(c *Config) { c.Fetch.Timeout = Duration{} }},
		{"inverted read pauses", func(c *Config) {
			c.Fetch.MinReadPause = DurationFrom(5 * time.Second)
			c.Fetch.MaxReadPause = DurationFrom(time.Second)
		}},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"inverted score clamp", func(c *Config) { c.Images.ScoreFloor = 101 }},
		{"blank endpoint", func(c *Config) { c.TextAI.Endpoint = "" }},
		{"respect without agent", func(c *Config) { c.Robots.UserAgent = " " }},
	}

	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.label)
		}
	}
}

func TestDurationForms(t *testing.T) {
	yaml := `
limiter:
  window: 90
fetch:
  timeout: 1500ms
  min_read_pause: 0.5
  max_read_pause: 2s
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Limiter.Window.Duration; got != 90*time.Second {
		t.Errorf("integer seconds: window = %v", got)
	}
	if got := cfg.Fetch.Timeout.Duration; got != 1500*time.Millisecond {
		t.Errorf("string form: timeout = %v", got)
	}
	if got := cfg.Fetch.MinReadPause.Duration; got != 500*time.Millisecond {
		t.Errorf("fractional seconds: min_read_pause = %v", got)
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatal("expected parse error")
	}
}
