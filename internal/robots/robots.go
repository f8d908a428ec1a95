// Package robots gates extraction requests on the target site's robots.txt.
// Rules are fetched once per host and cached; errors fail open, since a
// broken or missing robots.txt is not a disallow.
package robots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"recipeharvest/internal/config"
)

// ErrDisallowed is returned when robots.txt forbids fetching the target.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Gate evaluates robots.txt rules with per-host caching and explicit host
// overrides for sites the operator has permission to fetch regardless.
type Gate struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	respect   bool
	logger    *slog.Logger

	now func() time.Time

	mu        sync.RWMutex
	cache     map[string]cacheEntry
	overrides map[string]struct{}
}

type cacheEntry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

// NewGate constructs a robots gate from configuration.
func NewGate(cfg config.RobotsConfig, client *http.Client, logger *slog.Logger) *Gate {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ttl := cfg.CacheTTL.Duration
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}

	overrides := make(map[string]struct{}, len(cfg.Overrides))
	for _, host := range cfg.Overrides {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			continue
		}
		overrides[host] = struct{}{}
	}

	return &Gate{
		client:    client,
		userAgent: cfg.UserAgent,
		ttl:       ttl,
		respect:   cfg.Respect,
		logger:    logger,
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
		overrides: overrides,
	}
}

// Check returns nil when target may be fetched and ErrDisallowed when
// robots.txt forbids it. Rule-fetch failures fail open.
func (g *Gate) Check(ctx context.Context, target *url.URL) error {
	if target == nil || !target.IsAbs() {
		return fmt.Errorf("robots check needs an absolute URL")
	}
	if !g.respect {
		return nil
	}

	host := strings.ToLower(target.Hostname())
	if _, ok := g.overrides[host]; ok {
		return nil
	}

	rules, err := g.rules(ctx, target)
	if err != nil {
		g.logger.Debug("robots rules unavailable, failing open", "host", host, "error", err)
		return nil
	}

	group := rules.FindGroup(g.userAgent)
	if group == nil {
		group = rules.FindGroup("*")
		if group == nil {
			return nil
		}
	}
	if !group.Test(target.Path) {
		return fmt.Errorf("%s%s: %w", host, target.Path, ErrDisallowed)
	}
	return nil
}

func (g *Gate) rules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	g.mu.RLock()
	entry, ok := g.cache[host]
	if ok && g.now().Sub(entry.fetched) < g.ttl {
		g.mu.RUnlock()
		return entry.rules, nil
	}
	g.mu.RUnlock()

	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	g.mu.Lock()
	g.cache[host] = cacheEntry{fetched: g.now(), rules: data}
	g.mu.Unlock()

	return data, nil
}

// Purge evicts cached rules for a host, forcing a refetch on next check.
func (g *Gate) Purge(host string) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return
	}
	g.mu.Lock()
	delete(g.cache, host)
	g.mu.Unlock()
}
