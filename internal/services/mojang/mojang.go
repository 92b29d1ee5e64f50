// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package mojang looks up Minecraft Java accounts by player name.
package mojang

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/config"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseURL = "https://api.mojang.com"

	defaultTimeout       = 5 * time.Second
	maxResponseBodyBytes = 1 << 16
)

// ErrUnavailable means the lookup could not be answered, as opposed to the
// player not existing.
var ErrUnavailable = errors.New("mojang lookup unavailable")

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type cacheEntry struct {
	id      string
	expires time.Time
}

// Client queries the Mojang profile API. Definitive answers (found or not
// found) are cached per lowercase name; failures are not.
type Client struct {
	baseURL  string
	http     HTTPDoer
	timeout  time.Duration
	cacheTTL time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		c.http = doer
	}
}

// WithClock overrides the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithMetrics records lookup results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a client from configuration.
func NewClient(cfg config.MojangConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		timeout:  timeout,
		cacheTTL: cfg.CacheTTL,
		now:      time.Now,
		cache:    make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsOfficial reports whether a Minecraft account with this name exists.
func (c *Client) IsOfficial(ctx context.Context, name string) (bool, error) {
	id, err := c.ResolveID(ctx, name)
	if err != nil {
		return false, err
	}
	return id != "", nil
}

// ResolveID returns the account UUID as 32 lowercase hex characters, or ""
// when no such account exists.
func (c *Client) ResolveID(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	key := strings.ToLower(name)

	if id, ok := c.cached(key); ok {
		c.metrics.MojangLookup("cached")
		return id, nil
	}

	// The shared lookup outlives any single caller; each caller only stops
	// waiting when its own context ends.
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		id, err := c.fetch(fetchCtx, name)
		if err != nil {
			c.metrics.MojangLookup("error")
			return "", err
		}
		if id == "" {
			c.metrics.MojangLookup("not_found")
		} else {
			c.metrics.MojangLookup("found")
		}
		c.store(key, id)
		return id, nil
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) cached(key string) (string, bool) {
	if c.cacheTTL <= 0 {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok {
		return "", false
	}
	if c.now().After(entry.expires) {
		delete(c.cache, key)
		return "", false
	}
	return entry.id, true
}

func (c *Client) store(key, id string) {
	if c.cacheTTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{id: id, expires: c.now().Add(c.cacheTTL)}
}

func (c *Client) fetch(ctx context.Context, name string) (string, error) {
	endpoint := c.baseURL + "/users/profiles/minecraft/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("building mojang request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("mojang request failed", "username", name, "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return "", nil
	default:
		slog.Warn("unexpected mojang status", "username", name, "status", resp.StatusCode)
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", nil
	}

	var p profile
	if err := json.Unmarshal(body, &p); err != nil {
		slog.Error("mojang response not decodable", "username", name, "error", err)
		return "", fmt.Errorf("%w: decoding profile: %v", ErrUnavailable, err)
	}
	if p.ID == "" {
		return "", nil
	}

	id, err := uuid.Parse(p.ID)
	if err != nil {
		return "", fmt.Errorf("%w: invalid profile id %q", ErrUnavailable, p.ID)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}
