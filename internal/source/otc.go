package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stockwatch/internal/types"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config represents data source configuration
type Config struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Client fetches OTC markets records over HTTP with an optional redis
// response cache in front of the upstream.
type Client struct {
	config *Config
	client *http.Client
	cache  *redis.Client
	logger *zap.Logger
}

// New creates a new data source client. cache may be nil to disable
// response caching.
func New(cfg *Config, cache *redis.Client, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 5,
		},
	}

	return &Client{
		config: cfg,
		client: client,
		cache:  cache,
		logger: logger,
	}
}

// Fetch retrieves and decodes one record. endpoint is a URL template whose
// %s placeholders are replaced with the ticker symbol.
func (c *Client) Fetch(ctx context.Context, endpoint, ticker string) (map[string]any, error) {
	url := strings.ReplaceAll(endpoint, "%s", ticker)

	body, err := c.fetchBody(ctx, url)
	if err != nil {
		return nil, err
	}

	var record map[string]any
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decode record for %s: %w", ticker, err)
	}

	normalizeTimestamps(record)
	return record, nil
}

func (c *Client) fetchBody(ctx context.Context, url string) ([]byte, error) {
	if c.cache != nil {
		cached, err := c.cache.Get(ctx, cacheKey(url)).Bytes()
		if err == nil {
			return cached, nil
		}
		if err != redis.Nil {
			c.logger.Warn("Fetch cache read failed", zap.String("url", url), zap.Error(err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", types.ErrTickerNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey(url), body, c.config.CacheTTL).Err(); err != nil {
			c.logger.Warn("Fetch cache write failed", zap.String("url", url), zap.Error(err))
		}
	}

	return body, nil
}

func cacheKey(url string) string {
	return "fetch:" + url
}

// normalizeTimestamps rewrites epoch-millisecond values under *Date keys
// into date strings, so stored history stays comparable across fetches.
func normalizeTimestamps(record map[string]any) {
	for k, v := range record {
		switch t := v.(type) {
		case map[string]any:
			normalizeTimestamps(t)
		case []any:
			for _, e := range t {
				if m, ok := e.(map[string]any); ok {
					normalizeTimestamps(m)
				}
			}
		case float64:
			// JSON numbers are float64; epoch millis are far above any
			// plausible domain scalar.
			if strings.HasSuffix(k, "Date") && t > 1e11 {
				record[k] = time.UnixMilli(int64(t)).UTC().Format("2006-01-02")
			}
		}
	}
}
