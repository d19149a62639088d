// Package status reads the matchmaking server's public status endpoint.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var ErrUnavailable = errors.New("status endpoint unavailable")

// Stats is the body served by the status endpoint.
type Stats struct {
	ActiveUsers int     `json:"activeUsers"`
	Uptime      float64 `json:"uptime"`
	Version     string  `json:"version"`
}

// UptimeDuration converts the uptime in seconds.
func (s Stats) UptimeDuration() time.Duration {
	return time.Duration(s.Uptime * float64(time.Second))
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

type Client struct {
	url    string
	http   *http.Client
	logger *zap.Logger
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		http:   &http.Client{Timeout: 5 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("status")
	return c
}

// Fetch performs one request.
func (c *Client) Fetch(ctx context.Context) (Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Stats{}, fmt.Errorf("%w: %s", ErrUnavailable, resp.Status)
	}

	var stats Stats
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&stats); err != nil {
		return Stats{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	return stats, nil
}

// Reachable reports whether the endpoint answered with valid stats.
func (c *Client) Reachable(ctx context.Context) bool {
	_, err := c.Fetch(ctx)
	if err != nil {
		c.logger.Debug("server unreachable", zap.Error(err))
	}
	return err == nil
}

// Poll calls fn right away and then every interval until ctx is done.
func (c *Client) Poll(ctx context.Context, interval time.Duration, fn func(Stats, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats, err := c.Fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		fn(stats, err)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
