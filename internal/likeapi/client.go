// Package likeapi calls the external reward API that performs the "like"
// action for one player and reports before/after counts.
//
// The API's failure modes are opaque and not retryable within a run, so every
// failure degrades to a miss: Call returns ok=false and the caller skips the
// task.
package likeapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "autolike/pkg/logx"
)

const (
	DefaultTimeout = 25 * time.Second

	// maxBodyBytes bounds how much of a response we are willing to parse.
	maxBodyBytes = 1 << 20
)

// Config configures the client.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	// RatePerSec paces consecutive calls. 0 disables pacing.
	RatePerSec float64
}

type Client struct {
	endpoint *url.URL
	http     *http.Client
	limiter  *rate.Limiter
	log      logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	raw := strings.TrimSpace(cfg.Endpoint)
	if raw == "" {
		return nil, errors.New("like api endpoint is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("like api endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("like api endpoint: unsupported scheme %q", u.Scheme)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{
		endpoint: u,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return c, nil
}

// Call performs one GET with uid and server_name=region.
//
// It never returns an error: a non-200 status, a transport failure or an
// unusable body all yield (nil, false).
func (c *Client) Call(ctx context.Context, region, uid string) (*Result, bool) {
	log := c.log.With(logx.String("region", region), logx.String("uid", uid))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			log.Warn("like api call not attempted", logx.Err(err))
			return nil, false
		}
	}

	u := *c.endpoint
	q := u.Query()
	q.Set("uid", uid)
	q.Set("server_name", region)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		log.Warn("like api error", logx.Err(err))
		return nil, false
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("like api error", logx.Err(err))
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		log.Debug("like api returned no result", logx.Int("status", resp.StatusCode), logx.Duration("took", time.Since(start)))
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		log.Warn("like api error", logx.Err(err))
		return nil, false
	}
	res, ok, err := Parse(body)
	if err != nil {
		log.Warn("like api error", logx.Err(err))
		return nil, false
	}
	if !ok {
		log.Debug("like api returned an empty result", logx.Duration("took", time.Since(start)))
		return nil, false
	}
	log.Debug("like api ok", logx.String("player", res.PlayerName), logx.Int64("given", res.LikesGiven), logx.Duration("took", time.Since(start)))
	return res, true
}
