// Package livecheck probes a stream's public page to tell whether the
// broadcaster is live, and runs the operator's connection diagnostics.
//
// The probe is a plain GET of the stream page; the page is considered live
// when its upper-cased body contains any of the configured indicators.
package livecheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Status is the result of a live check.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// DefaultIndicators are the markers searched for in the stream page.
var DefaultIndicators = []string{"LIVE", "STREAMING", "ROOM_ID", "LIVE_TITLE", "VIEWER_COUNT"}

// DefaultUserAgent is sent with every probe; some platforms refuse requests
// without a browser-like agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// ErrNotFound is returned when the profile page answers 404.
var ErrNotFound = errors.New("livecheck: profile not found")

// StatusCodeError reports a page that answered with something other than 200.
type StatusCodeError struct {
	URL  string
	Code int
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("livecheck: %s returned status %d", e.URL, e.Code)
}

// maxPageBytes bounds how much of a page is scanned.
const maxPageBytes = 4 << 20

// Config describes where and how to probe.
type Config struct {
	// LiveURL is the stream page; "%s" is replaced by the stream id.
	LiveURL string
	// ProfileURL is the broadcaster profile page; "%s" is replaced by the
	// stream id. Used by diagnostics.
	ProfileURL string
	// ConnectivityURL is fetched to confirm general internet access.
	ConnectivityURL string
	// PlatformURL is the platform's home page.
	PlatformURL string

	Indicators []string
	UserAgent  string
	Timeout    time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Indicators) == 0 {
		c.Indicators = DefaultIndicators
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// Checker performs single probes.
type Checker struct {
	cfg    Config
	client *http.Client
}

// NewChecker returns a Checker. A nil client uses one with cfg.Timeout.
func NewChecker(cfg Config, client *http.Client) *Checker {
	cfg = cfg.withDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Checker{cfg: cfg, client: client}
}

// Check fetches the live page for streamID and reports whether it looks live.
// Failures yield StatusError; a non-200 answer is a [*StatusCodeError].
func (c *Checker) Check(ctx context.Context, streamID string) (Status, error) {
	if c.cfg.LiveURL == "" {
		return StatusUnknown, errors.New("livecheck: no live url configured")
	}
	url := expand(c.cfg.LiveURL, streamID)
	code, body, err := c.get(ctx, url)
	if err != nil {
		return StatusError, err
	}
	if code != http.StatusOK {
		return StatusError, &StatusCodeError{URL: url, Code: code}
	}
	if c.hasIndicator(body) {
		return StatusOnline, nil
	}
	return StatusOffline, nil
}

func (c *Checker) hasIndicator(body string) bool {
	upper := strings.ToUpper(body)
	for _, ind := range c.cfg.Indicators {
		if ind != "" && strings.Contains(upper, strings.ToUpper(ind)) {
			return true
		}
	}
	return false
}

func (c *Checker) get(ctx context.Context, url string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("livecheck: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("livecheck: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("livecheck: read %s: %w", url, err)
	}
	return resp.StatusCode, string(b), nil
}

func expand(tmpl, streamID string) string {
	if strings.Contains(tmpl, "%s") {
		return strings.ReplaceAll(tmpl, "%s", streamID)
	}
	return tmpl
}
