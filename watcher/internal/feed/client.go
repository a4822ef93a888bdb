package feed

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/statuswatch/statuswatch/pkg/types"
	"github.com/statuswatch/statuswatch/watcher/internal/config"
)

// MaxBodyBytes caps how much of a response body is read.
const MaxBodyBytes = 10 << 20

const userAgent = "statuswatch"

// Fetcher retrieves the two feed documents.
type Fetcher interface {
	FetchUptime(ctx context.Context) (types.UptimeSnapshot, error)
	FetchTimeline(ctx context.Context) (types.TimelineSnapshot, error)
}

// FetchError describes a failed fetch. StatusCode is zero when no response
// was received.
type FetchError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("feed: fetch %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("feed: fetch %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// errStatus is wrapped into FetchError for non-2xx responses.
var errStatus = errors.New("unexpected status")

// Client is the HTTP Fetcher for the status feed.
type Client struct {
	uptimeURL   string
	timelineURL string
	client      *http.Client
}

// New builds a Client for cfg. timeout bounds each request; zero means the
// caller's context is the only bound.
func New(cfg config.FeedConfig, timeout time.Duration) *Client {
	return &Client{
		uptimeURL:   cfg.UptimeURL(),
		timelineURL: cfg.TimelineURL(),
		client:      buildHTTPClient(cfg, timeout),
	}
}

// FetchUptime downloads and decodes the uptime document.
func (c *Client) FetchUptime(ctx context.Context) (types.UptimeSnapshot, error) {
	body, err := c.get(ctx, c.uptimeURL)
	if err != nil {
		return nil, err
	}
	snap, err := decodeUptime(body)
	if err != nil {
		return nil, &FetchError{Endpoint: c.uptimeURL, Err: err}
	}
	return snap, nil
}

// FetchTimeline downloads and decodes the incident timeline.
func (c *Client) FetchTimeline(ctx context.Context) (types.TimelineSnapshot, error) {
	body, err := c.get(ctx, c.timelineURL)
	if err != nil {
		return nil, err
	}
	snap, err := decodeTimeline(body)
	if err != nil {
		return nil, &FetchError{Endpoint: c.timelineURL, Err: err}
	}
	return snap, nil
}

// get performs an HTTP GET to url and returns at most MaxBodyBytes of body.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Endpoint: url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Endpoint: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Endpoint: url, StatusCode: resp.StatusCode, Err: errStatus}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{Endpoint: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > MaxBodyBytes {
		return nil, &FetchError{Endpoint: url, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("body exceeds %d bytes", MaxBodyBytes)}
	}
	return body, nil
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the feed's auth and TLS settings.
func buildHTTPClient(cfg config.FeedConfig, timeout time.Duration) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: &authRoundTripper{base: base, auth: cfg.Auth},
		Timeout:   timeout,
	}
}
