// Package exchangerate fetches the EUR to GBP conversion rate from public
// currency-api mirrors, falling back across endpoints.
package exchangerate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"go-candidate-tracker/pkg/logger"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "vitesse/1.0 (Go)"
	maxBodyBytes     = 1 << 20
	// the initial request plus one manually followed redirect
	roundsPerEndpoint = 2
)

// DefaultEndpoints serve the same published "EUR rates" document.
var DefaultEndpoints = []string{
	"https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@latest/v1/currencies/eur.json",
	"https://latest.currency-api.pages.dev/v1/currencies/eur.json",
}

type Config struct {
	Endpoints      []string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	UserAgent      string
}

type Client struct {
	endpoints   []string
	userAgent   string
	readTimeout time.Duration
	httpClient  *http.Client
	log         *slog.Logger
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = DefaultEndpoints
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if log == nil {
		log = logger.Component("exchange_rate")
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		endpoints:   append([]string(nil), cfg.Endpoints...),
		userAgent:   cfg.UserAgent,
		readTimeout: cfg.ReadTimeout,
		httpClient: &http.Client{
			Transport: transport,
			// redirects are followed by hand so the resolved host shows up in logs
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: log,
	}
}

type responseKind int

const (
	kindFailure responseKind = iota
	kindRedirect
	kindSuccess
)

type response struct {
	kind     responseKind
	status   int
	location *url.URL
	body     []byte
}

// FetchEURToGBP returns the current rate, or ok=false when no endpoint
// produced a usable value. It never returns an error.
func (c *Client) FetchEURToGBP(ctx context.Context) (float64, bool) {
	for _, endpoint := range c.endpoints {
		rate, err := c.fetchFrom(ctx, endpoint)
		if err == nil {
			return rate, true
		}
		if ctx.Err() != nil {
			c.log.Debug("Exchange rate fetch cancelled", "endpoint", endpoint)
			return 0, false
		}
		c.log.Warn("Exchange rate endpoint failed", "endpoint", endpoint, "error", err)
	}
	return 0, false
}

func (c *Client) fetchFrom(ctx context.Context, endpoint string) (float64, error) {
	target, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("parse endpoint: %w", err)
	}

	for round := 0; round < roundsPerEndpoint; round++ {
		resp, err := c.get(ctx, target)
		if err != nil {
			return 0, fmt.Errorf("GET %s: %w", target, err)
		}

		switch resp.kind {
		case kindRedirect:
			c.log.Debug("Following exchange rate redirect", "url", target.String(), "location", resp.location.String())
			target = resp.location
			continue
		case kindSuccess:
			rate, err := parseRate(resp.body)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", target, err)
			}
			return rate, nil
		default:
			return 0, fmt.Errorf("HTTP %d for %s: %s", resp.status, target, truncate(resp.body, 200))
		}
	}
	return 0, fmt.Errorf("too many redirects, last location %s", target)
}

func (c *Client) get(ctx context.Context, target *url.URL) (response, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return response{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	// headers arrived; bound the body read separately
	timer := time.AfterFunc(c.readTimeout, cancel)
	defer timer.Stop()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc, err := resp.Location()
		if err != nil {
			return response{kind: kindFailure, status: resp.StatusCode}, nil
		}
		return response{kind: kindRedirect, status: resp.StatusCode, location: loc}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{}, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return response{kind: kindSuccess, status: resp.StatusCode, body: body}, nil
	}
	return response{kind: kindFailure, status: resp.StatusCode, body: body}, nil
}

var errMissingRate = errors.New(`response has no numeric "eur.gbp"`)

func parseRate(body []byte) (float64, error) {
	var payload struct {
		EUR map[string]json.RawMessage `json:"eur"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("decode body: %w", err)
	}

	raw, ok := payload.EUR["gbp"]
	if !ok || string(raw) == "null" {
		return 0, errMissingRate
	}
	var rate float64
	if err := json.Unmarshal(raw, &rate); err != nil {
		return 0, errMissingRate
	}
	return rate, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
