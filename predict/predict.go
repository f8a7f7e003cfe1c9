// Package predict fetches recent outcome history from the upstream API and
// produces a recommendation for the next period.
package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/predictbot/core/config"
	"github.com/m3rciful/predictbot/core/logger"
	"log/slog"
)

// Kind classifies a failed prediction cycle. Only KindUnauthorized ends the
// session; everything else is transient and retried on the next tick.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindEmpty        Kind = "empty"
	KindNetwork      Kind = "network"
	KindMalformed    Kind = "malformed"
)

// Error carries the failure kind alongside the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

// Error renders the failure kind with its cause.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("predict: %s", e.Kind)
	}
	return fmt.Sprintf("predict: %s: %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind, defaulting to KindNetwork for errors that
// did not originate in this package (timeouts, cancellations).
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindNetwork
}

// IsUnauthorized reports whether err is a credential failure.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// Result is a completed prediction cycle: the latest period the upstream has
// settled plus the recommendation for the one after it.
type Result struct {
	LatestPeriod string
	Pick         string
	Number       int
}

const (
	defaultRequestTimeout = 10 * time.Second
	defaultDialTimeout    = 5 * time.Second
	defaultTLSHandshake   = 5 * time.Second
	defaultResponseWait   = 5 * time.Second
)

// Client queries the upstream outcome feed with a bearer token.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient builds a Client with a transport tuned like the Telegram client:
// explicit dial/TLS/response deadlines so a stalled upstream cannot hold a
// tick open indefinitely.
func NewClient(cfg coreconfig.UpstreamConfig) *Client {
	timeout := defaultRequestTimeout
	if cfg.RequestTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: defaultResponseWait,
	}
	return &Client{
		url: cfg.URL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type wireEntry struct {
	IssueNumber string `json:"issueNumber"`
	Number      string `json:"number"`
}

type wirePayload struct {
	Data struct {
		List []wireEntry `json:"list"`
	} `json:"data"`
}

// GenerateNextPick runs one full fetch-and-compute cycle.
func (c *Client) GenerateNextPick(ctx context.Context, token string) (Result, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Result{}, &Error{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Result{}, &Error{Kind: KindUnauthorized, Err: fmt.Errorf("upstream status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Result{}, &Error{Kind: KindNetwork, Err: fmt.Errorf("upstream status %d", resp.StatusCode)}
	}

	var payload wirePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, &Error{Kind: KindMalformed, Err: err}
	}
	list := payload.Data.List
	if len(list) == 0 {
		return Result{}, &Error{Kind: KindEmpty, Err: errors.New("upstream returned no results")}
	}

	history, err := parseHistory(list)
	if err != nil {
		return Result{}, &Error{Kind: KindMalformed, Err: err}
	}

	latest := list[0].IssueNumber
	pred := predictPick(history, latest)

	logger.Debug(ctx, "predict", "cycle.ok",
		slog.String("period", latest),
		slog.String("pick", pred.BigSmall),
		slog.Int("count", len(list)),
		slog.Duration("duration", logger.Took(start)),
	)

	return Result{
		LatestPeriod: latest,
		Pick:         pred.BigSmall,
		Number:       pred.Number,
	}, nil
}

func parseHistory(list []wireEntry) ([]outcome, error) {
	history := make([]outcome, 0, len(list))
	for _, e := range list {
		issue := strings.TrimSpace(e.IssueNumber)
		if issue == "" {
			return nil, errors.New("entry missing issueNumber")
		}
		if !isDigits(issue) {
			return nil, fmt.Errorf("issueNumber %q is not numeric", issue)
		}
		n, err := strconv.Atoi(strings.TrimSpace(e.Number))
		if err != nil {
			return nil, fmt.Errorf("number %q is not numeric", e.Number)
		}
		history = append(history, outcome{IssueNumber: issue, Number: n})
	}
	return history, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
