// Package executor sends requests to one upstream HTTP endpoint and returns raw bodies.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mohammed-shakir/geo-resolver/internal/core/observability"
)

// Interface is the transport the resolution engine talks through.
type Interface interface {
	Post(ctx context.Context, query string) ([]byte, error)
	Get(ctx context.Context, rawQuery string) ([]byte, error)
}

const maxErrorBody = 8 << 10

var ErrEmptyBody = errors.New("empty response body")

type Executor struct {
	logger   *slog.Logger
	client   *http.Client
	endpoint *url.URL
	upstream string
	limiter  *rate.Limiter
}

// New creates an executor for endpoint; upstream labels logs and metrics.
func New(logger *slog.Logger, client *http.Client, endpoint, upstream string) (*Executor, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse %s url: %w", upstream, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse %s url: %q is not absolute", upstream, endpoint)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{
		logger:   logger,
		client:   client,
		endpoint: u,
		upstream: upstream,
	}, nil
}

// Post sends query as the form field "data".
func (e *Executor) Post(ctx context.Context, query string) ([]byte, error) {
	form := url.Values{}
	form.Set("data", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req)
}

// Get appends rawQuery to the endpoint and issues a GET.
func (e *Executor) Get(ctx context.Context, rawQuery string) ([]byte, error) {
	u := *e.endpoint
	u.RawQuery = strings.TrimPrefix(rawQuery, "?")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return e.do(req)
}

// EndpointPath resolves path against the endpoint, keeping its base path.
func (e *Executor) EndpointPath(path string) *Executor {
	cp := *e
	u := *e.endpoint
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawPath = ""
	cp.endpoint = &u
	return &cp
}

// WithRateLimit returns a copy that sends at most rps requests per second.
// Copies made from it, including EndpointPath ones, share the budget.
// A non-positive rps disables limiting.
func (e *Executor) WithRateLimit(rps float64) *Executor {
	cp := *e
	cp.limiter = nil
	if rps > 0 {
		cp.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &cp
}

func (e *Executor) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")

	if e.limiter != nil {
		if err := e.limiter.Wait(req.Context()); err != nil {
			observability.IncUpstreamError(e.upstream, "rate_limit")
			return nil, fmt.Errorf("%s rate limit: %w", e.upstream, err)
		}
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	dur := time.Since(start)
	observability.ObserveUpstreamLatency(e.upstream, dur.Seconds())
	if err != nil {
		observability.IncUpstreamError(e.upstream, "transport")
		return nil, fmt.Errorf("%s request: %w", e.upstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	e.logger.DebugContext(req.Context(), "upstream done",
		"upstream", e.upstream,
		"method", req.Method,
		"status", resp.StatusCode,
		"duration", dur.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		observability.IncUpstreamError(e.upstream, "status")
		return nil, fmt.Errorf("%s status %d: %s", e.upstream, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.IncUpstreamError(e.upstream, "read")
		return nil, fmt.Errorf("%s read body: %w", e.upstream, err)
	}
	if len(b) == 0 {
		observability.IncUpstreamError(e.upstream, "empty")
		return nil, fmt.Errorf("%s: %w", e.upstream, ErrEmptyBody)
	}
	return b, nil
}
