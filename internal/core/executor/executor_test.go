package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type upstreamRecorder struct {
	mu         sync.Mutex
	lastMethod string
	lastPath   string
	lastQuery  url.Values
	lastHeader http.Header
	lastBody   []byte
	hits       int

	status int
	body   string
}

func (u *upstreamRecorder) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()

	u.mu.Lock()
	u.lastMethod = r.Method
	u.lastPath = r.URL.Path
	u.lastQuery = r.URL.Query()
	u.lastHeader = r.Header.Clone()
	u.lastBody = body
	u.hits++
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if u.status != 0 {
		w.WriteHeader(u.status)
	}
	_, _ = w.Write([]byte(u.body))
}

func newExec(t *testing.T, u *upstreamRecorder, path string) *Executor {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(u.handler))
	t.Cleanup(srv.Close)
	e, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), srv.Client(), srv.URL+path, "test")
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	return e
}

func upstreamLatency(t *testing.T, upstream string) (count uint64, sum float64) {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "upstream_latency_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "upstream" && lp.GetValue() == upstream {
					return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
				}
			}
		}
	}
	return 0, 0
}

func TestDo_ObservesUpstreamLatency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(30 * time.Millisecond)
		_, _ = w.Write([]byte("{}"))
	}))
	t.Cleanup(srv.Close)
	e, err := New(nil, srv.Client(), srv.URL, "latency-test")
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	if _, err := e.Get(context.Background(), "a=1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	count, sum := upstreamLatency(t, "latency-test")
	if count != 1 || sum < 0.03 {
		t.Fatalf("latency histogram: count %d sum %v", count, sum)
	}
}

func TestNew_RequiresAbsoluteURL(t *testing.T) {
	for _, raw := range []string{"", "overpass-api.de/api/interpreter", "://bad"} {
		if _, err := New(nil, nil, raw, "overpass"); err == nil {
			t.Fatalf("%q: expected error", raw)
		}
	}
}

func TestPost_SendsQueryAsFormData(t *testing.T) {
	u := &upstreamRecorder{body: `{"elements":[]}`}
	e := newExec(t, u, "/api/interpreter")

	query := `[out:json];rel["name"="Lyon"];out ids;`
	b, err := e.Post(context.Background(), query)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if string(b) != `{"elements":[]}` {
		t.Fatalf("body: got %q", b)
	}
	if u.lastMethod != http.MethodPost || u.lastPath != "/api/interpreter" {
		t.Fatalf("request: %s %s", u.lastMethod, u.lastPath)
	}
	form, err := url.ParseQuery(string(u.lastBody))
	if err != nil {
		t.Fatalf("parse form: %v", err)
	}
	if got := form.Get("data"); got != query {
		t.Fatalf("data: got %q want %q", got, query)
	}
	if ct := u.lastHeader.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
		t.Fatalf("content-type: %q", ct)
	}
	if acc := u.lastHeader.Get("Accept"); acc != "application/json" {
		t.Fatalf("accept: %q", acc)
	}
}

func TestGet_AppendsRawQuery(t *testing.T) {
	u := &upstreamRecorder{body: `[]`}
	e := newExec(t, u, "")

	if _, err := e.EndpointPath("lookup").Get(context.Background(), "?osm_ids=R1%2CR2&format=jsonv2"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.lastPath != "/lookup" {
		t.Fatalf("path: got %q want /lookup", u.lastPath)
	}
	if got := u.lastQuery.Get("osm_ids"); got != "R1,R2" {
		t.Fatalf("osm_ids: got %q", got)
	}
}

func TestEndpointPath_KeepsBasePath(t *testing.T) {
	u := &upstreamRecorder{body: `[]`}
	e := newExec(t, u, "/nominatim/")

	if _, err := e.EndpointPath("/lookup").Get(context.Background(), ""); err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.lastPath != "/nominatim/lookup" {
		t.Fatalf("path: got %q", u.lastPath)
	}
	// the original executor is unchanged
	if _, err := e.Get(context.Background(), ""); err != nil || u.lastPath != "/nominatim/" {
		t.Fatalf("base path: %q err %v", u.lastPath, err)
	}
}

func TestDo_StatusError(t *testing.T) {
	u := &upstreamRecorder{status: http.StatusTooManyRequests, body: "rate limited"}
	e := newExec(t, u, "")

	_, err := e.Post(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("got %v", err)
	}
}

func TestDo_EmptyBody(t *testing.T) {
	u := &upstreamRecorder{}
	e := newExec(t, u, "")

	if _, err := e.Get(context.Background(), ""); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("got %v want ErrEmptyBody", err)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	u := &upstreamRecorder{body: "{}"}
	e := newExec(t, u, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Post(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v want context.Canceled", err)
	}
}

func TestWithRateLimit_SpacesRequests(t *testing.T) {
	u := &upstreamRecorder{body: "{}"}
	e := newExec(t, u, "").WithRateLimit(20)

	start := time.Now()
	for range 3 {
		if _, err := e.Get(context.Background(), "a=1"); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	// the first request is free, the next two wait 50ms each
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("3 requests at 20rps took %v", elapsed)
	}
}

func TestWithRateLimit_SharedAcrossEndpointPaths(t *testing.T) {
	u := &upstreamRecorder{body: "{}"}
	e := newExec(t, u, "").WithRateLimit(0.1)
	lookup := e.EndpointPath("lookup")

	if _, err := e.Get(context.Background(), ""); err != nil {
		t.Fatalf("first: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := lookup.Get(ctx, ""); err == nil {
		t.Fatal("second request within the budget window should fail on the deadline")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.hits != 1 {
		t.Fatalf("upstream hits=%d want 1", u.hits)
	}
}

func TestWithRateLimit_ZeroDisables(t *testing.T) {
	e := newExec(t, &upstreamRecorder{body: "{}"}, "").WithRateLimit(20).WithRateLimit(0)
	if e.limiter != nil {
		t.Fatal("rps 0 should remove the limiter")
	}
}
