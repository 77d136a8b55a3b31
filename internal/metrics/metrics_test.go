package metrics

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	return rr.Body.String()
}

func TestNew_RuntimeAndBuildInfo(t *testing.T) {
	p, err := New(BuildInfo{Version: "1.4.0", Revision: "abc123", Branch: "main"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	body := scrape(t, p)

	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected go runtime metrics; got:\n%s", body)
	}
	for _, want := range []string{`version="1.4.0"`, `revision="abc123"`, `go_version="` + runtime.Version() + `"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("build info missing %s; got:\n%s", want, body)
		}
	}
}

func TestNew_DefaultsVersion(t *testing.T) {
	p, err := New(BuildInfo{})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if n, err := testutil.GatherAndCount(p.Gatherer(), "georesolver_build_info"); err != nil || n != 1 {
		t.Fatalf("build info series=%d err=%v", n, err)
	}
	if !strings.Contains(scrape(t, p), `version="dev"`) {
		t.Fatal("empty version should be reported as dev")
	}
}

func TestHandler_CountsScrapes(t *testing.T) {
	p, err := New(BuildInfo{Version: "test"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	scrape(t, p)
	body := scrape(t, p)
	if !strings.Contains(body, `promhttp_metric_handler_requests_total{code="200"} 1`) {
		t.Fatalf("first scrape should be counted; got:\n%s", body)
	}
}

func TestBuildFromEnv(t *testing.T) {
	t.Setenv("BUILD_REVISION", "deadbeef")
	t.Setenv("BUILD_BRANCH", "release")
	t.Setenv("BUILD_DATE", "2026-01-02")
	b := BuildFromEnv("2.0.0")
	if b != (BuildInfo{Version: "2.0.0", Revision: "deadbeef", Branch: "release", BuildDate: "2026-01-02"}) {
		t.Fatalf("got %+v", b)
	}
}
