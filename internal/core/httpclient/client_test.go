package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewOutbound_SetsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := NewOutbound("geo-resolver/test", time.Second)
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if got != "geo-resolver/test" {
		t.Fatalf("user agent: got %q want %q", got, "geo-resolver/test")
	}
}

func TestNewOutbound_KeepsExplicitUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "custom")
	resp, err := NewOutbound("geo-resolver/test", 0).Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	_ = resp.Body.Close()
	if got != "custom" {
		t.Fatalf("user agent: got %q want custom", got)
	}
}

func TestNewOutbound_DefaultTimeout(t *testing.T) {
	if c := NewOutbound("", 0); c.Timeout != 30*time.Second {
		t.Fatalf("timeout: got %v", c.Timeout)
	}
}
