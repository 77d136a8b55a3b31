package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// Pinger is a dependency that must answer before the service takes traffic.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

const checkTimeout = 2 * time.Second

// Readiness reports 503 while any named check fails.
func Readiness(checks map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for n := range checks {
		names = append(names, n)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status string            `json:"status"`
			Failed map[string]string `json:"failed,omitempty"`
		}
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		out := resp{Status: "ready"}
		for _, n := range names {
			if err := checks[n].Ping(ctx); err != nil {
				if out.Failed == nil {
					out.Failed = map[string]string{}
				}
				out.Failed[n] = err.Error()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if len(out.Failed) > 0 {
			out.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
