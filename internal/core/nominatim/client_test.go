package nominatim

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mohammed-shakir/geo-resolver/internal/core/executor"
	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
	"github.com/mohammed-shakir/geo-resolver/internal/logger"
	"github.com/rs/zerolog"
)

type upstream struct {
	mu      sync.Mutex
	queries []string
	respond func(osmIDs string) (int, string)
}

func (u *upstream) handler(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.queries = append(u.queries, r.URL.RawQuery)
	u.mu.Unlock()
	code, body := u.respond(r.URL.Query().Get("osm_ids"))
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

func newClient(t *testing.T, u *upstream, opts ...Option) *Client {
	t.Helper()
	return newLoggedClient(t, u, nil, opts...)
}

func newLoggedClient(t *testing.T, u *upstream, l *slog.Logger, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(u.handler))
	t.Cleanup(srv.Close)
	exec, err := executor.New(nil, srv.Client(), srv.URL, "nominatim")
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	return New(l, exec.EndpointPath("lookup"), opts...)
}

const lyonAndRhone = `[
	{"osm_type":"relation","osm_id":120965,"lat":"45.7578","lon":"4.8320","name":"Lyon",
	 "addresstype":"city","place_rank":16,"importance":0.7,"address":{"country":"France"}},
	{"osm_type":"relation","osm_id":7378,"lat":"45.88","lon":"4.65","name":"Rhône",
	 "addresstype":"county","place_rank":12,"importance":0.6,"address":{"country":"France"}},
	{"osm_type":"relation","osm_id":4850451,"lat":"45.73","lon":"4.85","name":"Lyon 7e",
	 "addresstype":"town","place_rank":18,"importance":0.3,"address":{"country":"France"}},
	{"osm_type":"way","osm_id":99,"lat":"45.7","lon":"4.8","name":"Some Way","addresstype":"city"}
]`

func TestLookupCities_Any(t *testing.T) {
	u := &upstream{respond: func(string) (int, string) { return http.StatusOK, lyonAndRhone }}
	c := newClient(t, u)

	got, err := c.LookupCities(context.Background(), model.EntityIDs{120965, 7378, 4850451}, model.MatchAny)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 2 || got[0].OsmID != 120965 || got[1].OsmID != 4850451 {
		t.Fatalf("got %+v", got)
	}
	if got[0].Name != "Lyon" || got[0].Country != "France" || got[0].Latitude != 45.7578 {
		t.Fatalf("info: %+v", got[0])
	}

	q := u.queries[0]
	for _, want := range []string{"osm_ids=R120965%2CR7378%2CR4850451", "format=jsonv2", "addressdetails=1", "accept-language=en"} {
		if !strings.Contains(q, want) {
			t.Fatalf("query %q missing %q", q, want)
		}
	}
}

func TestLookupCities_BestPrefersPlaceRank(t *testing.T) {
	u := &upstream{respond: func(string) (int, string) { return http.StatusOK, lyonAndRhone }}
	c := newClient(t, u)

	got, err := c.LookupCities(context.Background(), model.EntityIDs{120965, 7378, 4850451}, model.MatchBest)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 1 || got[0].OsmID != 4850451 {
		t.Fatalf("got %+v want only 4850451", got)
	}
}

func TestLookupRegions_NoCityFilter(t *testing.T) {
	u := &upstream{respond: func(string) (int, string) { return http.StatusOK, lyonAndRhone }}
	got, err := newClient(t, u).LookupRegions(context.Background(), model.EntityIDs{120965, 7378, 4850451})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d places want 3 relations", len(got))
	}
}

func TestLookup_Batches(t *testing.T) {
	u := &upstream{respond: func(ids string) (int, string) {
		var parts []string
		for _, id := range strings.Split(ids, ",") {
			parts = append(parts, fmt.Sprintf(
				`{"osm_type":"R","osm_id":%s,"lat":"1","lon":"2","name":"n%s","addresstype":"state"}`,
				strings.TrimPrefix(id, "R"), id))
		}
		return http.StatusOK, "[" + strings.Join(parts, ",") + "]"
	}}
	c := newClient(t, u, WithBatchSize(2))

	ids := model.EntityIDs{1, 2, 3, 4, 5}
	got, err := c.LookupRegions(context.Background(), ids)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(u.queries) != 3 {
		t.Fatalf("requests: got %d want 3", len(u.queries))
	}
	if len(got) != 5 || got[4].OsmID != 5 {
		t.Fatalf("got %+v", got)
	}
}

func TestLookup_PartialFailure(t *testing.T) {
	u := &upstream{respond: func(ids string) (int, string) {
		if strings.HasPrefix(ids, "R1,") {
			return http.StatusBadGateway, "upstream down"
		}
		return http.StatusOK, `[{"osm_type":"relation","osm_id":3,"lat":"1","lon":"2","name":"three"}]`
	}}
	c := newClient(t, u, WithBatchSize(2))

	got, err := c.LookupRegions(context.Background(), model.EntityIDs{1, 2, 3})
	if err == nil {
		t.Fatal("expected joined error for the failed batch")
	}
	if len(got) != 1 || got[0].OsmID != 3 {
		t.Fatalf("got %+v want the surviving batch", got)
	}
}

func TestLookup_FailureLogCarriesRequestContext(t *testing.T) {
	u := &upstream{respond: func(string) (int, string) { return http.StatusInternalServerError, "boom" }}
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	c := newLoggedClient(t, u, logger.NewSlog(&zl))

	ctx := logger.WithRequestID(context.Background(), "req-42")
	if _, err := c.LookupRegions(ctx, model.EntityIDs{1}); err == nil {
		t.Fatal("expected an error from the failing upstream")
	}
	out := buf.String()
	if !strings.Contains(out, "nominatim lookup failed") || !strings.Contains(out, `"request_id":"req-42"`) {
		t.Fatalf("log line missing request context: %s", out)
	}
}

func TestLookup_EmptyIDsNoRequest(t *testing.T) {
	u := &upstream{respond: func(string) (int, string) { return http.StatusOK, "[]" }}
	got, err := newClient(t, u).LookupCities(context.Background(), nil, model.MatchAny)
	if err != nil || len(got) != 0 || len(u.queries) != 0 {
		t.Fatalf("got %v err %v requests %d", got, err, len(u.queries))
	}
}

func TestInfo_NameFallsBackToDisplayName(t *testing.T) {
	p := place{OsmType: "relation", OsmID: 1, Lat: "1", Lon: "2", DisplayName: "Genève, Schweiz"}
	info, ok := p.info()
	if !ok || info.Name != "Genève" {
		t.Fatalf("got %+v ok=%v", info, ok)
	}
	if _, ok := (place{Lat: "x", Lon: "2"}).info(); ok {
		t.Fatal("bad latitude must be rejected")
	}
}
