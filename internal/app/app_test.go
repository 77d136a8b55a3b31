package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/geo-resolver/internal/core/config"
	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewEngine_RejectsRelativeURL(t *testing.T) {
	cfg := config.FromEnv()
	cfg.Upstream.NominatimURL = "nominatim.local"
	if _, err := NewEngine(cfg, discard()); err == nil {
		t.Fatal("expected error for relative nominatim url")
	}
}

func TestNewEngine_Defaults(t *testing.T) {
	e, err := NewEngine(config.FromEnv(), discard())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if !e.ValidBox(model.BBox{South: 45, North: 46, West: 5, East: 6}) {
		t.Fatal("small box should be valid")
	}
}

func TestStateFactory_Memory(t *testing.T) {
	f, rc, err := StateFactory(context.Background(), config.FromEnv())
	if err != nil || rc != nil || f == nil {
		t.Fatalf("memory factory: f=%v rc=%v err=%v", f != nil, rc, err)
	}
}

func TestStateFactory_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.FromEnv()
	cfg.Sessions.Store = "redis"
	cfg.Redis.Addr = mr.Addr()

	ctx := context.Background()
	f, rc, err := StateFactory(ctx, cfg)
	if err != nil {
		t.Fatalf("redis factory: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	st := f("abc")
	if err := st.Merge(ctx, model.EntityIDs{3, 1}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	got, err := st.Processed(ctx)
	if err != nil || len(got) != 2 || got[0] != 1 {
		t.Fatalf("processed: got %v err %v", got, err)
	}
}
