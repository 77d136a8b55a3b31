// Package sessions keeps a bounded set of region discovery sessions addressable by id.
package sessions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
	"github.com/mohammed-shakir/geo-resolver/internal/core/observability"
	"github.com/mohammed-shakir/geo-resolver/internal/core/resolver"
	"github.com/mohammed-shakir/geo-resolver/internal/logger"
)

var ErrNotFound = errors.New("session not found")

const closeTimeout = 5 * time.Second

// StateFactory creates the processed-id state for a new session.
type StateFactory func(id string) resolver.ProcessedState

func MemoryStates(string) resolver.ProcessedState { return resolver.NewMemoryState() }

// entry serializes calls on one session.
type entry struct {
	mu sync.Mutex
	s  *resolver.Session
}

// Registry is safe for concurrent use. When full, the least recently used
// session is closed and dropped.
type Registry struct {
	engine   *resolver.Engine
	newState StateFactory
	logger   *slog.Logger
	cache    *lru.Cache[string, *entry]
	newID    func() string
}

func New(engine *resolver.Engine, size int, newState StateFactory, l *slog.Logger) (*Registry, error) {
	if size <= 0 {
		size = 256
	}
	if newState == nil {
		newState = MemoryStates
	}
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Registry{engine: engine, newState: newState, logger: l, newID: uuid.NewString}
	c, err := lru.NewWithEvict(size, r.onEvict)
	if err != nil {
		return nil, err
	}
	r.cache = c
	return r, nil
}

func (r *Registry) onEvict(id string, e *entry) {
	observability.SetActiveSessions(r.cache.Len())
	// the evicted session may still be running an Advance
	go func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := e.s.Close(ctx); err != nil && !errors.Is(err, resolver.ErrSessionClosed) {
			r.logger.Warn("close evicted session", "session_id", id, "err", err)
		}
	}()
}

// Start opens a session and returns its id.
func (r *Registry) Start() string {
	id := r.newID()
	s := r.engine.StartFindRegionsWith(r.newState(id), id)
	r.cache.Add(id, &entry{s: s})
	observability.SetActiveSessions(r.cache.Len())
	r.logger.Info("region session started", "session_id", id)
	return id
}

// Advance runs one discovery step on session id.
func (r *Registry) Advance(ctx context.Context, id string, bb model.BBox, prefs model.Preferences) ([]model.PlaceRecord, error) {
	e, ok := r.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.Advance(logger.WithSessionID(ctx, id), bb, prefs), nil
}

// Close ends session id and discards its state.
func (r *Registry) Close(ctx context.Context, id string) error {
	e, ok := r.cache.Peek(id)
	if !ok {
		return ErrNotFound
	}
	// Remove fires onEvict, which would close again; close first under the lock.
	e.mu.Lock()
	err := e.s.Close(ctx)
	e.mu.Unlock()
	r.cache.Remove(id)
	if err != nil && !errors.Is(err, resolver.ErrSessionClosed) {
		return err
	}
	return nil
}

func (r *Registry) Len() int { return r.cache.Len() }

// CloseAll closes every open session.
func (r *Registry) CloseAll(ctx context.Context) {
	for _, id := range r.cache.Keys() {
		if err := r.Close(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			r.logger.Warn("close session", "session_id", id, "err", err)
		}
	}
}
