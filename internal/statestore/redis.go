// Package statestore keeps region session state in Redis.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
	"github.com/mohammed-shakir/geo-resolver/internal/core/observability"
	"github.com/mohammed-shakir/geo-resolver/internal/core/resolver"
)

const keyPrefix = "georesolver:session:"

// Option tunes the client; non-positive values keep the defaults.
type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) {
		if n > 0 {
			o.PoolSize = n
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) {
		if d > 0 {
			o.DialTimeout = d
		}
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) {
		if d > 0 {
			o.ReadTimeout = d
		}
	}
}

type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects and pings; ttl bounds the life of an idle session's state.
func New(ctx context.Context, addr string, ttl time.Duration, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveStateOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb, ttl: ttl}, nil
}

// Ping reports whether Redis answers; used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

// Session returns the processed-id state of one session.
func (c *Client) Session(id string) *SessionState {
	return &SessionState{c: c, key: keyPrefix + id + ":processed"}
}

// SessionState is a Redis set of processed relation ids.
type SessionState struct {
	c   *Client
	key string
}

var _ resolver.ProcessedState = (*SessionState)(nil)

// Processed reads the set and restarts its TTL, so a session that keeps
// reading without finding anything new keeps its state.
func (s *SessionState) Processed(ctx context.Context) (model.EntityIDs, error) {
	start := time.Now()
	var smembers *redis.StringSliceCmd
	_, err := s.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		smembers = p.SMembers(ctx, s.key)
		if s.c.ttl > 0 {
			p.Expire(ctx, s.key, s.c.ttl)
		}
		return nil
	})
	observability.ObserveStateOp("smembers", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS %q: %w", s.key, err)
	}
	members := smembers.Val()
	ids := make(model.EntityIDs, 0, len(members))
	for _, m := range members {
		n, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis SMEMBERS %q: bad member %q: %w", s.key, m, err)
		}
		ids = append(ids, model.EntityID(n))
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *SessionState) Merge(ctx context.Context, ids model.EntityIDs) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = strconv.FormatInt(int64(id), 10)
	}

	start := time.Now()
	_, err := s.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, s.key, members...)
		if s.c.ttl > 0 {
			p.Expire(ctx, s.key, s.c.ttl)
		}
		return nil
	})
	observability.ObserveStateOp("sadd", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SADD %q %d ids: %w", s.key, len(ids), err)
	}
	return nil
}

func (s *SessionState) Close(ctx context.Context) error {
	start := time.Now()
	err := s.c.rdb.Del(ctx, s.key).Err()
	observability.ObserveStateOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL %q: %w", s.key, err)
	}
	return nil
}
