// Package logger builds the zerolog root logger and carries request, session
// and query identifiers through context.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	// SampleN keeps one event in N; 0 or less disables sampling.
	SampleN   int
	Component string
	Version   string
}

type ctxKey string

const (
	keyRequestID ctxKey = "request_id"
	keySessionID ctxKey = "session_id"
	keyComponent ctxKey = "component"
	keyQueryFP   ctxKey = "query_fp"
)

// contextKeys is the order context fields appear in a log line.
var contextKeys = [...]ctxKey{keyRequestID, keySessionID, keyComponent, keyQueryFP}

func withValue(ctx context.Context, k ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

// WithRequestID stores reqID, generating one when empty.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return withValue(ctx, keyRequestID, reqID)
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return withValue(ctx, keySessionID, id)
}

// WithQueryFingerprint tags upstream log lines with the Overpass query hash.
func WithQueryFingerprint(ctx context.Context, fp string) context.Context {
	return withValue(ctx, keyQueryFP, fp)
}

func WithComponent(ctx context.Context, component string) context.Context {
	return withValue(ctx, keyComponent, component)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(keyRequestID).(string)
	return s
}

// NewID returns 16 random hex characters.
func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// ParseLevel maps a config string to a level; unknown values mean info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func sampleN(n int) uint32 {
	if n <= 0 {
		return 0
	}
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

// Build returns the root logger writing JSON lines to out (stdout when nil).
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	base := zerolog.New(out).Level(ParseLevel(cfg.Level))
	if n := sampleN(cfg.SampleN); n > 1 {
		// warnings and errors are never sampled away
		base = base.Sample(zerolog.LevelSampler{
			TraceSampler: &zerolog.BasicSampler{N: n},
			DebugSampler: &zerolog.BasicSampler{N: n},
			InfoSampler:  &zerolog.BasicSampler{N: n},
		})
	}

	zc := base.With().Timestamp()
	if cfg.Component != "" {
		zc = zc.Str("component", cfg.Component)
	}
	if cfg.Version != "" {
		zc = zc.Str("version", cfg.Version)
	}
	return zc.Logger()
}

// FromContext returns a child of parent carrying the identifiers found in ctx.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	base := zerolog.Nop()
	if parent != nil {
		base = *parent
	}
	zc := base.With()
	for _, k := range contextKeys {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			zc = zc.Str(string(k), s)
		}
	}
	l := zc.Logger()
	return &l
}
