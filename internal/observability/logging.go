package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/console/internal/config"
)

type loggerKey struct{}

// NewLogger builds the console logger. Output defaults to stderr so table
// and JSON output on stdout stays clean. Unknown levels fall back to info.
//
// Levels:
//   - error: backend unavailable, refresh failures, undecodable responses
//   - warn:  4xx responses, breaker changes, discarded stale responses
//   - info:  mutations, sign in and out, dev backend lifecycle
//   - debug: cache traffic, invalidations, redacted request bodies
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "console",
		EncoderConfig:    enc,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.LogEncoding == "json" {
		zcfg.Encoding = "json"
	}
	if cfg.LogOutput != "" {
		zcfg.OutputPaths = []string{cfg.LogOutput}
	}
	return zcfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the context logger, then fallback, then a no-op.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return zap.NewNop()
}

const redacted = "[REDACTED]"

// sensitiveKeys are masked in every logged body, compared lowercased.
var sensitiveKeys = []string{
	"password", "currentpassword", "newpassword",
	"secret", "token", "authorization", "api_key",
	"accesstoken", "access_token", "refreshtoken", "refresh_token",
	"twofactorcode",
}

// RedactBody copies body for debug logging, masking sensitive keys and any
// of extra. Nested objects and arrays are walked. body is never modified.
func RedactBody(body map[string]any, extra []string) map[string]any {
	if body == nil {
		return nil
	}
	mask := make(map[string]struct{}, len(sensitiveKeys)+len(extra))
	for _, k := range sensitiveKeys {
		mask[k] = struct{}{}
	}
	for _, k := range extra {
		mask[strings.ToLower(k)] = struct{}{}
	}
	return redactObject(body, mask)
}

func redactObject(obj map[string]any, mask map[string]struct{}) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if _, hit := mask[strings.ToLower(k)]; hit {
			out[k] = redacted
			continue
		}
		out[k] = redactValue(v, mask)
	}
	return out
}

func redactValue(v any, mask map[string]struct{}) any {
	switch val := v.(type) {
	case map[string]any:
		return redactObject(val, mask)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = redactValue(item, mask)
		}
		return items
	default:
		return v
	}
}
