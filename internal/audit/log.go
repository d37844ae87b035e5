package audit

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"go.uber.org/zap"

	"durga.org/internal/auth"
	"durga.org/internal/directory"
	"durga.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Logger writes audit entries through a zap logger and implements directory.Auditor.
type Logger struct {
	log *zap.Logger
	now func() time.Time
}

var _ directory.Auditor = (*Logger)(nil)

// New returns a Logger writing to l, or to obs.Logger() when l is nil.
func New(l *zap.Logger) *Logger {
	if l == nil {
		l = obs.Logger()
	}
	return &Logger{log: l, now: func() time.Time { return time.Now().UTC() }}
}

// Record implements directory.Auditor. Invalid events are dropped.
func (a *Logger) Record(ctx context.Context, event string, fields map[string]any) {
	_ = a.LogEvent(ctx, event, fields)
}

// LogEvent writes an audit entry enriched with request and actor context.
func (a *Logger) LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zf := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
		zap.Time("at", a.now()),
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		zf = append(zf, zap.String("request_id", rid))
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		zf = append(zf, zap.String("user_id", userID))
	}
	copied := make(map[string]any, len(fields))
	maps.Copy(copied, fields)
	zf = append(zf, zap.Any("fields", copied))
	a.log.Info("audit", zf...)
	return nil
}

// LogEvent writes an audit entry through the shared logger.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	return New(nil).LogEvent(ctx, event, fields)
}
