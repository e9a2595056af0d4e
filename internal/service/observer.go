package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-txauth/internal/domain"
	"github.com/smallbiznis/valora-txauth/internal/repository"
)

const tracerName = "github.com/smallbiznis/valora-txauth/internal/service"

// observer bundles the logging, tracing and security trail shared by services.
type observer struct {
	logger *zap.Logger
	tracer trace.Tracer
	events repository.SecurityEventRepository
}

func newObserver(logger *zap.Logger, events repository.SecurityEventRepository) observer {
	return observer{logger: logger, tracer: otel.Tracer(tracerName), events: events}
}

func (o observer) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if o.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return o.tracer.Start(ctx, name)
}

func (o observer) audit(event string, attrs ...any) {
	logger := o.log()
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

// securityEvent writes to the audit trail. Failures are logged, never returned:
// the trail must not block the operation it describes.
func (o observer) securityEvent(ctx context.Context, userID, eventType, details, ip string) {
	if o.events == nil {
		return
	}
	err := o.events.Record(ctx, domain.SecurityEvent{
		UserID:    userID,
		EventType: eventType,
		Details:   details,
		IPAddress: ip,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		o.log().Warn("security event not recorded",
			zap.String("event_type", eventType),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

func (o observer) log() *zap.Logger {
	if o.logger != nil {
		return o.logger
	}
	return zap.L()
}

// tokenPrefix keeps logs from carrying usable credentials.
func tokenPrefix(token string) string {
	if len(token) <= 12 {
		return "***"
	}
	return token[:12] + "..."
}
