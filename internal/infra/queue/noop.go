package queue

import (
	"context"

	"github.com/boddenberg/acquiring-core-go/internal/domain"

	"go.uber.org/zap"
)

// NoopProducer stands in when no broker is reachable at boot. It logs and
// drops every message, which keeps registration and refunds available since
// queue messages and events are best-effort.
type NoopProducer struct {
	logger *zap.Logger
}

// NewNoopProducer creates a producer that only logs.
func NewNoopProducer(logger *zap.Logger) *NoopProducer {
	return &NoopProducer{logger: logger}
}

// Publish logs and drops the message.
func (p *NoopProducer) Publish(_ context.Context, message string, _ any) error {
	p.logger.Warn("broker unavailable, dropping message", zap.String("message", message))
	return nil
}

// Trigger logs and drops the event.
func (p *NoopProducer) Trigger(_ context.Context, ev *domain.DomainEvent) error {
	p.logger.Warn("broker unavailable, dropping event",
		zap.String("event", ev.Name),
		zap.String("resource_id", ev.ResourceID),
	)
	return nil
}

// Close is a no-op.
func (p *NoopProducer) Close() {}
