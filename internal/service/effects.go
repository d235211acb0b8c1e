package service

import (
	"context"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/infra/observability"
	"github.com/boddenberg/acquiring-core-go/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stores groups the persistence ports the services read and write.
type Stores struct {
	Companies    port.CompanyStore
	Affiliations port.AffiliationStore
	FeeRules     port.FeeRuleStore
	Transactions port.TransactionStore
	Payables     port.PayableStore
}

// StoresFrom exposes every store of a repository.
func StoresFrom(repo port.Repository) Stores {
	return Stores{
		Companies:    repo,
		Affiliations: repo,
		FeeRules:     repo,
		Transactions: repo,
		Payables:     repo,
	}
}

// Effects groups the collaborators notified after a state change. Nil sinks
// are skipped.
type Effects struct {
	Queue    port.QueuePublisher
	Events   port.EventTrigger
	Webhooks port.WebhookDispatcher
}

// Side-effect labels used in logs and metrics.
const (
	effectCreatePayables  = "create_payables"
	effectAssignPortfolio = "assign_portfolio"
	effectWebhook         = "webhook"
	effectEvent           = "event"
)

// dispatcher runs best-effort side effects. Failures are logged, counted
// and swallowed; they never reach the caller.
type dispatcher struct {
	effects Effects
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func (d *dispatcher) publish(ctx context.Context, effect, message string, payload any, tx *domain.Transaction) {
	if d.effects.Queue == nil {
		return
	}
	if err := d.effects.Queue.Publish(ctx, message, payload); err != nil {
		d.failed(ctx, effect, tx, err)
	}
}

func (d *dispatcher) notify(ctx context.Context, tx *domain.Transaction, event string, previous domain.TransactionStatus, resource any) {
	if d.effects.Webhooks == nil {
		return
	}
	n := &domain.WebhookNotification{
		ID:             uuid.NewString(),
		ParentID:       tx.IsoID,
		Event:          event,
		ResourceType:   domain.WebhookResourceTransaction,
		ResourceID:     tx.ID,
		PreviousStatus: previous,
		CurrentStatus:  tx.Status,
		Resource:       resource,
		OccurredAt:     d.now().UTC(),
	}
	if err := d.effects.Webhooks.Notify(ctx, n); err != nil {
		d.failed(ctx, effectWebhook, tx, err, zap.String("event", event))
	}
}

func (d *dispatcher) trigger(ctx context.Context, name string, tx *domain.Transaction, payload any) {
	if d.effects.Events == nil {
		return
	}
	ev := &domain.DomainEvent{
		Name:       name,
		CompanyID:  tx.CompanyID,
		ResourceID: tx.ID,
		Payload:    payload,
		OccurredAt: d.now().UTC(),
	}
	if err := d.effects.Events.Trigger(ctx, ev); err != nil {
		d.failed(ctx, effectEvent, tx, err, zap.String("event", name))
	}
}

func (d *dispatcher) failed(ctx context.Context, effect string, tx *domain.Transaction, err error, extra ...zap.Field) {
	d.metrics.IncrSideEffectFailure(effect)
	fields := append([]zap.Field{
		zap.String("effect", effect),
		zap.String("transaction_id", tx.ID),
		zap.String("company_id", tx.CompanyID),
		zap.Error(err),
	}, extra...)
	fields = append(fields, observability.ContextFields(ctx)...)
	d.logger.Error("side effect failed", fields...)
}
