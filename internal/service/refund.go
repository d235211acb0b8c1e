package service

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/infra/observability"
	"github.com/boddenberg/acquiring-core-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var refundTracer = otel.Tracer("service/refund")

// Refund operation labels.
const (
	opRefund         = "refund"
	opRegisterRefund = "register_refund"
)

// RefundConfig tunes the orchestrator.
type RefundConfig struct {
	LockTTL            time.Duration
	PayableConcurrency int
}

// RefundOptions carries caller context for a refund.
type RefundOptions struct {
	RequestedBy string
}

// RefundSnapshot is the webhook resource sent after a refund.
type RefundSnapshot struct {
	*domain.ExternalTransaction
	RefundPayables []domain.Payable `json:"refund_payables"`
}

// RefundOrchestrator moves paid transactions to refunded under a
// per-transaction lock.
type RefundOrchestrator struct {
	stores    Stores
	providers port.ProviderResolver
	locker    port.Locker
	effects   *dispatcher
	cfg       RefundConfig
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewRefundOrchestrator wires the orchestrator.
func NewRefundOrchestrator(
	stores Stores,
	providers port.ProviderResolver,
	locker port.Locker,
	effects Effects,
	cfg RefundConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RefundOrchestrator {
	if cfg.PayableConcurrency <= 0 {
		cfg.PayableConcurrency = 1
	}
	o := &RefundOrchestrator{
		stores:    stores,
		providers: providers,
		locker:    locker,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	o.effects = &dispatcher{effects: effects, metrics: metrics, logger: logger, now: o.now}
	return o
}

// reconcileFunc moves tx to its refunded state, usually by asking the provider.
type reconcileFunc func(ctx context.Context, tx *domain.Transaction, aff *domain.Affiliation, connector port.Provider) error

// Refund refunds a paid transaction on its provider and records the result.
func (o *RefundOrchestrator) Refund(ctx context.Context, transactionID string, opts RefundOptions) (*domain.Transaction, error) {
	ctx, span := refundTracer.Start(ctx, "RefundOrchestrator.Refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction.id", transactionID),
		attribute.String("requested_by", opts.RequestedBy),
	)

	tx, err := o.execute(ctx, opRefund, transactionID, o.refundOnProvider)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	o.logger.Info("transaction refunded", append([]zap.Field{
		zap.String("operation", opRefund),
		zap.String("transaction_id", tx.ID),
		zap.String("company_id", tx.CompanyID),
		zap.String("requested_by", opts.RequestedBy),
		zap.Int64("refunded_amount", tx.RefundedAmount),
	}, observability.ContextFields(ctx)...)...)
	return tx, nil
}

// RegisterRefund records a refund or chargeback that already happened on the
// provider. The provider's view is authoritative and no refund call is made.
func (o *RefundOrchestrator) RegisterRefund(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	ctx, span := refundTracer.Start(ctx, "RefundOrchestrator.RegisterRefund")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID))

	tx, err := o.execute(ctx, opRegisterRefund, transactionID, o.reconcileFromProvider)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	o.logger.Info("provider refund registered", append([]zap.Field{
		zap.String("operation", opRegisterRefund),
		zap.String("transaction_id", tx.ID),
		zap.String("company_id", tx.CompanyID),
		zap.String("status", string(tx.Status)),
	}, observability.ContextFields(ctx)...)...)
	return tx, nil
}

// execute runs lock, load, reconcile, persist, payables, notify, unlock.
// The lock is released on every path.
func (o *RefundOrchestrator) execute(ctx context.Context, operation, transactionID string, reconcile reconcileFunc) (_ *domain.Transaction, err error) {
	start := time.Now()
	defer func() {
		o.metrics.RecordRequestDuration(operation, time.Since(start))
		if err != nil {
			o.metrics.IncrRefund(operation, observability.OutcomeError)
			o.logger.Warn("refund failed", append([]zap.Field{
				zap.String("operation", operation),
				zap.String("transaction_id", transactionID),
				zap.Error(err),
			}, observability.ContextFields(ctx)...)...)
			return
		}
		o.metrics.IncrRefund(operation, observability.OutcomeRefunded)
	}()

	handle, err := o.acquire(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	defer o.release(handle)

	tx, err := o.stores.Transactions.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.StatusPaid {
		return nil, &domain.ErrRefundTransactionNotPaid{TransactionID: tx.ID, Status: tx.Status}
	}

	aff, err := o.stores.Affiliations.GetAffiliation(ctx, tx.AffiliationID)
	if err != nil {
		return nil, err
	}
	if aff.Provider != tx.Provider {
		return nil, &domain.ErrNotFound{Resource: "affiliation", ID: tx.AffiliationID + "/" + tx.Provider}
	}
	connector, err := o.providers.Resolve(tx.Locale, tx.Provider)
	if err != nil {
		return nil, err
	}

	previous := tx.Status
	if err := reconcile(ctx, tx, aff, connector); err != nil {
		return nil, err
	}
	tx.IsSplitRuleProcessed = true
	tx.UpdatedAt = o.now().UTC()
	if err := o.stores.Transactions.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	refunds := o.refundPayables(ctx, tx, aff, connector)

	snapshot := RefundSnapshot{ExternalTransaction: tx.External(), RefundPayables: refunds}
	o.effects.notify(ctx, tx, domain.WebhookStatusEvent(tx.Status), previous, snapshot)
	o.effects.trigger(ctx, domain.EventTransactionCanceled, tx, snapshot)
	return tx, nil
}

func (o *RefundOrchestrator) acquire(ctx context.Context, transactionID string) (port.LockHandle, error) {
	start := time.Now()
	h, err := o.locker.Acquire(ctx, "refund:"+transactionID, o.cfg.LockTTL)
	o.metrics.RecordLockWait(opRefund, time.Since(start))
	return h, err
}

// release uses a fresh context so a cancelled request still frees the lock.
func (o *RefundOrchestrator) release(h port.LockHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Release(ctx); err != nil {
		o.logger.Error("failed to release refund lock", zap.String("key", h.Key()), zap.Error(err))
	}
}

func (o *RefundOrchestrator) refundOnProvider(ctx context.Context, tx *domain.Transaction, aff *domain.Affiliation, connector port.Provider) error {
	if tx.CapturedBy != "" {
		return o.refundCapturedBySubsystem(ctx, tx)
	}

	res, err := connector.RefundTransaction(ctx, aff, tx, tx.Amount)
	if err != nil {
		var open *domain.ErrCircuitOpen
		if errors.As(err, &open) {
			return err
		}
		return &domain.ErrTransactionProviderRefund{TransactionID: tx.ID, Provider: tx.Provider, Err: err}
	}
	if !res.Success {
		return &domain.ErrTransactionProviderRefund{TransactionID: tx.ID, Provider: tx.Provider, Message: res.Message}
	}

	pt, err := connector.GetTransaction(ctx, aff, tx.ProviderTransactionID)
	if err != nil {
		return err
	}
	if pt.Status != domain.StatusRefunded {
		return &domain.ErrTransactionNotRefundedOnProvider{TransactionID: tx.ID, Status: pt.Status}
	}
	o.applyRefund(tx, pt)
	return nil
}

// refundCapturedBySubsystem handles transactions captured by another internal
// capture subsystem. The provider is neither called nor checked and the
// refund is recorded locally.
// TODO: drop once the capture subsystem exposes its own refund endpoint.
func (o *RefundOrchestrator) refundCapturedBySubsystem(ctx context.Context, tx *domain.Transaction) error {
	o.logger.Warn("refund recorded without provider call", append([]zap.Field{
		zap.String("carve_out", "captured_by"),
		zap.String("captured_by", tx.CapturedBy),
		zap.String("transaction_id", tx.ID),
		zap.String("company_id", tx.CompanyID),
	}, observability.ContextFields(ctx)...)...)
	o.applyRefund(tx, &domain.ProviderTransaction{Status: domain.StatusRefunded})
	return nil
}

func (o *RefundOrchestrator) reconcileFromProvider(ctx context.Context, tx *domain.Transaction, aff *domain.Affiliation, connector port.Provider) error {
	pt, err := connector.GetTransaction(ctx, aff, tx.ProviderTransactionID)
	if err != nil {
		return err
	}
	if pt.Status != domain.StatusRefunded && pt.Status != domain.StatusChargedback {
		return &domain.ErrTransactionNotRefundedOnProvider{TransactionID: tx.ID, Status: pt.Status}
	}
	o.applyRefund(tx, pt)
	return nil
}

// applyRefund copies the provider's refund view, filling what it omits.
func (o *RefundOrchestrator) applyRefund(tx *domain.Transaction, pt *domain.ProviderTransaction) {
	tx.Status = pt.Status
	tx.RefundedAmount = pt.RefundedAmount
	if tx.RefundedAmount == 0 {
		tx.RefundedAmount = tx.Amount
	}
	if pt.RefundedAt != nil {
		tx.RefundedAt = pt.RefundedAt
	} else {
		now := o.now().UTC()
		tx.RefundedAt = &now
	}
}
