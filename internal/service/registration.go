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

var registrationTracer = otel.Tracer("service/registration")

// RegistrationOutcome tags a successful Register call.
type RegistrationOutcome int

const (
	// Registered means a new transaction was persisted and confirmed.
	Registered RegistrationOutcome = iota + 1
	// AlreadyRegistered means the provider transaction was known; nothing ran.
	AlreadyRegistered
)

func (o RegistrationOutcome) String() string {
	switch o {
	case Registered:
		return observability.OutcomeRegistered
	case AlreadyRegistered:
		return observability.OutcomeAlreadyRegistered
	}
	return "unknown"
}

// RegistrationResult is what Register returns when it does not fail.
// For AlreadyRegistered, Transaction is the record that already existed.
type RegistrationResult struct {
	Outcome     RegistrationOutcome
	Transaction *domain.Transaction
	External    *domain.ExternalTransaction
}

// RegistrationConfig tunes the pipeline.
type RegistrationConfig struct {
	DefaultLocale string
	// LockTTL enables a per-provider-transaction lock around the
	// check-then-persist window. Zero disables it.
	LockTTL time.Duration
}

// RegistrationPipeline registers provider transactions.
type RegistrationPipeline struct {
	stores    Stores
	providers port.ProviderResolver
	guard     *IdempotencyGuard
	locker    port.Locker
	effects   *dispatcher
	cfg       RegistrationConfig
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
	stages    []stage
}

// NewRegistrationPipeline wires the pipeline. locker may be nil when
// cfg.LockTTL is zero.
func NewRegistrationPipeline(
	stores Stores,
	providers port.ProviderResolver,
	locker port.Locker,
	effects Effects,
	cfg RegistrationConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RegistrationPipeline {
	p := &RegistrationPipeline{
		stores:    stores,
		providers: providers,
		guard:     NewIdempotencyGuard(stores.Transactions),
		locker:    locker,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	p.effects = &dispatcher{effects: effects, metrics: metrics, logger: logger, now: p.now}
	p.stages = p.registrationStages()
	return p
}

// Register runs the registration stages in order and stops at the first
// failure. A duplicate provider transaction is not an error: it returns
// AlreadyRegistered with the existing record.
func (p *RegistrationPipeline) Register(ctx context.Context, req *domain.TransactionRequest) (*RegistrationResult, error) {
	ctx, span := registrationTracer.Start(ctx, "RegistrationPipeline.Register")
	defer span.End()
	span.SetAttributes(
		attribute.String("company.id", req.CompanyID),
		attribute.String("provider_transaction.id", req.ProviderTransactionID),
	)

	start := time.Now()
	defer func() { p.metrics.RecordRequestDuration("register", time.Since(start)) }()

	rc := &registrationContext{req: req}
	defer p.releaseLock(rc)

	err := runStages(ctx, rc, p.stages, p.metrics)

	var exists *domain.ErrTransactionAlreadyExists
	switch {
	case err == nil:
		p.metrics.IncrRegistration(observability.OutcomeRegistered)
		p.logger.Info("transaction registered", append([]zap.Field{
			zap.String("operation", "register"),
			zap.String("company_id", rc.tx.CompanyID),
			zap.String("transaction_id", rc.tx.ID),
			zap.String("provider", rc.tx.Provider),
			zap.String("status", string(rc.tx.Status)),
			zap.String("split_origin", string(rc.tx.SplitOrigin)),
		}, observability.ContextFields(ctx)...)...)
		return rc.result, nil

	case errors.As(err, &exists):
		existing, lookupErr := p.existing(ctx, exists)
		if lookupErr != nil {
			return nil, lookupErr
		}
		p.metrics.IncrRegistration(observability.OutcomeAlreadyRegistered)
		p.logger.Debug("transaction already registered",
			zap.String("provider", exists.Provider),
			zap.String("provider_transaction_id", exists.ProviderTransactionID),
			zap.String("transaction_id", existing.ID),
		)
		return &RegistrationResult{Outcome: AlreadyRegistered, Transaction: existing, External: existing.External()}, nil
	}

	span.SetStatus(codes.Error, err.Error())
	p.metrics.IncrRegistration(observability.OutcomeError)
	p.logger.Error("transaction registration failed", append([]zap.Field{
		zap.String("operation", "register"),
		zap.String("stage", rc.failedStage),
		zap.String("company_id", req.CompanyID),
		zap.String("provider", req.Provider),
		zap.String("provider_transaction_id", req.ProviderTransactionID),
		zap.Int64("amount", req.Amount),
		zap.Error(err),
	}, observability.ContextFields(ctx)...)...)
	return nil, err
}

// existing returns the transaction carried by a conflict, loading it when the
// store did not attach it.
func (p *RegistrationPipeline) existing(ctx context.Context, exists *domain.ErrTransactionAlreadyExists) (*domain.Transaction, error) {
	if exists.Existing != nil {
		return exists.Existing, nil
	}
	tx, err := p.stores.Transactions.FindTransactionByProviderID(ctx, exists.Provider, exists.ProviderTransactionID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: exists.ProviderTransactionID}
	}
	return tx, nil
}

func (p *RegistrationPipeline) releaseLock(rc *registrationContext) {
	if rc.lock == nil {
		return
	}
	h := rc.lock
	rc.lock = nil
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Release(ctx); err != nil {
		p.logger.Warn("failed to release registration lock", zap.String("key", h.Key()), zap.Error(err))
	}
}

// ============================================================
// Stage runner
// ============================================================

type stage struct {
	name string
	run  func(ctx context.Context, rc *registrationContext) error
}

// registrationContext is the mutable state threaded through the stages.
type registrationContext struct {
	req            *domain.TransactionRequest
	company        *domain.Company
	affiliation    *domain.Affiliation
	connector      port.Provider
	providerStatus domain.TransactionStatus
	tx             *domain.Transaction
	result         *RegistrationResult
	lock           port.LockHandle
	failedStage    string
}

func runStages(ctx context.Context, rc *registrationContext, stages []stage, metrics *observability.Metrics) error {
	for _, st := range stages {
		stageCtx, span := registrationTracer.Start(ctx, "stage."+st.name)
		start := time.Now()
		err := st.run(stageCtx, rc)
		metrics.RecordStage("register", st.name, time.Since(start))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.End()
			rc.failedStage = st.name
			return err
		}
		span.End()
	}
	return nil
}
