// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
//
// Naming convention for lookups: Get* returns *domain.ErrNotFound when the
// record is absent, Find* returns (nil, nil).
package port

import (
	"context"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
)

// ============================================================
// Persistence
// ============================================================

// CompanyStore reads and configures companies.
type CompanyStore interface {
	GetCompany(ctx context.Context, companyID string) (*domain.Company, error)
	UpdateDefaultSplitRules(ctx context.Context, companyID string, rules []domain.SplitInstruction) (*domain.Company, error)
}

// AffiliationStore reads provider affiliations.
type AffiliationStore interface {
	FindAffiliation(ctx context.Context, companyID, provider string) (*domain.Affiliation, error)
	GetAffiliation(ctx context.Context, affiliationID string) (*domain.Affiliation, error)
}

// FeeRuleStore reads pricing configuration.
type FeeRuleStore interface {
	FindFeeRule(ctx context.Context, companyID string) (*domain.FeeRule, error)
}

// TransactionStore persists transactions. CreateTransaction must enforce
// uniqueness of (provider, provider_transaction_id) and fail with
// *domain.ErrTransactionAlreadyExists on conflict.
type TransactionStore interface {
	FindTransactionByProviderID(ctx context.Context, provider, providerTransactionID string) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error)
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	UpdateTransaction(ctx context.Context, tx *domain.Transaction) error
}

// PayableStore persists payables. CreateRefundPayable is idempotent per
// origin payable: it returns the existing refund payable and false when one
// was already written.
type PayableStore interface {
	ListPayables(ctx context.Context, transactionID string) ([]domain.Payable, error)
	CreateRefundPayable(ctx context.Context, p *domain.Payable) (*domain.Payable, bool, error)
}

// Seeder writes reference data managed outside this service. Used by the
// operator CLI and local environments.
type Seeder interface {
	SaveCompany(ctx context.Context, c *domain.Company) error
	SaveAffiliation(ctx context.Context, a *domain.Affiliation) error
	SaveFeeRule(ctx context.Context, f *domain.FeeRule) error
	SavePayable(ctx context.Context, p *domain.Payable) error
}

// Repository is the full storage surface implemented by each driver.
type Repository interface {
	CompanyStore
	AffiliationStore
	FeeRuleStore
	TransactionStore
	PayableStore
	Seeder
	Ping(ctx context.Context) error
	Close() error
}

// ============================================================
// Providers
// ============================================================

// Provider is a payment-provider connector.
type Provider interface {
	Name() string
	RegisterTransaction(ctx context.Context, aff *domain.Affiliation, tx *domain.Transaction) (*domain.ProviderTransaction, error)
	GetTransaction(ctx context.Context, aff *domain.Affiliation, providerTransactionID string) (*domain.ProviderTransaction, error)
	RefundTransaction(ctx context.Context, aff *domain.Affiliation, tx *domain.Transaction, amount int64) (*domain.ProviderRefundResult, error)
	ProcessPayableRefund(ctx context.Context, aff *domain.Affiliation, p *domain.Payable) error
}

// ProviderResolver resolves a connector by (locale, provider name).
type ProviderResolver interface {
	Resolve(locale, name string) (Provider, error)
	Enabled(name string) bool
}

// ============================================================
// Coordination
// ============================================================

// Locker acquires TTL-bounded mutually exclusive locks addressed by key.
// Acquire returns *domain.ErrLockNotAcquired when the lock stays busy past
// the implementation's wait policy.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// LockHandle is a held lock. Release only deletes the lock while it is still
// owned by this handle's token.
type LockHandle interface {
	Key() string
	Token() string
	Release(ctx context.Context) error
}

// ============================================================
// Side effects
// ============================================================

// QueuePublisher publishes named fire-and-forget messages.
type QueuePublisher interface {
	Publish(ctx context.Context, message string, payload any) error
}

// EventTrigger raises domain events.
type EventTrigger interface {
	Trigger(ctx context.Context, ev *domain.DomainEvent) error
}

// WebhookDispatcher delivers webhook notifications to a parent company.
type WebhookDispatcher interface {
	Notify(ctx context.Context, n *domain.WebhookNotification) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
