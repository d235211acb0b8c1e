package service

import (
	"context"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/port"
)

// IdempotencyGuard rejects provider transactions that were already registered.
//
// The check is advisory. Two registrations racing past it are stopped by the
// store's unique (provider, provider_transaction_id) constraint, and the
// pipeline can additionally hold a short registration lock.
type IdempotencyGuard struct {
	transactions port.TransactionStore
}

// NewIdempotencyGuard creates a guard over the transaction store.
func NewIdempotencyGuard(transactions port.TransactionStore) *IdempotencyGuard {
	return &IdempotencyGuard{transactions: transactions}
}

// CheckNotRegistered fails with *domain.ErrTransactionAlreadyExists when a
// transaction exists for (provider, providerTransactionID).
func (g *IdempotencyGuard) CheckNotRegistered(ctx context.Context, provider, providerTransactionID string) error {
	existing, err := g.transactions.FindTransactionByProviderID(ctx, provider, providerTransactionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return &domain.ErrTransactionAlreadyExists{
			Provider:              provider,
			ProviderTransactionID: providerTransactionID,
			Existing:              existing,
		}
	}
	return nil
}
