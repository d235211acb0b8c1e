package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/domain"

	"github.com/google/uuid"
)

// SandboxName is the provider name of the in-process connector.
const SandboxName = "sandbox"

// Sandbox is an in-process connector for local runs. Unknown transactions
// are reported as captured (paid) with no amount; registering one fills in
// the amounts and capture identifiers.
type Sandbox struct {
	mu           sync.Mutex
	transactions map[string]*domain.ProviderTransaction
	payables     map[string]bool
	now          func() time.Time
}

// NewSandbox creates an empty sandbox.
func NewSandbox() *Sandbox {
	return &Sandbox{
		transactions: make(map[string]*domain.ProviderTransaction),
		payables:     make(map[string]bool),
		now:          time.Now,
	}
}

// Name returns SandboxName.
func (s *Sandbox) Name() string { return SandboxName }

// SetStatus forces a status, e.g. to simulate a chargeback notification.
func (s *Sandbox) SetStatus(providerTransactionID string, status domain.TransactionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pt := s.lookup(providerTransactionID)
	pt.Status = status
}

// RegisterTransaction confirms the transaction for its full amount.
func (s *Sandbox) RegisterTransaction(_ context.Context, _ *domain.Affiliation, tx *domain.Transaction) (*domain.ProviderTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pt := s.lookup(tx.ProviderTransactionID)
	if pt.Amount == 0 {
		pt.Amount = tx.Amount
		if pt.Status == domain.StatusPaid {
			pt.PaidAmount = tx.Amount
		}
	}
	if pt.TID == "" {
		pt.AcquirerName = SandboxName
		pt.AcquirerResponseCode = "00"
		pt.NSU = fmt.Sprintf("%06d", len(s.transactions))
		pt.TID = uuid.NewString()
	}
	out := *pt
	return &out, nil
}

// GetTransaction returns the sandbox view.
func (s *Sandbox) GetTransaction(_ context.Context, _ *domain.Affiliation, providerTransactionID string) (*domain.ProviderTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *s.lookup(providerTransactionID)
	return &out, nil
}

// RefundTransaction refunds paid transactions and rejects anything else.
func (s *Sandbox) RefundTransaction(_ context.Context, _ *domain.Affiliation, tx *domain.Transaction, amount int64) (*domain.ProviderRefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pt := s.lookup(tx.ProviderTransactionID)
	if pt.Status != domain.StatusPaid {
		return &domain.ProviderRefundResult{Success: false, Message: "transaction is " + string(pt.Status)}, nil
	}
	now := s.now().UTC()
	pt.Status = domain.StatusRefunded
	pt.RefundedAmount = amount
	pt.RefundedAt = &now
	return &domain.ProviderRefundResult{Success: true}, nil
}

// ProcessPayableRefund records the reversal.
func (s *Sandbox) ProcessPayableRefund(_ context.Context, _ *domain.Affiliation, p *domain.Payable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payables[p.ID] = true
	return nil
}

// PayableRefunded reports whether ProcessPayableRefund ran for payableID.
func (s *Sandbox) PayableRefunded(payableID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payables[payableID]
}

// lookup must be called with s.mu held.
func (s *Sandbox) lookup(providerTransactionID string) *domain.ProviderTransaction {
	pt, ok := s.transactions[providerTransactionID]
	if !ok {
		pt = &domain.ProviderTransaction{
			ProviderTransactionID: providerTransactionID,
			Status:                domain.StatusPaid,
		}
		s.transactions[providerTransactionID] = pt
	}
	return pt
}
