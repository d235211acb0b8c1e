package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/port"
)

// --- In-memory stores ---

type memStore struct {
	mu           sync.Mutex
	companies    map[string]*domain.Company
	affiliations map[string]*domain.Affiliation
	feeRules     map[string]*domain.FeeRule
	transactions map[string]*domain.Transaction
	payables     map[string]*domain.Payable
	createErr    error
	updates      int
}

func newMemStore() *memStore {
	return &memStore{
		companies:    make(map[string]*domain.Company),
		affiliations: make(map[string]*domain.Affiliation),
		feeRules:     make(map[string]*domain.FeeRule),
		transactions: make(map[string]*domain.Transaction),
		payables:     make(map[string]*domain.Payable),
	}
}

func (s *memStore) GetCompany(_ context.Context, id string) (*domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "company", ID: id}
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) UpdateDefaultSplitRules(_ context.Context, id string, rules []domain.SplitInstruction) (*domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "company", ID: id}
	}
	c.DefaultSplitRules = rules
	cp := *c
	return &cp, nil
}

func (s *memStore) FindAffiliation(_ context.Context, companyID, provider string) (*domain.Affiliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.affiliations {
		if a.CompanyID == companyID && a.Provider == provider {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetAffiliation(_ context.Context, id string) (*domain.Affiliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.affiliations[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "affiliation", ID: id}
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) FindFeeRule(_ context.Context, companyID string) (*domain.FeeRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeRules[companyID], nil
}

func (s *memStore) FindTransactionByProviderID(_ context.Context, provider, ptid string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transactions {
		if t.Provider == provider && t.ProviderTransactionID == ptid {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) CreateTransaction(_ context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, t := range s.transactions {
		if t.Provider == tx.Provider && t.ProviderTransactionID == tx.ProviderTransactionID {
			cp := *t
			return &domain.ErrTransactionAlreadyExists{Provider: tx.Provider, ProviderTransactionID: tx.ProviderTransactionID, Existing: &cp}
		}
	}
	cp := *tx
	s.transactions[tx.ID] = &cp
	return nil
}

func (s *memStore) UpdateTransaction(_ context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[tx.ID]; !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: tx.ID}
	}
	cp := *tx
	s.transactions[tx.ID] = &cp
	s.updates++
	return nil
}

func (s *memStore) ListPayables(_ context.Context, transactionID string) ([]domain.Payable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Payable
	for _, p := range s.payables {
		if p.TransactionID == transactionID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CreateRefundPayable(_ context.Context, p *domain.Payable) (*domain.Payable, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.OriginID == "broken" {
		return nil, false, errors.New("payable store unavailable")
	}
	for _, existing := range s.payables {
		if existing.Type == domain.PayableTypeRefund && existing.OriginID == p.OriginID {
			cp := *existing
			return &cp, false, nil
		}
	}
	cp := *p
	s.payables[p.ID] = &cp
	return p, true, nil
}

func (s *memStore) refundPayableCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.payables {
		if p.Type == domain.PayableTypeRefund {
			n++
		}
	}
	return n
}

// --- Provider ---

type fakeProvider struct {
	mu             sync.Mutex
	name           string
	getStatus      domain.TransactionStatus
	getAmount      int64
	getErr         error
	registerStatus domain.TransactionStatus
	registerAmount int64
	registerErr    error
	refundResult   *domain.ProviderRefundResult
	refundErr      error
	payableErr     error
	// refundKeepsStatus leaves the reported status untouched after a refund.
	refundKeepsStatus bool

	getCalls      int
	registerCalls int
	refundCalls   int
	payableCalls  []string
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{
		name:           name,
		getStatus:      domain.StatusPaid,
		registerStatus: domain.StatusPaid,
		refundResult:   &domain.ProviderRefundResult{Success: true},
	}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) RegisterTransaction(_ context.Context, _ *domain.Affiliation, tx *domain.Transaction) (*domain.ProviderTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registerCalls++
	if p.registerErr != nil {
		return nil, p.registerErr
	}
	return &domain.ProviderTransaction{ProviderTransactionID: tx.ProviderTransactionID, Status: p.registerStatus, Amount: p.registerAmount, NSU: "000042"}, nil
}

func (p *fakeProvider) GetTransaction(_ context.Context, _ *domain.Affiliation, ptid string) (*domain.ProviderTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	return &domain.ProviderTransaction{ProviderTransactionID: ptid, Status: p.getStatus, Amount: p.getAmount}, nil
}

func (p *fakeProvider) RefundTransaction(_ context.Context, _ *domain.Affiliation, _ *domain.Transaction, _ int64) (*domain.ProviderRefundResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refundCalls++
	if p.refundErr != nil {
		return nil, p.refundErr
	}
	if p.refundResult.Success && !p.refundKeepsStatus {
		p.getStatus = domain.StatusRefunded
	}
	return p.refundResult, nil
}

func (p *fakeProvider) ProcessPayableRefund(_ context.Context, _ *domain.Affiliation, pay *domain.Payable) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payableCalls = append(p.payableCalls, pay.ID)
	return p.payableErr
}

func (p *fakeProvider) payableRefunds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.payableCalls...)
}

func (p *fakeProvider) calls() (get, register, refund int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getCalls, p.registerCalls, p.refundCalls
}

type fakeResolver struct {
	providers map[string]port.Provider
}

func (r *fakeResolver) Resolve(_, name string) (port.Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, &domain.ErrProviderNotAllowed{Provider: name}
	}
	return p, nil
}

func (r *fakeResolver) Enabled(name string) bool {
	_, ok := r.providers[name]
	return ok
}

// --- Side effects ---

type recorder struct {
	mu       sync.Mutex
	messages []string
	events   []string
	webhooks []*domain.WebhookNotification
	err      error
}

func (r *recorder) Publish(_ context.Context, message string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return r.err
}

func (r *recorder) Trigger(_ context.Context, ev *domain.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev.Name)
	return r.err
}

func (r *recorder) Notify(_ context.Context, n *domain.WebhookNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks = append(r.webhooks, n)
	return r.err
}

func (r *recorder) webhookEvents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.webhooks))
	for i, n := range r.webhooks {
		out[i] = n.Event
	}
	return out
}

func (r *recorder) count() (messages, events, webhooks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages), len(r.events), len(r.webhooks)
}
