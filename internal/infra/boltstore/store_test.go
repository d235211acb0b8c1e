package boltstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/infra/boltstore"
	"github.com/boddenberg/acquiring-core-go/internal/port"
)

var _ port.Repository = (*boltstore.Store)(nil)

func openStore(t *testing.T) *boltstore.Store {
	t.Helper()
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "acq.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CompanyRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.SaveCompany(ctx, &domain.Company{ID: "c1", Name: "Loja", DefaultProvider: "sandbox"}); err != nil {
		t.Fatalf("save company: %v", err)
	}

	rules := []domain.SplitInstruction{domain.PercentageRule("c2", domain.MustPercent(25), false)}
	updated, err := s.UpdateDefaultSplitRules(ctx, "c1", rules)
	if err != nil {
		t.Fatalf("update rules: %v", err)
	}
	if len(updated.DefaultSplitRules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(updated.DefaultSplitRules))
	}

	got, err := s.GetCompany(ctx, "c1")
	if err != nil {
		t.Fatalf("get company: %v", err)
	}
	if got.DefaultProvider != "sandbox" || *got.DefaultSplitRules[0].Percentage != domain.MustPercent(25) {
		t.Errorf("unexpected company: %+v", got)
	}

	_, err = s.GetCompany(ctx, "missing")
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_AffiliationLookup(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	aff := &domain.Affiliation{ID: "a1", CompanyID: "c1", Provider: "sandbox", Enabled: true, Status: domain.AffiliationStatusActive}
	if err := s.SaveAffiliation(ctx, aff); err != nil {
		t.Fatalf("save affiliation: %v", err)
	}

	found, err := s.FindAffiliation(ctx, "c1", "sandbox")
	if err != nil || found == nil || found.ID != "a1" {
		t.Fatalf("expected affiliation a1, got %+v (%v)", found, err)
	}

	none, err := s.FindAffiliation(ctx, "c1", "stone")
	if err != nil || none != nil {
		t.Errorf("expected nil for other provider, got %+v (%v)", none, err)
	}
}

func TestStore_TransactionUniqueness(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first := &domain.Transaction{ID: "t1", Provider: "sandbox", ProviderTransactionID: "p-1", Status: domain.StatusProcessing}
	if err := s.CreateTransaction(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &domain.Transaction{ID: "t2", Provider: "sandbox", ProviderTransactionID: "p-1"}
	err := s.CreateTransaction(ctx, dup)
	var exists *domain.ErrTransactionAlreadyExists
	if !errors.As(err, &exists) {
		t.Fatalf("expected ErrTransactionAlreadyExists, got %v", err)
	}
	if exists.Existing == nil || exists.Existing.ID != "t1" {
		t.Errorf("expected existing transaction t1, got %+v", exists.Existing)
	}

	// same provider id under another provider is a different transaction
	other := &domain.Transaction{ID: "t3", Provider: "stone", ProviderTransactionID: "p-1"}
	if err := s.CreateTransaction(ctx, other); err != nil {
		t.Fatalf("expected other provider to be accepted, got %v", err)
	}

	found, err := s.FindTransactionByProviderID(ctx, "sandbox", "p-1")
	if err != nil || found == nil || found.ID != "t1" {
		t.Fatalf("expected t1, got %+v (%v)", found, err)
	}

	first.Status = domain.StatusPaid
	if err := s.UpdateTransaction(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetTransaction(ctx, "t1")
	if err != nil || got.Status != domain.StatusPaid {
		t.Errorf("expected paid, got %+v (%v)", got, err)
	}
}

func TestStore_RefundPayableIsIdempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	credit := &domain.Payable{ID: "p1", TransactionID: "t1", CompanyID: "c1", Type: domain.PayableTypeCredit, Amount: 500, Installment: 1}
	if err := s.SavePayable(ctx, credit); err != nil {
		t.Fatalf("save payable: %v", err)
	}

	refund := domain.RefundOf(credit, "r1", credit.CreatedAt)
	got, created, err := s.CreateRefundPayable(ctx, refund)
	if err != nil || !created || got.Amount != -500 {
		t.Fatalf("expected created refund of -500, got %+v created=%v (%v)", got, created, err)
	}

	again, created, err := s.CreateRefundPayable(ctx, domain.RefundOf(credit, "r2", credit.CreatedAt))
	if err != nil || created || again.ID != "r1" {
		t.Fatalf("expected existing refund r1, got %+v created=%v (%v)", again, created, err)
	}

	list, err := s.ListPayables(ctx, "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected credit + one refund, got %d", len(list))
	}
}
