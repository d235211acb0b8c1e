package service_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/infra/lock"
	"github.com/boddenberg/acquiring-core-go/internal/infra/observability"
	"github.com/boddenberg/acquiring-core-go/internal/port"
	"github.com/boddenberg/acquiring-core-go/internal/service"

	"go.uber.org/zap"
)

type refundFixture struct {
	store        *memStore
	provider     *fakeProvider
	effects      *recorder
	locker       *lock.MemoryLocker
	metrics      *observability.Metrics
	orchestrator *service.RefundOrchestrator
}

func newRefundFixture(t *testing.T) *refundFixture {
	t.Helper()
	store := newMemStore()
	store.affiliations["aff-1"] = &domain.Affiliation{
		ID: "aff-1", CompanyID: ownerID, Provider: "stone", Enabled: true, Status: domain.AffiliationStatusActive,
	}
	store.transactions["tx-1"] = &domain.Transaction{
		ID:                    "tx-1",
		CompanyID:             ownerID,
		IsoID:                 isoID,
		AffiliationID:         "aff-1",
		Provider:              "stone",
		ProviderTransactionID: "ptx-1",
		Status:                domain.StatusPaid,
		Amount:                10000,
		PaidAmount:            10000,
	}
	store.payables["pay-1"] = &domain.Payable{ID: "pay-1", TransactionID: "tx-1", CompanyID: ownerID, Type: domain.PayableTypeCredit, Status: domain.PayableStatusWaitingFunds, Amount: 5000, Fee: 100, Installment: 1}
	store.payables["pay-2"] = &domain.Payable{ID: "pay-2", TransactionID: "tx-1", CompanyID: ownerID, Type: domain.PayableTypeCredit, Status: domain.PayableStatusPaid, Amount: 5000, Fee: 100, Installment: 2}

	f := &refundFixture{
		store:    store,
		provider: newFakeProvider("stone"),
		effects:  &recorder{},
		locker:   lock.NewMemoryLocker(lock.Options{RetryInterval: time.Millisecond, WaitTimeout: time.Second}),
		metrics:  observability.NewMetrics(),
	}
	f.orchestrator = service.NewRefundOrchestrator(
		service.Stores{Companies: store, Affiliations: store, FeeRules: store, Transactions: store, Payables: store},
		&fakeResolver{providers: map[string]port.Provider{"stone": f.provider}},
		f.locker,
		service.Effects{Queue: f.effects, Events: f.effects, Webhooks: f.effects},
		service.RefundConfig{LockTTL: 5 * time.Second, PayableConcurrency: 2},
		f.metrics,
		zap.NewNop(),
	)
	return f
}

func (f *refundFixture) assertReleased(t *testing.T) {
	t.Helper()
	if f.locker.Held("refund:tx-1") {
		t.Error("expected refund lock to be released")
	}
}

func TestRefund_Success(t *testing.T) {
	f := newRefundFixture(t)

	tx, err := f.orchestrator.Refund(context.Background(), "tx-1", service.RefundOptions{RequestedBy: "ops"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tx.Status != domain.StatusRefunded || tx.RefundedAmount != 10000 || tx.RefundedAt == nil {
		t.Errorf("unexpected refunded transaction %+v", tx)
	}
	if !tx.IsSplitRuleProcessed {
		t.Error("expected split to be marked reprocessed")
	}

	stored, _ := f.store.GetTransaction(context.Background(), "tx-1")
	if stored.Status != domain.StatusRefunded {
		t.Errorf("expected persisted refunded status, got %s", stored.Status)
	}
	if n := f.store.refundPayableCount(); n != 2 {
		t.Errorf("expected 2 refund payables, got %d", n)
	}
	if got := f.provider.payableRefunds(); !reflect.DeepEqual(got, []string{"pay-1"}) {
		t.Errorf("expected settlement reversal for pay-1 only, got %v", got)
	}

	hooks := f.effects.webhooks
	if len(hooks) != 1 || hooks[0].Event != "transaction_refunded" || hooks[0].PreviousStatus != domain.StatusPaid {
		t.Fatalf("unexpected webhooks %+v", hooks)
	}
	snapshot, ok := hooks[0].Resource.(service.RefundSnapshot)
	if !ok || len(snapshot.RefundPayables) != 2 || snapshot.RefundPayables[0].Amount != -5000 {
		t.Errorf("unexpected webhook snapshot %+v", hooks[0].Resource)
	}
	if !reflect.DeepEqual(f.effects.events, []string{domain.EventTransactionCanceled}) {
		t.Errorf("unexpected events %v", f.effects.events)
	}
	f.assertReleased(t)

	if got := f.metrics.GetCoreSnapshot().Refunded; got != 1 {
		t.Errorf("expected 1 refund metric, got %d", got)
	}
}

func TestRefund_NotPaidMakesNoProviderCall(t *testing.T) {
	f := newRefundFixture(t)
	f.store.transactions["tx-1"].Status = domain.StatusProcessing

	_, err := f.orchestrator.Refund(context.Background(), "tx-1", service.RefundOptions{})
	var notPaid *domain.ErrRefundTransactionNotPaid
	if !errors.As(err, &notPaid) || notPaid.Status != domain.StatusProcessing {
		t.Fatalf("expected ErrRefundTransactionNotPaid, got %v", err)
	}
	if get, _, refund := f.provider.calls(); get+refund != 0 {
		t.Errorf("expected no provider calls, got get=%d refund=%d", get, refund)
	}
	f.assertReleased(t)
}

func TestRefund_UnknownTransaction(t *testing.T) {
	f := newRefundFixture(t)

	_, err := f.orchestrator.Refund(context.Background(), "tx-404", service.RefundOptions{})
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.locker.Held("refund:tx-404") {
		t.Error("expected lock to be released")
	}
}

func TestRefund_ProviderRejects(t *testing.T) {
	f := newRefundFixture(t)
	f.provider.refundResult = &domain.ProviderRefundResult{Success: false, Message: "denied"}

	_, err := f.orchestrator.Refund(context.Background(), "tx-1", service.RefundOptions{})
	var refundErr *domain.ErrTransactionProviderRefund
	if !errors.As(err, &refundErr) || refundErr.Message != "denied" {
		t.Fatalf("expected ErrTransactionProviderRefund, got %v", err)
	}
	stored, _ := f.store.GetTransaction(context.Background(), "tx-1")
	if stored.Status != domain.StatusPaid {
		t.Errorf("expected transaction to stay paid, got %s", stored.Status)
	}
	if _, _, w := f.effects.count(); w != 0 {
		t.Errorf("expected no webhooks, got %d", w)
	}
	f.assertReleased(t)
}

func TestRefund_ProviderErrorReleasesLockForRetry(t *testing.T) {
	f := newRefundFixture(t)
	f.provider.refundErr = errors.New("connection reset")

	_, err := f.orchestrator.Refund(context.Background(), "tx-1", service.RefundOptions{})
	var refundErr *domain.ErrTransactionProviderRefund
	if !errors.As(err, &refundErr) {
		t.Fatalf("expected ErrTransactionProviderRefund, got %v", err)
	}
	f.assertReleased(t)

	f.provider.mu.Lock()
	f.provider.refundErr = nil
	f.provider.mu.Unlock()

	tx, err := f.orchestrator.Refund(context.Background(), "tx-1", service.RefundOptions{})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if tx.Status != domain.StatusRefunded {
		t.Errorf("expected refunded, got %s", tx.Status)
	}
}

func TestRefund_ProviderStillReportsPaid(t *testing.T) {
	f := newRefundFixture(t)
	f.provider.refundKeepsStatus = true

	_, err := f.orchestrator.Refund(context.Background(), "tx-1", service.RefundOptions{})
	var notRefunded *domain.ErrTransactionNotRefundedOnProvider
	if !errors.As(err, &notRefunded) || notRefunded.Status != domain.StatusPaid {
		t.Fatalf("expected ErrTransactionNotRefundedOnProvider, got %v", err)
	}
	f.assertReleased(t)
}

func TestRefund_ConcurrentCallsRefundOnce(t *testing.T) {
	f := newRefundFixture(t)

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.orchestrator.Refund(context.Background(), "tx-1", service.RefundOptions{})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		var notPaid *domain.ErrRefundTransactionNotPaid
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &notPaid):
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly 1 successful refund, got %d", succeeded)
	}
	if _, _, refund := f.provider.calls(); refund != 1 {
		t.Errorf("expected 1 provider refund call, got %d", refund)
	}
	if n := f.store.refundPayableCount(); n != 2 {
		t.Errorf("expected 2 refund payables, got %d", n)
	}
	f.assertReleased(t)
}

func TestRefund_LockBusy(t *testing.T) {
	f := newRefundFixture(t)
	short := lock.NewMemoryLocker(lock.Options{RetryInterval: time.Millisecond, WaitTimeout: 20 * time.Millisecond})
	f.orchestrator = service.NewRefundOrchestrator(
		service.Stores{Companies: f.store, Affiliations: f.store, FeeRules: f.store, Transactions: f.store, Payables: f.store},
		&fakeResolver{providers: map[string]port.Provider{"stone": f.provider}},
		short,
		service.Effects{Queue: f.effects, Events: f.effects, Webhooks: f.effects},
		service.RefundConfig{LockTTL: time.Second},
		f.metrics,
		zap.NewNop(),
	)

	held, err := short.Acquire(context.Background(), "refund:tx-1", time.Second)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer held.Release(context.Background())

	_, err = f.orchestrator.Refund(context.Background(), "tx-1", service.RefundOptions{})
	var busy *domain.ErrLockNotAcquired
	if !errors.As(err, &busy) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
	if _, _, refund := f.provider.calls(); refund != 0 {
		t.Errorf("expected no provider refund, got %d", refund)
	}
}

func TestRefund_CapturedBySubsystemSkipsProvider(t *testing.T) {
	f := newRefundFixture(t)
	f.store.transactions["tx-1"].CapturedBy = "pos-capture"

	tx, err := f.orchestrator.Refund(context.Background(), "tx-1", service.RefundOptions{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tx.Status != domain.StatusRefunded || tx.RefundedAmount != tx.Amount {
		t.Errorf("expected local refund, got %+v", tx)
	}
	if get, _, refund := f.provider.calls(); get+refund != 0 {
		t.Errorf("expected no provider calls, got get=%d refund=%d", get, refund)
	}
}

func TestRefund_PayableFailureDoesNotAbortBatch(t *testing.T) {
	f := newRefundFixture(t)
	f.store.payables["broken"] = &domain.Payable{ID: "broken", TransactionID: "tx-1", Type: domain.PayableTypeCredit, Status: domain.PayableStatusWaitingFunds, Amount: 10}

	_, err := f.orchestrator.Refund(context.Background(), "tx-1", service.RefundOptions{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	snapshot := f.effects.webhooks[0].Resource.(service.RefundSnapshot)
	if len(snapshot.RefundPayables) != 2 {
		t.Errorf("expected the 2 healthy payables in the snapshot, got %d", len(snapshot.RefundPayables))
	}
	if got := f.metrics.GetCoreSnapshot().SideEffectFailures; got != 1 {
		t.Errorf("expected 1 side effect failure, got %d", got)
	}
}

func TestRegisterRefund_Chargeback(t *testing.T) {
	f := newRefundFixture(t)
	f.provider.getStatus = domain.StatusChargedback

	tx, err := f.orchestrator.RegisterRefund(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tx.Status != domain.StatusChargedback {
		t.Errorf("expected chargedback, got %s", tx.Status)
	}
	if _, _, refund := f.provider.calls(); refund != 0 {
		t.Errorf("expected no provider refund call, got %d", refund)
	}
	if got := f.effects.webhookEvents(); !reflect.DeepEqual(got, []string{"transaction_chargedback"}) {
		t.Errorf("unexpected webhooks %v", got)
	}
	f.assertReleased(t)
}

func TestRegisterRefund_ProviderStillPaid(t *testing.T) {
	f := newRefundFixture(t)

	_, err := f.orchestrator.RegisterRefund(context.Background(), "tx-1")
	var notRefunded *domain.ErrTransactionNotRefundedOnProvider
	if !errors.As(err, &notRefunded) {
		t.Fatalf("expected ErrTransactionNotRefundedOnProvider, got %v", err)
	}
	if n := f.store.refundPayableCount(); n != 0 {
		t.Errorf("expected no refund payables, got %d", n)
	}
	f.assertReleased(t)
}
