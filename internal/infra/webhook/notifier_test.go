package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/infra/resilience"
	"github.com/boddenberg/acquiring-core-go/internal/infra/webhook"

	"go.uber.org/zap"
)

type companyStub struct {
	companies map[string]*domain.Company
}

func (s *companyStub) GetCompany(_ context.Context, id string) (*domain.Company, error) {
	c, ok := s.companies[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "company", ID: id}
	}
	return c, nil
}

func (s *companyStub) UpdateDefaultSplitRules(context.Context, string, []domain.SplitInstruction) (*domain.Company, error) {
	return nil, errors.New("not implemented")
}

var testCfg = resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 2}

func newNotifier(url string) *webhook.Notifier {
	companies := &companyStub{companies: map[string]*domain.Company{
		"iso-1":  {ID: "iso-1", WebhookURL: url},
		"iso-no": {ID: "iso-no"},
	}}
	return webhook.NewNotifier(companies, http.DefaultClient, resilience.NewCircuitBreaker("webhook-test"), testCfg, "s3cret", zap.NewNop())
}

func TestNotifier_SignsAndDelivers(t *testing.T) {
	var got domain.WebhookNotification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if want := webhook.Sign([]byte("s3cret"), body); r.Header.Get(webhook.SignatureHeader) != want {
			t.Errorf("signature mismatch: got %q want %q", r.Header.Get(webhook.SignatureHeader), want)
		}
		if r.Header.Get(webhook.EventHeader) != domain.WebhookTransactionCreated {
			t.Errorf("unexpected event header %q", r.Header.Get(webhook.EventHeader))
		}
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &domain.WebhookNotification{
		ID:            "wh-1",
		ParentID:      "iso-1",
		Event:         domain.WebhookTransactionCreated,
		ResourceType:  domain.WebhookResourceTransaction,
		ResourceID:    "t1",
		CurrentStatus: domain.StatusProcessing,
	}
	if err := newNotifier(srv.URL).Notify(context.Background(), n); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ResourceID != "t1" {
		t.Errorf("expected resource t1, got %+v", got)
	}
}

func TestNotifier_SkipsParentWithoutURL(t *testing.T) {
	n := &domain.WebhookNotification{ParentID: "iso-no", Event: domain.WebhookTransactionCreated}
	if err := newNotifier("http://unused").Notify(context.Background(), n); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestNotifier_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := &domain.WebhookNotification{ParentID: "iso-1", Event: domain.WebhookStatusEvent(domain.StatusPaid)}
	err := newNotifier(srv.URL).Notify(context.Background(), n)

	var extErr *domain.ErrExternalService
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestSign_EmptySecret(t *testing.T) {
	if got := webhook.Sign(nil, []byte("{}")); got != "" {
		t.Errorf("expected empty signature, got %q", got)
	}
}
