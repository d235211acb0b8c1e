// Package webhook delivers transaction notifications to parent companies.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/infra/resilience"
	"github.com/boddenberg/acquiring-core-go/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("infra/webhook")

// Delivery headers.
const (
	SignatureHeader = "X-Acquiring-Signature"
	EventHeader     = "X-Acquiring-Event"
	DeliveryHeader  = "X-Acquiring-Delivery"
)

// Notifier POSTs notifications to the webhook URL configured on the parent
// company. Parents without a URL are skipped.
type Notifier struct {
	companies  port.CompanyStore
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	bulkhead   *resilience.Bulkhead
	secret     []byte
	logger     *zap.Logger
}

// NewNotifier creates a Notifier. Bodies are signed with secret when it is set.
func NewNotifier(companies port.CompanyStore, httpClient *http.Client, cb *gobreaker.CircuitBreaker, cfg resilience.Config, secret string, logger *zap.Logger) *Notifier {
	return &Notifier{
		companies:  companies,
		httpClient: httpClient,
		cb:         cb,
		cfg:        cfg,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		secret:     []byte(secret),
		logger:     logger,
	}
}

// Notify delivers n to n.ParentID's webhook URL.
func (w *Notifier) Notify(ctx context.Context, n *domain.WebhookNotification) error {
	ctx, span := tracer.Start(ctx, "Notifier.Notify")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.event", n.Event),
		attribute.String("company.parent_id", n.ParentID),
		attribute.String("resource.id", n.ResourceID),
	)

	parent, err := w.companies.GetCompany(ctx, n.ParentID)
	if err != nil {
		return err
	}
	if parent.WebhookURL == "" {
		w.logger.Debug("parent company has no webhook url",
			zap.String("parent_id", n.ParentID),
			zap.String("event", n.Event),
		)
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	signature := Sign(w.secret, body)

	if err := w.bulkhead.Acquire(ctx); err != nil {
		return err
	}
	defer w.bulkhead.Release()

	_, err = w.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, w.cfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, parent.WebhookURL, bytes.NewReader(body))
			if err != nil {
				return domain.DoNotRetry(err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(EventHeader, n.Event)
			req.Header.Set(DeliveryHeader, n.ID)
			if signature != "" {
				req.Header.Set(SignatureHeader, signature)
			}

			resp, err := w.httpClient.Do(req)
			if err != nil {
				return err
			}
			resp.Body.Close()

			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return domain.DoNotRetry(fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode))
			}
			return nil
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "webhook", Err: resilience.BreakerError("webhook", err)}
	}
	return nil
}

// Sign returns "sha256=<hex hmac>" of body, or "" without a secret.
func Sign(secret, body []byte) string {
	if len(secret) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
