// Package provider holds payment-provider connectors and the resolver that
// picks one by (locale, provider name).
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/infra/observability"
	"github.com/boddenberg/acquiring-core-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("infra/provider")

// HTTPConnector talks JSON to a provider gateway.
//
//	POST {base}/v1/transactions                   register
//	GET  {base}/v1/transactions/{ptid}            fetch
//	POST {base}/v1/transactions/{ptid}/refunds    refund
//	POST {base}/v1/payables/{id}/refunds          payable settlement reversal
//
// The affiliation's merchant key is sent as a bearer token.
type HTTPConnector struct {
	name       string
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	metrics    *observability.Metrics
}

// NewHTTPConnector creates a connector for provider name at baseURL.
func NewHTTPConnector(name, baseURL string, httpClient *http.Client, cb *gobreaker.CircuitBreaker, cfg resilience.Config, metrics *observability.Metrics) *HTTPConnector {
	return &HTTPConnector{
		name:       name,
		baseURL:    baseURL,
		httpClient: httpClient,
		cb:         cb,
		cfg:        cfg,
		metrics:    metrics,
	}
}

// Name returns the provider name.
func (c *HTTPConnector) Name() string { return c.name }

type registerRequest struct {
	AffiliationID         string                 `json:"affiliation_id"`
	ProviderTransactionID string                 `json:"provider_transaction_id"`
	Amount                int64                  `json:"amount"`
	Installments          int                    `json:"installments"`
	PaymentMethod         string                 `json:"payment_method"`
	CaptureMethod         string                 `json:"capture_method"`
	CardBrand             string                 `json:"card_brand,omitempty"`
	SplitRules            []domain.ResolvedSplit `json:"split_rules,omitempty"`
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

// RegisterTransaction confirms the transaction with the provider.
func (c *HTTPConnector) RegisterTransaction(ctx context.Context, aff *domain.Affiliation, tx *domain.Transaction) (*domain.ProviderTransaction, error) {
	ctx, span := tracer.Start(ctx, "HTTPConnector.RegisterTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", c.name),
		attribute.String("transaction.id", tx.ID),
	)

	body := registerRequest{
		AffiliationID:         aff.ID,
		ProviderTransactionID: tx.ProviderTransactionID,
		Amount:                tx.Amount,
		Installments:          tx.Installments,
		PaymentMethod:         tx.PaymentMethod,
		CaptureMethod:         tx.CaptureMethod,
		CardBrand:             tx.CardBrand,
		SplitRules:            tx.SplitRules,
	}
	var out domain.ProviderTransaction
	if err := c.call(ctx, aff, http.MethodPost, "/v1/transactions", body, &out); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, c.chargeError("register", err)
	}
	return &out, nil
}

// GetTransaction fetches the provider's authoritative view.
func (c *HTTPConnector) GetTransaction(ctx context.Context, aff *domain.Affiliation, providerTransactionID string) (*domain.ProviderTransaction, error) {
	ctx, span := tracer.Start(ctx, "HTTPConnector.GetTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", c.name),
		attribute.String("provider_transaction.id", providerTransactionID),
	)

	var out domain.ProviderTransaction
	path := "/v1/transactions/" + url.PathEscape(providerTransactionID)
	if err := c.call(ctx, aff, http.MethodGet, path, nil, &out); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, c.chargeError("get", err)
	}
	return &out, nil
}

// RefundTransaction asks the provider to refund amount.
// A provider-side rejection comes back as Success=false, not as an error.
func (c *HTTPConnector) RefundTransaction(ctx context.Context, aff *domain.Affiliation, tx *domain.Transaction, amount int64) (*domain.ProviderRefundResult, error) {
	ctx, span := tracer.Start(ctx, "HTTPConnector.RefundTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", c.name),
		attribute.String("transaction.id", tx.ID),
		attribute.Int64("amount", amount),
	)

	var out domain.ProviderRefundResult
	path := "/v1/transactions/" + url.PathEscape(tx.ProviderTransactionID) + "/refunds"
	if err := c.call(ctx, aff, http.MethodPost, path, refundRequest{Amount: amount}, &out); err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.metrics.IncrProviderError(c.name, "refund")
		return nil, resilience.BreakerError("provider:"+c.name, err)
	}
	return &out, nil
}

// ProcessPayableRefund reverses a payable-level settlement.
func (c *HTTPConnector) ProcessPayableRefund(ctx context.Context, aff *domain.Affiliation, p *domain.Payable) error {
	ctx, span := tracer.Start(ctx, "HTTPConnector.ProcessPayableRefund")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", c.name),
		attribute.String("payable.id", p.ID),
	)

	path := "/v1/payables/" + url.PathEscape(p.ID) + "/refunds"
	if err := c.call(ctx, aff, http.MethodPost, path, refundRequest{Amount: p.Amount}, nil); err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.metrics.IncrProviderError(c.name, "payable_refund")
		return &domain.ErrExternalService{Service: "provider:" + c.name, Err: resilience.BreakerError("provider:"+c.name, err)}
	}
	return nil
}

// chargeError wraps register/fetch failures. An open breaker is reported as is.
func (c *HTTPConnector) chargeError(op string, err error) error {
	c.metrics.IncrProviderError(c.name, op)
	err = resilience.BreakerError("provider:"+c.name, err)
	var open *domain.ErrCircuitOpen
	if errors.As(err, &open) {
		return err
	}
	return &domain.ErrProcessChargeOnProvider{Provider: c.name, Err: err}
}

// call runs one request through the breaker with retries. 4xx responses are
// not retried; 404 becomes *domain.ErrNotFound.
func (c *HTTPConnector) call(ctx context.Context, aff *domain.Affiliation, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = b
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			var body io.Reader
			if payload != nil {
				body = bytes.NewReader(payload)
			}
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
			if err != nil {
				return domain.DoNotRetry(err)
			}
			req.Header.Set("Accept", "application/json")
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			if aff != nil && aff.MerchantKey != "" {
				req.Header.Set("Authorization", "Bearer "+aff.MerchantKey)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusNotFound:
				return domain.DoNotRetry(&domain.ErrNotFound{Resource: "provider transaction", ID: path})
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return domain.DoNotRetry(fmt.Errorf("%s %s returned status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg)))
			case resp.StatusCode >= 500:
				return fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
			}

			if out == nil {
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return domain.DoNotRetry(fmt.Errorf("decode %s response: %w", path, err))
			}
			return nil
		})
	})
	return err
}
