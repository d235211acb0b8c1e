package handler

import (
	"context"
	"net/http"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/port"
	"github.com/boddenberg/acquiring-core-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// POST /v1/transactions
// ============================================================

// registerTransactionHandler registers a provider transaction for the calling
// company. Internal callers may act for another company via ?company_id=.
func registerTransactionHandler(pipeline *service.RegistrationPipeline, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions")
		defer span.End()

		if pipeline == nil {
			unavailable(w, "registration")
			return
		}

		var req domain.TransactionRequest
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		req.CompanyID = CompanyIDFromContext(ctx)
		if target := r.URL.Query().Get("company_id"); target != "" && target != req.CompanyID {
			if err := authorizeCompany(ctx, target, "register transaction"); err != nil {
				handleServiceError(w, err, logger)
				return
			}
			req.CompanyID = target
		}
		span.SetAttributes(
			attribute.String("company.id", req.CompanyID),
			attribute.String("provider.transaction_id", req.ProviderTransactionID),
		)

		result, err := pipeline.Register(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		status := http.StatusCreated
		if result.Outcome == service.AlreadyRegistered {
			status = http.StatusOK
		}
		writeJSON(w, status, result.External)
	}
}

// ============================================================
// GET /v1/transactions/{transactionId}
// ============================================================

func getTransactionHandler(transactions port.TransactionStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions/{transactionId}")
		defer span.End()

		if transactions == nil {
			unavailable(w, "transaction store")
			return
		}

		tx, err := loadAuthorized(ctx, transactions, chi.URLParam(r, "transactionId"), "read transaction")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("transaction.id", tx.ID))

		writeJSON(w, http.StatusOK, tx.External())
	}
}

// ============================================================
// POST /v1/transactions/{transactionId}/refund
// ============================================================

func refundTransactionHandler(refunds *service.RefundOrchestrator, transactions port.TransactionStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions/{transactionId}/refund")
		defer span.End()

		if refunds == nil || transactions == nil {
			unavailable(w, "refunds")
			return
		}

		var body domain.RefundRequest
		if err := decodeJSON(r, &body, true); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		tx, err := loadAuthorized(ctx, transactions, chi.URLParam(r, "transactionId"), "refund transaction")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		requestedBy := body.RequestedBy
		if requestedBy == "" {
			requestedBy = CompanyIDFromContext(ctx)
		}
		refunded, err := refunds.Refund(ctx, tx.ID, service.RefundOptions{RequestedBy: requestedBy})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, refunded.External())
	}
}

// ============================================================
// POST /v1/transactions/{transactionId}/refund/register
// ============================================================

func registerRefundHandler(refunds *service.RefundOrchestrator, transactions port.TransactionStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions/{transactionId}/refund/register")
		defer span.End()

		if refunds == nil || transactions == nil {
			unavailable(w, "refunds")
			return
		}

		tx, err := loadAuthorized(ctx, transactions, chi.URLParam(r, "transactionId"), "register refund")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		refunded, err := refunds.RegisterRefund(ctx, tx.ID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, refunded.External())
	}
}

// loadAuthorized reads the transaction and checks the caller
// may act on its company.
func loadAuthorized(ctx context.Context, transactions port.TransactionStore, transactionID, action string) (*domain.Transaction, error) {
	tx, err := transactions.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := authorizeCompany(ctx, tx.CompanyID, action); err != nil {
		return nil, err
	}
	return tx, nil
}
