package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/boddenberg/acquiring-core-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON decodes the request body into dst. An empty body is accepted
// when optional is true.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return nil
	}
	return &domain.ErrValidation{Field: "body", Message: "invalid JSON: " + err.Error()}
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var splitAmount *domain.ErrInvalidSplitRuleAmount
	var splitPercentage *domain.ErrInvalidSplitRulePercentage
	var processingCost *domain.ErrInvalidChargeProcessingCost
	var sameCompany *domain.ErrInvalidSplitRuleSameCompanyID
	var notAllowed *domain.ErrProviderNotAllowed
	var forbidden *domain.ErrForbidden
	var unauthorized *domain.ErrUnauthorized
	var notPaid *domain.ErrRefundTransactionNotPaid
	var exists *domain.ErrTransactionAlreadyExists
	var lockBusy *domain.ErrLockNotAcquired
	var circuitOpen *domain.ErrCircuitOpen
	var charge *domain.ErrProcessChargeOnProvider
	var providerRefund *domain.ErrTransactionProviderRefund
	var notRefunded *domain.ErrTransactionNotRefundedOnProvider
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation),
		errors.As(err, &splitAmount),
		errors.As(err, &splitPercentage),
		errors.As(err, &processingCost),
		errors.As(err, &sameCompany):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &notAllowed):
		logger.Warn("provider not allowed", zap.String("provider", notAllowed.Provider))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &notPaid):
		logger.Debug("refund of unpaid transaction", zap.String("status", string(notPaid.Status)))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &exists):
		logger.Debug("duplicate transaction", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &lockBusy):
		logger.Warn("lock busy", zap.String("key", lockBusy.Key))
		writeError(w, http.StatusLocked, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &charge),
		errors.As(err, &providerRefund),
		errors.As(err, &notRefunded),
		errors.As(err, &external):
		logger.Error("upstream failure", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
