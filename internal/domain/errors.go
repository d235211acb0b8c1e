package domain

import (
	"errors"
	"fmt"
)

// Error types for consistent error handling across the acquiring core.

// ErrNotFound indicates a model was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrProviderNotAllowed indicates the provider is not enabled for this deployment.
type ErrProviderNotAllowed struct {
	Provider string
}

func (e *ErrProviderNotAllowed) Error() string {
	return fmt.Sprintf("provider not allowed: %s", e.Provider)
}

// ErrTransactionAlreadyExists indicates the provider transaction was already registered.
type ErrTransactionAlreadyExists struct {
	Provider              string
	ProviderTransactionID string
	Existing              *Transaction
}

func (e *ErrTransactionAlreadyExists) Error() string {
	return fmt.Sprintf("transaction already exists: provider=%s provider_transaction_id=%s", e.Provider, e.ProviderTransactionID)
}

// ErrInvalidSplitRuleAmount indicates amount-typed split rules do not sum to the total.
type ErrInvalidSplitRuleAmount struct {
	Expected int64
	Got      int64
}

func (e *ErrInvalidSplitRuleAmount) Error() string {
	return fmt.Sprintf("split rule amounts sum to %d, expected %d", e.Got, e.Expected)
}

// ErrInvalidSplitRulePercentage indicates percentage-typed split rules do not
// sum to 100%, or the set mixes percentages with amounts.
type ErrInvalidSplitRulePercentage struct {
	Got   Percentage
	Mixed bool
}

func (e *ErrInvalidSplitRulePercentage) Error() string {
	if e.Mixed {
		return "split rules mix percentage and amount instructions"
	}
	return fmt.Sprintf("split rule percentages sum to %s, expected 100%%", e.Got)
}

// ErrInvalidChargeProcessingCost indicates no split rule carries the processing cost.
type ErrInvalidChargeProcessingCost struct{}

func (e *ErrInvalidChargeProcessingCost) Error() string {
	return "at least one split rule must charge the processing cost"
}

// ErrInvalidSplitRuleSameCompanyID indicates a company's default split rules reference itself.
type ErrInvalidSplitRuleSameCompanyID struct {
	CompanyID string
}

func (e *ErrInvalidSplitRuleSameCompanyID) Error() string {
	return fmt.Sprintf("default split rules cannot reference the company itself: %s", e.CompanyID)
}

// ErrRefundTransactionNotPaid indicates a refund on a transaction that is not paid.
type ErrRefundTransactionNotPaid struct {
	TransactionID string
	Status        TransactionStatus
}

func (e *ErrRefundTransactionNotPaid) Error() string {
	return fmt.Sprintf("transaction %s cannot be refunded in status %s", e.TransactionID, e.Status)
}

// ErrProcessChargeOnProvider indicates the provider failed to register or report a charge.
type ErrProcessChargeOnProvider struct {
	Provider string
	Err      error
}

func (e *ErrProcessChargeOnProvider) Error() string {
	return fmt.Sprintf("provider %s failed to process charge: %v", e.Provider, e.Err)
}

func (e *ErrProcessChargeOnProvider) Unwrap() error {
	return e.Err
}

// ErrTransactionProviderRefund indicates the provider rejected or failed the refund.
type ErrTransactionProviderRefund struct {
	TransactionID string
	Provider      string
	Message       string
	Err           error
}

func (e *ErrTransactionProviderRefund) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s refund failed for transaction %s: %v", e.Provider, e.TransactionID, e.Err)
	}
	return fmt.Sprintf("provider %s refund failed for transaction %s: %s", e.Provider, e.TransactionID, e.Message)
}

func (e *ErrTransactionProviderRefund) Unwrap() error {
	return e.Err
}

// ErrTransactionNotRefundedOnProvider indicates the provider still reports a non-refunded status.
type ErrTransactionNotRefundedOnProvider struct {
	TransactionID string
	Status        TransactionStatus
}

func (e *ErrTransactionNotRefundedOnProvider) Error() string {
	return fmt.Sprintf("transaction %s is %s on provider, expected refunded", e.TransactionID, e.Status)
}

// ErrLockNotAcquired indicates a distributed lock stayed busy past the wait timeout.
type ErrLockNotAcquired struct {
	Key string
}

func (e *ErrLockNotAcquired) Error() string {
	return fmt.Sprintf("lock busy: %s", e.Key)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrForbidden indicates the caller lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates an invalid service token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ============================================================
// Retry marking
// ============================================================

// DoNotRetryMarker tags errors that a retry of the same input cannot fix.
const DoNotRetryMarker = "__DO_NOT_RETRY__"

type nonRetryable struct {
	err error
}

func (e *nonRetryable) Error() string { return e.err.Error() }
func (e *nonRetryable) Unwrap() error { return e.err }

// Marker returns DoNotRetryMarker.
func (e *nonRetryable) Marker() string { return DoNotRetryMarker }

// DoNotRetry marks err as non-retryable. nil stays nil.
func DoNotRetry(err error) error {
	if err == nil || !IsRetryable(err) {
		return err
	}
	return &nonRetryable{err: err}
}

// IsRetryable reports whether err has not been marked with DoNotRetry.
func IsRetryable(err error) bool {
	var nr *nonRetryable
	return !errors.As(err, &nr)
}
