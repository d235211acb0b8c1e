package domain

import "time"

// Queue messages requested after a transaction is registered.
const (
	MessageCreatePayables               = "CreatePayables"
	MessageAssignPortfolioToTransaction = "AssignPortfolioToTransaction"
)

// Domain events raised on the event bus.
const (
	EventTransactionRegistered = "transaction-registered"
	EventTransactionCanceled   = "transaction-canceled"
)

// Webhook event names.
const (
	WebhookTransactionCreated  = "transaction_created"
	WebhookResourceTransaction = "transaction"
)

// WebhookStatusEvent returns the webhook event name for a status transition.
func WebhookStatusEvent(status TransactionStatus) string {
	return "transaction_" + string(status)
}

// CreatePayablesMessage asks the payables processor to derive payables.
type CreatePayablesMessage struct {
	TransactionID string `json:"transaction_id"`
	CompanyID     string `json:"company_id"`
}

// AssignPortfolioMessage asks the portfolio processor to attach the transaction.
type AssignPortfolioMessage struct {
	TransactionID string `json:"transaction_id"`
	CompanyID     string `json:"company_id"`
	IsoID         string `json:"iso_id,omitempty"`
}

// WebhookNotification is the payload delivered to a parent company.
type WebhookNotification struct {
	ID             string            `json:"id"`
	ParentID       string            `json:"-"`
	Event          string            `json:"event"`
	ResourceType   string            `json:"resource_type"`
	ResourceID     string            `json:"resource_id"`
	PreviousStatus TransactionStatus `json:"previous_status,omitempty"`
	CurrentStatus  TransactionStatus `json:"current_status"`
	Resource       any               `json:"resource"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

// DomainEvent is a named event carrying a JSON payload.
type DomainEvent struct {
	Name       string    `json:"name"`
	CompanyID  string    `json:"company_id"`
	ResourceID string    `json:"resource_id"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}
