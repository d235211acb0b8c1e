// Package domain defines the core entities of the acquiring core: transactions,
// split instructions, companies, affiliations, fee rules and payables.
// These models are independent of storage and provider integrations.
package domain

import "time"

// ============================================================
// Transaction status / methods
// ============================================================

// TransactionStatus is the lifecycle state of a Transaction.
type TransactionStatus string

const (
	StatusProcessing  TransactionStatus = "processing"
	StatusPaid        TransactionStatus = "paid"
	StatusRefused     TransactionStatus = "refused"
	StatusRefunded    TransactionStatus = "refunded"
	StatusCanceled    TransactionStatus = "canceled"
	StatusChargedback TransactionStatus = "chargedback"
)

// Valid reports whether s is a known status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusPaid, StatusRefused, StatusRefunded, StatusCanceled, StatusChargedback:
		return true
	}
	return false
}

const (
	PaymentMethodCreditCard = "credit_card"
	PaymentMethodDebitCard  = "debit_card"
	PaymentMethodBoleto     = "boleto"
)

const (
	CaptureMethodEMV         = "emv"
	CaptureMethodMagstripe   = "magstripe"
	CaptureMethodContactless = "contactless_icc"
	CaptureMethodEcommerce   = "ecommerce"
)

// SplitOrigin records which source produced a transaction's split.
type SplitOrigin string

const (
	SplitOriginNone        SplitOrigin = ""
	SplitOriginTransaction SplitOrigin = "transaction"
	SplitOriginFeeRule     SplitOrigin = "fee_rule"
	SplitOriginHybrid      SplitOrigin = "hybrid"
)

// ============================================================
// Registration input
// ============================================================

// TransactionRequest is the input for registering a transaction.
// It is normalized in place (defaults, brand aliases) before validation.
type TransactionRequest struct {
	CompanyID             string             `json:"-"`
	Provider              string             `json:"provider,omitempty"`
	ProviderTransactionID string             `json:"provider_transaction_id"`
	Locale                string             `json:"locale,omitempty"`
	PaymentMethod         string             `json:"payment_method,omitempty"`
	CaptureMethod         string             `json:"capture_method,omitempty"`
	Amount                int64              `json:"amount"`
	Installments          int                `json:"installments,omitempty"`
	CardBrand             string             `json:"card_brand,omitempty"`
	CardHolderName        string             `json:"card_holder_name,omitempty"`
	CardFirstDigits       string             `json:"card_first_digits,omitempty"`
	CardLastDigits        string             `json:"card_last_digits,omitempty"`
	SerialNumber          string             `json:"serial_number,omitempty"`
	BoletoExpirationDate  *time.Time         `json:"boleto_expiration_date,omitempty"`
	CapturedBy            string             `json:"captured_by,omitempty"`
	SplitRules            []SplitInstruction `json:"split_rules,omitempty"`
	Metadata              map[string]string  `json:"metadata,omitempty"`
}

// ============================================================
// Transaction
// ============================================================

// Transaction is the persistent record of a provider transaction.
// (Provider, ProviderTransactionID) is unique.
type Transaction struct {
	ID                    string            `json:"id"`
	CompanyID             string            `json:"company_id"`
	IsoID                 string            `json:"iso_id,omitempty"`
	AffiliationID         string            `json:"affiliation_id"`
	Provider              string            `json:"provider"`
	ProviderTransactionID string            `json:"provider_transaction_id"`
	Locale                string            `json:"locale,omitempty"`
	Status                TransactionStatus `json:"status"`
	PaymentMethod         string            `json:"payment_method"`
	CaptureMethod         string            `json:"capture_method"`
	CardBrand             string            `json:"card_brand,omitempty"`
	CardHolderName        string            `json:"card_holder_name,omitempty"`
	CardFirstDigits       string            `json:"card_first_digits,omitempty"`
	CardLastDigits        string            `json:"card_last_digits,omitempty"`
	Installments          int               `json:"installments"`
	Amount                int64             `json:"amount"`
	PaidAmount            int64             `json:"paid_amount"`
	RefundedAmount        int64             `json:"refunded_amount"`
	RefundedAt            *time.Time        `json:"refunded_at,omitempty"`
	SplitRules            []ResolvedSplit   `json:"split_rules,omitempty"`
	SplitOrigin           SplitOrigin       `json:"split_origin,omitempty"`
	HasSplitRules         bool              `json:"has_split_rules"`
	IsSplitRuleProcessed  bool              `json:"is_split_rule_processed"`
	GatewayOnly           bool              `json:"gateway_only"`
	CapturedBy            string            `json:"captured_by,omitempty"`
	AcquirerName          string            `json:"acquirer_name,omitempty"`
	AcquirerResponseCode  string            `json:"acquirer_response_code,omitempty"`
	NSU                   string            `json:"nsu,omitempty"`
	TID                   string            `json:"tid,omitempty"`
	HardwareID            string            `json:"hardware_id,omitempty"`
	BoletoURL             string            `json:"boleto_url,omitempty"`
	BoletoBarcode         string            `json:"boleto_barcode,omitempty"`
	BoletoExpirationDate  *time.Time        `json:"boleto_expiration_date,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// PayableEligible reports whether downstream payable creation should be
// requested. Boleto is always eligible once paid; card transactions only
// when the acquirer does not settle them itself.
func (t *Transaction) PayableEligible() bool {
	if t.Status != StatusPaid {
		return false
	}
	return !t.GatewayOnly || t.PaymentMethod == PaymentMethodBoleto
}

// ExternalTransaction is the shape returned to API callers.
type ExternalTransaction struct {
	Object                string            `json:"object"`
	ID                    string            `json:"id"`
	CompanyID             string            `json:"company_id"`
	Status                TransactionStatus `json:"status"`
	Provider              string            `json:"provider"`
	ProviderTransactionID string            `json:"provider_transaction_id"`
	PaymentMethod         string            `json:"payment_method"`
	CaptureMethod         string            `json:"capture_method"`
	CardBrand             string            `json:"card_brand,omitempty"`
	CardLastDigits        string            `json:"card_last_digits,omitempty"`
	Installments          int               `json:"installments"`
	Amount                int64             `json:"amount"`
	PaidAmount            int64             `json:"paid_amount"`
	RefundedAmount        int64             `json:"refunded_amount"`
	RefundedAt            *time.Time        `json:"refunded_at,omitempty"`
	SplitRules            []ResolvedSplit   `json:"split_rules"`
	SplitOrigin           SplitOrigin       `json:"split_origin,omitempty"`
	NSU                   string            `json:"nsu,omitempty"`
	TID                   string            `json:"tid,omitempty"`
	BoletoURL             string            `json:"boleto_url,omitempty"`
	BoletoBarcode         string            `json:"boleto_barcode,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

// External converts the transaction into its API shape.
func (t *Transaction) External() *ExternalTransaction {
	splits := t.SplitRules
	if splits == nil {
		splits = []ResolvedSplit{}
	}
	return &ExternalTransaction{
		Object:                "transaction",
		ID:                    t.ID,
		CompanyID:             t.CompanyID,
		Status:                t.Status,
		Provider:              t.Provider,
		ProviderTransactionID: t.ProviderTransactionID,
		PaymentMethod:         t.PaymentMethod,
		CaptureMethod:         t.CaptureMethod,
		CardBrand:             t.CardBrand,
		CardLastDigits:        t.CardLastDigits,
		Installments:          t.Installments,
		Amount:                t.Amount,
		PaidAmount:            t.PaidAmount,
		RefundedAmount:        t.RefundedAmount,
		RefundedAt:            t.RefundedAt,
		SplitRules:            splits,
		SplitOrigin:           t.SplitOrigin,
		NSU:                   t.NSU,
		TID:                   t.TID,
		BoletoURL:             t.BoletoURL,
		BoletoBarcode:         t.BoletoBarcode,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
		Metadata:              t.Metadata,
	}
}

// ============================================================
// Provider views
// ============================================================

// ProviderTransaction is the provider's authoritative view of a transaction.
// Zero values mean "not reported".
type ProviderTransaction struct {
	ProviderTransactionID string            `json:"provider_transaction_id"`
	Status                TransactionStatus `json:"status"`
	Amount                int64             `json:"amount,omitempty"`
	PaidAmount            int64             `json:"paid_amount,omitempty"`
	RefundedAmount        int64             `json:"refunded_amount,omitempty"`
	RefundedAt            *time.Time        `json:"refunded_at,omitempty"`
	Installments          int               `json:"installments,omitempty"`
	CardBrand             string            `json:"card_brand,omitempty"`
	CaptureMethod         string            `json:"capture_method,omitempty"`
	AcquirerName          string            `json:"acquirer_name,omitempty"`
	AcquirerResponseCode  string            `json:"acquirer_response_code,omitempty"`
	NSU                   string            `json:"nsu,omitempty"`
	TID                   string            `json:"tid,omitempty"`
	HardwareID            string            `json:"hardware_id,omitempty"`
	BoletoURL             string            `json:"boleto_url,omitempty"`
	BoletoBarcode         string            `json:"boleto_barcode,omitempty"`
}

// ProviderRefundResult is what a provider reports after a refund call.
type ProviderRefundResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
