package domain

import "time"

// Payable types.
const (
	PayableTypeCredit = "credit"
	PayableTypeRefund = "refund"
)

// Payable statuses.
const (
	PayableStatusWaitingFunds = "waiting_funds"
	PayableStatusPaid         = "paid"
	PayableStatusCanceled     = "canceled"
)

// Payable is a per-installment, per-recipient financial record derived from a
// paid transaction. Refund payables offset a credit payable through OriginID.
type Payable struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	CompanyID     string    `json:"company_id"`
	AffiliationID string    `json:"affiliation_id,omitempty"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount"`
	Fee           int64     `json:"fee"`
	Installment   int       `json:"installment"`
	OriginID      string    `json:"origin_id,omitempty"`
	PaymentDate   time.Time `json:"payment_date"`
	CreatedAt     time.Time `json:"created_at"`
}

// RefundOf builds the offsetting refund payable for a credit payable.
func RefundOf(p *Payable, id string, now time.Time) *Payable {
	return &Payable{
		ID:            id,
		TransactionID: p.TransactionID,
		CompanyID:     p.CompanyID,
		AffiliationID: p.AffiliationID,
		Type:          PayableTypeRefund,
		Status:        PayableStatusWaitingFunds,
		Amount:        -p.Amount,
		Fee:           -p.Fee,
		Installment:   p.Installment,
		OriginID:      p.ID,
		PaymentDate:   now,
		CreatedAt:     now,
	}
}
