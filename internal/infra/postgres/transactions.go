package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/boddenberg/acquiring-core-go/internal/domain"

	"github.com/jackc/pgx/v5"
)

// The full transaction is kept in the body column; the indexed columns are
// copies used for lookups and the uniqueness constraint.

func scanTransactionBody(row pgx.Row) (*domain.Transaction, error) {
	var body []byte
	if err := row.Scan(&body); err != nil {
		return nil, err
	}
	var t domain.Transaction
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &t, nil
}

// FindTransactionByProviderID returns the transaction registered for
// (provider, providerTransactionID), or nil.
func (r *Repository) FindTransactionByProviderID(ctx context.Context, provider, providerTransactionID string) (*domain.Transaction, error) {
	t, err := scanTransactionBody(r.db.QueryRow(ctx,
		`SELECT body FROM transactions WHERE provider = $1 AND provider_transaction_id = $2`, provider, providerTransactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// GetTransaction returns the transaction or *domain.ErrNotFound.
func (r *Repository) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	t, err := scanTransactionBody(r.db.QueryRow(ctx, `SELECT body FROM transactions WHERE id = $1`, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ErrNotFound{Resource: "transaction", ID: transactionID}
		}
		return nil, err
	}
	return t, nil
}

// CreateTransaction inserts t. A unique violation on
// (provider, provider_transaction_id) becomes *domain.ErrTransactionAlreadyExists.
func (r *Repository) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	err := r.db.QueryRow(ctx, `SELECT now()`).Scan(&t.CreatedAt)
	if err != nil {
		return err
	}
	t.UpdatedAt = t.CreatedAt

	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO transactions (id, company_id, provider, provider_transaction_id, status, amount, paid_amount, refunded_amount, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		t.ID, t.CompanyID, t.Provider, t.ProviderTransactionID, string(t.Status), t.Amount, t.PaidAmount, t.RefundedAmount, body, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			existing, findErr := r.FindTransactionByProviderID(ctx, t.Provider, t.ProviderTransactionID)
			if findErr != nil {
				existing = nil
			}
			return &domain.ErrTransactionAlreadyExists{
				Provider:              t.Provider,
				ProviderTransactionID: t.ProviderTransactionID,
				Existing:              existing,
			}
		}
		return err
	}
	return nil
}

// UpdateTransaction overwrites an existing transaction.
func (r *Repository) UpdateTransaction(ctx context.Context, t *domain.Transaction) error {
	err := r.db.QueryRow(ctx, `SELECT now()`).Scan(&t.UpdatedAt)
	if err != nil {
		return err
	}
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE transactions
		SET status = $2, paid_amount = $3, refunded_amount = $4, body = $5, updated_at = $6
		WHERE id = $1`,
		t.ID, string(t.Status), t.PaidAmount, t.RefundedAmount, body, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "transaction", ID: t.ID}
	}
	return nil
}

// ============================================================
// Payables
// ============================================================

const payableColumns = `id, transaction_id, company_id, affiliation_id, type, status, amount, fee, installment, COALESCE(origin_id, ''), payment_date, created_at`

func scanPayable(row pgx.Row) (*domain.Payable, error) {
	var p domain.Payable
	err := row.Scan(&p.ID, &p.TransactionID, &p.CompanyID, &p.AffiliationID, &p.Type, &p.Status,
		&p.Amount, &p.Fee, &p.Installment, &p.OriginID, &p.PaymentDate, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPayables returns every payable of a transaction.
func (r *Repository) ListPayables(ctx context.Context, transactionID string) ([]domain.Payable, error) {
	rows, err := r.db.Query(ctx, `SELECT `+payableColumns+` FROM payables WHERE transaction_id = $1 ORDER BY installment, id`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []domain.Payable{}
	for rows.Next() {
		p, err := scanPayable(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *p)
	}
	return items, rows.Err()
}

// CreateRefundPayable inserts p unless a refund for p.OriginID exists, in
// which case the stored one is returned with created=false.
func (r *Repository) CreateRefundPayable(ctx context.Context, p *domain.Payable) (*domain.Payable, bool, error) {
	created, err := scanPayable(r.db.QueryRow(ctx, `
		INSERT INTO payables (id, transaction_id, company_id, affiliation_id, type, status, amount, fee, installment, origin_id, payment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (origin_id) WHERE type = 'refund' DO NOTHING
		RETURNING `+payableColumns,
		p.ID, p.TransactionID, p.CompanyID, p.AffiliationID, p.Type, p.Status, p.Amount, p.Fee, p.Installment, nullable(p.OriginID), p.PaymentDate))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	existing, err := scanPayable(r.db.QueryRow(ctx,
		`SELECT `+payableColumns+` FROM payables WHERE origin_id = $1 AND type = 'refund'`, p.OriginID))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// SavePayable upserts a payable.
func (r *Repository) SavePayable(ctx context.Context, p *domain.Payable) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payables (id, transaction_id, company_id, affiliation_id, type, status, amount, fee, installment, origin_id, payment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, amount = EXCLUDED.amount, fee = EXCLUDED.fee`,
		p.ID, p.TransactionID, p.CompanyID, p.AffiliationID, p.Type, p.Status, p.Amount, p.Fee, p.Installment, nullable(p.OriginID), p.PaymentDate)
	return err
}
