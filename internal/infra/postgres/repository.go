// Package postgres implements port.Repository on PostgreSQL with pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/boddenberg/acquiring-core-go/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Repository is the PostgreSQL implementation of port.Repository.
type Repository struct {
	db *pgxpool.Pool
}

// Connect opens a pool on databaseURL and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Repository{db: pool}, nil
}

// NewRepository wraps an existing pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema, pgx.QueryExecModeSimpleProtocol); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Close closes the pool.
func (r *Repository) Close() error {
	r.db.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ============================================================
// Companies
// ============================================================

const companyColumns = `id, name, COALESCE(parent_id, ''), default_provider, default_locale, default_split_rules, webhook_url, created_at, updated_at`

func scanCompany(row pgx.Row) (*domain.Company, error) {
	var c domain.Company
	var rules []byte
	if err := row.Scan(&c.ID, &c.Name, &c.ParentID, &c.DefaultProvider, &c.DefaultLocale, &rules, &c.WebhookURL, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rules, &c.DefaultSplitRules); err != nil {
		return nil, fmt.Errorf("decode default_split_rules: %w", err)
	}
	return &c, nil
}

// GetCompany returns the company or *domain.ErrNotFound.
func (r *Repository) GetCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	c, err := scanCompany(r.db.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ErrNotFound{Resource: "company", ID: companyID}
		}
		return nil, err
	}
	return c, nil
}

// UpdateDefaultSplitRules replaces the company's default split rules.
func (r *Repository) UpdateDefaultSplitRules(ctx context.Context, companyID string, rules []domain.SplitInstruction) (*domain.Company, error) {
	if rules == nil {
		rules = []domain.SplitInstruction{}
	}
	payload, err := json.Marshal(rules)
	if err != nil {
		return nil, err
	}
	c, err := scanCompany(r.db.QueryRow(ctx,
		`UPDATE companies SET default_split_rules = $2, updated_at = now() WHERE id = $1 RETURNING `+companyColumns,
		companyID, payload))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ErrNotFound{Resource: "company", ID: companyID}
		}
		return nil, err
	}
	return c, nil
}

// SaveCompany upserts a company.
func (r *Repository) SaveCompany(ctx context.Context, c *domain.Company) error {
	rules := c.DefaultSplitRules
	if rules == nil {
		rules = []domain.SplitInstruction{}
	}
	payload, err := json.Marshal(rules)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO companies (id, name, parent_id, default_provider, default_locale, default_split_rules, webhook_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			parent_id = EXCLUDED.parent_id,
			default_provider = EXCLUDED.default_provider,
			default_locale = EXCLUDED.default_locale,
			default_split_rules = EXCLUDED.default_split_rules,
			webhook_url = EXCLUDED.webhook_url,
			updated_at = now()`,
		c.ID, c.Name, nullable(c.ParentID), c.DefaultProvider, c.DefaultLocale, payload, c.WebhookURL)
	return err
}

// ============================================================
// Affiliations / fee rules
// ============================================================

const affiliationColumns = `id, company_id, provider, enabled, status, gateway_only, merchant_key, credentials, created_at`

func scanAffiliation(row pgx.Row) (*domain.Affiliation, error) {
	var a domain.Affiliation
	var creds []byte
	if err := row.Scan(&a.ID, &a.CompanyID, &a.Provider, &a.Enabled, &a.Status, &a.GatewayOnly, &a.MerchantKey, &creds, &a.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(creds, &a.Credentials); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return &a, nil
}

// FindAffiliation returns the company's affiliation with provider, or nil.
func (r *Repository) FindAffiliation(ctx context.Context, companyID, provider string) (*domain.Affiliation, error) {
	a, err := scanAffiliation(r.db.QueryRow(ctx,
		`SELECT `+affiliationColumns+` FROM affiliations WHERE company_id = $1 AND provider = $2`, companyID, provider))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// GetAffiliation returns the affiliation or *domain.ErrNotFound.
func (r *Repository) GetAffiliation(ctx context.Context, affiliationID string) (*domain.Affiliation, error) {
	a, err := scanAffiliation(r.db.QueryRow(ctx, `SELECT `+affiliationColumns+` FROM affiliations WHERE id = $1`, affiliationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ErrNotFound{Resource: "affiliation", ID: affiliationID}
		}
		return nil, err
	}
	return a, nil
}

// SaveAffiliation upserts an affiliation.
func (r *Repository) SaveAffiliation(ctx context.Context, a *domain.Affiliation) error {
	creds := a.Credentials
	if creds == nil {
		creds = map[string]string{}
	}
	payload, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO affiliations (id, company_id, provider, enabled, status, gateway_only, merchant_key, credentials)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			status = EXCLUDED.status,
			gateway_only = EXCLUDED.gateway_only,
			merchant_key = EXCLUDED.merchant_key,
			credentials = EXCLUDED.credentials`,
		a.ID, a.CompanyID, a.Provider, a.Enabled, a.Status, a.GatewayOnly, a.MerchantKey, payload)
	return err
}

// FindFeeRule returns the company's fee rule, or nil.
func (r *Repository) FindFeeRule(ctx context.Context, companyID string) (*domain.FeeRule, error) {
	var f domain.FeeRule
	var shares []byte
	err := r.db.QueryRow(ctx, `SELECT id, company_id, shares, created_at FROM fee_rules WHERE company_id = $1`, companyID).
		Scan(&f.ID, &f.CompanyID, &shares, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(shares, &f.Shares); err != nil {
		return nil, fmt.Errorf("decode shares: %w", err)
	}
	return &f, nil
}

// SaveFeeRule upserts the company's fee rule.
func (r *Repository) SaveFeeRule(ctx context.Context, f *domain.FeeRule) error {
	payload, err := json.Marshal(f.Shares)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO fee_rules (id, company_id, shares) VALUES ($1, $2, $3)
		ON CONFLICT (company_id) DO UPDATE SET shares = EXCLUDED.shares`,
		f.ID, f.CompanyID, payload)
	return err
}
