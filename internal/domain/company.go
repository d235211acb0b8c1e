package domain

import "time"

// ============================================================
// Companies / affiliations / fee rules
// ============================================================

// Company is a merchant. ParentID points to the ISO that owns it.
type Company struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	ParentID          string             `json:"parent_id,omitempty"`
	DefaultProvider   string             `json:"default_provider,omitempty"`
	DefaultLocale     string             `json:"default_locale,omitempty"`
	DefaultSplitRules []SplitInstruction `json:"default_split_rules,omitempty"`
	WebhookURL        string             `json:"webhook_url,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// IsoID returns the parent company id, or the company's own id for top-level companies.
func (c *Company) IsoID() string {
	if c.ParentID != "" {
		return c.ParentID
	}
	return c.ID
}

const AffiliationStatusActive = "active"

// Affiliation is a company's registration with one provider.
type Affiliation struct {
	ID          string            `json:"id"`
	CompanyID   string            `json:"company_id"`
	Provider    string            `json:"provider"`
	Enabled     bool              `json:"enabled"`
	Status      string            `json:"status"`
	GatewayOnly bool              `json:"gateway_only"`
	MerchantKey string            `json:"merchant_key,omitempty"`
	Credentials map[string]string `json:"credentials,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Usable reports whether the affiliation can route transactions for provider.
func (a *Affiliation) Usable(provider string) bool {
	return a != nil && a.Enabled && a.Status == AffiliationStatusActive && a.Provider == provider
}

// FeeRuleShare is one recipient's cut under a fee rule.
type FeeRuleShare struct {
	RecipientID          string      `json:"recipient_id"`
	Percentage           *Percentage `json:"percentage,omitempty"`
	Amount               *int64      `json:"amount,omitempty"`
	ChargeProcessingCost bool        `json:"charge_processing_cost"`
	Liable               bool        `json:"liable"`
}

// Instruction converts the share into a split instruction.
func (s FeeRuleShare) Instruction() SplitInstruction {
	return SplitInstruction{
		RecipientID:          s.RecipientID,
		Percentage:           s.Percentage,
		Amount:               s.Amount,
		ChargeProcessingCost: s.ChargeProcessingCost,
		Liable:               s.Liable,
	}
}

// FeeRule is an externally managed per-company pricing configuration.
// Only its recipient shares are consumed here.
type FeeRule struct {
	ID        string         `json:"id"`
	CompanyID string         `json:"company_id"`
	Shares    []FeeRuleShare `json:"shares"`
	CreatedAt time.Time      `json:"created_at"`
}

// Instructions returns the fee rule shares as split instructions.
func (f *FeeRule) Instructions() []SplitInstruction {
	out := make([]SplitInstruction, 0, len(f.Shares))
	for _, s := range f.Shares {
		out = append(out, s.Instruction())
	}
	return out
}

// DefaultSplitRulesRequest is the body of PUT /v1/companies/{companyId}/default-split-rules.
type DefaultSplitRulesRequest struct {
	SplitRules []SplitInstruction `json:"split_rules"`
}
