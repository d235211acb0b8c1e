package domain

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// PercentScale is the number of Percentage units in one percent.
// 100% is represented as 100 * PercentScale.
const PercentScale = 10_000

// FullPercentage is 100% in fixed-point units.
const FullPercentage Percentage = 100 * PercentScale

// Percentage is a fixed-point percentage with four decimal places.
type Percentage int64

// PercentageFromDecimal converts a decimal percentage (e.g. "33.3333") to fixed point.
// Values beyond ±100% are rejected.
func PercentageFromDecimal(d decimal.Decimal) (Percentage, error) {
	if d.Abs().GreaterThan(decimal.NewFromInt(100)) {
		return 0, &ErrValidation{Field: "percentage", Message: fmt.Sprintf("%s is outside [-100, 100]", d.String())}
	}
	scaled := d.Mul(decimal.NewFromInt(PercentScale))
	if !scaled.IsInteger() {
		return 0, &ErrValidation{Field: "percentage", Message: fmt.Sprintf("%s has more than 4 decimal places", d.String())}
	}
	return Percentage(scaled.IntPart()), nil
}

// MustPercent builds a Percentage from a whole-percent integer. Used by fixtures.
func MustPercent(whole int64) Percentage {
	return Percentage(whole * PercentScale)
}

// Decimal returns the percentage as a decimal number of percent.
func (p Percentage) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -4)
}

func (p Percentage) String() string {
	return p.Decimal().String() + "%"
}

// MarshalJSON writes the percentage as a JSON number of percent.
func (p Percentage) MarshalJSON() ([]byte, error) {
	return []byte(p.Decimal().String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (p *Percentage) UnmarshalJSON(b []byte) error {
	raw := string(bytes.Trim(b, `"`))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return &ErrValidation{Field: "percentage", Message: fmt.Sprintf("invalid number %q", raw)}
	}
	v, err := PercentageFromDecimal(d)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// SplitKind classifies an instruction by the value it carries.
type SplitKind int

const (
	SplitKindNone SplitKind = iota
	SplitKindPercentage
	SplitKindAmount
	SplitKindBoth
)

// SplitInstruction describes one recipient's share of a transaction.
// Exactly one of Percentage or Amount must be set.
type SplitInstruction struct {
	RecipientID          string      `json:"recipient_id"`
	Percentage           *Percentage `json:"percentage,omitempty"`
	Amount               *int64      `json:"amount,omitempty"`
	ChargeProcessingCost bool        `json:"charge_processing_cost"`
	Liable               bool        `json:"liable"`
}

// Kind reports which value the instruction carries.
func (s SplitInstruction) Kind() SplitKind {
	switch {
	case s.Percentage != nil && s.Amount != nil:
		return SplitKindBoth
	case s.Percentage != nil:
		return SplitKindPercentage
	case s.Amount != nil:
		return SplitKindAmount
	}
	return SplitKindNone
}

// PercentageRule is a convenience constructor.
func PercentageRule(recipientID string, p Percentage, chargeProcessingCost bool) SplitInstruction {
	return SplitInstruction{RecipientID: recipientID, Percentage: &p, ChargeProcessingCost: chargeProcessingCost, Liable: true}
}

// AmountRule is a convenience constructor.
func AmountRule(recipientID string, amount int64, chargeProcessingCost bool) SplitInstruction {
	return SplitInstruction{RecipientID: recipientID, Amount: &amount, ChargeProcessingCost: chargeProcessingCost, Liable: true}
}

// ResolvedSplit is a concrete per-recipient amount.
type ResolvedSplit struct {
	RecipientID          string      `json:"recipient_id"`
	Amount               int64       `json:"amount"`
	Percentage           *Percentage `json:"percentage,omitempty"`
	ChargeProcessingCost bool        `json:"charge_processing_cost"`
	Liable               bool        `json:"liable"`
}

// SplitTotal sums resolved amounts.
func SplitTotal(splits []ResolvedSplit) int64 {
	var total int64
	for _, s := range splits {
		total += s.Amount
	}
	return total
}

// Recipients returns the distinct recipient ids in order of first appearance.
func Recipients(splits []ResolvedSplit) []string {
	seen := make(map[string]struct{}, len(splits))
	out := make([]string, 0, len(splits))
	for _, s := range splits {
		if _, ok := seen[s.RecipientID]; ok {
			continue
		}
		seen[s.RecipientID] = struct{}{}
		out = append(out, s.RecipientID)
	}
	return out
}
