// Package split turns split instructions into concrete per-recipient amounts.
//
// Every function here is pure. Allocation floors each percentage share and
// hands the residual to a single recipient, so the resolved amounts always
// sum to the transaction total.
package split

import (
	"math"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
)

// maxTotal keeps total*percentage inside int64.
const maxTotal = math.MaxInt64 / int64(domain.FullPercentage)

// Allocate resolves instructions against total, assigning any rounding
// residual to the first instruction.
func Allocate(total int64, instructions []domain.SplitInstruction) ([]domain.ResolvedSplit, error) {
	return allocate(total, 0, instructions)
}

// AllocateToOwner resolves instructions against total, assigning any rounding
// residual to the owner's instruction, or to the first one when the owner is
// not a recipient.
func AllocateToOwner(total int64, ownerID string, instructions []domain.SplitInstruction) ([]domain.ResolvedSplit, error) {
	return allocate(total, ownerIndex(ownerID, instructions), instructions)
}

func allocate(total int64, residualIdx int, instructions []domain.SplitInstruction) ([]domain.ResolvedSplit, error) {
	if err := Validate(total, instructions); err != nil {
		return nil, err
	}

	out := make([]domain.ResolvedSplit, len(instructions))
	var sum int64
	for i, in := range instructions {
		rs := domain.ResolvedSplit{
			RecipientID:          in.RecipientID,
			ChargeProcessingCost: in.ChargeProcessingCost,
			Liable:               in.Liable,
		}
		if in.Amount != nil {
			rs.Amount = *in.Amount
		} else {
			p := *in.Percentage
			rs.Percentage = &p
			rs.Amount = total * int64(p) / int64(domain.FullPercentage)
		}
		sum += rs.Amount
		out[i] = rs
	}

	out[residualIdx].Amount += total - sum
	return out, nil
}

// Validate checks the sum and type invariants of an instruction set without
// resolving it.
func Validate(total int64, instructions []domain.SplitInstruction) error {
	if total < 0 {
		return &domain.ErrValidation{Field: "amount", Message: "must not be negative"}
	}
	if total > maxTotal {
		return &domain.ErrValidation{Field: "amount", Message: "too large"}
	}
	if len(instructions) == 0 {
		return &domain.ErrValidation{Field: "split_rules", Message: "must not be empty"}
	}

	kind := domain.SplitKindNone
	chargesCost := false
	var amountSum int64
	var percentSum domain.Percentage

	for _, in := range instructions {
		if in.RecipientID == "" {
			return &domain.ErrValidation{Field: "split_rules.recipient_id", Message: "is required"}
		}
		k := in.Kind()
		switch k {
		case domain.SplitKindNone:
			return &domain.ErrValidation{Field: "split_rules", Message: "each rule needs a percentage or an amount"}
		case domain.SplitKindBoth:
			return &domain.ErrInvalidSplitRulePercentage{Mixed: true}
		case domain.SplitKindAmount:
			if *in.Amount < 0 {
				return &domain.ErrValidation{Field: "split_rules.amount", Message: "must not be negative"}
			}
			if *in.Amount > total-amountSum {
				return &domain.ErrInvalidSplitRuleAmount{Expected: total, Got: saturatingAdd(amountSum, *in.Amount)}
			}
			amountSum += *in.Amount
		case domain.SplitKindPercentage:
			if *in.Percentage < 0 {
				return &domain.ErrValidation{Field: "split_rules.percentage", Message: "must not be negative"}
			}
			if *in.Percentage > domain.FullPercentage-percentSum {
				return &domain.ErrInvalidSplitRulePercentage{Got: domain.Percentage(saturatingAdd(int64(percentSum), int64(*in.Percentage)))}
			}
			percentSum += *in.Percentage
		}
		if kind != domain.SplitKindNone && kind != k {
			return &domain.ErrInvalidSplitRulePercentage{Mixed: true}
		}
		kind = k
		chargesCost = chargesCost || in.ChargeProcessingCost
	}

	switch kind {
	case domain.SplitKindAmount:
		if amountSum != total {
			return &domain.ErrInvalidSplitRuleAmount{Expected: total, Got: amountSum}
		}
	case domain.SplitKindPercentage:
		if percentSum != domain.FullPercentage {
			return &domain.ErrInvalidSplitRulePercentage{Got: percentSum}
		}
	}

	if !chargesCost {
		return &domain.ErrInvalidChargeProcessingCost{}
	}
	return nil
}

// ValidateResolved checks that resolved splits sum to total and that at
// least one of them carries the processing cost.
func ValidateResolved(total int64, splits []domain.ResolvedSplit) error {
	return Validate(total, AsInstructions(splits))
}

// AsInstructions converts resolved splits into amount-typed instructions.
func AsInstructions(splits []domain.ResolvedSplit) []domain.SplitInstruction {
	out := make([]domain.SplitInstruction, len(splits))
	for i, s := range splits {
		amount := s.Amount
		out[i] = domain.SplitInstruction{
			RecipientID:          s.RecipientID,
			Amount:               &amount,
			ChargeProcessingCost: s.ChargeProcessingCost,
			Liable:               s.Liable,
		}
	}
	return out
}

// Complete prepends a synthetic owner instruction carrying whatever part of
// the total the list leaves uncovered. Lists that already name the owner,
// already cover the total, or mix instruction types are returned unchanged.
func Complete(total int64, ownerID string, instructions []domain.SplitInstruction) []domain.SplitInstruction {
	if len(instructions) == 0 || ownerID == "" || hasRecipient(ownerID, instructions) {
		return instructions
	}

	kind := instructions[0].Kind()
	var covered, limit int64
	switch kind {
	case domain.SplitKindAmount:
		limit = total
	case domain.SplitKindPercentage:
		limit = int64(domain.FullPercentage)
	default:
		return instructions
	}
	for _, in := range instructions {
		if in.Kind() != kind {
			return instructions
		}
		var v int64
		if kind == domain.SplitKindAmount {
			v = *in.Amount
		} else {
			v = int64(*in.Percentage)
		}
		// Out-of-range values are left for Validate to reject.
		if v < 0 || v > limit-covered {
			return instructions
		}
		covered += v
	}

	owner := domain.SplitInstruction{RecipientID: ownerID, ChargeProcessingCost: true, Liable: true}
	switch kind {
	case domain.SplitKindAmount:
		if covered >= total {
			return instructions
		}
		rest := total - covered
		owner.Amount = &rest
	case domain.SplitKindPercentage:
		if covered >= int64(domain.FullPercentage) {
			return instructions
		}
		rest := domain.FullPercentage - domain.Percentage(covered)
		owner.Percentage = &rest
	}

	out := make([]domain.SplitInstruction, 0, len(instructions)+1)
	out = append(out, owner)
	return append(out, instructions...)
}

// ExcludeRecipient drops every instruction addressed to recipientID.
func ExcludeRecipient(recipientID string, instructions []domain.SplitInstruction) []domain.SplitInstruction {
	out := make([]domain.SplitInstruction, 0, len(instructions))
	for _, in := range instructions {
		if in.RecipientID != recipientID {
			out = append(out, in)
		}
	}
	return out
}

// Layer carves fee-rule shares out of the owner's resolved amount. Each share
// is computed against total (floored for percentages); the owner keeps what
// is left. Shares addressed to the owner are ignored. The result is
// amount-typed and sums to total.
func Layer(total int64, ownerID string, base []domain.ResolvedSplit, shares []domain.SplitInstruction) ([]domain.ResolvedSplit, error) {
	out := make([]domain.ResolvedSplit, len(base))
	owner := -1
	for i, s := range base {
		out[i] = s
		out[i].Percentage = nil
		if s.RecipientID == ownerID && owner < 0 {
			owner = i
		}
	}

	var pool int64
	if owner >= 0 {
		pool = out[owner].Amount
	}

	var carved int64
	for _, sh := range shares {
		if sh.RecipientID == ownerID {
			continue
		}
		var amount int64
		switch sh.Kind() {
		case domain.SplitKindAmount:
			amount = *sh.Amount
		case domain.SplitKindPercentage:
			if *sh.Percentage > domain.FullPercentage {
				return nil, &domain.ErrInvalidSplitRulePercentage{Got: *sh.Percentage}
			}
			amount = total * int64(*sh.Percentage) / int64(domain.FullPercentage)
		case domain.SplitKindBoth:
			return nil, &domain.ErrInvalidSplitRulePercentage{Mixed: true}
		default:
			return nil, &domain.ErrValidation{Field: "fee_rule.shares", Message: "each share needs a percentage or an amount"}
		}
		if amount < 0 {
			return nil, &domain.ErrValidation{Field: "fee_rule.shares", Message: "must not be negative"}
		}
		if amount == 0 {
			continue
		}
		if amount > pool-carved {
			return nil, &domain.ErrInvalidSplitRuleAmount{Expected: pool, Got: saturatingAdd(carved, amount)}
		}
		carved += amount

		merged := false
		for i := range out {
			if out[i].RecipientID == sh.RecipientID {
				out[i].Amount += amount
				out[i].ChargeProcessingCost = out[i].ChargeProcessingCost || sh.ChargeProcessingCost
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, domain.ResolvedSplit{
				RecipientID:          sh.RecipientID,
				Amount:               amount,
				ChargeProcessingCost: sh.ChargeProcessingCost,
				Liable:               sh.Liable,
			})
		}
	}

	if owner >= 0 {
		out[owner].Amount -= carved
	}
	return out, nil
}

// saturatingAdd adds two non-negative values, clamping at math.MaxInt64.
func saturatingAdd(a, b int64) int64 {
	if b > math.MaxInt64-a {
		return math.MaxInt64
	}
	return a + b
}

// ownerIndex returns the index of ownerID's instruction, or 0 when absent.
func ownerIndex(ownerID string, instructions []domain.SplitInstruction) int {
	for i, in := range instructions {
		if in.RecipientID == ownerID {
			return i
		}
	}
	return 0
}

func hasRecipient(recipientID string, instructions []domain.SplitInstruction) bool {
	for _, in := range instructions {
		if in.RecipientID == recipientID {
			return true
		}
	}
	return false
}
