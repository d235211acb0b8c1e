package split_test

import (
	"errors"
	"testing"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/split"
)

func pct(whole int64) domain.Percentage { return domain.MustPercent(whole) }

func amounts(splits []domain.ResolvedSplit) map[string]int64 {
	out := make(map[string]int64, len(splits))
	for _, s := range splits {
		out[s.RecipientID] += s.Amount
	}
	return out
}

func TestAllocate_EvenPercentages(t *testing.T) {
	got, err := split.Allocate(100, []domain.SplitInstruction{
		domain.PercentageRule("A", pct(60), true),
		domain.PercentageRule("B", pct(40), false),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	m := amounts(got)
	if m["A"] != 60 || m["B"] != 40 {
		t.Errorf("expected A=60 B=40, got %v", m)
	}
}

func TestAllocate_ResidualGoesToFirst(t *testing.T) {
	got, err := split.Allocate(86, []domain.SplitInstruction{
		domain.PercentageRule("ThirdParty", pct(60), true),
		domain.PercentageRule("Owner", pct(40), true),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	m := amounts(got)
	if m["ThirdParty"] != 52 || m["Owner"] != 34 {
		t.Errorf("expected ThirdParty=52 Owner=34, got %v", m)
	}
}

func TestAllocateToOwner_ResidualGoesToOwner(t *testing.T) {
	got, err := split.AllocateToOwner(86, "Owner", []domain.SplitInstruction{
		domain.PercentageRule("ThirdParty", pct(60), true),
		domain.PercentageRule("Owner", pct(40), true),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	m := amounts(got)
	if m["ThirdParty"] != 51 || m["Owner"] != 35 {
		t.Errorf("expected ThirdParty=51 Owner=35, got %v", m)
	}
	if domain.SplitTotal(got) != 86 {
		t.Errorf("expected sum 86, got %d", domain.SplitTotal(got))
	}
}

func TestAllocateToOwner_OwnerAbsentFallsBackToFirst(t *testing.T) {
	got, err := split.AllocateToOwner(10, "Z", []domain.SplitInstruction{
		domain.PercentageRule("A", domain.Percentage(333_333), true),
		domain.PercentageRule("B", domain.Percentage(333_333), false),
		domain.PercentageRule("C", domain.Percentage(333_334), false),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	m := amounts(got)
	if m["A"] != 4 || m["B"] != 3 || m["C"] != 3 {
		t.Errorf("expected A=4 B=3 C=3, got %v", m)
	}
}

func TestComplete_ImplicitOwner(t *testing.T) {
	instructions := split.Complete(10000, "A", []domain.SplitInstruction{
		domain.PercentageRule("B", pct(30), false),
	})
	if len(instructions) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(instructions))
	}
	owner := instructions[0]
	if owner.RecipientID != "A" || !owner.ChargeProcessingCost || !owner.Liable {
		t.Errorf("expected synthetic owner first with processing cost, got %+v", owner)
	}

	got, err := split.AllocateToOwner(10000, "A", instructions)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	m := amounts(got)
	if m["A"] != 7000 || m["B"] != 3000 {
		t.Errorf("expected A=7000 B=3000, got %v", m)
	}
}

func TestComplete_AmountRemainder(t *testing.T) {
	instructions := split.Complete(500, "A", []domain.SplitInstruction{
		domain.AmountRule("B", 120, false),
	})
	if len(instructions) != 2 || *instructions[0].Amount != 380 {
		t.Fatalf("expected owner amount 380, got %+v", instructions)
	}
}

func TestComplete_LeavesCoveredListsAlone(t *testing.T) {
	in := []domain.SplitInstruction{
		domain.PercentageRule("B", pct(50), true),
		domain.PercentageRule("C", pct(50), false),
	}
	if got := split.Complete(100, "A", in); len(got) != 2 {
		t.Errorf("expected unchanged list, got %d entries", len(got))
	}

	withOwner := []domain.SplitInstruction{domain.PercentageRule("A", pct(10), true)}
	if got := split.Complete(100, "A", withOwner); len(got) != 1 {
		t.Errorf("expected list naming the owner to stay unchanged, got %d entries", len(got))
	}
}

func TestAllocate_AmountSumMismatch(t *testing.T) {
	_, err := split.Allocate(100, []domain.SplitInstruction{
		domain.AmountRule("A", 60, true),
		domain.AmountRule("B", 30, false),
	})
	var amountErr *domain.ErrInvalidSplitRuleAmount
	if !errors.As(err, &amountErr) {
		t.Fatalf("expected ErrInvalidSplitRuleAmount, got %v", err)
	}
	if amountErr.Expected != 100 || amountErr.Got != 90 {
		t.Errorf("unexpected error fields: %+v", amountErr)
	}
}

func TestAllocate_PercentageSumMismatch(t *testing.T) {
	_, err := split.Allocate(100, []domain.SplitInstruction{
		domain.PercentageRule("A", pct(60), true),
		domain.PercentageRule("B", pct(30), false),
	})
	var pctErr *domain.ErrInvalidSplitRulePercentage
	if !errors.As(err, &pctErr) {
		t.Fatalf("expected ErrInvalidSplitRulePercentage, got %v", err)
	}
	if pctErr.Mixed {
		t.Error("expected a sum mismatch, not a mixed-type error")
	}
}

func TestAllocate_MixedTypesFailRegardlessOfOrder(t *testing.T) {
	orders := [][]domain.SplitInstruction{
		{domain.PercentageRule("A", pct(50), true), domain.AmountRule("B", 50, false)},
		{domain.AmountRule("B", 50, false), domain.PercentageRule("A", pct(50), true)},
	}
	for i, in := range orders {
		_, err := split.Allocate(100, in)
		var pctErr *domain.ErrInvalidSplitRulePercentage
		if !errors.As(err, &pctErr) || !pctErr.Mixed {
			t.Errorf("order %d: expected mixed percentage error, got %v", i, err)
		}
	}
}

func TestAllocate_BothValuesOnOneInstruction(t *testing.T) {
	p := pct(100)
	amount := int64(100)
	_, err := split.Allocate(100, []domain.SplitInstruction{
		{RecipientID: "A", Percentage: &p, Amount: &amount, ChargeProcessingCost: true},
	})
	var pctErr *domain.ErrInvalidSplitRulePercentage
	if !errors.As(err, &pctErr) {
		t.Fatalf("expected ErrInvalidSplitRulePercentage, got %v", err)
	}
}

func TestAllocate_RequiresChargeProcessingCost(t *testing.T) {
	_, err := split.Allocate(100, []domain.SplitInstruction{
		domain.PercentageRule("A", pct(50), false),
		domain.PercentageRule("B", pct(50), false),
	})
	var cpcErr *domain.ErrInvalidChargeProcessingCost
	if !errors.As(err, &cpcErr) {
		t.Fatalf("expected ErrInvalidChargeProcessingCost, got %v", err)
	}
}

func TestAllocate_ValidationErrors(t *testing.T) {
	cases := map[string][]domain.SplitInstruction{
		"empty":             nil,
		"missing recipient": {domain.AmountRule("", 100, true)},
		"no value":          {{RecipientID: "A", ChargeProcessingCost: true}},
		"negative amount":   {domain.AmountRule("A", -1, true), domain.AmountRule("B", 101, false)},
	}
	for name, in := range cases {
		_, err := split.Allocate(100, in)
		var vErr *domain.ErrValidation
		if !errors.As(err, &vErr) {
			t.Errorf("%s: expected ErrValidation, got %v", name, err)
		}
	}
}

func TestAllocate_SumInvariant(t *testing.T) {
	weights := [][]int64{
		{333_333, 333_333, 333_334},
		{10_000, 990_000},
		{1, 999_999},
		{125_000, 125_000, 250_000, 500_000},
		{700_001, 299_999},
	}
	for _, total := range []int64{0, 1, 7, 86, 99, 100, 1001, 99_999, 123_456_789} {
		for _, ws := range weights {
			in := make([]domain.SplitInstruction, len(ws))
			for i, w := range ws {
				in[i] = domain.PercentageRule(string(rune('A'+i)), domain.Percentage(w), i == 0)
			}
			got, err := split.Allocate(total, in)
			if err != nil {
				t.Fatalf("total=%d weights=%v: unexpected error %v", total, ws, err)
			}
			if sum := domain.SplitTotal(got); sum != total {
				t.Errorf("total=%d weights=%v: splits sum to %d", total, ws, sum)
			}
			for _, s := range got {
				if s.Amount < 0 {
					t.Errorf("total=%d weights=%v: negative amount for %s", total, ws, s.RecipientID)
				}
			}
		}
	}
}

func TestLayer_CarvesFromOwner(t *testing.T) {
	base := []domain.ResolvedSplit{
		{RecipientID: "A", Amount: 7000, ChargeProcessingCost: true, Liable: true},
		{RecipientID: "B", Amount: 3000},
	}
	got, err := split.Layer(10000, "A", base, []domain.SplitInstruction{
		domain.PercentageRule("ISO", domain.Percentage(15_000), false), // 1.5%
		domain.AmountRule("B", 100, false),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	m := amounts(got)
	if m["A"] != 6750 || m["B"] != 3100 || m["ISO"] != 150 {
		t.Errorf("expected A=6750 B=3100 ISO=150, got %v", m)
	}
	if err := split.ValidateResolved(10000, got); err != nil {
		t.Errorf("expected layered split to validate, got %v", err)
	}
}

func TestLayer_SharesExceedOwnerPortion(t *testing.T) {
	base := []domain.ResolvedSplit{
		{RecipientID: "A", Amount: 10, ChargeProcessingCost: true},
		{RecipientID: "B", Amount: 90},
	}
	_, err := split.Layer(100, "A", base, []domain.SplitInstruction{domain.AmountRule("C", 20, false)})
	var amountErr *domain.ErrInvalidSplitRuleAmount
	if !errors.As(err, &amountErr) {
		t.Fatalf("expected ErrInvalidSplitRuleAmount, got %v", err)
	}
}

func TestExcludeRecipient(t *testing.T) {
	got := split.ExcludeRecipient("A", []domain.SplitInstruction{
		domain.PercentageRule("A", pct(10), true),
		domain.PercentageRule("B", pct(90), true),
	})
	if len(got) != 1 || got[0].RecipientID != "B" {
		t.Errorf("expected only B to remain, got %+v", got)
	}
}

func TestAllocate_RejectsAmountsThatWouldOverflow(t *testing.T) {
	huge := int64(1) << 62
	_, err := split.Allocate(100, []domain.SplitInstruction{
		domain.AmountRule("owner", 100, true),
		domain.AmountRule("B", huge, false),
		domain.AmountRule("C", huge, false),
		domain.AmountRule("D", huge, false),
		domain.AmountRule("E", huge, false),
	})
	var amountErr *domain.ErrInvalidSplitRuleAmount
	if !errors.As(err, &amountErr) {
		t.Fatalf("expected ErrInvalidSplitRuleAmount, got %v", err)
	}
	if amountErr.Expected != 100 || amountErr.Got <= 100 {
		t.Errorf("unexpected error fields: %+v", amountErr)
	}
}

func TestAllocate_RejectsSingleAmountAboveTotal(t *testing.T) {
	_, err := split.Allocate(100, []domain.SplitInstruction{
		domain.AmountRule("A", 150, true),
		domain.AmountRule("B", 0, false),
	})
	var amountErr *domain.ErrInvalidSplitRuleAmount
	if !errors.As(err, &amountErr) {
		t.Fatalf("expected ErrInvalidSplitRuleAmount, got %v", err)
	}
}

func TestAllocate_RejectsPercentagesThatWouldOverflow(t *testing.T) {
	huge := domain.Percentage(int64(1) << 62)
	_, err := split.Allocate(100, []domain.SplitInstruction{
		domain.PercentageRule("A", pct(100), true),
		domain.PercentageRule("B", huge, false),
		domain.PercentageRule("C", huge, false),
		domain.PercentageRule("D", huge, false),
		domain.PercentageRule("E", huge, false),
	})
	var pctErr *domain.ErrInvalidSplitRulePercentage
	if !errors.As(err, &pctErr) {
		t.Fatalf("expected ErrInvalidSplitRulePercentage, got %v", err)
	}
	if pctErr.Mixed || pctErr.Got <= domain.FullPercentage {
		t.Errorf("unexpected error fields: %+v", pctErr)
	}
}

func TestComplete_LeavesOversizedListsForValidation(t *testing.T) {
	huge := int64(1) << 62
	in := []domain.SplitInstruction{
		domain.AmountRule("B", huge, true),
		domain.AmountRule("C", huge, false),
	}
	got := split.Complete(100, "owner", in)
	if len(got) != len(in) {
		t.Fatalf("expected list unchanged, got %d entries", len(got))
	}
	if _, err := split.AllocateToOwner(100, "owner", got); err == nil {
		t.Error("expected oversized amounts to be rejected")
	}
}

func TestLayer_RejectsOversizedPercentageShare(t *testing.T) {
	base := []domain.ResolvedSplit{{RecipientID: "A", Amount: 100, ChargeProcessingCost: true}}
	huge := domain.Percentage(int64(1) << 62)
	_, err := split.Layer(100, "A", base, []domain.SplitInstruction{domain.PercentageRule("C", huge, false)})
	var pctErr *domain.ErrInvalidSplitRulePercentage
	if !errors.As(err, &pctErr) {
		t.Fatalf("expected ErrInvalidSplitRulePercentage, got %v", err)
	}
}
