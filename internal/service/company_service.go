package service

import (
	"context"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/infra/observability"
	"github.com/boddenberg/acquiring-core-go/internal/port"
	"github.com/boddenberg/acquiring-core-go/internal/split"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var companyTracer = otel.Tracer("service/company")

// CompanyService manages company-level split configuration.
type CompanyService struct {
	companies port.CompanyStore
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewCompanyService creates a CompanyService.
func NewCompanyService(companies port.CompanyStore, metrics *observability.Metrics, logger *zap.Logger) *CompanyService {
	return &CompanyService{companies: companies, metrics: metrics, logger: logger}
}

// UpdateDefaultSplitRules replaces the company's default split rules.
// An empty list clears them.
func (s *CompanyService) UpdateDefaultSplitRules(ctx context.Context, companyID string, rules []domain.SplitInstruction) (*domain.Company, error) {
	ctx, span := companyTracer.Start(ctx, "CompanyService.UpdateDefaultSplitRules")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", companyID), attribute.Int("rules", len(rules)))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("update_default_split_rules", time.Since(start)) }()

	if err := validateDefaultSplitRules(companyID, rules); err != nil {
		return nil, domain.DoNotRetry(err)
	}

	c, err := s.companies.UpdateDefaultSplitRules(ctx, companyID, rules)
	if err != nil {
		return nil, err
	}

	s.logger.Info("default split rules updated",
		zap.String("company_id", companyID),
		zap.Int("rules", len(rules)),
	)
	return c, nil
}

// validateDefaultSplitRules checks a default rule set. Defaults never cover
// the owner: the owner's share is whatever the rules leave uncovered.
func validateDefaultSplitRules(companyID string, rules []domain.SplitInstruction) error {
	kind := domain.SplitKindNone
	seen := make(map[string]bool, len(rules))
	var percentSum domain.Percentage

	for _, r := range rules {
		if r.RecipientID == "" {
			return &domain.ErrValidation{Field: "split_rules.recipient_id", Message: "is required"}
		}
		if r.RecipientID == companyID {
			return &domain.ErrInvalidSplitRuleSameCompanyID{CompanyID: companyID}
		}
		if seen[r.RecipientID] {
			return &domain.ErrValidation{Field: "split_rules.recipient_id", Message: "duplicated recipient " + r.RecipientID}
		}
		seen[r.RecipientID] = true

		k := r.Kind()
		switch k {
		case domain.SplitKindNone:
			return &domain.ErrValidation{Field: "split_rules", Message: "each rule needs a percentage or an amount"}
		case domain.SplitKindBoth:
			return &domain.ErrInvalidSplitRulePercentage{Mixed: true}
		case domain.SplitKindAmount:
			if *r.Amount <= 0 {
				return &domain.ErrValidation{Field: "split_rules.amount", Message: "must be greater than zero"}
			}
		case domain.SplitKindPercentage:
			if *r.Percentage <= 0 {
				return &domain.ErrValidation{Field: "split_rules.percentage", Message: "must be greater than zero"}
			}
			percentSum += *r.Percentage
		}
		if kind != domain.SplitKindNone && kind != k {
			return &domain.ErrInvalidSplitRulePercentage{Mixed: true}
		}
		kind = k
	}

	if percentSum > domain.FullPercentage {
		return &domain.ErrInvalidSplitRulePercentage{Got: percentSum}
	}
	return nil
}

// SimulateSplit previews an allocation without touching any store. With an
// owner, uncovered rules are completed with an owner share that also
// receives the rounding residual.
func SimulateSplit(req *domain.SplitSimulationRequest) (*domain.SplitSimulationResponse, error) {
	var (
		resolved []domain.ResolvedSplit
		err      error
	)
	if req.OwnerID == "" {
		resolved, err = split.Allocate(req.Amount, req.SplitRules)
	} else {
		instructions := split.Complete(req.Amount, req.OwnerID, req.SplitRules)
		resolved, err = split.AllocateToOwner(req.Amount, req.OwnerID, instructions)
	}
	if err != nil {
		return nil, err
	}
	return &domain.SplitSimulationResponse{Amount: req.Amount, SplitRules: resolved}, nil
}
