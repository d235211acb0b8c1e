package cache

import (
	"context"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/infra/observability"
	"github.com/boddenberg/acquiring-core-go/internal/port"
)

const companyCacheName = "company"

// CompanyStore is a read-through cache over a port.CompanyStore.
// Writes go to the underlying store and evict the cached entry.
type CompanyStore struct {
	next    port.CompanyStore
	cache   port.Cache[*domain.Company]
	metrics *observability.Metrics
}

// NewCompanyStore wraps next with c.
func NewCompanyStore(next port.CompanyStore, c port.Cache[*domain.Company], metrics *observability.Metrics) *CompanyStore {
	return &CompanyStore{next: next, cache: c, metrics: metrics}
}

// GetCompany returns the cached company or loads it from the underlying store.
// Not-found results are not cached.
func (s *CompanyStore) GetCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	if c, ok := s.cache.Get(companyID); ok {
		s.metrics.IncrCacheHit(companyCacheName)
		return c, nil
	}
	s.metrics.IncrCacheMiss(companyCacheName)

	c, err := s.next.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(companyID, c)
	return c, nil
}

// UpdateDefaultSplitRules writes through and evicts the cached company.
func (s *CompanyStore) UpdateDefaultSplitRules(ctx context.Context, companyID string, rules []domain.SplitInstruction) (*domain.Company, error) {
	c, err := s.next.UpdateDefaultSplitRules(ctx, companyID, rules)
	s.cache.Delete(companyID)
	if err != nil {
		return nil, err
	}
	return c, nil
}
