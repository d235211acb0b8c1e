package boltstore

import (
	"context"

	"github.com/boddenberg/acquiring-core-go/internal/domain"

	bolt "github.com/boltdb/bolt"
)

// GetCompany returns the company or *domain.ErrNotFound.
func (s *Store) GetCompany(_ context.Context, companyID string) (*domain.Company, error) {
	var c domain.Company
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketCompanies), []byte(companyID), &c)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.ErrNotFound{Resource: "company", ID: companyID}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateDefaultSplitRules replaces the company's default split rules.
func (s *Store) UpdateDefaultSplitRules(_ context.Context, companyID string, rules []domain.SplitInstruction) (*domain.Company, error) {
	var c domain.Company
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCompanies)
		ok, err := getJSON(b, []byte(companyID), &c)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.ErrNotFound{Resource: "company", ID: companyID}
		}
		c.DefaultSplitRules = rules
		c.UpdatedAt = s.now()
		return putJSON(b, []byte(companyID), &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCompany upserts a company.
func (s *Store) SaveCompany(_ context.Context, c *domain.Company) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		now := s.now()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		return putJSON(tx.Bucket(bucketCompanies), []byte(c.ID), c)
	})
}

// FindAffiliation returns the company's affiliation with provider, or nil.
func (s *Store) FindAffiliation(_ context.Context, companyID, provider string) (*domain.Affiliation, error) {
	var a *domain.Affiliation
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketAffiliationIndex).Get(compositeKey(companyID, provider))
		if id == nil {
			return nil
		}
		var found domain.Affiliation
		ok, err := getJSON(tx.Bucket(bucketAffiliations), id, &found)
		if err != nil || !ok {
			return err
		}
		a = &found
		return nil
	})
	return a, err
}

// GetAffiliation returns the affiliation or *domain.ErrNotFound.
func (s *Store) GetAffiliation(_ context.Context, affiliationID string) (*domain.Affiliation, error) {
	var a domain.Affiliation
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketAffiliations), []byte(affiliationID), &a)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.ErrNotFound{Resource: "affiliation", ID: affiliationID}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveAffiliation upserts an affiliation and its (company, provider) index entry.
func (s *Store) SaveAffiliation(_ context.Context, a *domain.Affiliation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = s.now()
		}
		if err := putJSON(tx.Bucket(bucketAffiliations), []byte(a.ID), a); err != nil {
			return err
		}
		return tx.Bucket(bucketAffiliationIndex).Put(compositeKey(a.CompanyID, a.Provider), []byte(a.ID))
	})
}

// FindFeeRule returns the company's fee rule, or nil.
func (s *Store) FindFeeRule(_ context.Context, companyID string) (*domain.FeeRule, error) {
	var f *domain.FeeRule
	err := s.db.View(func(tx *bolt.Tx) error {
		var found domain.FeeRule
		ok, err := getJSON(tx.Bucket(bucketFeeRules), []byte(companyID), &found)
		if err != nil || !ok {
			return err
		}
		f = &found
		return nil
	})
	return f, err
}

// SaveFeeRule upserts the company's fee rule.
func (s *Store) SaveFeeRule(_ context.Context, f *domain.FeeRule) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if f.CreatedAt.IsZero() {
			f.CreatedAt = s.now()
		}
		return putJSON(tx.Bucket(bucketFeeRules), []byte(f.CompanyID), f)
	})
}
