package boltstore

import (
	"bytes"
	"context"

	"github.com/boddenberg/acquiring-core-go/internal/domain"

	bolt "github.com/boltdb/bolt"
)

// FindTransactionByProviderID returns the transaction registered for
// (provider, providerTransactionID), or nil.
func (s *Store) FindTransactionByProviderID(_ context.Context, provider, providerTransactionID string) (*domain.Transaction, error) {
	var t *domain.Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketTransactionIndex).Get(compositeKey(provider, providerTransactionID))
		if id == nil {
			return nil
		}
		var found domain.Transaction
		ok, err := getJSON(tx.Bucket(bucketTransactions), id, &found)
		if err != nil || !ok {
			return err
		}
		t = &found
		return nil
	})
	return t, err
}

// GetTransaction returns the transaction or *domain.ErrNotFound.
func (s *Store) GetTransaction(_ context.Context, transactionID string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketTransactions), []byte(transactionID), &t)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.ErrNotFound{Resource: "transaction", ID: transactionID}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTransaction inserts t unless (provider, provider_transaction_id) is
// already taken, in which case it fails with *domain.ErrTransactionAlreadyExists.
func (s *Store) CreateTransaction(_ context.Context, t *domain.Transaction) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketTransactionIndex)
		key := compositeKey(t.Provider, t.ProviderTransactionID)
		if existingID := idx.Get(key); existingID != nil {
			var existing domain.Transaction
			if _, err := getJSON(tx.Bucket(bucketTransactions), existingID, &existing); err != nil {
				return err
			}
			return &domain.ErrTransactionAlreadyExists{
				Provider:              t.Provider,
				ProviderTransactionID: t.ProviderTransactionID,
				Existing:              &existing,
			}
		}

		now := s.now()
		t.CreatedAt = now
		t.UpdatedAt = now
		if err := putJSON(tx.Bucket(bucketTransactions), []byte(t.ID), t); err != nil {
			return err
		}
		return idx.Put(key, []byte(t.ID))
	})
}

// UpdateTransaction overwrites an existing transaction.
func (s *Store) UpdateTransaction(_ context.Context, t *domain.Transaction) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTransactions)
		if b.Get([]byte(t.ID)) == nil {
			return &domain.ErrNotFound{Resource: "transaction", ID: t.ID}
		}
		t.UpdatedAt = s.now()
		return putJSON(b, []byte(t.ID), t)
	})
}

// ListPayables returns every payable of a transaction.
func (s *Store) ListPayables(_ context.Context, transactionID string) ([]domain.Payable, error) {
	items := []domain.Payable{}
	err := s.db.View(func(tx *bolt.Tx) error {
		payables := tx.Bucket(bucketPayables)
		prefix := append([]byte(transactionID), 0)
		c := tx.Bucket(bucketPayableIndex).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var p domain.Payable
			ok, err := getJSON(payables, v, &p)
			if err != nil {
				return err
			}
			if ok {
				items = append(items, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CreateRefundPayable writes p unless a refund payable for p.OriginID exists,
// in which case the stored one is returned with created=false.
func (s *Store) CreateRefundPayable(_ context.Context, p *domain.Payable) (*domain.Payable, bool, error) {
	var result domain.Payable
	created := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		refunds := tx.Bucket(bucketRefundIndex)
		if existingID := refunds.Get([]byte(p.OriginID)); existingID != nil {
			_, err := getJSON(tx.Bucket(bucketPayables), existingID, &result)
			return err
		}
		if err := s.putPayable(tx, p); err != nil {
			return err
		}
		result = *p
		created = true
		return refunds.Put([]byte(p.OriginID), []byte(p.ID))
	})
	if err != nil {
		return nil, false, err
	}
	return &result, created, nil
}

// SavePayable upserts a payable.
func (s *Store) SavePayable(_ context.Context, p *domain.Payable) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.putPayable(tx, p)
	})
}

func (s *Store) putPayable(tx *bolt.Tx, p *domain.Payable) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	if err := putJSON(tx.Bucket(bucketPayables), []byte(p.ID), p); err != nil {
		return err
	}
	return tx.Bucket(bucketPayableIndex).Put(compositeKey(p.TransactionID, p.ID), []byte(p.ID))
}
