// Package boltstore provides an embedded BoltDB implementation of
// port.Repository for local runs and single-node deployments.
//
// Every record is stored as JSON under its id. Secondary lookups use index
// buckets that are written in the same bolt transaction as the record, so the
// (provider, provider_transaction_id) uniqueness check and the insert are atomic.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/domain"

	bolt "github.com/boltdb/bolt"
)

var (
	bucketCompanies        = []byte("companies")
	bucketAffiliations     = []byte("affiliations")
	bucketAffiliationIndex = []byte("affiliations_by_company_provider")
	bucketFeeRules         = []byte("fee_rules_by_company")
	bucketTransactions     = []byte("transactions")
	bucketTransactionIndex = []byte("transactions_by_provider_id")
	bucketPayables         = []byte("payables")
	bucketPayableIndex     = []byte("payables_by_transaction")
	bucketRefundIndex      = []byte("refund_payables_by_origin")
)

var allBuckets = [][]byte{
	bucketCompanies,
	bucketAffiliations,
	bucketAffiliationIndex,
	bucketFeeRules,
	bucketTransactions,
	bucketTransactionIndex,
	bucketPayables,
	bucketPayableIndex,
	bucketRefundIndex,
}

// Store wraps a BoltDB database.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) a BoltDB database at path and ensures every bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is readable.
func (s *Store) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTransactions) == nil {
			return &domain.ErrNotFound{Resource: "bucket", ID: string(bucketTransactions)}
		}
		return nil
	})
}

func compositeKey(parts ...string) []byte {
	return bytes.Join(toBytes(parts), []byte{0})
}

func toBytes(parts []string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

func getJSON(b *bolt.Bucket, key []byte, v any) (bool, error) {
	raw := b.Get(key)
	if raw == nil {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}
