package expense

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	expenseBucketName = "expenses"
	hashBucketName    = "hashes" // source hash -> expense ID, never pruned
)

// DB defines the interface for database operations
type DB interface {
	// SaveExpense inserts or replaces an expense. It returns ErrDuplicate
	// when the source hash was recorded for another expense, even a deleted one.
	SaveExpense(ctx context.Context, expense *Expense) error

	// GetExpense retrieves an expense by ID
	GetExpense(ctx context.Context, id string) (*Expense, error)

	// ListExpenses returns all expenses
	ListExpenses(ctx context.Context) ([]*Expense, error)

	// ListExpensesBetween returns expenses dated in [start, end)
	ListExpensesBetween(ctx context.Context, start, end time.Time) ([]*Expense, error)

	// DeleteExpense removes an expense. Its source hash stays recorded.
	DeleteExpense(ctx context.Context, id string) error

	// HasHash reports whether the source hash was ever recorded
	HasHash(ctx context.Context, hash string) (bool, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{expenseBucketName, hashBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveExpense saves an expense and indexes its source hash. Index entries
// outlive the expenses that created them.
func (b *BoltDB) SaveExpense(ctx context.Context, expense *Expense) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		expenses := tx.Bucket([]byte(expenseBucketName))
		hashes := tx.Bucket([]byte(hashBucketName))

		if expense.SourceHash != "" {
			if owner := hashes.Get([]byte(expense.SourceHash)); owner != nil && string(owner) != expense.ID {
				return ErrDuplicate
			}
		}

		data, err := json.Marshal(expense)
		if err != nil {
			return fmt.Errorf("marshaling expense: %w", err)
		}
		if err := expenses.Put([]byte(expense.ID), data); err != nil {
			return err
		}
		if expense.SourceHash != "" {
			return hashes.Put([]byte(expense.SourceHash), []byte(expense.ID))
		}
		return nil
	})
}

// GetExpense retrieves an expense by ID
func (b *BoltDB) GetExpense(ctx context.Context, id string) (*Expense, error) {
	var expense *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(expenseBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &expense)
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// ListExpenses returns all expenses
func (b *BoltDB) ListExpenses(ctx context.Context) ([]*Expense, error) {
	return b.listWhere(func(*Expense) bool { return true })
}

// ListExpensesBetween returns expenses dated in [start, end)
func (b *BoltDB) ListExpensesBetween(ctx context.Context, start, end time.Time) ([]*Expense, error) {
	return b.listWhere(func(e *Expense) bool {
		return !e.Date.Before(start) && e.Date.Before(end)
	})
}

func (b *BoltDB) listWhere(keep func(*Expense) bool) ([]*Expense, error) {
	expenses := make([]*Expense, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(expenseBucketName)).ForEach(func(k, v []byte) error {
			var expense Expense
			if err := json.Unmarshal(v, &expense); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			if keep(&expense) {
				expenses = append(expenses, &expense)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

// DeleteExpense removes an expense, keeping its hash index entry
func (b *BoltDB) DeleteExpense(ctx context.Context, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		expenses := tx.Bucket([]byte(expenseBucketName))
		if expenses.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return expenses.Delete([]byte(id))
	})
}

// HasHash reports whether the hash index holds hash
func (b *BoltDB) HasHash(ctx context.Context, hash string) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(hashBucketName)).Get([]byte(hash)) != nil
		return nil
	})
	return found, err
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
