package bill

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// Collections returns every bill collection name, one per bill type plus the
// legacy "gas_bills" collection kept for documents written before the
// naturalGas rename. New documents never land in the legacy collection.
func Collections() []string {
	return []string{
		"electricity_bills",
		"water_bills",
		"gas_bills",
		"naturalGas_bills",
		"internet_bills",
		"other_bills",
	}
}

// collectionFor returns the collection a bill type is written to
func collectionFor(t Type) string {
	return string(t) + "_bills"
}

// typeForCollection derives the canonical bill type from a collection name,
// used when a stored document lacks an explicit type field.
func typeForCollection(name string) Type {
	return NormalizeType(strings.TrimSuffix(name, "_bills"))
}

// Store defines the interface for bill persistence operations
type Store interface {
	// SaveBill saves a bill, assigning an ID on first save. A type change
	// moves the document between collections atomically.
	SaveBill(bill *Bill) error

	// GetBill retrieves a bill by ID
	GetBill(id string) (*Bill, error)

	// DeleteBill removes a bill
	DeleteBill(id string) error

	// ListBills returns all bills for a user
	ListBills(userID string) ([]*Bill, error)

	// DueBetween returns the bills in one collection whose due date falls in
	// [from, to]. Callers iterate Collections() and must isolate a failure
	// on one collection from the others.
	DueBetween(collection, userID string, from, to time.Time) ([]*Bill, error)

	// CountDueBetween counts the bills in one collection whose due date
	// falls in [from, to]
	CountDueBetween(collection, userID string, from, to time.Time) (int, error)

	// Close closes the store
	Close() error
}

// BoltStore implements the Store interface using bbolt, one bucket per bill
// collection.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the bill database
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bill database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range Collections() {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating collections: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// SaveBill saves a bill to its type's collection. An empty ID is assigned
// here; the ID is immutable afterwards. When an existing bill's type changed,
// the stale copy is removed from its old collection in the same transaction,
// so a failed save leaves the old record in place.
func (s *BoltStore) SaveBill(bill *Bill) error {
	if bill.ID == "" {
		bill.ID = uuid.NewString()
	}
	bill.Type = NormalizeType(string(bill.Type))

	return s.db.Update(func(tx *bbolt.Tx) error {
		target := collectionFor(bill.Type)
		bucket := tx.Bucket([]byte(target))
		if bucket == nil {
			return fmt.Errorf("unknown collection for type %q", bill.Type)
		}
		data, err := json.Marshal(bill)
		if err != nil {
			return fmt.Errorf("marshaling bill: %w", err)
		}
		if err := bucket.Put([]byte(bill.ID), data); err != nil {
			return err
		}

		for _, name := range Collections() {
			if name == target {
				continue
			}
			other := tx.Bucket([]byte(name))
			if other == nil || other.Get([]byte(bill.ID)) == nil {
				continue
			}
			if err := other.Delete([]byte(bill.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetBill retrieves a bill by ID, searching every collection
func (s *BoltStore) GetBill(id string) (*Bill, error) {
	var found *Bill
	err := s.db.View(func(tx *bbolt.Tx) error {
		for _, name := range Collections() {
			bucket := tx.Bucket([]byte(name))
			if bucket == nil {
				continue
			}
			data := bucket.Get([]byte(id))
			if data == nil {
				continue
			}
			bill, err := decodeBill(data, name)
			if err != nil {
				return err
			}
			found = bill
			return nil
		}
		return fmt.Errorf("bill not found: %s", id)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// DeleteBill removes a bill from whichever collection holds it
func (s *BoltStore) DeleteBill(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range Collections() {
			bucket := tx.Bucket([]byte(name))
			if bucket == nil {
				continue
			}
			if bucket.Get([]byte(id)) != nil {
				return bucket.Delete([]byte(id))
			}
		}
		return fmt.Errorf("bill not found: %s", id)
	})
}

// ListBills returns all bills belonging to a user across every collection
func (s *BoltStore) ListBills(userID string) ([]*Bill, error) {
	bills := make([]*Bill, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		for _, name := range Collections() {
			bucket := tx.Bucket([]byte(name))
			if bucket == nil {
				continue
			}
			err := bucket.ForEach(func(k, v []byte) error {
				bill, err := decodeBill(v, name)
				if err != nil {
					return err
				}
				if bill.UserID == userID {
					bills = append(bills, bill)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bills, nil
}

// DueBetween returns one collection's bills for a user with a due date in
// [from, to]
func (s *BoltStore) DueBetween(collection, userID string, from, to time.Time) ([]*Bill, error) {
	bills := make([]*Bill, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil {
			return fmt.Errorf("collection not found: %s", collection)
		}
		return bucket.ForEach(func(k, v []byte) error {
			bill, err := decodeBill(v, collection)
			if err != nil {
				return err
			}
			if bill.UserID != userID || bill.DueDate == nil {
				return nil
			}
			if bill.DueDate.Before(from) || bill.DueDate.After(to) {
				return nil
			}
			bills = append(bills, bill)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return bills, nil
}

// CountDueBetween counts one collection's bills for a user with a due date
// in [from, to]
func (s *BoltStore) CountDueBetween(collection, userID string, from, to time.Time) (int, error) {
	bills, err := s.DueBetween(collection, userID, from, to)
	if err != nil {
		return 0, err
	}
	return len(bills), nil
}

// decodeBill unmarshals a stored document, normalizing the type field and
// deriving it from the collection name when the document has none.
func decodeBill(data []byte, collection string) (*Bill, error) {
	var bill Bill
	if err := json.Unmarshal(data, &bill); err != nil {
		return nil, fmt.Errorf("unmarshaling bill: %w", err)
	}
	if bill.Type == "" {
		bill.Type = typeForCollection(collection)
	} else {
		bill.Type = NormalizeType(string(bill.Type))
	}
	return &bill, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}
