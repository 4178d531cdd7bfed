package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"loan_spreading/pkg/models"
)

// Vault is the embedded fallback store for environments without a database:
// local runs, air-gapped review machines, tests. It honors the same
// (deal, output digest) idempotency contract as SnapshotRepo so the pipeline
// can treat either as its snapshot store.
type Vault struct {
	db *badger.DB
}

// OpenVault opens a persistent vault rooted at dir.
func OpenVault(dir string) (*Vault, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault at %s: %w", dir, err)
	}
	return &Vault{db: db}, nil
}

// OpenVaultInMemory opens a throwaway vault with no disk footprint.
func OpenVaultInMemory() (*Vault, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory vault: %w", err)
	}
	return &Vault{db: db}, nil
}

// Close releases the underlying database.
func (v *Vault) Close() error {
	return v.db.Close()
}

func snapKey(dealID, outputDigest string) []byte {
	return []byte(fmt.Sprintf("snap:%s:%s", dealID, outputDigest))
}

func snapIDKey(id string) []byte {
	return []byte("snapid:" + id)
}

func renderKey(dealID, bankID, statementType string) []byte {
	return []byte(fmt.Sprintf("rend:%s:%s:%s", dealID, bankID, statementType))
}

// Persist stores the snapshot unless one with the same deal and output
// digest already exists, in which case the existing id is returned and
// nothing is written. Conflicting concurrent writes are retried; badger's
// transaction keeps the dedup check and the insert atomic.
func (v *Vault) Persist(ctx context.Context, snap *models.ModelSnapshot) (string, bool, error) {
	if snap.DealID == "" || snap.OutputDigest == "" {
		return "", false, fmt.Errorf("snapshot needs deal_id and output_digest")
	}
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	var id string
	var created bool

	for attempt := 0; attempt < 3; attempt++ {
		id, created = "", false
		err := v.db.Update(func(txn *badger.Txn) error {
			key := snapKey(snap.DealID, snap.OutputDigest)

			item, err := txn.Get(key)
			if err == nil {
				return item.Value(func(val []byte) error {
					var existing models.ModelSnapshot
					if uerr := json.Unmarshal(val, &existing); uerr != nil {
						return fmt.Errorf("corrupt vault entry: %w", uerr)
					}
					id = existing.ID
					return nil
				})
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			data, err := json.Marshal(snap)
			if err != nil {
				return fmt.Errorf("failed to marshal snapshot: %w", err)
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
			if err := txn.Set(snapIDKey(snap.ID), key); err != nil {
				return err
			}
			id, created = snap.ID, true
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("failed to persist snapshot: %w", err)
		}
		return id, created, nil
	}
	return "", false, fmt.Errorf("failed to persist snapshot for deal %s: too many conflicts", snap.DealID)
}

// Load retrieves one snapshot by id via the id index.
func (v *Vault) Load(ctx context.Context, id string) (*models.ModelSnapshot, error) {
	var snap *models.ModelSnapshot
	err := v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapIDKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("no snapshot found for id %s", id)
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err = txn.Get(key)
		if err != nil {
			return fmt.Errorf("snapshot index points at missing entry: %w", err)
		}
		return item.Value(func(val []byte) error {
			var s models.ModelSnapshot
			if err := json.Unmarshal(val, &s); err != nil {
				return fmt.Errorf("corrupt vault entry: %w", err)
			}
			snap = &s
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ListByDeal returns the deal's snapshots, most recent first.
func (v *Vault) ListByDeal(ctx context.Context, dealID string, limit int) ([]*models.ModelSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	prefix := []byte("snap:" + dealID + ":")

	var snaps []*models.ModelSnapshot
	err := v.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var s models.ModelSnapshot
				if err := json.Unmarshal(val, &s); err != nil {
					return fmt.Errorf("corrupt vault entry: %w", err)
				}
				snaps = append(snaps, &s)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	if len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

// SaveCurrent overwrites the authoritative rendering for one statement type.
func (v *Vault) SaveCurrent(ctx context.Context, rec *models.RenderingRecord) error {
	if rec.DealID == "" || rec.StatementType == "" {
		return fmt.Errorf("rendering record needs deal_id and statement_type")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal rendering: %w", err)
	}
	err = v.db.Update(func(txn *badger.Txn) error {
		return txn.Set(renderKey(rec.DealID, rec.BankID, rec.StatementType), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save rendering: %w", err)
	}
	return nil
}

// GetCurrent loads the authoritative rendering for one statement type.
func (v *Vault) GetCurrent(ctx context.Context, dealID, bankID, statementType string) (*models.RenderingRecord, error) {
	var rec *models.RenderingRecord
	err := v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(renderKey(dealID, bankID, statementType))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("no current rendering for deal %s %s %s", dealID, bankID, statementType)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var r models.RenderingRecord
			if err := json.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("corrupt vault entry: %w", err)
			}
			rec = &r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
