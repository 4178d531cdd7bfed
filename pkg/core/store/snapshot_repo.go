package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loan_spreading/pkg/models"
)

// SnapshotRepo persists immutable model snapshots, deduplicated by
// (deal_id, output_digest). Re-running a computation whose outputs did not
// change is a storage no-op that returns the original snapshot id.
//
// Schema assumption:
// CREATE TABLE IF NOT EXISTS model_snapshots (
//   id UUID PRIMARY KEY,
//   deal_id TEXT NOT NULL,
//   bank_id TEXT,
//   input_digest TEXT NOT NULL,
//   output_digest TEXT NOT NULL,
//   registry_version TEXT,
//   engine_version TEXT,
//   snapshot_json JSONB NOT NULL,
//   created_at TIMESTAMPTZ NOT NULL,
//   UNIQUE (deal_id, output_digest)
// );
type SnapshotRepo struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepo creates a new snapshot repository.
func NewSnapshotRepo(pool *pgxpool.Pool) *SnapshotRepo {
	return &SnapshotRepo{pool: pool}
}

// Persist writes the snapshot unless an identical-output snapshot already
// exists for the deal. Returns the snapshot id and whether a row was
// written. The pre-insert lookup is advisory; the unique constraint is the
// final arbiter when two computations race, and the loser returns the
// winner's id.
func (r *SnapshotRepo) Persist(ctx context.Context, snap *models.ModelSnapshot) (string, bool, error) {
	if r.pool == nil {
		return "", false, fmt.Errorf("database pool not configured")
	}
	if snap.DealID == "" || snap.OutputDigest == "" {
		return "", false, fmt.Errorf("snapshot needs deal_id and output_digest")
	}

	// 1. Advisory dedup check.
	if id, err := r.findByOutput(ctx, snap.DealID, snap.OutputDigest); err != nil {
		return "", false, err
	} else if id != "" {
		return id, false, nil
	}

	// 2. Insert; the constraint absorbs concurrent duplicates.
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	jsonData, err := json.Marshal(snap)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO model_snapshots
			(id, deal_id, bank_id, input_digest, output_digest, registry_version, engine_version, snapshot_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (deal_id, output_digest) DO NOTHING
		RETURNING id;
	`
	var insertedID string
	err = r.pool.QueryRow(ctx, query,
		snap.ID, snap.DealID, snap.BankID, snap.InputDigest, snap.OutputDigest,
		snap.RegistryVersion, snap.EngineVersion, jsonData, snap.CreatedAt,
	).Scan(&insertedID)
	if err == nil {
		return insertedID, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("failed to persist snapshot: %w", err)
	}

	// 3. Lost the race: fetch the winner.
	id, err := r.findByOutput(ctx, snap.DealID, snap.OutputDigest)
	if err != nil {
		return "", false, err
	}
	if id == "" {
		return "", false, fmt.Errorf("snapshot insert conflicted but no existing row found for deal %s", snap.DealID)
	}
	return id, false, nil
}

func (r *SnapshotRepo) findByOutput(ctx context.Context, dealID, outputDigest string) (string, error) {
	query := `SELECT id FROM model_snapshots WHERE deal_id = $1 AND output_digest = $2 LIMIT 1`
	var id string
	err := r.pool.QueryRow(ctx, query, dealID, outputDigest).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to check snapshot dedup: %w", err)
	}
	return id, nil
}

// Load retrieves one snapshot by id.
func (r *SnapshotRepo) Load(ctx context.Context, id string) (*models.ModelSnapshot, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("database pool not configured")
	}

	query := `SELECT snapshot_json FROM model_snapshots WHERE id = $1`
	var jsonData []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(&jsonData)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no snapshot found for id %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap models.ModelSnapshot
	if err := json.Unmarshal(jsonData, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// ListByDeal returns the newest snapshots for a deal, most recent first.
func (r *SnapshotRepo) ListByDeal(ctx context.Context, dealID string, limit int) ([]*models.ModelSnapshot, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("database pool not configured")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT snapshot_json FROM model_snapshots
		WHERE deal_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, dealID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*models.ModelSnapshot
	for rows.Next() {
		var jsonData []byte
		if err := rows.Scan(&jsonData); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		var snap models.ModelSnapshot
		if err := json.Unmarshal(jsonData, &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}
