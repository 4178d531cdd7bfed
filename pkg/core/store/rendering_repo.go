package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loan_spreading/pkg/models"
)

// RenderingRepo keeps the "current rendering" row per
// (deal, bank, statement type). Each authoritative computation overwrites
// the previous row; the digest and version stamps let replays detect drift.
//
// Schema assumption:
// CREATE TABLE IF NOT EXISTS current_renderings (
//   deal_id TEXT NOT NULL,
//   bank_id TEXT NOT NULL,
//   statement_type TEXT NOT NULL,
//   digest TEXT NOT NULL,
//   registry_version TEXT,
//   engine_version TEXT,
//   payload JSONB NOT NULL,
//   updated_at TIMESTAMPTZ NOT NULL,
//   PRIMARY KEY (deal_id, bank_id, statement_type)
// );
type RenderingRepo struct {
	pool *pgxpool.Pool
}

// NewRenderingRepo creates a new rendering repository.
func NewRenderingRepo(pool *pgxpool.Pool) *RenderingRepo {
	return &RenderingRepo{pool: pool}
}

// SaveCurrent upserts the authoritative rendering for one statement type.
func (r *RenderingRepo) SaveCurrent(ctx context.Context, rec *models.RenderingRecord) error {
	if r.pool == nil {
		return fmt.Errorf("database pool not configured")
	}
	if rec.DealID == "" || rec.StatementType == "" {
		return fmt.Errorf("rendering record needs deal_id and statement_type")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO current_renderings
			(deal_id, bank_id, statement_type, digest, registry_version, engine_version, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (deal_id, bank_id, statement_type)
		DO UPDATE SET
			digest = EXCLUDED.digest,
			registry_version = EXCLUDED.registry_version,
			engine_version = EXCLUDED.engine_version,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at;
	`
	_, err := r.pool.Exec(ctx, query,
		rec.DealID, rec.BankID, rec.StatementType, rec.Digest,
		rec.RegistryVersion, rec.EngineVersion, rec.Payload, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save rendering: %w", err)
	}
	return nil
}

// GetCurrent loads the authoritative rendering for one statement type.
func (r *RenderingRepo) GetCurrent(ctx context.Context, dealID, bankID, statementType string) (*models.RenderingRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("database pool not configured")
	}

	query := `
		SELECT deal_id, bank_id, statement_type, digest, registry_version, engine_version, payload, updated_at
		FROM current_renderings
		WHERE deal_id = $1 AND bank_id = $2 AND statement_type = $3
	`
	var rec models.RenderingRecord
	err := r.pool.QueryRow(ctx, query, dealID, bankID, statementType).Scan(
		&rec.DealID, &rec.BankID, &rec.StatementType, &rec.Digest,
		&rec.RegistryVersion, &rec.EngineVersion, &rec.Payload, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no current rendering for deal %s %s %s", dealID, bankID, statementType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rendering: %w", err)
	}
	return &rec, nil
}
