package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perimetra/fenceline/model"
)

const fenceSchema = `
CREATE TABLE IF NOT EXISTS geofences (
	fence_id    TEXT PRIMARY KEY,
	payload     JSONB NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PGFenceStore persists received fences in PostgreSQL, one row per fence_id
// with the full payload as JSONB.
type PGFenceStore struct {
	pool *pgxpool.Pool
}

// NewPGFenceStore connects to the database and ensures the schema exists.
func NewPGFenceStore(ctx context.Context, dsn string) (*PGFenceStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect fence store: %w", err)
	}
	if _, err := pool.Exec(ctx, fenceSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure fence schema: %w", err)
	}
	return &PGFenceStore{pool: pool}, nil
}

// SaveFence implements FenceStore. Resubmissions of the same fence_id replace
// the stored payload and refresh the receipt time.
func (s *PGFenceStore) SaveFence(ctx context.Context, payload model.FencePayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode fence: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO geofences (fence_id, payload, received_at)
		VALUES ($1, $2, now())
		ON CONFLICT (fence_id)
		DO UPDATE SET payload = EXCLUDED.payload, received_at = now()`,
		payload.FenceID, raw)
	if err != nil {
		return fmt.Errorf("store fence %s: %w", payload.FenceID, err)
	}
	return nil
}

// ListFences implements FenceStore, newest first.
func (s *PGFenceStore) ListFences(ctx context.Context) ([]StoredFence, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT payload, received_at
		FROM geofences
		ORDER BY received_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list fences: %w", err)
	}
	defer rows.Close()

	var out []StoredFence
	for rows.Next() {
		var raw []byte
		var f StoredFence
		if err := rows.Scan(&raw, &f.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan fence row: %w", err)
		}
		if err := json.Unmarshal(raw, &f.Payload); err != nil {
			return nil, fmt.Errorf("decode stored fence: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list fences: %w", err)
	}
	return out, nil
}

// Close implements FenceStore.
func (s *PGFenceStore) Close() {
	s.pool.Close()
}
