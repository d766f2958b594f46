package flows

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo on the Postgres flows table. The whole flow is kept
// as JSONB; version and expires_at are columns so Save and sweeps stay in SQL.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new flow at version 1.
func (r *PGRepo) Create(ctx context.Context, flow Flow) error {
	const query = `
INSERT INTO flows (id, version, stage, data, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	flow.Version = 1
	payload, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, query,
		flow.ID,
		flow.Version,
		string(flow.Stage),
		payload,
		flow.ExpiresAt,
		flow.CreatedAt,
		flow.UpdatedAt,
	)
	return err
}

// Get returns a flow by ID.
func (r *PGRepo) Get(ctx context.Context, id string) (Flow, error) {
	const query = `SELECT version, data FROM flows WHERE id = $1 LIMIT 1`
	var version int64
	var data []byte
	if err := r.DB.QueryRowContext(ctx, query, id).Scan(&version, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Flow{}, ErrNotFound
		}
		return Flow{}, err
	}
	return decodeFlow(version, data)
}

// Save writes the flow guarded by its version.
func (r *PGRepo) Save(ctx context.Context, flow Flow) (Flow, error) {
	const query = `
UPDATE flows
SET version = version + 1, stage = $3, data = $4, expires_at = $5, updated_at = $6
WHERE id = $1 AND version = $2`
	next := flow
	next.Version = flow.Version + 1
	payload, err := json.Marshal(next)
	if err != nil {
		return Flow{}, fmt.Errorf("marshal flow: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, query,
		flow.ID,
		flow.Version,
		string(flow.Stage),
		payload,
		flow.ExpiresAt,
		flow.UpdatedAt,
	)
	if err != nil {
		return Flow{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return Flow{}, err
	}
	if rows == 0 {
		if _, err := r.Get(ctx, flow.ID); errors.Is(err, ErrNotFound) {
			return Flow{}, ErrNotFound
		}
		return Flow{}, ErrConflict
	}
	return next, nil
}

// Delete removes a flow.
func (r *PGRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM flows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpired removes flows past their expiry and returns them.
func (r *PGRepo) DeleteExpired(ctx context.Context, now time.Time) ([]Flow, error) {
	const query = `DELETE FROM flows WHERE expires_at <= $1 RETURNING version, data`
	rows, err := r.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Flow
	for rows.Next() {
		var version int64
		var data []byte
		if err := rows.Scan(&version, &data); err != nil {
			return nil, err
		}
		flow, err := decodeFlow(version, data)
		if err != nil {
			return nil, err
		}
		out = append(out, flow)
	}
	return out, rows.Err()
}

func decodeFlow(version int64, data []byte) (Flow, error) {
	var flow Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return Flow{}, fmt.Errorf("decode flow: %w", err)
	}
	flow.Version = version
	return flow, nil
}

var _ Repo = (*PGRepo)(nil)
