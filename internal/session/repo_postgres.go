package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MillerSebastian/telegram-call/pkg/utils"
)

// PostgresRepo mirrors the snapshot into a jsonb table, one row per call id.
// The save replaces the whole snapshot in one transaction so the table never
// holds a mix of two snapshots.
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) (*PostgresRepo, error) {
	if db == nil {
		return nil, errors.New("session: db is required")
	}
	return &PostgresRepo{db: db, clock: time.Now}, nil
}

// EnsureSchema creates the snapshot table if missing.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS call_sessions (
    call_id    TEXT PRIMARY KEY,
    data       JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("session: ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Load(ctx context.Context) (map[string]Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT call_id, data FROM call_sessions`)
	if err != nil {
		return nil, fmt.Errorf("session: postgres load: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Session)
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var sess Session
		if err := json.Unmarshal(payload, &sess); err != nil {
			return nil, fmt.Errorf("session: decode %s: %w", id, err)
		}
		out[id] = sess
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Save(ctx context.Context, sessions map[string]Session) error {
	now := r.clock().UTC()
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM call_sessions`); err != nil {
			return err
		}
		for id, sess := range sessions {
			payload, err := json.Marshal(sess)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO call_sessions (call_id, data, updated_at) VALUES ($1, $2, $3)`,
				id, payload, now,
			); err != nil {
				return err
			}
		}
		return nil
	})
}
