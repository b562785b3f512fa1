package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/drover/internal/store"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS action_history(
			id BIGSERIAL PRIMARY KEY,
			account TEXT NOT NULL,
			action_type TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_action_history_key
			ON action_history(account, action_type, occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Append(ctx context.Context, rec store.Record) error {
	occurred := rec.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO action_history(account, action_type, occurred_at)
		VALUES($1,$2,$3);`,
		rec.Account, rec.ActionType, occurred.UTC())
	return err
}

func (p *DB) Since(ctx context.Context, account, actionType string, cutoff time.Time) ([]store.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, account, action_type, occurred_at
		FROM action_history
		WHERE account=$1 AND action_type=$2 AND occurred_at > $3
		ORDER BY occurred_at ASC;`,
		account, actionType, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.Record, 0)
	for rows.Next() {
		var r store.Record
		if err := rows.Scan(&r.ID, &r.Account, &r.ActionType, &r.OccurredAt); err != nil {
			return nil, err
		}
		r.OccurredAt = r.OccurredAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *DB) PurgeOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM action_history WHERE occurred_at < $1;`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
