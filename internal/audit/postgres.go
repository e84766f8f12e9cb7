package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id         BIGSERIAL PRIMARY KEY,
	ts         TIMESTAMPTZ NOT NULL,
	run_id     TEXT NOT NULL,
	stage      TEXT NOT NULL,
	data       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_records_run_id_idx ON audit_records (run_id, ts);
`

const postgresInsert = `INSERT INTO audit_records (ts, run_id, stage, data) VALUES ($1, $2, $3, $4)`

// PostgresSink inserts each record synchronously into the audit_records table.
// The table is insert-only; nothing in this package updates or deletes rows.
type PostgresSink struct {
	db     *sql.DB
	ownsDB bool
}

// NewPostgresSink wraps an existing connection pool.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// OpenPostgresSink opens a pgx-backed pool for dsn and ensures the schema exists.
func OpenPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	sink := &PostgresSink{db: db, ownsDB: true}
	if err := sink.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

// EnsureSchema creates the audit table when missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// Append inserts rec as a single row.
func (s *PostgresSink) Append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("marshal audit data: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, postgresInsert, rec.Timestamp, rec.RunID, rec.Stage, data); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Close closes the pool if the sink opened it.
func (s *PostgresSink) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
