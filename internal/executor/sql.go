package executor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// SQL runs queries through database/sql. OpenPostgres wires it to pgx.
type SQL struct {
	db     *sql.DB
	ownsDB bool
}

// NewSQL wraps an existing pool.
func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db}
}

// OpenPostgres opens a pgx-backed pool for dsn and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
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
	return &SQL{db: db, ownsDB: true}, nil
}

func (s *SQL) Name() string { return "postgres" }

func (s *SQL) Execute(ctx context.Context, req Request) (Table, error) {
	rows, err := s.db.QueryContext(ctx, req.Query)
	if err != nil {
		return Table{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Table{}, err
	}

	table := Table{Columns: cols}
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Table{}, err
		}
		table.Rows = append(table.Rows, Values(cells))
	}
	if err := rows.Err(); err != nil {
		return Table{}, err
	}
	return table, nil
}

// Close closes the pool if this executor opened it.
func (s *SQL) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
