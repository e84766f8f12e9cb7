package executor

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouse runs queries over the native protocol.
type ClickHouse struct {
	conn driver.Conn
}

// OpenClickHouse connects to dsn and verifies the connection.
func OpenClickHouse(ctx context.Context, dsn string) (*ClickHouse, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) Name() string { return "clickhouse" }

func (c *ClickHouse) Execute(ctx context.Context, req Request) (Table, error) {
	rows, err := c.conn.Query(ctx, req.Query)
	if err != nil {
		return Table{}, err
	}
	defer rows.Close()

	types := rows.ColumnTypes()
	table := Table{Columns: rows.Columns()}
	for rows.Next() {
		dest := make([]any, len(types))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return Table{}, err
		}
		cells := make([]any, len(dest))
		for i, d := range dest {
			cells[i] = reflect.ValueOf(d).Elem().Interface()
		}
		table.Rows = append(table.Rows, Values(cells))
	}
	if err := rows.Err(); err != nil {
		return Table{}, err
	}
	return table, nil
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
