package executor

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"
)

// tableDriver serves one fixed result set for any query.
type tableDriver struct {
	mu      sync.Mutex
	columns []string
	rows    [][]sqldriver.Value
	err     error
	queries []string
}

func (d *tableDriver) Open(string) (sqldriver.Conn, error) { return &tableConn{d: d}, nil }

type tableConn struct{ d *tableDriver }

func (c *tableConn) Prepare(query string) (sqldriver.Stmt, error) {
	return &tableStmt{d: c.d, query: query}, nil
}
func (c *tableConn) Close() error { return nil }
func (c *tableConn) Begin() (sqldriver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

type tableStmt struct {
	d     *tableDriver
	query string
}

func (s *tableStmt) Close() error  { return nil }
func (s *tableStmt) NumInput() int { return -1 }
func (s *tableStmt) Exec([]sqldriver.Value) (sqldriver.Result, error) {
	return nil, errors.New("exec not supported")
}

func (s *tableStmt) Query([]sqldriver.Value) (sqldriver.Rows, error) {
	s.d.mu.Lock()
	s.d.queries = append(s.d.queries, s.query)
	s.d.mu.Unlock()
	if s.d.err != nil {
		return nil, s.d.err
	}
	return &tableRows{columns: s.d.columns, rows: s.d.rows}, nil
}

type tableRows struct {
	columns []string
	rows    [][]sqldriver.Value
	pos     int
}

func (r *tableRows) Columns() []string { return r.columns }
func (r *tableRows) Close() error      { return nil }

func (r *tableRows) Next(dest []sqldriver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

func openTableDB(t *testing.T, d *tableDriver) *sql.DB {
	t.Helper()
	db := sql.OpenDB(connector{d: d})
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type connector struct{ d *tableDriver }

func (c connector) Connect(context.Context) (sqldriver.Conn, error) { return c.d.Open("") }
func (c connector) Driver() sqldriver.Driver                       { return c.d }

func TestSQL_ExecuteReturnsRawCells(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d := &tableDriver{
		columns: []string{"pod", "restarts", "seen_at", "labels"},
		rows: [][]sqldriver.Value{
			{"api-7d9f", int64(3), at, []byte(`{"app":"api"}`)},
			{"worker-1", int64(0), nil, nil},
		},
	}
	exec := NewSQL(openTableDB(t, d))

	table, err := exec.Execute(context.Background(), Request{Resource: "pods", Query: "SELECT * FROM pods"})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if len(d.queries) != 1 || d.queries[0] != "SELECT * FROM pods" {
		t.Fatalf("unexpected queries %v", d.queries)
	}
	if !reflect.DeepEqual(table.Columns, d.columns) {
		t.Fatalf("unexpected columns %v", table.Columns)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	first := table.Rows[0].Cells()
	if first[0] != "api-7d9f" || first[1] != int64(3) {
		t.Fatalf("unexpected cells %#v", first)
	}
	if ts, ok := first[2].(time.Time); !ok || !ts.Equal(at) {
		t.Fatalf("expected time cell, got %#v", first[2])
	}
	if second := table.Rows[1].Cells(); second[2] != nil || second[3] != nil {
		t.Fatalf("expected NULL cells, got %#v", second)
	}
}

func TestSQL_ExecuteQueryError(t *testing.T) {
	exec := NewSQL(openTableDB(t, &tableDriver{err: errors.New("relation does not exist")}))
	if _, err := exec.Execute(context.Background(), Request{Query: "SELECT 1"}); err == nil {
		t.Fatal("expected query error")
	}
}

func TestSQL_CloseLeavesBorrowedPoolOpen(t *testing.T) {
	db := openTableDB(t, &tableDriver{columns: []string{"n"}})
	exec := NewSQL(db)
	if err := exec.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		t.Fatalf("expected pool still open, got %v", err)
	}
}
