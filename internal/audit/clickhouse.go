package audit

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	chBufferSize    = 4096
	chFlushInterval = 200 * time.Millisecond
	chFlushBatch    = 500
	chFlushTimeout  = 5 * time.Second
)

const clickhouseSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
	ts      DateTime64(6, 'UTC'),
	run_id  String,
	stage   LowCardinality(String),
	data    String
) ENGINE = MergeTree
ORDER BY (run_id, ts)
`

// ErrSinkClosed is returned by Append after Close.
var ErrSinkClosed = errors.New("audit sink closed")

// ClickHouseSink batches records through a single writer goroutine.
//
// Append blocks until the record is queued or ctx ends; records are never
// dropped for lack of buffer space. Close drains the queue before returning.
type ClickHouseSink struct {
	conn   driver.Conn
	queue  chan Record
	done   chan struct{}
	closed chan struct{}
	once   sync.Once
	logger *zap.Logger

	mu       sync.RWMutex
	shutdown bool
}

// OpenClickHouseSink connects to dsn, ensures the table exists and starts the writer.
func OpenClickHouseSink(ctx context.Context, dsn string, logger *zap.Logger) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if opts.TLS == nil && opts.Protocol == clickhouse.Native && isSecureDSN(dsn) {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	if err := conn.Exec(ctx, clickhouseSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}
	return newClickHouseSink(conn, logger), nil
}

func newClickHouseSink(conn driver.Conn, logger *zap.Logger) *ClickHouseSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ClickHouseSink{
		conn:   conn,
		queue:  make(chan Record, chBufferSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
		logger: logger,
	}
	go s.writeLoop()
	return s
}

// Append queues rec for the writer goroutine.
func (s *ClickHouseSink) Append(ctx context.Context, rec Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.shutdown {
		return ErrSinkClosed
	}
	select {
	case s.queue <- rec:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue audit record: %w", ctx.Err())
	}
}

// Close stops accepting records, flushes what is queued and closes the connection.
func (s *ClickHouseSink) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()

		close(s.done)
		<-s.closed
		err = s.conn.Close()
	})
	return err
}

func (s *ClickHouseSink) writeLoop() {
	defer close(s.closed)

	ticker := time.NewTicker(chFlushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, chFlushBatch)
	for {
		select {
		case rec := <-s.queue:
			batch = append(batch, rec)
			if len(batch) >= chFlushBatch {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.done:
		drain:
			for {
				select {
				case rec := <-s.queue:
					batch = append(batch, rec)
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *ClickHouseSink) flush(records []Record) {
	ctx, cancel := context.WithTimeout(context.Background(), chFlushTimeout)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO audit_records (ts, run_id, stage, data)")
	if err != nil {
		s.logger.Error("clickhouse prepare audit batch failed", zap.Int("batch_size", len(records)), zap.Error(err))
		return
	}
	for _, rec := range records {
		data, err := json.Marshal(rec.Data)
		if err != nil {
			data = []byte(`{}`)
		}
		if err := batch.Append(rec.Timestamp, rec.RunID, rec.Stage, string(data)); err != nil {
			s.logger.Error("clickhouse append audit record failed",
				zap.String("run_id", rec.RunID),
				zap.String("stage", rec.Stage),
				zap.Error(err),
			)
		}
	}
	if err := batch.Send(); err != nil {
		s.logger.Error("clickhouse audit batch send failed", zap.Int("batch_size", len(records)), zap.Error(err))
	}
}

func isSecureDSN(dsn string) bool {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return false
	}
	for _, addr := range opts.Addr {
		if len(addr) > 5 && addr[len(addr)-5:] == ":9440" {
			return true
		}
	}
	return false
}
