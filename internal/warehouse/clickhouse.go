// Package warehouse mirrors tracked events into ClickHouse for offline
// product analytics. The warehouse is an optional best-effort copy:
// failed batches are dropped with a warning and never affect tracking.
package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 30 * time.Second
	flushTimeout         = 5 * time.Second
)

const insertScreenEvents = `
INSERT INTO screen_events (event_name, screen_name, attributes, recorded_at)
VALUES (?, ?, ?, ?)
`

// Config carries the ClickHouse connection settings.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

type row struct {
	name   string
	screen string
	attrs  string
	at     time.Time
}

// Sink buffers event rows and sends them to ClickHouse in batches.
type Sink struct {
	conn clickhouse.Conn
	log  logrus.FieldLogger

	mu  sync.Mutex
	buf []row

	batchSize     int
	flushInterval time.Duration
	clock         func() time.Time
}

// Open connects to ClickHouse and verifies the connection with a ping.
func Open(cfg Config, log logrus.FieldLogger) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	return &Sink{
		conn:          conn,
		log:           log,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		clock:         time.Now,
	}, nil
}

// Write buffers one event row. A full buffer flushes in the background
// so the tracking path never waits on ClickHouse.
func (s *Sink) Write(ctx context.Context, name string, attributes map[string]string) {
	attrs, err := json.Marshal(attributes)
	if err != nil {
		s.log.Warnf("warehouse: drop event %s: %v", name, err)
		return
	}

	s.mu.Lock()
	s.buf = append(s.buf, row{
		name:   name,
		screen: attributes[domain.AttrScreenName],
		attrs:  string(attrs),
		at:     s.clock().UTC(),
	})
	var batch []row
	if len(s.buf) >= s.batchSize {
		batch = s.buf
		s.buf = nil
	}
	s.mu.Unlock()

	if batch != nil {
		go s.flush(batch)
	}
}

// Run flushes buffered rows on an interval until the context is
// cancelled, then flushes the remainder.
func (s *Sink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flushPending()
			return
		case <-ticker.C:
			s.flushPending()
		}
	}
}

// Ping reports whether ClickHouse is reachable.
func (s *Sink) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close flushes the remainder and closes the connection.
func (s *Sink) Close() error {
	s.flushPending()
	return s.conn.Close()
}

func (s *Sink) flushPending() {
	s.mu.Lock()
	batch := s.buf
	s.buf = nil
	s.mu.Unlock()

	if len(batch) > 0 {
		s.flush(batch)
	}
}

// flush sends one batch. Failed batches are dropped: the warehouse is
// a copy, not the system of record.
func (s *Sink) flush(rows []row) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx, insertScreenEvents)
	if err != nil {
		s.log.Warnf("warehouse: prepare batch: %v (%d rows dropped)", err, len(rows))
		return
	}
	for _, r := range rows {
		if err := batch.Append(r.name, r.screen, r.attrs, r.at); err != nil {
			s.log.Warnf("warehouse: append row: %v", err)
		}
	}
	if err := batch.Send(); err != nil {
		s.log.Warnf("warehouse: send batch: %v (%d rows dropped)", err, len(rows))
		return
	}
	s.log.Debugf("warehouse: flushed %d rows", len(rows))
}
