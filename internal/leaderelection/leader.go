// Package leaderelection elects the instance that runs the singleton
// duties: spool reconciliation and the daily engagement report.
//
// Election rides on a single Postgres session-scoped advisory lock. The
// lock belongs to one dedicated database connection and is never
// renewed; there is no TTL. When the connection dies, Postgres releases
// the lock server-side on its own schedule (TCP keepalive timing), and
// some other instance wins the next attempt.
//
// The heartbeat ping only detects local connection death so a leader
// stops its duties promptly. It does not extend the lock.
package leaderelection

import (
	"context"
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"
)

// Leadership loss reasons, used in logs and as metric labels.
const (
	reasonShutdown = "shutdown"
	reasonConnLost = "conn_lost"
)

// MetricsSink receives leader election metrics. Implementations must
// not block.
type MetricsSink interface {
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Config carries the elector's tuning and term callbacks.
type Config struct {
	LockKey           int64
	RetryInterval     time.Duration // follower: pause between lock attempts
	HeartbeatInterval time.Duration // leader: pause between connection pings

	// OnElected runs in its own goroutine when the lock is won. Its
	// context is cancelled when the term ends; it should start the
	// singleton duties and return.
	OnElected func(ctx context.Context)

	// OnDemoted runs synchronously after the duty context is cancelled
	// and must block until the duties have fully stopped. It is called
	// once per term.
	OnDemoted func()
}

// Elector competes for the advisory lock and runs the term callbacks.
type Elector struct {
	cfg     Config
	db      *sql.DB
	log     logrus.FieldLogger
	metrics MetricsSink
}

func New(cfg Config, db *sql.DB, log logrus.FieldLogger) *Elector {
	return &Elector{cfg: cfg, db: db, log: log}
}

// WithMetrics attaches a metrics sink to the elector.
func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

// Run competes for leadership until ctx is cancelled. Between terms and
// after failed attempts it waits RetryInterval before trying again.
func (e *Elector) Run(ctx context.Context) {
	e.log.Infof("leader: election loop starting (lock_key=%d, retry=%s, heartbeat=%s)",
		e.cfg.LockKey, e.cfg.RetryInterval, e.cfg.HeartbeatInterval)

	for ctx.Err() == nil {
		if reason := e.campaign(ctx); reason != "" && ctx.Err() == nil {
			e.log.Warnf("leader: leadership lost (reason=%s), next attempt in %s", reason, e.cfg.RetryInterval)
		}

		select {
		case <-ctx.Done():
		case <-time.After(e.cfg.RetryInterval):
		}
	}

	e.log.Info("leader: election loop stopped")
}

// campaign makes one non-blocking attempt at the lock. If the lock is
// won it holds the term until ctx ends or the dedicated connection
// dies, and returns the reason the term ended. An empty reason means
// the lock was never held.
func (e *Elector) campaign(ctx context.Context) string {
	// The lock is session-scoped: it lives and dies with this one
	// connection, so it cannot come from the pool at large.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		e.log.Errorf("leader: dedicated connection unavailable: %v", err)
		return ""
	}
	defer conn.Close()

	var won bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", e.cfg.LockKey).Scan(&won); err != nil {
		e.log.Errorf("leader: advisory lock attempt failed: %v", err)
		return ""
	}
	if !won {
		e.log.Debugf("leader: lock %d held elsewhere", e.cfg.LockKey)
		return ""
	}

	e.log.Infof("leader: won advisory lock %d", e.cfg.LockKey)
	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(true)
		e.metrics.LeaderAcquired()
	}

	dutyCtx, stopDuties := context.WithCancel(ctx)
	go e.cfg.OnElected(dutyCtx)

	reason := e.watchConn(ctx, conn)

	stopDuties()
	e.cfg.OnDemoted()

	if e.metrics != nil {
		e.metrics.LeaderStatusChanged(false)
		e.metrics.LeaderLost(reason)
	}

	e.log.Infof("leader: term over, releasing advisory lock %d (reason=%s)", e.cfg.LockKey, reason)
	return reason
}

// watchConn pings the lock's connection until ctx ends or a ping
// fails, and names what ended the term.
func (e *Elector) watchConn(ctx context.Context, conn *sql.Conn) string {
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return reasonShutdown
		case <-ticker.C:
			if err := conn.PingContext(ctx); err != nil {
				if ctx.Err() != nil {
					return reasonShutdown
				}
				e.log.Warnf("leader: heartbeat ping failed: %v", err)
				return reasonConnLost
			}
		}
	}
}
