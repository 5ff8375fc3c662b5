// Package pool implements ConnectionPool (spec.md §4.5): a per-alias pool
// of backend connections with min/max sizes, idle/lifetime eviction,
// acquire timeout, retries, and keepalive probes. Grounded on the teacher's
// internal/db/db.go:ConnectPostgres (config parsing, Ping-on-connect,
// structured-log on success) and internal/db/db.go's retry-with-backoff
// shape, generalized from "wrap pgx's own pool" to "the ODM's own pool
// wraps any backend-specific connection type," since SQLite and MySQL
// (both database/sql-based) and MongoDB need the spec's own
// idle/lifetime/keepalive machinery that pgxpool and mongo.Client already
// provide natively for Postgres.
package pool

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/logging"
)

// Config mirrors spec.md §4.5's parameter list verbatim. All durations are
// seconds except RetryInterval, which is milliseconds.
type Config struct {
	MinConns            int
	MaxConns            int
	AcquireTimeoutSecs  int
	IdleTimeoutSecs     int
	MaxLifetimeSecs     int
	MaxRetries          int
	RetryIntervalMillis int
	KeepaliveIntervalSecs int
	HealthCheckTimeoutSecs int
}

// DefaultConfig returns conservative defaults matching the teacher's own
// default-then-validate pattern in internal/config/config.go.
func DefaultConfig() Config {
	return Config{
		MinConns:               1,
		MaxConns:               10,
		AcquireTimeoutSecs:     5,
		IdleTimeoutSecs:        300,
		MaxLifetimeSecs:        3600,
		MaxRetries:             3,
		RetryIntervalMillis:    200,
		KeepaliveIntervalSecs:  30,
		HealthCheckTimeoutSecs: 2,
	}
}

// Conn wraps a backend-specific connection with the bookkeeping the pool
// needs to enforce idle/lifetime eviction.
type Conn[C any] struct {
	Value     C
	createdAt time.Time
	lastUsed  time.Time
}

// Factory creates a new backend connection. Ping issues a cheap liveness
// probe (e.g. SELECT 1). Closer releases the connection's resources.
type Factory[C any] func(ctx context.Context) (C, error)
type Pinger[C any] func(ctx context.Context, conn C) error
type Closer[C any] func(conn C) error

// Pool is the generic ConnectionPool of spec.md §4.5, parameterized over
// the backend-specific connection type C.
type Pool[C any] struct {
	cfg     Config
	factory Factory[C]
	pinger  Pinger[C]
	closer  Closer[C]
	sink    logging.EventSink
	alias   string

	mu      sync.Mutex
	idle    *list.List // of *Conn[C]
	numOpen int
	waiters *list.List // of chan struct{}

	closed     bool
	stopSweep  chan struct{}
	sweepOnce  sync.Once
}

// New constructs a Pool and opens MinConns eagerly, matching the teacher's
// eager-connect-then-ping pattern in ConnectPostgres/ConnectMongo.
func New[C any](ctx context.Context, alias string, cfg Config, factory Factory[C], pinger Pinger[C], closer Closer[C], sink logging.EventSink) (*Pool[C], error) {
	if sink == nil {
		sink = logging.NopSink{}
	}
	p := &Pool[C]{
		cfg:       cfg,
		factory:   factory,
		pinger:    pinger,
		closer:    closer,
		sink:      sink,
		alias:     alias,
		idle:      list.New(),
		waiters:   list.New(),
		stopSweep: make(chan struct{}),
	}

	for i := 0; i < cfg.MinConns; i++ {
		c, err := p.createWithRetry(ctx)
		if err != nil {
			return nil, err
		}
		p.idle.PushBack(c)
		p.numOpen++
	}

	go p.keepaliveLoop()

	p.sink.Info("connection pool established", "alias", alias, "min_conns", cfg.MinConns, "max_conns", cfg.MaxConns)
	return p, nil
}

func (p *Pool[C]) createWithRetry(ctx context.Context) (*Conn[C], error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		v, err := p.factory(ctx)
		if err == nil {
			now := time.Now()
			return &Conn[C]{Value: v, createdAt: now, lastUsed: now}, nil
		}
		lastErr = err
		p.sink.Warn("connection create attempt failed", "alias", p.alias, "attempt", attempt, "error", err)
		if attempt < p.cfg.MaxRetries {
			select {
			case <-time.After(time.Duration(p.cfg.RetryIntervalMillis) * time.Millisecond):
			case <-ctx.Done():
				return nil, errs.Wrap(errs.KindTransportError, "connection create cancelled", ctx.Err())
			}
		}
	}
	return nil, errs.Wrap(errs.KindTransportError, fmt.Sprintf("failed to create connection after %d retries", p.cfg.MaxRetries), lastErr)
}

// Acquire waits up to AcquireTimeoutSecs for an idle connection, creating a
// new one if under MaxConns, per spec.md §4.5.
func (p *Pool[C]) Acquire(ctx context.Context) (*Conn[C], error) {
	timeout := time.Duration(p.cfg.AcquireTimeoutSecs) * time.Second
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, errs.New(errs.KindTransportError, "pool closed")
		}

		if front := p.idle.Front(); front != nil {
			c := p.idle.Remove(front).(*Conn[C])
			p.mu.Unlock()

			if p.isStale(c) {
				p.closeConn(c)
				p.mu.Lock()
				p.numOpen--
				p.mu.Unlock()
				continue
			}
			return c, nil
		}

		if p.numOpen < p.cfg.MaxConns {
			p.numOpen++
			p.mu.Unlock()

			c, err := p.createWithRetry(deadlineCtx)
			if err != nil {
				p.mu.Lock()
				p.numOpen--
				p.mu.Unlock()
				return nil, err
			}
			return c, nil
		}
		p.mu.Unlock()

		select {
		case <-time.After(10 * time.Millisecond):
			continue
		case <-deadlineCtx.Done():
			return nil, errs.New(errs.KindPoolExhausted, fmt.Sprintf("no connection available for alias %q within %v", p.alias, timeout))
		}
	}
}

func (p *Pool[C]) isStale(c *Conn[C]) bool {
	now := time.Now()
	if p.cfg.MaxLifetimeSecs > 0 && now.Sub(c.createdAt) > time.Duration(p.cfg.MaxLifetimeSecs)*time.Second {
		return true
	}
	if p.cfg.IdleTimeoutSecs > 0 && now.Sub(c.lastUsed) > time.Duration(p.cfg.IdleTimeoutSecs)*time.Second {
		return true
	}
	return false
}

func (p *Pool[C]) closeConn(c *Conn[C]) {
	if p.closer == nil {
		return
	}
	if err := p.closer(c.Value); err != nil {
		p.sink.Warn("error closing connection", "alias", p.alias, "error", err)
	}
}

// Release returns conn to the idle pool.
func (p *Pool[C]) Release(conn *Conn[C]) {
	conn.lastUsed = time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.closeConn(conn)
		p.numOpen--
		return
	}
	p.idle.PushBack(conn)
}

// Discard closes conn instead of returning it to the pool — used when the
// adapter observes a transport error and wants the connection evicted
// rather than reused (spec.md §4.6 "Transport/connection errors are
// surfaced to the pool for possible connection-eviction").
func (p *Pool[C]) Discard(conn *Conn[C]) {
	p.mu.Lock()
	p.numOpen--
	p.mu.Unlock()
	p.closeConn(conn)
}

func (p *Pool[C]) keepaliveLoop() {
	if p.cfg.KeepaliveIntervalSecs <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(p.cfg.KeepaliveIntervalSecs) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopSweep:
			return
		case <-ticker.C:
			p.probeIdleConnections()
		}
	}
}

func (p *Pool[C]) probeIdleConnections() {
	p.mu.Lock()
	var toCheck []*list.Element
	for e := p.idle.Front(); e != nil; e = e.Next() {
		toCheck = append(toCheck, e)
	}
	p.mu.Unlock()

	for _, e := range toCheck {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		c, ok := e.Value.(*Conn[C])
		if !ok {
			p.mu.Unlock()
			continue
		}
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(p.cfg.HealthCheckTimeoutSecs)*time.Second)
		err := p.pinger(ctx, c.Value)
		cancel()

		if err != nil {
			p.sink.Warn("keepalive probe failed, evicting connection", "alias", p.alias, "error", err)
			p.mu.Lock()
			p.idle.Remove(e)
			p.numOpen--
			p.mu.Unlock()
			p.closeConn(c)
		}
	}
}

// Close drains and closes every pooled connection, per the alias teardown
// contract in spec.md §3 ("Alias entry" lifecycle: remove_database "closes
// pooled connections").
func (p *Pool[C]) Close() {
	p.sweepOnce.Do(func() { close(p.stopSweep) })

	p.mu.Lock()
	p.closed = true
	var toClose []*Conn[C]
	for e := p.idle.Front(); e != nil; e = e.Next() {
		toClose = append(toClose, e.Value.(*Conn[C]))
	}
	p.idle.Init()
	p.mu.Unlock()

	for _, c := range toClose {
		p.closeConn(c)
	}
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Open int
	Idle int
}

func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Open: p.numOpen, Idle: p.idle.Len()}
}
