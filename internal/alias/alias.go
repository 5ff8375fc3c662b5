// Package alias implements the AliasDirectory of spec.md §3/§6/§9: the
// process-wide, mutated-only-by-add/remove/set-default registry binding a
// caller-chosen alias name to a configured backend, its connection pool,
// its single-writer worker, and its optional cache. Grounded on the
// teacher's internal/config's load-then-validate shape for DatabaseConfig,
// and on pkg/client/client.go's per-collection pool/worker pairing,
// generalized here from "one pool for sqlite" to "one pool+worker pair per
// alias across four backend kinds."
package alias

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/quickdb/quickdb/internal/adapter"
	mongoadapter "github.com/quickdb/quickdb/internal/adapter/mongo"
	"github.com/quickdb/quickdb/internal/adapter/mysql"
	"github.com/quickdb/quickdb/internal/adapter/postgres"
	"github.com/quickdb/quickdb/internal/adapter/sqlite"
	"github.com/quickdb/quickdb/internal/cache"
	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/logging"
	"github.com/quickdb/quickdb/internal/pool"
	"github.com/quickdb/quickdb/internal/valuedomain"
	"github.com/quickdb/quickdb/internal/worker"

	"github.com/jackc/pgx/v5/pgxpool"
)

// mongoadapter is internal/adapter/mongo, imported under an alias so its
// package name does not read as the MongoDB driver's own "mongo" package;
// this file does not import the driver itself.

// Kind is the DatabaseConfig.kind discriminant of spec.md §6.
type Kind string

const (
	KindSqlite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
	KindMySQL    Kind = "mysql"
	KindMongo    Kind = "mongo"
)

// SqliteConnection is the SQLite connection variant of spec.md §6.
type SqliteConnection struct {
	Path            string
	CreateIfMissing bool
}

// SQLConnection is the shared Postgres/MySQL connection variant of
// spec.md §6.
type SQLConnection struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	TLS      bool
}

// MongoAuth carries optional credential-based auth for a Mongo connection.
type MongoAuth struct {
	Username string
	Password string
}

// MongoConnection is the MongoDB connection variant of spec.md §6.
type MongoConnection struct {
	Host             string
	Port             int
	Database         string
	Auth             *MongoAuth
	AuthSource       string
	DirectConnection bool
	TLS              bool
	Compression      string
}

// DatabaseConfig is the caller-constructed configuration of spec.md §6:
// `{ kind, connection, pool, cache?, alias, id_strategy }`. Connection must
// hold the variant matching Kind (SqliteConnection, SQLConnection, or
// MongoConnection) — AddDatabase rejects any mismatch with ConfigError.
type DatabaseConfig struct {
	Alias      string
	Kind       Kind
	Connection any
	Pool       pool.Config
	Cache      *cache.Config // nil disables caching for this alias entirely
	IDStrategy valuedomain.IdStrategy

	// QueueCapacity is the worker's soft cap (spec.md §5 "Backpressure").
	// Zero uses worker.New's own default.
	QueueCapacity int
}

// Info is the read-only snapshot of an Alias entry returned by ListAliases,
// matching the `Alias entry` fields of spec.md §3 minus the live handles.
type Info struct {
	Name       string
	Kind       Kind
	IDStrategy valuedomain.IdStrategy
	CreatedAt  time.Time
	IsDefault  bool
}

// handle is the backend-kind-erased view of one alias's pool+worker pairing.
// Each concrete backend instantiates sqlHandle[C] with its own connection
// type C; handle lets Directory hold them all in one map without a type
// parameter of its own.
type handle interface {
	backendKind() string
	submit(ctx context.Context, req *worker.Request) worker.Response
	submitBatch(ctx context.Context, reqs []*worker.Request) []worker.Response
	poolStats() pool.Stats
	close()
}

type sqlHandle[C any] struct {
	backend adapter.Backend
	pool    *pool.Pool[C]
	worker  *worker.Worker[C]
}

func (h *sqlHandle[C]) backendKind() string { return h.backend.Kind() }
func (h *sqlHandle[C]) submit(ctx context.Context, req *worker.Request) worker.Response {
	return h.worker.Submit(ctx, req)
}
func (h *sqlHandle[C]) submitBatch(ctx context.Context, reqs []*worker.Request) []worker.Response {
	return h.worker.SubmitBatch(ctx, reqs)
}
func (h *sqlHandle[C]) poolStats() pool.Stats { return h.pool.Stats() }
func (h *sqlHandle[C]) close() {
	h.worker.Stop()
	h.pool.Close()
}

// Alias is one entry of the AliasDirectory (spec.md §3). Its handle fields
// are unexported; callers reach the backend only through Submit/SubmitBatch,
// matching spec.md §4.5's "the pool is never exposed outside the core;
// callers reach backends only via the worker."
type Alias struct {
	Name       string
	Kind       Kind
	IDStrategy valuedomain.IdStrategy
	CreatedAt  time.Time
	IsDefault  bool

	backend adapter.Backend
	h       handle
	cache   *cache.Cache // nil if this alias has caching disabled
}

// Backend exposes the adapter's Kind() and JsonContains support matrix to
// callers (e.g. the Facade's operator validation) without leaking conn.
func (a *Alias) Backend() adapter.Backend { return a.backend }

// Submit dispatches req through this alias's single-writer worker.
func (a *Alias) Submit(ctx context.Context, req *worker.Request) worker.Response {
	return a.h.submit(ctx, req)
}

// SubmitBatch dispatches reqs concurrently through this alias's worker.
func (a *Alias) SubmitBatch(ctx context.Context, reqs []*worker.Request) []worker.Response {
	return a.h.submitBatch(ctx, reqs)
}

// PoolStats snapshots this alias's connection pool occupancy.
func (a *Alias) PoolStats() pool.Stats { return a.h.poolStats() }

// Cache returns this alias's cache, or nil if caching is disabled for it.
func (a *Alias) Cache() *cache.Cache { return a.cache }

func (a *Alias) info() Info {
	return Info{Name: a.Name, Kind: a.Kind, IDStrategy: a.IDStrategy, CreatedAt: a.CreatedAt, IsDefault: a.IsDefault}
}

// Directory is the AliasDirectory of spec.md §3/§9: a process-wide
// singleton (in this module, caller-constructed once and threaded through
// the Facade) mutated only by AddDatabase/RemoveDatabase/SetDefaultAlias,
// read by every Facade operation under a reader-writer discipline with
// priority to readers — sync.RWMutex's own semantics (spec.md §5).
type Directory struct {
	mu          sync.RWMutex
	aliases     map[string]*Alias
	defaultName string
	sink        logging.EventSink
}

// NewDirectory constructs an empty AliasDirectory.
func NewDirectory(sink logging.EventSink) *Directory {
	if sink == nil {
		sink = logging.NopSink{}
	}
	return &Directory{aliases: make(map[string]*Alias), sink: sink}
}

// AddDatabase registers a new alias per spec.md §6's add_database(config).
// The first alias ever added becomes the default automatically; later
// additions keep the existing default until SetDefaultAlias is called
// (an Open Question spec.md §9 leaves unresolved — this module's concrete
// choice, recorded in DESIGN.md).
func (d *Directory) AddDatabase(ctx context.Context, cfg DatabaseConfig) error {
	if cfg.Alias == "" {
		return errs.New(errs.KindConfigError, "alias name must not be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.aliases[cfg.Alias]; exists {
		return errs.New(errs.KindAliasExists, fmt.Sprintf("alias %q already registered", cfg.Alias)).WithCollection(cfg.Alias)
	}

	entry, err := buildAlias(ctx, cfg, d.sink)
	if err != nil {
		return err
	}
	entry.CreatedAt = time.Now()
	if d.defaultName == "" {
		entry.IsDefault = true
		d.defaultName = cfg.Alias
	}

	d.aliases[cfg.Alias] = entry
	d.sink.Info("alias registered", "alias", cfg.Alias, "kind", cfg.Kind)
	return nil
}

// RemoveDatabase drains the alias's worker, closes its pool, and flushes
// its cache, per spec.md §3's Alias entry lifecycle and spec.md §4.7's
// shutdown contract.
func (d *Directory) RemoveDatabase(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.aliases[name]
	if !ok {
		return errs.New(errs.KindAliasNotFound, fmt.Sprintf("alias %q not found", name))
	}

	entry.h.close()
	if entry.cache != nil {
		entry.cache.Clear()
		entry.cache.Close()
	}
	delete(d.aliases, name)

	if d.defaultName == name {
		d.defaultName = ""
	}
	d.sink.Info("alias removed", "alias", name)
	return nil
}

// SetDefaultAlias mutates the AliasDirectory's default pointer, per
// spec.md §3's Alias entry lifecycle ("mutated only by set_default_alias").
func (d *Directory) SetDefaultAlias(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.aliases[name]
	if !ok {
		return errs.New(errs.KindAliasNotFound, fmt.Sprintf("alias %q not found", name))
	}
	if prev, ok := d.aliases[d.defaultName]; ok {
		prev.IsDefault = false
	}
	entry.IsDefault = true
	d.defaultName = name
	return nil
}

// ListAliases returns a read-only snapshot of every registered alias.
func (d *Directory) ListAliases() []Info {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Info, 0, len(d.aliases))
	for _, a := range d.aliases {
		out = append(out, a.info())
	}
	return out
}

// Resolve looks up an alias by name, or the current default when name is
// empty. Every Facade operation calls this before enqueueing work.
func (d *Directory) Resolve(name string) (*Alias, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if name == "" {
		name = d.defaultName
	}
	if name == "" {
		return nil, errs.New(errs.KindAliasNotFound, "no default alias configured")
	}
	entry, ok := d.aliases[name]
	if !ok {
		return nil, errs.New(errs.KindAliasNotFound, fmt.Sprintf("alias %q not found", name))
	}
	return entry, nil
}

// CacheStats returns the cache snapshot for name, or a zero Stats if
// caching is disabled for that alias.
func (d *Directory) CacheStats(name string) (cache.Stats, error) {
	a, err := d.Resolve(name)
	if err != nil {
		return cache.Stats{}, err
	}
	if a.cache == nil {
		return cache.Stats{}, nil
	}
	return a.cache.Stats(), nil
}

// ClearCache empties one alias's cache without affecting its hit/miss
// counters, per spec.md §6's cache introspection surface.
func (d *Directory) ClearCache(name string) error {
	a, err := d.Resolve(name)
	if err != nil {
		return err
	}
	if a.cache != nil {
		a.cache.Clear()
	}
	return nil
}

// ClearAllCaches empties every registered alias's cache.
func (d *Directory) ClearAllCaches() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, a := range d.aliases {
		if a.cache != nil {
			a.cache.Clear()
		}
	}
}

// buildAlias constructs the pool, worker, backend, and optional cache for
// one DatabaseConfig, dispatching on Kind. Each branch instantiates
// sqlHandle[C] with the connection type C native to that backend.
func buildAlias(ctx context.Context, cfg DatabaseConfig, sink logging.EventSink) (*Alias, error) {
	switch cfg.Kind {
	case KindSqlite:
		return buildSqliteAlias(ctx, cfg, sink)
	case KindPostgres:
		return buildPostgresAlias(ctx, cfg, sink)
	case KindMySQL:
		return buildMySQLAlias(ctx, cfg, sink)
	case KindMongo:
		return buildMongoAlias(ctx, cfg, sink)
	default:
		return nil, errs.New(errs.KindConfigError, fmt.Sprintf("unknown database kind %q", cfg.Kind))
	}
}

func buildSqliteAlias(ctx context.Context, cfg DatabaseConfig, sink logging.EventSink) (*Alias, error) {
	conn, ok := cfg.Connection.(SqliteConnection)
	if !ok {
		return nil, errs.New(errs.KindConfigError, "sqlite database requires a SqliteConnection")
	}
	backend := sqlite.New()

	p, err := pool.New(ctx, cfg.Alias, cfg.Pool,
		func(ctx context.Context) (*sql.DB, error) { return sqlite.Open(conn.Path) },
		func(ctx context.Context, db *sql.DB) error { return db.PingContext(ctx) },
		func(db *sql.DB) error { return db.Close() },
		sink,
	)
	if err != nil {
		return nil, err
	}
	w := worker.New(cfg.Alias, backend, p, sink, cfg.QueueCapacity)
	return finishAlias(cfg, backend, &sqlHandle[*sql.DB]{backend: backend, pool: p, worker: w}, sink)
}

func buildPostgresAlias(ctx context.Context, cfg DatabaseConfig, sink logging.EventSink) (*Alias, error) {
	conn, ok := cfg.Connection.(SQLConnection)
	if !ok {
		return nil, errs.New(errs.KindConfigError, "postgres database requires a SQLConnection")
	}
	backend := postgres.New()
	url := postgresURL(conn)

	p, err := pool.New(ctx, cfg.Alias, cfg.Pool,
		func(ctx context.Context) (*pgxpool.Pool, error) { return postgres.Connect(ctx, url) },
		func(ctx context.Context, db *pgxpool.Pool) error { return db.Ping(ctx) },
		func(db *pgxpool.Pool) error { db.Close(); return nil },
		sink,
	)
	if err != nil {
		return nil, err
	}
	w := worker.New(cfg.Alias, backend, p, sink, cfg.QueueCapacity)
	return finishAlias(cfg, backend, &sqlHandle[*pgxpool.Pool]{backend: backend, pool: p, worker: w}, sink)
}

func buildMySQLAlias(ctx context.Context, cfg DatabaseConfig, sink logging.EventSink) (*Alias, error) {
	conn, ok := cfg.Connection.(SQLConnection)
	if !ok {
		return nil, errs.New(errs.KindConfigError, "mysql database requires a SQLConnection")
	}
	backend := mysql.New()
	dsn := mysqlDSN(conn)

	p, err := pool.New(ctx, cfg.Alias, cfg.Pool,
		func(ctx context.Context) (*sql.DB, error) { return mysql.Open(dsn) },
		func(ctx context.Context, db *sql.DB) error { return db.PingContext(ctx) },
		func(db *sql.DB) error { return db.Close() },
		sink,
	)
	if err != nil {
		return nil, err
	}
	w := worker.New(cfg.Alias, backend, p, sink, cfg.QueueCapacity)
	return finishAlias(cfg, backend, &sqlHandle[*sql.DB]{backend: backend, pool: p, worker: w}, sink)
}

func buildMongoAlias(ctx context.Context, cfg DatabaseConfig, sink logging.EventSink) (*Alias, error) {
	conn, ok := cfg.Connection.(MongoConnection)
	if !ok {
		return nil, errs.New(errs.KindConfigError, "mongo database requires a MongoConnection")
	}
	backend := mongoadapter.New()
	uri := mongoURI(conn)

	p, err := pool.New(ctx, cfg.Alias, cfg.Pool,
		func(ctx context.Context) (mongoadapter.Conn, error) {
			client, err := mongoadapter.Connect(ctx, uri)
			if err != nil {
				return mongoadapter.Conn{}, err
			}
			return mongoadapter.Conn{Client: client, Database: conn.Database}, nil
		},
		func(ctx context.Context, c mongoadapter.Conn) error { return c.Client.Ping(ctx, nil) },
		func(c mongoadapter.Conn) error { return c.Client.Disconnect(context.Background()) },
		sink,
	)
	if err != nil {
		return nil, err
	}

	w := worker.New(cfg.Alias, backend, p, sink, cfg.QueueCapacity)
	return finishAlias(cfg, backend, &sqlHandle[mongoadapter.Conn]{backend: backend, pool: p, worker: w}, sink)
}

func finishAlias(cfg DatabaseConfig, backend adapter.Backend, h handle, sink logging.EventSink) (*Alias, error) {
	var c *cache.Cache
	if cfg.Cache != nil {
		built, err := cache.New(cfg.Alias, *cfg.Cache, sink)
		if err != nil {
			h.close()
			return nil, err
		}
		c = built
	}
	return &Alias{
		Name:       cfg.Alias,
		Kind:       cfg.Kind,
		IDStrategy: cfg.IDStrategy,
		backend:    backend,
		h:          h,
		cache:      c,
	}, nil
}

func postgresURL(c SQLConnection) string {
	scheme := "postgres"
	sslmode := "disable"
	if c.TLS {
		sslmode = "require"
	}
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s?sslmode=%s", scheme, c.Username, c.Password, c.Host, c.Port, c.Database, sslmode)
}

func mysqlDSN(c SQLConnection) string {
	tls := "false"
	if c.TLS {
		tls = "true"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=%s", c.Username, c.Password, c.Host, c.Port, c.Database, tls)
}

func mongoURI(c MongoConnection) string {
	scheme := "mongodb"
	cred := ""
	if c.Auth != nil {
		cred = fmt.Sprintf("%s:%s@", c.Auth.Username, c.Auth.Password)
	}
	uri := fmt.Sprintf("%s://%s%s:%d/%s", scheme, cred, c.Host, c.Port, c.Database)

	params := make([]string, 0, 3)
	if c.AuthSource != "" {
		params = append(params, "authSource="+c.AuthSource)
	}
	if c.DirectConnection {
		params = append(params, "directConnection=true")
	}
	if c.Compression != "" {
		params = append(params, "compressors="+c.Compression)
	}
	if c.TLS {
		params = append(params, "tls=true")
	}
	if len(params) > 0 {
		uri += "?"
		for i, p := range params {
			if i > 0 {
				uri += "&"
			}
			uri += p
		}
	}
	return uri
}
