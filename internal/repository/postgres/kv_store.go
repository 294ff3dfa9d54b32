package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"shortly/internal/domain"
	"shortly/internal/metrics"
	"shortly/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// kvStore is a repository.KVStore over a single PostgreSQL table.
// It lets the engine run on a primary with streaming-replication standbys:
// the primary is the write node and each standby a read replica.
//
// Schema:
//
//	kv(key TEXT PRIMARY KEY, value TEXT NOT NULL)
//
// Values are stored as text so counters read back exactly as Redis would
// return them ("42").
type kvStore struct {
	db   *pgxpool.Pool
	role string
}

// NewKVStore wraps a connection pool as a KVStore node acting in role.
func NewKVStore(db *pgxpool.Pool, role string) repository.KVStore {
	return &kvStore{db: db, role: role}
}

// Get returns the value at key; no row means not found.
func (s *kvStore) Get(ctx context.Context, key string) (string, bool, error) {
	done := s.observe("get")

	var value string
	err := s.db.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		done(nil)
		return "", false, nil
	}
	done(err)
	if err != nil {
		return "", false, fmt.Errorf("failed to get key: %w", err)
	}

	return value, true, nil
}

// Set upserts value at key.
func (s *kvStore) Set(ctx context.Context, key, value string) error {
	done := s.observe("set")

	query := `
		INSERT INTO kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`

	_, err := s.db.Exec(ctx, query, key, value)
	done(err)
	if err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	return nil
}

// Incr increments the counter at key in one statement.
// The upsert takes the row lock, so concurrent increments serialize on the
// server the same way Redis INCR does.
func (s *kvStore) Incr(ctx context.Context, key string) (int64, error) {
	done := s.observe("incr")

	query := `
		INSERT INTO kv (key, value) VALUES ($1, '1')
		ON CONFLICT (key) DO UPDATE SET value = (kv.value::bigint + 1)::text
		RETURNING value::bigint
	`

	var n int64
	err := s.db.QueryRow(ctx, query, key).Scan(&n)
	done(err)
	if err != nil {
		return 0, fmt.Errorf("failed to increment key: %w", err)
	}

	return n, nil
}

// Addr returns host:port of the node the pool connects to.
func (s *kvStore) Addr() string {
	cc := s.db.Config().ConnConfig
	return net.JoinHostPort(cc.Host, strconv.Itoa(int(cc.Port)))
}

func (s *kvStore) observe(op string) func(err error) {
	start := time.Now()
	return func(err error) {
		metrics.StoreOperationDuration.WithLabelValues(op, s.role).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.StoreErrorsTotal.WithLabelValues(op, s.role).Inc()
		}
	}
}

// EnsureSchema creates the kv table on the write node if it is missing.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`

	if _, err := db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	return nil
}

// PoolOptions holds the pool settings shared by every node.
type PoolOptions struct {
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
}

// InitDB creates a connection pool for dsn and pings it.
func InitDB(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse database config: %w", domain.ErrInvalidNodeAddress, err)
	}

	if opts.MaxConns > 0 {
		config.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		config.MinConns = int32(opts.MinConns)
	}
	if opts.ConnMaxLifetime > 0 {
		config.MaxConnLifetime = opts.ConnMaxLifetime
	}
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create connection pool: %w", domain.ErrStoreUnavailable, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", domain.ErrStoreUnavailable, err)
	}

	return pool, nil
}

// OpenCluster connects to the primary (writeDSN) and each standby (readDSNs),
// creates the schema on the primary and returns the topology. Identical DSNs
// share one pool. The returned close function closes every pool.
func OpenCluster(ctx context.Context, writeDSN string, readDSNs []string, opts PoolOptions) (*repository.Cluster, func(), error) {
	if len(readDSNs) == 0 {
		return nil, nil, domain.ErrNoReplicas
	}

	pools := make(map[string]*pgxpool.Pool, len(readDSNs)+1)
	closeAll := func() {
		for _, p := range pools {
			p.Close()
		}
	}

	connect := func(dsn string) (*pgxpool.Pool, error) {
		if p, ok := pools[dsn]; ok {
			return p, nil
		}
		p, err := InitDB(ctx, dsn, opts)
		if err != nil {
			return nil, err
		}
		pools[dsn] = p
		return p, nil
	}

	primary, err := connect(writeDSN)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if err := EnsureSchema(ctx, primary); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	readers := make([]repository.KVStore, 0, len(readDSNs))
	for _, dsn := range readDSNs {
		p, err := connect(dsn)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		readers = append(readers, NewKVStore(p, repository.RoleRead))
	}

	cluster, err := repository.NewCluster(NewKVStore(primary, repository.RoleWrite), readers...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	return cluster, closeAll, nil
}
