package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shortly/internal/domain"
	"shortly/internal/metrics"
	"shortly/internal/repository"

	"github.com/redis/go-redis/v9"
)

// Store is a repository.KVStore backed by one Redis node.
// GET, SET and INCR map one to one onto Redis commands, so the key layout
// stays compatible with existing deployments.
type Store struct {
	client *redis.Client
	role   string
}

// NewStore wraps client as a KVStore node acting in role.
func NewStore(client *redis.Client, role string) *Store {
	return &Store{
		client: client,
		role:   role,
	}
}

// Get returns the string at key; redis.Nil is reported as not found.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	done := s.observe("get")

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		done(nil)
		return "", false, nil
	}
	done(err)
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}

	return val, true, nil
}

// Set stores value at key with no expiry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	done := s.observe("set")

	err := s.client.Set(ctx, key, value, 0).Err()
	done(err)
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Incr runs INCR, which is atomic on the server.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	done := s.observe("incr")

	n, err := s.client.Incr(ctx, key).Result()
	done(err)
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}

	return n, nil
}

// Addr returns the node address (host:port).
func (s *Store) Addr() string {
	return s.client.Options().Addr
}

// Client exposes the underlying client, e.g. for the rate limiter.
func (s *Store) Client() *redis.Client {
	return s.client
}

// observe starts a latency measurement for op; the returned func records it.
func (s *Store) observe(op string) func(err error) {
	start := time.Now()
	return func(err error) {
		metrics.StoreOperationDuration.WithLabelValues(op, s.role).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.StoreErrorsTotal.WithLabelValues(op, s.role).Inc()
		}
	}
}

// ClientOptions holds the connection settings shared by every node.
type ClientOptions struct {
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// InitRedis creates a client for addr and checks it answers PING.
func InitRedis(ctx context.Context, addr string, opts ClientOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,

		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		MaxRetries:   -1, // no client-side retries: failures surface immediately
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	pingTimeout := opts.DialTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: failed to connect to Redis at %s: %w", domain.ErrStoreUnavailable, addr, err)
	}

	return client, nil
}

// OpenCluster connects to the write node and every read node and returns the
// resulting topology. A read node with the same address as the write node
// (or as another read node) shares its client. The returned close function
// closes every client once.
func OpenCluster(ctx context.Context, writeNode string, readNodes []string, opts ClientOptions) (*repository.Cluster, func() error, error) {
	if len(readNodes) == 0 {
		return nil, nil, domain.ErrNoReplicas
	}

	clients := make(map[string]*redis.Client, len(readNodes)+1)
	closeAll := func() error {
		var errs []error
		for _, c := range clients {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	connect := func(addr string) (*redis.Client, error) {
		if c, ok := clients[addr]; ok {
			return c, nil
		}
		c, err := InitRedis(ctx, addr, opts)
		if err != nil {
			return nil, err
		}
		clients[addr] = c
		return c, nil
	}

	wc, err := connect(writeNode)
	if err != nil {
		_ = closeAll()
		return nil, nil, err
	}
	writer := NewStore(wc, repository.RoleWrite)

	readers := make([]repository.KVStore, 0, len(readNodes))
	for _, addr := range readNodes {
		rc, err := connect(addr)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		readers = append(readers, NewStore(rc, repository.RoleRead))
	}

	cluster, err := repository.NewCluster(writer, readers...)
	if err != nil {
		_ = closeAll()
		return nil, nil, err
	}

	return cluster, closeAll, nil
}
