package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Store is an in-process KVStore backed by a map.
// It is used for local development (STORE_BACKEND=memory) and tests, where a
// single instance plays both the write node and the only read replica.
type Store struct {
	mu   sync.Mutex
	data map[string]string
	name string
}

// NewStore creates an empty in-memory store identified by name.
func NewStore(name string) *Store {
	return &Store{
		data: make(map[string]string),
		name: name,
	}
}

// Get returns the value at key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.data[key]
	return val, ok, nil
}

// Set stores value at key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Incr increments the decimal integer at key under the store lock.
// Like Redis, it fails if the existing value is not an integer.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if val, ok := s.data[key]; ok {
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %q is not an integer", key)
		}
		n = parsed
	}
	n++
	s.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

// Addr returns the name the store was created with.
func (s *Store) Addr() string {
	return s.name
}

// Len returns the number of keys held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
