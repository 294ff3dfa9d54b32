package repository

import (
	"context"

	"shortly/internal/domain"
)

// KVStore is the subset of a key-value store the engine consumes.
// One KVStore is one node: the authoritative writer or a read replica.
//
// Implementations must make Incr atomic at the store level. The engine never
// does read-modify-write on its own, it relies on Incr for the sequence
// counter and for click counts.
type KVStore interface {
	// Get returns the value stored at key.
	// A missing key is reported as found == false with a nil error.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set stores value at key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Incr atomically increments the integer at key and returns the new value.
	// A missing key is created at 1.
	Incr(ctx context.Context, key string) (int64, error)

	// Addr identifies the node (host:port, DSN host, ...) for logs and metrics.
	Addr() string
}

// Node roles, used as the "role" label on store metrics.
const (
	RoleWrite = "write"
	RoleRead  = "read"
)

// Key naming scheme. These must match existing deployments exactly.
const (
	targetPrefix     = "url-target:"
	reversePrefix    = "reverse-url:"
	clickCountPrefix = "click-count:"

	// SequenceKey holds the global counter identifiers are minted from.
	SequenceKey = "last-url-id"
)

// TargetKey is the key holding the target URL of a short identifier.
func TargetKey(id string) string { return targetPrefix + id }

// ReverseKey is the key holding the identifier already minted for a URL.
func ReverseKey(url string) string { return reversePrefix + url }

// ClickCountKey is the key holding the click counter of a short identifier.
func ClickCountKey(id string) string { return clickCountPrefix + id }

// Cluster is the fixed store topology: one authoritative write node and a
// non-empty, ordered set of read replicas. It is immutable after NewCluster.
type Cluster struct {
	writer  KVStore
	readers []KVStore
}

// NewCluster builds a Cluster. It fails with domain.ErrNoReplicas when no
// read node is given. The writer may also appear among the readers.
func NewCluster(writer KVStore, readers ...KVStore) (*Cluster, error) {
	if len(readers) == 0 {
		return nil, domain.ErrNoReplicas
	}

	// Copy so later changes to the caller's slice cannot leak in.
	rs := make([]KVStore, len(readers))
	copy(rs, readers)

	return &Cluster{writer: writer, readers: rs}, nil
}

// Writer returns the authoritative write node.
func (c *Cluster) Writer() KVStore {
	return c.writer
}

// Readers returns the read replicas in configuration order.
// The returned slice must not be modified.
func (c *Cluster) Readers() []KVStore {
	return c.readers
}
