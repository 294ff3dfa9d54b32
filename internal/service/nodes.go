package service

import (
	"fmt"
	"log/slog"

	"shortly/internal/domain"
	"shortly/internal/replica"
	"shortly/internal/repository"
	"shortly/pkg/logger"
)

// nodes is the read/write split shared by Registry and ClickTracker:
// every write goes to the cluster writer, every read to a picked replica.
type nodes struct {
	cluster *repository.Cluster
	picker  replica.Picker
	logger  *slog.Logger
}

func newNodes(cluster *repository.Cluster, picker replica.Picker, log *slog.Logger) nodes {
	if picker == nil {
		picker = replica.NewRandomPicker(nil)
	}
	if log == nil {
		log = logger.Discard()
	}
	return nodes{cluster: cluster, picker: picker, logger: log}
}

func (n nodes) writer() repository.KVStore {
	return n.cluster.Writer()
}

// reader picks the replica for a single read.
func (n nodes) reader() (repository.KVStore, error) {
	h, err := n.picker.Pick(n.cluster.Readers())
	if err != nil {
		return nil, err
	}
	n.logger.Debug("using read replica", "node", h.Addr())
	return h, nil
}

// storeErr wraps a failed store call so callers can match
// domain.ErrStoreUnavailable while keeping the cause.
func storeErr(op, key string, node repository.KVStore, err error) error {
	return fmt.Errorf("%w: %s %q on %s: %w", domain.ErrStoreUnavailable, op, key, node.Addr(), err)
}
