package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"shortly/internal/metrics"
	"shortly/internal/replica"
	"shortly/internal/repository"
)

// ClickTracker counts visits per short identifier.
//
// The counter lives in the store under click-count:<id>. Increments use the
// store's atomic INCR on the write node, so concurrent visits never lose a
// count; reads go to a replica and may lag behind.
type ClickTracker struct {
	nodes nodes
}

// NewClickTracker creates a ClickTracker over cluster.
// A nil picker selects replicas uniformly at random; a nil logger discards.
func NewClickTracker(cluster *repository.Cluster, picker replica.Picker, logger *slog.Logger) *ClickTracker {
	return &ClickTracker{nodes: newNodes(cluster, picker, logger)}
}

// RecordClick increments the click counter for id on the write node.
// It does not check that id has a target.
func (t *ClickTracker) RecordClick(ctx context.Context, id string) error {
	w := t.nodes.writer()
	key := repository.ClickCountKey(id)

	if _, err := w.Incr(ctx, key); err != nil {
		return storeErr("incr", key, w, err)
	}

	metrics.RecordClickRecorded()
	return nil
}

// GetClickCount returns the click counter for id read from a replica.
// A counter that was never written counts as zero.
func (t *ClickTracker) GetClickCount(ctx context.Context, id string) (int64, error) {
	r, err := t.nodes.reader()
	if err != nil {
		return 0, err
	}

	key := repository.ClickCountKey(id)
	val, found, err := r.Get(ctx, key)
	if err != nil {
		return 0, storeErr("get", key, r, err)
	}
	if !found {
		return 0, nil
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("click count for %q is not an integer: %w", id, err)
	}
	return count, nil
}
