package service

import (
	"context"
	"fmt"
	"log/slog"

	"shortly/internal/domain"
	"shortly/internal/metrics"
	"shortly/internal/replica"
	"shortly/internal/repository"
	"shortly/pkg/base36"
	"shortly/pkg/validator"
)

// Registry maps URLs to short identifiers and back.
//
// Stored facts per link (see repository key helpers):
//
//	url-target:<id>   → target URL
//	reverse-url:<url> → id, used only to deduplicate inserts
//	click-count:<id>  → visits (owned by the embedded ClickTracker)
//	last-url-id       → global sequence identifiers are minted from
//
// Registry holds no mutable state of its own and takes no locks. All
// coordination is left to the store's atomic INCR.
type Registry struct {
	*ClickTracker
	nodes nodes
}

// NewRegistry creates a Registry over cluster.
// A nil picker selects replicas uniformly at random; a nil logger discards.
func NewRegistry(cluster *repository.Cluster, picker replica.Picker, logger *slog.Logger) *Registry {
	n := newNodes(cluster, picker, logger)
	return &Registry{
		ClickTracker: &ClickTracker{nodes: n},
		nodes:        n,
	}
}

// Insert returns the short identifier for rawURL, minting one if the URL has
// not been seen.
//
// The reverse index lookup and the writes that follow are not atomic. Two
// concurrent inserts of the same new URL can both miss the index and mint
// two identifiers. Both resolve to the URL; the last reverse index write
// wins and the other identifier is no longer returned by Insert.
func (r *Registry) Insert(ctx context.Context, rawURL string) (string, error) {
	if err := validator.ValidateURL(rawURL); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidURL, err)
	}

	reader, err := r.nodes.reader()
	if err != nil {
		return "", err
	}

	reverseKey := repository.ReverseKey(rawURL)
	id, found, err := reader.Get(ctx, reverseKey)
	if err != nil {
		return "", storeErr("get", reverseKey, reader, err)
	}
	// A stale replica may miss a recent insert; then we mint a second id.
	if found {
		metrics.RecordDedupHit()
		return id, nil
	}

	writer := r.nodes.writer()

	n, err := writer.Incr(ctx, repository.SequenceKey)
	if err != nil {
		return "", storeErr("incr", repository.SequenceKey, writer, err)
	}

	id, err = base36.Encode(n)
	if err != nil {
		return "", fmt.Errorf("sequence %q returned %d: %w", repository.SequenceKey, n, err)
	}

	targetKey := repository.TargetKey(id)
	if err := writer.Set(ctx, targetKey, rawURL); err != nil {
		return "", storeErr("set", targetKey, writer, err)
	}
	if err := writer.Set(ctx, reverseKey, id); err != nil {
		return "", storeErr("set", reverseKey, writer, err)
	}

	metrics.RecordLinkCreated()
	r.nodes.logger.Info("short link created", "id", id, "sequence", n)

	return id, nil
}

// Resolve returns the target URL of id and records one click for it.
// It fails with domain.ErrNotFound if id has no target on the chosen
// replica, which can happen right after an insert while replicas catch up.
func (r *Registry) Resolve(ctx context.Context, id string) (string, error) {
	target, err := r.lookupTarget(ctx, id)
	if err != nil {
		return "", err
	}

	if err := r.RecordClick(ctx, id); err != nil {
		return "", err
	}

	metrics.RecordRedirect()
	return target, nil
}

// GetDetails returns the target and click count of id without counting a
// visit. The two values are read independently and may come from
// different replicas.
func (r *Registry) GetDetails(ctx context.Context, id string) (*domain.ShortLink, error) {
	target, err := r.lookupTarget(ctx, id)
	if err != nil {
		return nil, err
	}

	clicks, err := r.GetClickCount(ctx, id)
	if err != nil {
		return nil, err
	}

	return &domain.ShortLink{
		ID:     id,
		Target: target,
		Clicks: clicks,
	}, nil
}

func (r *Registry) lookupTarget(ctx context.Context, id string) (string, error) {
	reader, err := r.nodes.reader()
	if err != nil {
		return "", err
	}

	key := repository.TargetKey(id)
	target, found, err := reader.Get(ctx, key)
	if err != nil {
		return "", storeErr("get", key, reader, err)
	}
	if !found {
		metrics.RecordNotFound()
		return "", fmt.Errorf("%w: %q", domain.ErrNotFound, id)
	}

	return target, nil
}
