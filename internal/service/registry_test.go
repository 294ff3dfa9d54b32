package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"shortly/internal/domain"
	"shortly/internal/replica"
	"shortly/internal/repository"
	"shortly/internal/repository/memory"
	"shortly/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==================== MOCKS ====================

// MockKVStore is a mock implementation of repository.KVStore
type MockKVStore struct {
	mock.Mock
	addr string
}

func newMockKVStore(addr string) *MockKVStore {
	return &MockKVStore{addr: addr}
}

func (m *MockKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockKVStore) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockKVStore) Incr(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockKVStore) Addr() string {
	return m.addr
}

// ==================== HELPERS ====================

// newMemoryRegistry returns a registry whose writer is also its only reader,
// i.e. a store with no replication lag.
func newMemoryRegistry(t *testing.T) (*Registry, *memory.Store) {
	t.Helper()

	store := memory.NewStore("mem")
	cluster, err := repository.NewCluster(store, store)
	require.NoError(t, err)

	return NewRegistry(cluster, nil, logger.Discard()), store
}

func newMockRegistry(t *testing.T) (*Registry, *MockKVStore, *MockKVStore) {
	t.Helper()

	writer := newMockKVStore("writer:6379")
	reader := newMockKVStore("reader:6379")
	cluster, err := repository.NewCluster(writer, reader)
	require.NoError(t, err)

	return NewRegistry(cluster, nil, logger.Discard()), writer, reader
}

// ==================== INSERT ====================

func TestInsert_MintsFromSequence(t *testing.T) {
	ctx := context.Background()
	reg, store := newMemoryRegistry(t)

	id, err := reg.Insert(ctx, "https://example.com/first")
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	// Skip ahead to check the identifier is the base36 form of the counter.
	require.NoError(t, store.Set(ctx, repository.SequenceKey, "34"))
	id, err = reg.Insert(ctx, "https://example.com/second")
	require.NoError(t, err)
	assert.Equal(t, "z", id)

	id, err = reg.Insert(ctx, "https://example.com/third")
	require.NoError(t, err)
	assert.Equal(t, "10", id)
}

func TestInsert_WritesAllFacts(t *testing.T) {
	ctx := context.Background()
	reg, writer, reader := newMockRegistry(t)

	reader.On("Get", ctx, "reverse-url:https://example.com").Return("", false, nil)
	writer.On("Incr", ctx, "last-url-id").Return(int64(1296), nil)
	writer.On("Set", ctx, "url-target:100", "https://example.com").Return(nil)
	writer.On("Set", ctx, "reverse-url:https://example.com", "100").Return(nil)

	id, err := reg.Insert(ctx, "https://example.com")

	require.NoError(t, err)
	assert.Equal(t, "100", id)
	writer.AssertExpectations(t)
	reader.AssertExpectations(t)
}

func TestInsert_ReusesExistingIdentifier(t *testing.T) {
	ctx := context.Background()
	reg, writer, reader := newMockRegistry(t)

	reader.On("Get", ctx, "reverse-url:https://example.com").Return("abc", true, nil)

	id, err := reg.Insert(ctx, "https://example.com")

	require.NoError(t, err)
	assert.Equal(t, "abc", id)
	writer.AssertNotCalled(t, "Incr", mock.Anything, mock.Anything)
	writer.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

func TestInsert_SequentialSameURL(t *testing.T) {
	ctx := context.Background()
	reg, _ := newMemoryRegistry(t)

	first, err := reg.Insert(ctx, "https://example.com/page")
	require.NoError(t, err)
	second, err := reg.Insert(ctx, "https://example.com/page")
	require.NoError(t, err)

	assert.Equal(t, first, second)

	other, err := reg.Insert(ctx, "https://example.com/other")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestInsert_InvalidURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "ftp scheme", url: "ftp://files.example.com/x"},
		{name: "no scheme", url: "example.com"},
		{name: "empty", url: ""},
		{name: "mailto", url: "mailto:someone@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, writer, reader := newMockRegistry(t)

			id, err := reg.Insert(context.Background(), tt.url)

			assert.Empty(t, id)
			assert.ErrorIs(t, err, domain.ErrInvalidURL)
			assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
			writer.AssertNotCalled(t, "Incr", mock.Anything, mock.Anything)
			writer.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
			reader.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
		})
	}
}

func TestInsert_StoreFailures(t *testing.T) {
	boom := errors.New("connection refused")
	const u = "https://example.com"

	tests := []struct {
		name  string
		setup func(ctx context.Context, writer, reader *MockKVStore)
	}{
		{
			name: "reverse index read fails",
			setup: func(ctx context.Context, writer, reader *MockKVStore) {
				reader.On("Get", ctx, "reverse-url:"+u).Return("", false, boom)
			},
		},
		{
			name: "sequence increment fails",
			setup: func(ctx context.Context, writer, reader *MockKVStore) {
				reader.On("Get", ctx, "reverse-url:"+u).Return("", false, nil)
				writer.On("Incr", ctx, "last-url-id").Return(int64(0), boom)
			},
		},
		{
			name: "target write fails",
			setup: func(ctx context.Context, writer, reader *MockKVStore) {
				reader.On("Get", ctx, "reverse-url:"+u).Return("", false, nil)
				writer.On("Incr", ctx, "last-url-id").Return(int64(5), nil)
				writer.On("Set", ctx, "url-target:5", u).Return(boom)
			},
		},
		{
			name: "reverse index write fails",
			setup: func(ctx context.Context, writer, reader *MockKVStore) {
				reader.On("Get", ctx, "reverse-url:"+u).Return("", false, nil)
				writer.On("Incr", ctx, "last-url-id").Return(int64(5), nil)
				writer.On("Set", ctx, "url-target:5", u).Return(nil)
				writer.On("Set", ctx, "reverse-url:"+u, "5").Return(boom)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			reg, writer, reader := newMockRegistry(t)
			tt.setup(ctx, writer, reader)

			id, err := reg.Insert(ctx, u)

			assert.Empty(t, id)
			assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
			assert.ErrorIs(t, err, boom)
			writer.AssertExpectations(t)
			reader.AssertExpectations(t)
		})
	}
}

func TestInsert_NegativeSequence(t *testing.T) {
	ctx := context.Background()
	reg, writer, reader := newMockRegistry(t)

	reader.On("Get", ctx, mock.Anything).Return("", false, nil)
	writer.On("Incr", ctx, "last-url-id").Return(int64(-3), nil)

	_, err := reg.Insert(ctx, "https://example.com")
	assert.Error(t, err)
	writer.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

// ==================== RESOLVE / DETAILS ====================

func TestResolve_RoundTrip(t *testing.T) {
	ctx := context.Background()
	reg, _ := newMemoryRegistry(t)

	urls := []string{
		"https://example.com",
		"http://example.com/a?b=c&d=e",
		"https://example.org/path#fragment",
	}

	for _, u := range urls {
		id, err := reg.Insert(ctx, u)
		require.NoError(t, err)

		target, err := reg.Resolve(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, u, target)
	}
}

func TestResolve_NotFound(t *testing.T) {
	ctx := context.Background()
	reg, store := newMemoryRegistry(t)

	target, err := reg.Resolve(ctx, "zzzz")

	assert.Empty(t, target)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Zero(t, store.Len(), "a failed resolve must not record a click")
}

func TestResolve_RecordsOneClick(t *testing.T) {
	ctx := context.Background()
	reg, writer, reader := newMockRegistry(t)

	reader.On("Get", ctx, "url-target:7").Return("https://example.com", true, nil)
	writer.On("Incr", ctx, "click-count:7").Return(int64(1), nil).Once()

	target, err := reg.Resolve(ctx, "7")

	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target)
	writer.AssertExpectations(t)
	writer.AssertNumberOfCalls(t, "Incr", 1)
}

func TestResolve_ClickFailure(t *testing.T) {
	ctx := context.Background()
	reg, writer, reader := newMockRegistry(t)
	boom := errors.New("write node down")

	reader.On("Get", ctx, "url-target:7").Return("https://example.com", true, nil)
	writer.On("Incr", ctx, "click-count:7").Return(int64(0), boom)

	target, err := reg.Resolve(ctx, "7")

	assert.Empty(t, target)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestResolve_ReadFailure(t *testing.T) {
	ctx := context.Background()
	reg, writer, reader := newMockRegistry(t)

	reader.On("Get", ctx, "url-target:7").Return("", false, context.DeadlineExceeded)

	_, err := reg.Resolve(ctx, "7")

	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	writer.AssertNotCalled(t, "Incr", mock.Anything, mock.Anything)
}

func TestGetDetails(t *testing.T) {
	ctx := context.Background()
	reg, _ := newMemoryRegistry(t)

	id, err := reg.Insert(ctx, "https://example.com/details")
	require.NoError(t, err)

	link, err := reg.GetDetails(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, &domain.ShortLink{ID: id, Target: "https://example.com/details", Clicks: 0}, link)

	for i := 0; i < 3; i++ {
		_, err := reg.Resolve(ctx, id)
		require.NoError(t, err)
	}

	link, err = reg.GetDetails(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), link.Clicks)

	// Inspecting does not count as a visit.
	link, err = reg.GetDetails(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), link.Clicks)
}

func TestGetDetails_NotFound(t *testing.T) {
	reg, _ := newMemoryRegistry(t)

	link, err := reg.GetDetails(context.Background(), "nope")

	assert.Nil(t, link)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ==================== REPLICAS ====================

func TestReads_GoToPickedReplica(t *testing.T) {
	ctx := context.Background()
	writer := newMockKVStore("writer")
	r0 := newMockKVStore("r0")
	r1 := newMockKVStore("r1")

	cluster, err := repository.NewCluster(writer, r0, r1)
	require.NoError(t, err)
	reg := NewRegistry(cluster, replica.NewSequencePicker(1, 0), logger.Discard())

	r1.On("Get", ctx, "url-target:a").Return("https://example.com", true, nil)
	r0.On("Get", ctx, "click-count:a").Return("12", true, nil)

	link, err := reg.GetDetails(ctx, "a")

	require.NoError(t, err)
	assert.Equal(t, int64(12), link.Clicks)
	r0.AssertExpectations(t)
	r1.AssertExpectations(t)
	writer.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestResolve_StaleReplica(t *testing.T) {
	ctx := context.Background()
	primary := memory.NewStore("primary")
	lagging := memory.NewStore("replica")

	cluster, err := repository.NewCluster(primary, lagging)
	require.NoError(t, err)
	reg := NewRegistry(cluster, nil, logger.Discard())

	id, err := reg.Insert(ctx, "https://example.com/fresh")
	require.NoError(t, err)

	// No read-your-writes: the replica has not seen the insert yet.
	_, err = reg.Resolve(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Once replication catches up the link resolves.
	require.NoError(t, lagging.Set(ctx, repository.TargetKey(id), "https://example.com/fresh"))
	target, err := reg.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/fresh", target)
}

// ==================== CONCURRENCY ====================

// gatedStore holds every reverse index read until `parties` readers arrived,
// forcing concurrent inserts of the same URL to all miss the index.
type gatedStore struct {
	*memory.Store
	gate sync.WaitGroup
}

func newGatedStore(parties int) *gatedStore {
	s := &gatedStore{Store: memory.NewStore("gated")}
	s.gate.Add(parties)
	return s
}

func (s *gatedStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, found, err := s.Store.Get(ctx, key)
	if key == repository.ReverseKey("https://example.com/race") {
		s.gate.Done()
		s.gate.Wait()
	}
	return val, found, err
}

func TestInsert_ConcurrentSameURL(t *testing.T) {
	const u = "https://example.com/race"
	ctx := context.Background()

	store := newGatedStore(2)
	cluster, err := repository.NewCluster(store, store)
	require.NoError(t, err)
	reg := NewRegistry(cluster, nil, logger.Discard())

	ids := make([]string, 2)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := reg.Insert(ctx, u)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	// Both missed the reverse index, so two identifiers were minted.
	assert.NotEqual(t, ids[0], ids[1])

	// Neither identifier points anywhere but the submitted URL.
	for _, id := range ids {
		target, err := reg.Resolve(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, u, target)
	}

	// The reverse index keeps exactly one of them.
	indexed, found, err := store.Store.Get(ctx, repository.ReverseKey(u))
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, ids, indexed)
}

func TestInsert_ConcurrentDistinctURLs(t *testing.T) {
	ctx := context.Background()
	reg, _ := newMemoryRegistry(t)

	const n = 200
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := reg.Insert(ctx, fmt.Sprintf("https://example.com/%d", i))
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i, id := range ids {
		require.False(t, seen[id], "identifier %q minted twice", id)
		seen[id] = true

		target, err := reg.Resolve(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("https://example.com/%d", i), target)
	}
}
