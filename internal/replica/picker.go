// Package replica chooses which read node serves a lookup.
//
// Reads are spread uniformly at random over the configured replicas with no
// session affinity: every call is an independent draw. The random source is
// injected so tests can make the choice deterministic.
package replica

import (
	"math/rand/v2"
	"sync/atomic"

	"shortly/internal/domain"
	"shortly/internal/metrics"
	"shortly/internal/repository"
)

// Picker selects one read handle per read operation.
type Picker interface {
	Pick(handles []repository.KVStore) (repository.KVStore, error)
}

// IntN returns a value in [0, n). rand.IntN and (*rand.Rand).IntN both fit.
type IntN func(n int) int

// RandomPicker picks a handle uniformly at random.
// It holds no state between calls apart from the random source.
type RandomPicker struct {
	intn IntN
}

// NewRandomPicker creates a RandomPicker drawing from intn.
// A nil intn uses the math/rand/v2 top-level source, which is safe for
// concurrent use. A *rand.Rand is not: only pass its IntN when the picker is
// used from a single goroutine.
func NewRandomPicker(intn IntN) *RandomPicker {
	if intn == nil {
		intn = rand.IntN
	}
	return &RandomPicker{intn: intn}
}

// NewSeededPicker returns a RandomPicker with a reproducible PCG source.
// Not safe for concurrent use.
func NewSeededPicker(seed uint64) *RandomPicker {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return NewRandomPicker(r.IntN)
}

// Pick returns one of handles, each with probability 1/len(handles).
func (p *RandomPicker) Pick(handles []repository.KVStore) (repository.KVStore, error) {
	if len(handles) == 0 {
		return nil, domain.ErrNoReplicas
	}

	h := handles[p.intn(len(handles))]
	metrics.RecordReplicaPick(h.Addr())
	return h, nil
}

// SequencePicker walks a fixed list of indexes, wrapping around at the end.
// Each index is taken modulo the number of handles. It exists for tests that
// need to steer reads to a specific replica.
type SequencePicker struct {
	seq  []int
	next atomic.Uint64
}

// NewSequencePicker creates a SequencePicker. An empty sequence always picks
// the first handle.
func NewSequencePicker(seq ...int) *SequencePicker {
	if len(seq) == 0 {
		seq = []int{0}
	}
	return &SequencePicker{seq: seq}
}

// Pick returns the handle at the next index of the sequence.
func (p *SequencePicker) Pick(handles []repository.KVStore) (repository.KVStore, error) {
	if len(handles) == 0 {
		return nil, domain.ErrNoReplicas
	}

	i := p.next.Add(1) - 1
	idx := p.seq[i%uint64(len(p.seq))] % len(handles)
	if idx < 0 {
		idx += len(handles)
	}

	h := handles[idx]
	metrics.RecordReplicaPick(h.Addr())
	return h, nil
}
