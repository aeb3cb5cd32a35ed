package pq

import (
	"math/bits"
	"runtime"
	"sync/atomic"

	"github.com/mbrostami/lockfreepq/common"
)

// metricShard holds one shard's worth of counters, padded to a cache
// line so independent goroutines updating different shards never
// false-share. Grounded on metailurini-skiplist/metrics.go's
// metricShard, extended with a restructure counter for tracking the
// batch amortization pass.
type metricShard struct {
	insertCASRetries      atomic.Int64
	insertCASSuccesses    atomic.Int64
	deleteMinCASRetries   atomic.Int64
	deleteMinCASSuccesses atomic.Int64
	restructures          atomic.Int64
	length                atomic.Int64

	_ common.Pad
}

// Metrics is a sharded counter set for a Queue. Sharding by a random
// draw (rather than by goroutine id, which Go does not expose) spreads
// hot-path increments across GOMAXPROCS(0) cache lines the same way
// metailurini-skiplist/metrics.go does.
type Metrics struct {
	shards []metricShard
	mask   uint32
	rng    *levelRNG
}

func newMetrics(rng *levelRNG) *Metrics {
	shardCount := nextPowerOfTwo(runtime.GOMAXPROCS(0))
	return &Metrics{
		shards: make([]metricShard, shardCount),
		mask:   uint32(shardCount - 1),
		rng:    rng,
	}
}

func nextPowerOfTwo(v int) int {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(v-1))
}

func (m *Metrics) shard() *metricShard {
	if len(m.shards) == 1 {
		return &m.shards[0]
	}
	idx := uint32(m.rng.nextRandom64()) & m.mask
	return &m.shards[idx]
}

func (m *Metrics) incInsertRetry()      { m.shard().insertCASRetries.Add(1) }
func (m *Metrics) incInsertSuccess()    { m.shard().insertCASSuccesses.Add(1) }
func (m *Metrics) incDeleteMinRetry()   { m.shard().deleteMinCASRetries.Add(1) }
func (m *Metrics) incDeleteMinSuccess() { m.shard().deleteMinCASSuccesses.Add(1) }
func (m *Metrics) incRestructure()      { m.shard().restructures.Add(1) }
func (m *Metrics) addLen(d int64)       { m.shard().length.Add(d) }

// Len returns an approximate live-node count, useful for benchmarking
// and tests; it is not linearizable with concurrent Insert/DeleteMin.
func (m *Metrics) Len() int64 {
	var total int64
	for i := range m.shards {
		total += m.shards[i].length.Load()
	}
	return total
}

// InsertCASStats reports total CAS retries/successes observed while
// linking a node at any of its levels (level 0 and every higher level
// Insert links), for contention analysis.
func (m *Metrics) InsertCASStats() (retries, successes int64) {
	for i := range m.shards {
		retries += m.shards[i].insertCASRetries.Load()
		successes += m.shards[i].insertCASSuccesses.Load()
	}
	return retries, successes
}

// DeleteMinCASStats reports total CAS retries/successes observed while
// marking a node's level-0 slot as logically deleted.
func (m *Metrics) DeleteMinCASStats() (retries, successes int64) {
	for i := range m.shards {
		retries += m.shards[i].deleteMinCASRetries.Load()
		successes += m.shards[i].deleteMinCASSuccesses.Load()
	}
	return retries, successes
}

// Restructures reports how many times DeleteMin triggered the
// max_offset-driven batch restructure.
func (m *Metrics) Restructures() int64 {
	var total int64
	for i := range m.shards {
		total += m.shards[i].restructures.Load()
	}
	return total
}
