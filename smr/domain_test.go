package smr

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	tag int
}

func TestRegisterDeregisterUpdatesRegistry(t *testing.T) {
	d := NewDomain()
	h1 := d.Register()
	h2 := d.Register()

	assert.Len(t, d.snapshot(), 2)

	h1.Deregister()
	snap := d.snapshot()
	require.Len(t, snap, 1)
	assert.Same(t, h2, snap[0])

	h2.Deregister()
	assert.Len(t, d.snapshot(), 0)
}

func TestEnterExitNesting(t *testing.T) {
	d := NewDomain()
	h := d.Register()
	defer h.Deregister()

	h.Enter()
	h.Enter()
	assert.EqualValues(t, 2, h.nesting)
	assert.NotEqual(t, inactiveEpoch, h.localEpoch.Load())

	h.Exit()
	assert.EqualValues(t, 1, h.nesting)
	assert.NotEqual(t, inactiveEpoch, h.localEpoch.Load(), "still nested, must stay active")

	h.Exit()
	assert.EqualValues(t, 0, h.nesting)
	assert.Equal(t, inactiveEpoch, h.localEpoch.Load())
}

func TestSingleThreadedEpochAlwaysAdvances(t *testing.T) {
	d := NewDomain()
	h := d.Register()
	defer h.Deregister()

	// A lone, always-quiescent-between-calls handle never blocks its own
	// advance: each Enter observes no other active handle.
	h.Enter()
	e0 := d.epoch.Load()
	h.Exit()

	h.Enter()
	e1 := d.epoch.Load()
	h.Exit()

	assert.Greater(t, e1, e0)
}

func TestAllocatorReclaimsAfterTwoEpochAdvances(t *testing.T) {
	d := NewDomain()
	h := d.Register()
	defer h.Deregister()

	var hookCalls int
	alloc := NewAllocator[widget](d, func(w *widget) { hookCalls++ })

	h.Enter()
	obj := alloc.Alloc(h, func() *widget { return &widget{tag: 1} })
	alloc.Free(h, obj)
	h.Exit()

	// Freshly retired: not yet safe, and this handle's own free-list is
	// still empty (no epoch advance has crossed its bucket yet).
	_, ok := h.popFree(alloc.id)
	assert.False(t, ok, "must not be reusable immediately after Free")

	// obj was retired in epoch 0; one more advance (to epoch 2) crosses
	// the two-epoch safety margin and reclaims it into h's free-list. A
	// second bracket is harmless overhead, confirming the drained bucket
	// stays empty.
	h.Enter()
	h.Exit()
	h.Enter()
	h.Exit()

	reused, ok := h.popFree(alloc.id)
	require.True(t, ok, "chunk should be reclaimed after two epoch advances")
	assert.Same(t, obj, reused)
	assert.Equal(t, 1, hookCalls)
}

func TestMultipleHandlesBlockEachOthersAdvance(t *testing.T) {
	d := NewDomain()
	slow := d.Register()
	fast := d.Register()
	defer slow.Deregister()
	defer fast.Deregister()

	slow.Enter() // never Exit()s during this test: stays pinned at its entry epoch
	before := d.epoch.Load()

	fast.Enter()
	fast.Exit()
	fast.Enter()
	fast.Exit()

	after := d.epoch.Load()
	assert.Equal(t, before, after, "epoch must not advance past a pinned active handle")

	slow.Exit()
	fast.Enter()
	fast.Exit()
	assert.Greater(t, d.epoch.Load(), after, "epoch advances once the pinned handle goes quiescent")
}

// TestDeregisterBlocksUntilSafeToReclaim pins the domain's epoch with one
// handle while a second handle, holding retired garbage, deregisters. The
// deregistering handle must not run its pre-free hook (and must not
// return) until the pinned handle goes quiescent and two more epoch
// advances have actually happened; otherwise a still-registered handle
// mid-traversal at the old epoch could observe a node reset out from
// under it.
func TestDeregisterBlocksUntilSafeToReclaim(t *testing.T) {
	d := NewDomain()
	pinned := d.Register()
	defer pinned.Deregister()

	h := d.Register()

	var hookCalls int32
	alloc := NewAllocator[widget](d, func(w *widget) { atomic.AddInt32(&hookCalls, 1) })

	pinned.Enter() // never Exit()s yet: pins the domain's epoch

	h.Enter()
	obj := alloc.Alloc(h, func() *widget { return &widget{tag: 1} })
	alloc.Free(h, obj)
	h.Exit()

	done := make(chan struct{})
	go func() {
		h.Deregister()
		close(done)
	}()

	assert.Never(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 100*time.Millisecond, 10*time.Millisecond, "Deregister must not return while pinned handle blocks epoch advance")
	assert.Zero(t, atomic.LoadInt32(&hookCalls), "pre-free hook must not run before it is safe")

	pinned.Exit()

	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond, "Deregister should complete once the pinned handle goes quiescent")
	assert.EqualValues(t, 1, hookCalls)
}
