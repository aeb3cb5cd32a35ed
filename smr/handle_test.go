package smr

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedAllocatorSecondTypeGetsOwnSlots(t *testing.T) {
	d := NewDomain()
	h := d.Register()
	defer h.Deregister()

	type a struct{ x int }
	type b struct{ y string }

	allocA := NewAllocator[a](d, nil)
	allocB := NewAllocator[b](d, nil)

	h.Enter()
	objA := allocA.Alloc(h, func() *a { return &a{x: 7} })
	objB := allocB.Alloc(h, func() *b { return &b{y: "z"} })
	h.Exit()

	assert.Equal(t, 7, objA.x)
	assert.Equal(t, "z", objB.y)
	assert.NotSame(t, (*a)(nil), objA)

	// Retiring one type must not disturb the other's free-list.
	h.Enter()
	allocA.Free(h, objA)
	h.Exit()
	for i := 0; i < 2; i++ {
		h.Enter()
		h.Exit()
	}

	_, okA := h.popFree(allocA.id)
	_, okB := h.popFree(allocB.id)
	assert.True(t, okA)
	assert.False(t, okB, "b was never freed, its free-list stays empty")
}

// TestConcurrentHandlesReclaimIndependently exercises many goroutines,
// each with its own handle, alternately allocating and freeing chunks of
// a shared type. It never inspects another handle's state directly; it
// checks that every goroutine's Deregister returns and leaves the
// registry empty, and relies on the data race detector to flag reclaim
// ever touching another handle's free-list.
func TestConcurrentHandlesReclaimIndependently(t *testing.T) {
	d := NewDomain()
	alloc := NewAllocator[int](d, nil)

	const goroutines = 16
	const rounds = 500

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			h := d.Register()
			defer h.Deregister()

			for i := 0; i < rounds; i++ {
				h.Enter()
				v := alloc.Alloc(h, func() *int { n := 0; return &n })
				*v = i
				alloc.Free(h, v)
				h.Exit()
			}
		}()
	}
	wg.Wait()

	require.Empty(t, d.snapshot(), "every goroutine must have deregistered")
}
