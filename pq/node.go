package pq

import (
	"sync/atomic"

	"github.com/mbrostami/lockfreepq/common"
)

// MaxLevel bounds a node's height.
const MaxLevel = 32

// Reserved sentinel keys: head sorts before every real key, tail after.
const (
	headKey uint64 = 0
	tailKey uint64 = ^uint64(0)
)

// node is one skip-list element. Level 0's successor link packs a mark
// bit with the pointer (common.TaggedPointer) so that logically deleting
// a node and reading its successor can never observe a torn update;
// levels above 0 are plain pointers, since the mark bit only ever lives
// on a node's own level-0 field. Helping unlink at higher levels is a
// plain CAS once a node's own level-0 mark is observed set.
type node struct {
	key   uint64
	value uint64

	level int32

	// inserting distinguishes "committed at level 0 but not yet fully
	// linked above" from "fully live". DeleteMin's batch restructure
	// must not physically unlink a node above level 0 while this is
	// true.
	inserting atomic.Bool

	l0   common.TaggedPointer[node]
	next []atomic.Pointer[node] // levels 1 .. level-1
}

// loadNext returns the successor and, for level 0 only, its mark bit.
// Levels above 0 always report unmarked (see node doc comment above).
func (n *node) loadNext(level int32) (*node, bool) {
	if level == 0 {
		return n.l0.Load()
	}
	return n.next[level-1].Load(), false
}

// storeNext unconditionally publishes ptr as the successor at level; at
// level 0 it stores ptr unmarked, clearing any mark. It is only used
// where no concurrent reader can observe the link: while wiring a node's
// own link at a level before the node is linked in at that level, and on
// the head sentinel in linkSentinels and Destroy.
func (n *node) storeNext(level int32, ptr *node) {
	if level == 0 {
		n.l0.Store(ptr, false)
		return
	}
	n.next[level-1].Store(ptr)
}

// casNext attempts to replace the successor (and, at level 0, the mark)
// atomically.
func (n *node) casNext(level int32, oldPtr *node, oldMarked bool, newPtr *node, newMarked bool) bool {
	if level == 0 {
		return n.l0.CompareAndSwap(oldPtr, oldMarked, newPtr, newMarked)
	}
	return n.next[level-1].CompareAndSwap(oldPtr, newPtr)
}

// isMarked peeks at a node's own level-0 mark bit, the single source of
// truth for "is this node logically deleted" at any level.
func (n *node) isMarked() bool {
	_, marked := n.l0.Load()
	return marked
}

func newSentinel(key uint64) *node {
	n := &node{key: key, level: MaxLevel, next: make([]atomic.Pointer[node], MaxLevel-1)}
	return n
}

// linkSentinels wires head -> tail at every level, the queue's initial
// empty state.
func linkSentinels(head, tail *node) {
	for l := int32(0); l < MaxLevel; l++ {
		head.storeNext(l, tail)
	}
}

// resetForReuse clears a node's mutable fields before it re-enters an
// allocator's free-list. Passed as the SMR pre-free hook for the node
// allocator, so a reused node never leaks a stale mark or link into its
// next life.
func resetForReuse(n *node) {
	n.key = 0
	n.value = 0
	n.inserting.Store(false)
	n.l0.Store(nil, false)
	for i := range n.next {
		n.next[i].Store(nil)
	}
}

// resize prepares n to serve as a level-height node, growing its next
// slice if needed and clearing stale links otherwise: the same
// grow-or-reslice-and-clear trick as metailurini-skiplist/pool.go's
// acquireNode, adapted to the split l0/next layout.
func (n *node) resize(level int32) {
	upper := int(level) - 1
	if upper < 0 {
		upper = 0
	}
	if cap(n.next) < upper {
		n.next = make([]atomic.Pointer[node], upper)
		return
	}
	n.next = n.next[:upper]
	for i := range n.next {
		n.next[i].Store(nil)
	}
}
