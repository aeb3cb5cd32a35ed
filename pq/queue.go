// Package pq implements a lock-free skip-list priority queue (min-heap
// by uint64 key), layered on the smr package for node lifetime. Insert
// and DeleteMin never block each other: logical deletion (a mark bit on
// a node's own level-0 successor pointer) always precedes physical
// unlinking.
package pq

import (
	"github.com/mbrostami/lockfreepq/smr"
)

// Queue is a lock-free priority queue ordered by ascending uint64 key.
// The zero value is not usable; construct one with NewQueue.
type Queue struct {
	head, tail *node
	maxOffset  int32

	nodeAlloc *smr.TypedAllocator[node]
	rng       *levelRNG
	metrics   *Metrics
}

// NewQueue allocates head/tail sentinels linked at every level and
// returns a queue that reclaims its nodes through domain. maxOffset
// bounds how many already-marked nodes DeleteMin will skip before
// triggering a batch restructure; the default is small, e.g. 10.
//
// domain is taken explicitly rather than assumed to be a package-level
// singleton, so callers control its init/teardown lifecycle instead of
// relying on an implicit global.
func NewQueue(domain *smr.Domain, maxOffset int) *Queue {
	head := newSentinel(headKey)
	tail := newSentinel(tailKey)
	linkSentinels(head, tail)

	rng := newLevelRNG()
	return &Queue{
		head:      head,
		tail:      tail,
		maxOffset: int32(maxOffset),
		nodeAlloc: smr.NewAllocator[node](domain, resetForReuse),
		rng:       rng,
		metrics:   newMetrics(rng),
	}
}

// Destroy tears the queue down. It requires no concurrent Insert or
// DeleteMin. It drops the sentinels' links so nothing in the (possibly
// still-referenced) node chain keeps the whole structure alive past
// this call.
func (q *Queue) Destroy() {
	for l := int32(0); l < MaxLevel; l++ {
		q.head.storeNext(l, q.tail)
	}
}

// Metrics exposes the queue's CAS-contention and length counters, for
// benchmarking and tests.
func (q *Queue) Metrics() *Metrics { return q.metrics }

func (q *Queue) allocNode(h *smr.Handle, key, value uint64, level int32) *node {
	n := q.nodeAlloc.Alloc(h, func() *node { return &node{} })
	if afterAllocHook != nil {
		afterAllocHook(n)
	}
	n.resize(level)
	n.key = key
	n.value = value
	n.level = level
	n.l0.Store(nil, false)
	n.inserting.Store(true)
	return n
}

// locatePreds returns, for every level, the last unmarked node with
// key < key (preds[l]) and its successor with the mark bit stripped
// (succs[l]). While descending, any node found to be logically deleted
// (its own level-0 mark set) is spliced out of the current level via a
// single CAS on its predecessor; on failure the whole walk restarts
// from head.
func (q *Queue) locatePreds(key uint64) (preds, succs [MaxLevel]*node) {
retry:
	pred := q.head
	for l := int32(MaxLevel - 1); l >= 0; l-- {
		curPtr, predMarked := pred.loadNext(l)
		cur := curPtr
		for {
			if cur == q.tail {
				break
			}
			if cur.isMarked() {
				succPtr, _ := cur.loadNext(l)
				if !pred.casNext(l, cur, predMarked, succPtr, predMarked) {
					goto retry
				}
				cur = succPtr
				continue
			}
			if cur.key >= key {
				break
			}
			pred = cur
			curPtr, predMarked = pred.loadNext(l)
			cur = curPtr
		}
		preds[l] = pred
		succs[l] = cur
	}
	if afterLocatePredsHook != nil {
		afterLocatePredsHook(key)
	}
	return
}

// Insert adds key/value to the queue. key must satisfy
// 0 < key < math.MaxUint64; passing a reserved sentinel key is a
// programmer error and panics. Duplicate keys are permitted and never
// collapse; ordering among equal keys is unspecified.
//
// Insert brackets itself in h's critical section; the caller must not
// already be inside one on h.
func (q *Queue) Insert(h *smr.Handle, key, value uint64) {
	if key == headKey || key == tailKey {
		panic("pq: reserved key")
	}

	h.Enter()
	defer h.Exit()

	level := q.rng.RandomLevel()
	n := q.allocNode(h, key, value, level)

	// Level 0 linkage is the commit point: once this CAS succeeds the
	// node is visible to DeleteMin.
	for {
		preds, succs := q.locatePreds(key)
		pred0, succ0 := preds[0], succs[0]
		n.storeNext(0, succ0)
		if pred0.casNext(0, succ0, false, n, false) {
			q.metrics.incInsertSuccess()
			q.metrics.addLen(1)
			break
		}
		q.metrics.incInsertRetry()
	}

	// Higher levels are best-effort. If the node is observed logically
	// deleted before a level links, it has already been claimed by a
	// concurrent DeleteMin; abandon the remaining levels rather than
	// reintroduce a removed node above level 0.
	for l := int32(1); l < level; l++ {
		for {
			if n.isMarked() {
				n.inserting.Store(false)
				return
			}
			preds, succs := q.locatePreds(key)
			pred, succ := preds[l], succs[l]
			n.storeNext(l, succ)
			if pred.casNext(l, succ, false, n, false) {
				q.metrics.incInsertSuccess()
				break
			}
			q.metrics.incInsertRetry()
		}
	}
	n.inserting.Store(false)
}

// DeleteMin atomically marks the first not-yet-marked node at level 0 as
// logically deleted and returns its value. ok is false if no unmarked
// node exists.
func (q *Queue) DeleteMin(h *smr.Handle) (value uint64, ok bool) {
	h.Enter()
	defer h.Exit()

	skipped := 0
	cur, _ := q.head.loadNext(0)
	for cur != q.tail {
		succ, marked := cur.loadNext(0)
		if marked {
			skipped++
			cur = succ
			continue
		}

		if cur.casNext(0, succ, false, succ, true) {
			q.metrics.incDeleteMinSuccess()
			q.metrics.addLen(-1)
			value = cur.value
			if skipped > int(q.maxOffset) {
				q.metrics.incRestructure()
				q.batchRestructure(h, cur)
			}
			return value, true
		}
		q.metrics.incDeleteMinRetry()
		// cur's next[0] changed concurrently; loop back and reconsider
		// this same node rather than skipping it blindly.
	}
	return 0, false
}

// batchRestructure amortizes physical removal: for every level from
// MaxLevel-1 down to 0, it CASes head's pointer past the run
// of nodes with key < x.key that are logically deleted and not
// mid-insert, freeing that run via SMR once it has been confirmed
// unlinked at level 0 (the last level processed, by which point every
// node in the run has already been unlinked from every level above it
// in this same pass; see DESIGN.md for the argument that no node is
// ever freed while still reachable through a level it participates in).
func (q *Queue) batchRestructure(h *smr.Handle, x *node) {
	for l := int32(MaxLevel - 1); l >= 0; l-- {
		for {
			headSucc, _ := q.head.loadNext(l)
			cur := headSucc
			for cur != q.tail && cur.key < x.key && cur.isMarked() && !cur.inserting.Load() {
				nxt, _ := cur.loadNext(l)
				cur = nxt
			}
			target := cur
			if target == headSucc {
				break
			}
			if q.head.casNext(l, headSucc, false, target, false) {
				if l == 0 {
					q.freeDeadRun(h, headSucc, target)
				}
				break
			}
			// Lost the race with a concurrent Insert or another
			// DeleteMin's restructure at head; recompute and retry.
		}
	}
}

// freeDeadRun retires every node in [from, to) via SMR. Both endpoints
// were just observed reachable via next[0], and every node strictly
// between them is, by construction, already unlinked at all its levels.
func (q *Queue) freeDeadRun(h *smr.Handle, from, to *node) {
	for n := from; n != to; {
		nxt, _ := n.loadNext(0)
		if beforeFreeHook != nil {
			beforeFreeHook(n.key)
		}
		q.nodeAlloc.Free(h, n)
		n = nxt
	}
}
