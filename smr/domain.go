// Package smr implements a generational epoch/quiescent-state safe
// memory reclamation scheme: it defers freeing of unlinked objects until
// no registered goroutine can still hold a live reference to them. The pq
// package uses it for node lifetime; nothing here knows about skip lists.
package smr

import (
	"sync"
	"sync/atomic"
	"time"
)

// deregisterInitialBackoff and deregisterMaxBackoff bound the exponential
// backoff deregister uses while waiting for other registered handles to
// go quiescent so it can safely drain its own leftover deferred garbage.
// Grounded on other_examples/calvinalkan-agent-task__slotcache.go's
// readBackoff.
const (
	deregisterInitialBackoff = 50 * time.Microsecond
	deregisterMaxBackoff     = 1 * time.Millisecond
)

// NumEpochs is the size of the deferred-free ring. An object retired in
// epoch e is only handed back to its allocator's free-list once the
// global epoch has advanced to at least e+2, i.e. once it is certain no
// registered goroutine's published epoch could still be e.
const NumEpochs = 3

// Domain is a process-wide (or, in a multi-tenant program, per-subsystem)
// reclamation domain: one global epoch counter and a registry of the
// goroutines participating in it. Construct one with NewDomain and shut
// it down with Close; there is no implicit global singleton, so callers
// control its init/teardown lifecycle explicitly.
type Domain struct {
	epoch atomic.Uint64

	registryMu sync.Mutex
	registry   atomic.Pointer[[]*Handle]

	typesMu sync.Mutex
	types   []typeInfo
}

type typeInfo struct {
	hook func(any)
}

// NewDomain initializes a reclamation domain. Idempotent failure is not a
// concern in Go: there is no fallible global state to corrupt on a second
// call, so unlike the C original there is no init_gc/destroy_gc pairing
// requirement beyond calling Close when the domain is no longer used.
func NewDomain() *Domain {
	d := &Domain{}
	empty := make([]*Handle, 0)
	d.registry.Store(&empty)
	return d
}

// Close tears the domain down. It does not itself free anything; callers
// are expected to have deregistered every handle first. Deregister
// already blocks until that handle's own deferred lists are fully
// drained, so by the time every handle has deregistered there is nothing
// left to lose. Close is not safe to call concurrently with
// Register/Deregister.
func (d *Domain) Close() {
	empty := make([]*Handle, 0)
	d.registry.Store(&empty)
}

// addAllocator registers a new typed allocator and returns its numeric
// id. hook, if non-nil, runs immediately before an object of this type is
// physically handed back to a free-list. The hook must not itself
// allocate from this domain.
func (d *Domain) addAllocator(hook func(any)) int {
	d.typesMu.Lock()
	defer d.typesMu.Unlock()
	id := len(d.types)
	d.types = append(d.types, typeInfo{hook: hook})
	return id
}

func (d *Domain) hookFor(typeID int) func(any) {
	d.typesMu.Lock()
	defer d.typesMu.Unlock()
	return d.types[typeID].hook
}

func (d *Domain) numTypes() int {
	d.typesMu.Lock()
	defer d.typesMu.Unlock()
	return len(d.types)
}

// Register enrolls the calling goroutine in the domain and returns a
// handle it must use for every subsequent critical section, allocation
// and retire on this domain, until it calls Deregister. Registration
// takes the registry lock; the hot allocate/retire/critical-section paths
// stay lock-free. It publishes a new registry slice so that concurrent
// epoch-advance scans never block on it.
func (d *Domain) Register() *Handle {
	h := &Handle{domain: d}
	h.localEpoch.Store(inactiveEpoch)

	d.registryMu.Lock()
	defer d.registryMu.Unlock()

	old := *d.registry.Load()
	next := make([]*Handle, len(old), len(old)+1)
	copy(next, old)
	next = append(next, h)
	d.registry.Store(&next)
	return h
}

// deregister drains h's own leftover deferred garbage and then removes h
// from the registry. h stays registered (but quiescent, so it never
// blocks anyone else's advance) until every deferred slot is empty: a
// slot's pre-free hook only runs once the global epoch has actually
// advanced two steps past the epoch its garbage was retired in, exactly
// like an ordinary Enter-triggered reclaim, since a still-registered
// goroutine elsewhere may be mid-traversal holding one of these pointers
// at an older epoch and must never see it reset out from under it.
func (d *Domain) deregister(h *Handle) {
	for attempt := 0; h.hasPendingGarbage(); attempt++ {
		if d.tryAdvanceEpoch(h) {
			attempt = 0
			continue
		}
		shift := attempt
		if shift > 10 { // 50us << 10 already exceeds deregisterMaxBackoff
			shift = 10
		}
		backoff := min(deregisterInitialBackoff<<shift, deregisterMaxBackoff)
		time.Sleep(backoff)
	}

	d.registryMu.Lock()
	old := *d.registry.Load()
	next := make([]*Handle, 0, len(old))
	for _, other := range old {
		if other != h {
			next = append(next, other)
		}
	}
	d.registry.Store(&next)
	d.registryMu.Unlock()
}

// snapshot returns the current registry slice without blocking a
// concurrent Register/Deregister.
func (d *Domain) snapshot() []*Handle {
	return *d.registry.Load()
}

// tryAdvanceEpoch scans every registered handle; if every handle is
// either quiescent (not in a critical section) or has published the
// current global epoch, it attempts to move the epoch forward by one via
// CAS and reports whether it succeeded. On success, caller (the handle
// whose Enter or Deregister triggered this scan) drains its own
// two-back deferred bucket into its own free-lists, running each type's
// pre-free hook first: an epoch advance always happens, if at all,
// before returning from the call that triggered it.
//
// Only the calling handle reclaims here, never another goroutine's
// handle: free-lists and deferred buckets are owned exclusively by the
// handle that allocated them, so a handle is only ever mutated by the
// goroutine that registered it. This trades a little reclaim latency for
// idle handles (their own garbage waits for their own next Enter, or for
// Deregister) against not needing any locking on the hot allocate/retire
// path: per-thread free-lists avoid contention there entirely.
func (d *Domain) tryAdvanceEpoch(caller *Handle) bool {
	current := d.epoch.Load()
	for _, h := range d.snapshot() {
		e := h.localEpoch.Load()
		if e != inactiveEpoch && e != current {
			return false
		}
	}

	if !d.epoch.CompareAndSwap(current, current+1) {
		return false
	}

	// The bucket that becomes safe is the one two epochs behind the new
	// epoch (current+1): (current+1)-2 == current-1, which is
	// (current+2) mod NumEpochs.
	reclaimSlot := int((current + 2) % NumEpochs)
	caller.reclaimSlot(d, reclaimSlot)
	return true
}
