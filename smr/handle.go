package smr

import (
	"sync/atomic"

	"github.com/mbrostami/lockfreepq/common"
)

const inactiveEpoch = ^uint64(0)

// Handle is a single goroutine's registration with a Domain: its
// published local epoch, its critical-section nesting depth, and its
// per-type free-lists and deferred-free buckets. Every goroutine that
// will call pq.Queue methods must obtain one from Domain.Register before
// its first call and call Deregister at teardown.
//
// Handle is not safe for concurrent use by more than one goroutine: it
// models one participating thread of execution, and is owned exclusively
// by the goroutine that registered it.
type Handle struct {
	domain *Domain

	_ common.Pad

	localEpoch atomic.Uint64 // published for other handles' epoch-advance scans
	nesting    int32         // owned exclusively by this handle's goroutine

	_ common.Pad

	freeLists [][]any        // per allocator id: reusable chunks
	deferred  [NumEpochs][][]any // per epoch slot, per allocator id: retired garbage
}

// Enter brackets the start of a region that may dereference SMR-managed
// pointers. Nesting is supported; only the outermost Enter publishes the
// local epoch and attempts to advance the global one.
func (h *Handle) Enter() {
	if h.nesting == 0 {
		h.localEpoch.Store(h.domain.epoch.Load())
		h.domain.tryAdvanceEpoch(h)
	}
	h.nesting++
}

// Exit closes one Enter. Once nesting returns to zero the handle is
// quiescent again and no longer blocks epoch advancement.
func (h *Handle) Exit() {
	h.nesting--
	if h.nesting == 0 {
		h.localEpoch.Store(inactiveEpoch)
	}
}

// Deregister removes h from its domain's registry. Call it once, after
// the goroutine that owns h will make no further calls on this domain.
func (h *Handle) Deregister() {
	h.domain.deregister(h)
}

func (h *Handle) ensureSlots(typeID int) {
	for len(h.freeLists) <= typeID {
		h.freeLists = append(h.freeLists, nil)
	}
	for slot := range h.deferred {
		for len(h.deferred[slot]) <= typeID {
			h.deferred[slot] = append(h.deferred[slot], nil)
		}
	}
}

func (h *Handle) popFree(typeID int) (any, bool) {
	h.ensureSlots(typeID)
	list := h.freeLists[typeID]
	if len(list) == 0 {
		return nil, false
	}
	n := len(list) - 1
	obj := list[n]
	h.freeLists[typeID] = list[:n]
	return obj, true
}

// retire marks obj as garbage belonging to h's current local epoch. Only
// valid while h is inside a critical section.
func (h *Handle) retire(typeID int, obj any) {
	h.ensureSlots(typeID)
	local := h.localEpoch.Load()
	if local == inactiveEpoch {
		panic("smr: retire called outside a critical section")
	}
	slot := int(local % NumEpochs)
	h.deferred[slot][typeID] = append(h.deferred[slot][typeID], obj)
}

// hasPendingGarbage reports whether h still holds any retired object
// that has not yet been drained into its free-lists.
func (h *Handle) hasPendingGarbage() bool {
	for slot := range h.deferred {
		for _, garbage := range h.deferred[slot] {
			if len(garbage) > 0 {
				return true
			}
		}
	}
	return false
}

// reclaimSlot moves everything retired into ring slot `slot` onto this
// handle's own free-lists, running each type's pre-free hook first.
func (h *Handle) reclaimSlot(d *Domain, slot int) {
	h.ensureSlots(d.numTypes() - 1)
	for typeID, garbage := range h.deferred[slot] {
		if len(garbage) == 0 {
			continue
		}
		hook := d.hookFor(typeID)
		if hook != nil {
			for _, obj := range garbage {
				hook(obj)
			}
		}
		h.freeLists[typeID] = append(h.freeLists[typeID], garbage...)
		h.deferred[slot][typeID] = garbage[:0]
	}
}
