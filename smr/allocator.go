package smr

import "sync"

// TypedAllocator provides cache-friendly allocation and epoch-gated
// reclamation for one object type: size is implicit in T, and the
// returned id is kept private inside the allocator instead of being
// handed back to callers to juggle.
//
// Grounded on metailurini-skiplist/pool.go's acquire/release-with-resize
// pattern, generalized from one hardcoded node/marker pair of sync.Pools
// into an id-indexed table any number of types can register against, and
// gated by SMR epochs instead of sync.Pool's unsynchronized reuse.
//
// live keeps an ordinarily-typed reference to every object between Alloc
// and Free, independent of whatever lock-free structure the caller links
// it into. Consumers of this package (pq in particular) publish objects
// through a common.TaggedPointer, which stores a *T only as a bit-packed
// uintptr; the Go garbage collector does not trace a uintptr, so without
// this table a node reachable only via its skip-list neighbors could be
// collected and its memory reused while still logically live. live is
// the object's GC root for that whole window; it is removed once Free
// hands the object to the epoch-deferred lists, which are themselves
// ordinary traced slices and take over as the root from there.
type TypedAllocator[T any] struct {
	domain *Domain
	id     int
	live   sync.Map // *T -> struct{}
}

// NewAllocator registers a new typed allocator against d. hook, if
// non-nil, runs on every object of type T immediately before it is
// physically handed back to a free-list: the natural place to zero marks
// or pointers a stale reader might otherwise trip over. The hook must
// not itself allocate from d.
func NewAllocator[T any](d *Domain, hook func(*T)) *TypedAllocator[T] {
	var wrapped func(any)
	if hook != nil {
		wrapped = func(obj any) { hook(obj.(*T)) }
	}
	return &TypedAllocator[T]{domain: d, id: d.addAllocator(wrapped)}
}

// Alloc returns a chunk for use by h's goroutine: a reused, reclaimed
// chunk from h's own free-list if one is available, otherwise a freshly
// constructed one via ctor. h must be inside a critical section.
func (a *TypedAllocator[T]) Alloc(h *Handle, ctor func() *T) *T {
	var obj *T
	if reused, ok := h.popFree(a.id); ok {
		obj = reused.(*T)
	} else {
		obj = ctor()
	}
	a.live.Store(obj, struct{}{})
	return obj
}

// Free marks obj as garbage retired by h's current epoch. Because
// reclaim is self-triggered (see Domain.tryAdvanceEpoch), obj will only
// ever reappear from h's own future Alloc calls, once the domain's
// global epoch has advanced at least two steps past the epoch obj was
// retired in. h must be inside a critical section.
func (a *TypedAllocator[T]) Free(h *Handle, obj *T) {
	h.retire(a.id, obj)
	a.live.Delete(obj)
}
