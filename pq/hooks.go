package pq

// Test hooks, kept separate so instrumentation doesn't clutter the
// algorithm (grounded on metailurini-skiplist/hooks.go). Production code
// never sets these; they exist purely for _test.go files in this package
// to observe or inject timing at specific points.
var (
	// afterLocatePredsHook runs after every locatePreds call, given the
	// key searched for. Used to interleave goroutines deterministically
	// in tests.
	afterLocatePredsHook func(key uint64)

	// beforeFreeHook runs immediately before a node is handed to the SMR
	// allocator's Free, given the node's key. Used by the use-after-free
	// safety test to record which keys have been retired.
	beforeFreeHook func(key uint64)

	// afterAllocHook runs immediately after a node is allocated (fresh or
	// reused from a free-list), given the node itself, before its key,
	// value or links are set for the new insertion. Paired with
	// beforeFreeHook to detect a reused chunk being handed out with a
	// stale key still attached.
	afterAllocHook func(n *node)
)
