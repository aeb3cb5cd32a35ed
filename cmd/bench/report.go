package main

import (
	"fmt"

	"github.com/valyala/bytebufferpool"
)

// formatThroughputLine renders one Insert or DeleteMin throughput line,
// pooling its scratch buffer the same way
// gfire-sigs-fire-controlplane/internal/storage/sepia/internal/dwal/wal.go
// pools buffers for entry framing instead of allocating a fresh one per
// call.
func formatThroughputLine(op string, elapsedUs int64, ops int) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	throughput := float64(ops) / float64(elapsedUs)
	fmt.Fprintf(buf, "%s took %d us, throughput = %.4f ops/us", op, elapsedUs, throughput)
	return buf.String()
}
