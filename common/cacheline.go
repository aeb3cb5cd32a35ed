// Package common holds the leaf utilities shared by the smr and pq
// packages: cache-line padding and a tagged-pointer word for lock-free
// pointer+mark updates.
package common

// CacheLineSize is the padding unit used to keep hot atomic fields on
// separate cache lines. 64 bytes covers the common x86-64/arm64 case;
// this package does not attempt to probe the running CPU, matching every
// cache-line-aware struct in the retrieval pack (they all hardcode a
// padding literal rather than detect it at build time).
const CacheLineSize = 64

// Pad is a full cache line (CacheLineSize bytes) of padding, used as a
// blank field to separate two hot fields that would otherwise share a
// cache line. Its length is fixed; it is not trimmed by the size of the
// neighbouring fields.
type Pad [CacheLineSize]byte
