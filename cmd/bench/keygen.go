package main

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// generateKeys produces total well-distributed uint64 keys for worker,
// following original_source/test.cpp, where "unique but still
// random-looking" keys are pre-generated once per thread before the timed
// phase begins. blake3 replaces test.cpp's inline mix64 splitmix
// finalizer with a real dependency the retrieval pack already carries
// (see DESIGN.md and SPEC_FULL.md §8).
//
// worker and index are mixed into the hash input, so every (worker,
// index) pair hashes a distinct input; the first 64 bits of the digest
// are used as the key, and they are not checked for collisions. The
// result is nudged away from 0 and math.MaxUint64, pq's reserved head
// and tail sentinel keys.
func generateKeys(worker int, total int) []uint64 {
	keys := make([]uint64, total)
	var in [16]byte
	binary.LittleEndian.PutUint64(in[0:8], uint64(worker))

	for i := 0; i < total; i++ {
		binary.LittleEndian.PutUint64(in[8:16], uint64(i))
		hasher := blake3.New()
		hasher.Write(in[:])
		sum := hasher.Sum(nil)

		k := binary.LittleEndian.Uint64(sum[:8])
		if k == 0 {
			k = 1
		} else if k == ^uint64(0) {
			k--
		}
		keys[i] = k
	}
	return keys
}
