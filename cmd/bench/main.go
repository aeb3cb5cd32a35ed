// Command bench drives lockfreepq the way original_source/test.cpp drove
// the C prioq: pre-generate unique keys per worker (untimed), then time an
// all-Insert phase followed by an all-DeleteMin phase, reporting
// throughput for each. It exists to exercise the library as a real
// external consumer, not to gate correctness.
package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/mbrostami/lockfreepq/pq"
	"github.com/mbrostami/lockfreepq/smr"
)

func main() {
	ops := flag.Int("ops", 2_000_000, "total operation count across all worker goroutines")
	maxOffset := flag.Int("max-offset", 10, "pq batch-restructure threshold (spec default: small, e.g. 10)")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: bench [-ops N] [-max-offset N] <goroutine-count>")
	}
	n, err := strconv.Atoi(flag.Arg(0))
	if err != nil || n < 1 {
		log.Fatalf("goroutine count must be a positive integer, got %q", flag.Arg(0))
	}
	if *ops < n {
		log.Fatalf("-ops (%d) must be at least the goroutine count (%d)", *ops, n)
	}

	domain := smr.NewDomain()
	defer domain.Close()
	q := pq.NewQueue(domain, *maxOffset)
	defer q.Destroy()

	total := *ops
	keysByWorker := generateKeysPerWorker(n, total)

	insertStart := time.Now()
	forEachWorker(n, func(w int) {
		h := domain.Register()
		defer h.Deregister()
		for _, k := range keysByWorker[w] {
			q.Insert(h, k, k)
		}
	})
	insertUs := time.Since(insertStart).Microseconds()
	fmt.Println(formatThroughputLine("Insert", insertUs, total))

	deleteStart := time.Now()
	forEachWorker(n, func(w int) {
		h := domain.Register()
		defer h.Deregister()
		for range keysByWorker[w] {
			q.DeleteMin(h)
		}
	})
	deleteUs := time.Since(deleteStart).Microseconds()
	fmt.Println(formatThroughputLine("DeleteMin", deleteUs, total))
}

// generateKeysPerWorker splits total keys across n workers as evenly as
// possible and generates each worker's share concurrently; generation is
// deliberately not part of either timed phase, following
// original_source/test.cpp's untimed create_random_data_in_parallel.
func generateKeysPerWorker(n, total int) [][]uint64 {
	perWorker := total / n
	keys := make([][]uint64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for w := 0; w < n; w++ {
		w := w
		count := perWorker
		if w == n-1 {
			count = total - perWorker*(n-1)
		}
		go func() {
			defer wg.Done()
			keys[w] = generateKeys(w, count)
		}()
	}
	wg.Wait()
	return keys
}

// forEachWorker is parallel_for's Go analogue (original_source/test.cpp):
// n goroutines each run f once, and the call blocks until every one
// finishes.
func forEachWorker(n int, f func(worker int)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for w := 0; w < n; w++ {
		w := w
		go func() {
			defer wg.Done()
			f(w)
		}()
	}
	wg.Wait()
}
