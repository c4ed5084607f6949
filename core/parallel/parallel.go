// Package parallel provides chunked fan-out helpers for per-image work inside a batch.
package parallel

import (
	"runtime"
	"sync"
)

// Parallelize divides items into contiguous ranges, one per worker, and runs fn
// on each range concurrently. workers <= 0 uses runtime.NumCPU().
func Parallelize(items, workers int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > items {
		numWorkers = items
	}

	// ceiling division
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ForEach calls fn(i) for every i in [0, items). Work runs sequentially when
// items <= threshold or workers == 1. Every index is visited regardless of
// failures; the returned error is the one with the lowest index, so the result
// does not depend on scheduling.
func ForEach(items, workers, threshold int, fn func(i int) error) error {
	errs := make([]error, items)
	run := func(start, end int) {
		for i := start; i < end; i++ {
			errs[i] = fn(i)
		}
	}

	if items <= threshold || workers == 1 {
		run(0, items)
	} else {
		Parallelize(items, workers, run)
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
