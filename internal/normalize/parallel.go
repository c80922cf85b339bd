package normalize

import (
	"runtime"
	"sync"
)

// parallelRows calls fn for every row in [0, h), spreading contiguous row
// bands over the available CPUs.
func parallelRows(h int, fn func(y int)) {
	workers := min(runtime.GOMAXPROCS(0), h)
	if workers <= 1 {
		for y := 0; y < h; y++ {
			fn(y)
		}
		return
	}
	band := (h + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < h; start += band {
		end := min(start+band, h)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				fn(y)
			}
		}(start, end)
	}
	wg.Wait()
}
