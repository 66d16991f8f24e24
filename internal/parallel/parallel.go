// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package parallel provides a synchronous parallel-for over index ranges.
// Each call fans out into work packages, limits the number of goroutines in
// flight to the configured worker count, and returns only once every package
// has completed.
package parallel

import (
	"runtime"
)

// Work packages per worker. More packages than workers balance uneven rows.
const batchesPerWorker = 8

// A parallel-for execution facility with a fixed worker limit
type Pool struct {
	workers int
}

// Creates a pool with the given number of workers. Zero or negative selects GOMAXPROCS
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers}
}

// Returns the worker limit of the pool
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.workers
}

// Calls fn(lower, upper) for disjoint subranges covering [0,n).
// Returns after all calls have completed. A nil pool runs inline
func (p *Pool) Range(n int, fn func(lower, upper int)) {
	if n <= 0 {
		return
	}
	workers := p.Workers()
	if workers == 1 || n == 1 {
		fn(0, n)
		return
	}

	// split into batchesPerWorker*workers packages, limit parallelism to workers
	numBatches := batchesPerWorker * workers
	if numBatches > n {
		numBatches = n
	}
	batchSize := (n + numBatches - 1) / numBatches
	sem := make(chan bool, workers)
	for lower := 0; lower < n; lower += batchSize {
		upper := lower + batchSize
		if upper > n {
			upper = n
		}

		sem <- true
		go func(lower, upper int) {
			defer func() { <-sem }()
			fn(lower, upper)
		}(lower, upper)
	}

	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}
}

// Calls fn(y0, y1) for disjoint bands of image rows covering [0,height).
// Returns after all bands have been processed
func (p *Pool) Rows(height int, fn func(y0, y1 int)) {
	p.Range(height, fn)
}

// Calls fn(lower, upper) for disjoint pixel ranges covering [0,width*height).
// Returns after all ranges have been processed
func (p *Pool) Pixels(width, height int, fn func(lower, upper int)) {
	p.Range(width*height, fn)
}
