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

package parallel

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRangeCoversEachIndexOnce(t *testing.T) {
	for _, workers := range []int{1, 2, 3, 8, 17} {
		for _, n := range []int{1, 2, 7, 100, 1023} {
			hits := make([]int32, n)
			NewPool(workers).Range(n, func(lower, upper int) {
				for i := lower; i < upper; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
			})
			for i, h := range hits {
				if h != 1 {
					t.Errorf("workers=%d n=%d hits[%d]=%d; want 1", workers, n, i, h)
				}
			}
		}
	}
}

func TestRangeLimitsWorkers(t *testing.T) {
	workers := 3
	var inFlight, maxInFlight int32
	NewPool(workers).Range(200, func(lower, upper int) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if cur <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	})
	if maxInFlight > int32(workers) {
		t.Errorf("maxInFlight=%d; want <=%d", maxInFlight, workers)
	}
	if inFlight != 0 {
		t.Errorf("inFlight=%d after return; want 0", inFlight)
	}
}

func TestNilAndDefaultPool(t *testing.T) {
	var p *Pool
	if p.Workers() != 1 {
		t.Errorf("nil workers=%d; want 1", p.Workers())
	}
	sum := 0
	p.Rows(10, func(y0, y1 int) { sum += y1 - y0 })
	if sum != 10 {
		t.Errorf("sum=%d; want 10", sum)
	}
	if NewPool(0).Workers() < 1 {
		t.Errorf("default workers=%d; want >=1", NewPool(0).Workers())
	}
}
