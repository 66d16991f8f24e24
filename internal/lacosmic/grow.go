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

package lacosmic

import (
	"sync/atomic"

	"github.com/mlnoga/lacosmic/internal/parallel"
)

// Grows candidates into their neighbourhood in two bounded steps. First, 3x3
// neighbours with signal to noise above sigClip are added. Second, 3x3
// neighbours of that set above sigClip*sigFrac are added. Excluded pixels are
// removed from the result. tmp receives the intermediate set. Returns the number
// of pixels in final
func Grow(pool *parallel.Pool, final, tmp, cand []bool, snr []float32, excluded []bool,
	width, height int, sigClip, sigFrac float32) int {
	dilateAbove(pool, tmp, cand, snr, width, height, sigClip)
	num := dilateAbove(pool, final, tmp, snr, width, height, sigClip*sigFrac)
	if excluded == nil {
		return num
	}
	var removed int64
	pool.Range(len(final), func(lower, upper int) {
		r := 0
		for i := lower; i < upper; i++ {
			if final[i] && excluded[i] {
				final[i] = false
				r++
			}
		}
		atomic.AddInt64(&removed, int64(r))
	})
	return num - int(removed)
}
