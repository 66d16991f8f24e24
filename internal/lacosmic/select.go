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

	"github.com/mlnoga/lacosmic/internal/median"
	"github.com/mlnoga/lacosmic/internal/parallel"
)

// Flags pixels whose Laplacian signal to noise exceeds sigClip and whose
// contrast against the fine structure exceeds objLim. Excluded pixels are
// never candidates. Returns the number of candidates
func SelectCandidates(pool *parallel.Pool, cand []bool, snr, fine []float32, excluded []bool, sigClip, objLim float32) int {
	var total int64
	pool.Range(len(cand), func(lower, upper int) {
		num := 0
		for i := lower; i < upper; i++ {
			c := snr[i] > sigClip && snr[i]/fine[i] > objLim
			if excluded != nil && excluded[i] {
				c = false
			}
			cand[i] = c
			if c {
				num++
			}
		}
		atomic.AddInt64(&total, int64(num))
	})
	return int(total)
}

// Sets output to the 3x3 dilation of input, restricted to pixels whose
// Laplacian signal to noise exceeds the threshold. Returns the number of set pixels
func dilateAbove(pool *parallel.Pool, output, input []bool, snr []float32, width, height int, threshold float32) int {
	var total int64
	pool.Rows(height, func(y0, y1 int) {
		num := 0
		for y := y0; y < y1; y++ {
			for x := 0; x < width; x++ {
				i := y*width + x
				set := false
				if snr[i] > threshold {
				search:
					for dy := -1; dy <= 1; dy++ {
						row := median.Clamp(y+dy, height) * width
						for dx := -1; dx <= 1; dx++ {
							if input[row+median.Clamp(x+dx, width)] {
								set = true
								break search
							}
						}
					}
				}
				output[i] = set
				if set {
					num++
				}
			}
		}
		atomic.AddInt64(&total, int64(num))
	})
	return int(total)
}
