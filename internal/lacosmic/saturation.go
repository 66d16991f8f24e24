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

// Flags saturated stars: pixels at or above level whose median smoothed value
// exceeds level/2, grown by two 3x3 dilations. Isolated saturated pixels with
// a dark surrounding are left alone, as they are likely cosmic rays.
// tmp receives an intermediate mask. Returns the number of flagged pixels
func SaturationMask(pool *parallel.Pool, sat, tmp []bool, data, smoothed []float32, width, height int, level float32) int {
	halfLevel := level / 2
	pool.Range(len(sat), func(lower, upper int) {
		for i := lower; i < upper; i++ {
			sat[i] = data[i] >= level && smoothed[i] > halfLevel
		}
	})
	dilate(pool, tmp, sat, width, height)
	return dilate(pool, sat, tmp, width, height)
}

// Sets output to the 3x3 dilation of input. Returns the number of set pixels
func dilate(pool *parallel.Pool, output, input []bool, width, height int) int {
	var total int64
	pool.Rows(height, func(y0, y1 int) {
		num := 0
		for y := y0; y < y1; y++ {
			for x := 0; x < width; x++ {
				set := false
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
				output[y*width+x] = set
				if set {
					num++
				}
			}
		}
		atomic.AddInt64(&total, int64(num))
	})
	return int(total)
}

// Builds the saturation mask of the working image and adds it to the exclusions
func (d *Detector) saturationMask() int {
	p, b := d.params, d.bufs
	if !(p.SatLevel > 0) {
		return 0
	}
	smooth(d.pool, b.smoothed, b.tmp, b.work, d.width, d.height, p.medianSize(p.NoiseWindow), p.SepMed)
	num := SaturationMask(d.pool, b.sat, b.grown, b.work, b.smoothed, d.width, d.height, p.SatLevel*p.Gain)
	for i, s := range b.sat {
		if s {
			b.excluded[i] = true
		}
	}
	return num
}
