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
	"github.com/mlnoga/lacosmic/internal/parallel"
)

// Lower bound of the fine structure image, avoids division by zero in sp/f
const fineFloor = 0.01

// Computes the fine structure image f = (small - large) / noise, floored at 0.01.
// small is the small scale smoothed image (3x3 median or PSF convolution),
// large its larger scale median
func FineStructure(pool *parallel.Pool, fine, small, large, noise []float32) {
	pool.Range(len(fine), func(lower, upper int) {
		for i := lower; i < upper; i++ {
			f := (small[i] - large[i]) / noise[i]
			if !(f >= fineFloor) { // also catches NaN
				f = fineFloor
			}
			fine[i] = f
		}
	})
}

// Computes the fine structure image of the current working image
func (d *Detector) fineStructure() {
	b, p := d.bufs, d.params
	if p.FSMode == FSConvolve {
		Convolve(d.pool, b.m3, b.work, d.width, d.height, d.psf, p.PSFSize)
	} else {
		smooth(d.pool, b.m3, b.tmp, b.work, d.width, d.height, p.medianSize(p.FineWindow), p.SepMed)
	}
	smooth(d.pool, b.m37, b.tmp, b.m3, d.width, d.height, p.medianSize(p.FineSmoothWindow), p.SepMed)
	FineStructure(d.pool, b.fine, b.m3, b.m37, b.noise)
}
