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
	"github.com/mlnoga/lacosmic/internal/median"
	"github.com/mlnoga/lacosmic/internal/parallel"
)

// Discrete Laplacian kernel applied on the 2x subsampled grid
var laplacianKernel = [3][3]float32{
	{0, -1, 0},
	{-1, 4, -1},
	{0, -1, 0},
}

// Computes the positive part of the Laplacian of the 2x subsampled image,
// block averaged back to native resolution and divided by two to undo the
// subsampling. Edges are replicated on the subsampled grid, and border pixels
// are rescaled so a single pixel spike gives the same response everywhere.
//
// The subsampled image duplicates each pixel into a 2x2 block, so it is never
// materialized: subsampled coordinate u maps back to native pixel u/2.
func Laplacian(pool *parallel.Pool, lap, data []float32, width, height int) {
	w2, h2 := 2*width, 2*height
	sub := func(u, v int) float32 {
		return data[(median.Clamp(v, h2)>>1)*width+(median.Clamp(u, w2)>>1)]
	}
	pool.Rows(height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < width; x++ {
				sum := float32(0)
				for dy := 0; dy < 2; dy++ {
					v := 2*y + dy
					for dx := 0; dx < 2; dx++ {
						u := 2*x + dx
						conv := float32(0)
						for ky := -1; ky <= 1; ky++ {
							for kx := -1; kx <= 1; kx++ {
								if k := laplacianKernel[ky+1][kx+1]; k != 0 {
									conv += k * sub(u+kx, v+ky)
								}
							}
						}
						if conv > 0 { // cosmic rays are positive peaks
							sum += conv
						}
					}
				}
				lap[y*width+x] = sum / blockNorm(x, y, width, height)
			}
		}
	})
}

// Computes the Laplacian signal to noise map with large structures removed:
// s = lap/noise, sp = s - median(s)
func (d *Detector) laplacianSNR() {
	b := d.bufs
	Laplacian(d.pool, b.lap, b.work, d.width, d.height)
	d.pool.Range(len(b.lap), func(lower, upper int) {
		for i := lower; i < upper; i++ {
			b.lap[i] /= b.noise[i]
		}
	})
	size := d.params.medianSize(d.params.NoiseWindow)
	smooth(d.pool, b.snr, b.tmp, b.lap, d.width, d.height, size, d.params.SepMed)
	d.pool.Range(len(b.snr), func(lower, upper int) {
		for i := lower; i < upper; i++ {
			b.snr[i] = b.lap[i] - b.snr[i]
		}
	})
}

// Normalization of the summed 2x2 block response: 4 for the block average
// times 2 for the subsampling. Each image side a pixel touches turns two of the
// eight outward kernel taps on its block into copies of the pixel itself, so
// the border divisor shrinks to match a spike's reduced response
func blockNorm(x, y, width, height int) float32 {
	sides := 0
	if x == 0 {
		sides++
	}
	if x == width-1 {
		sides++
	}
	if y == 0 {
		sides++
	}
	if y == height-1 {
		sides++
	}
	if sides == 4 {
		return 8
	}
	return float32(8 - 2*sides)
}
