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
	"math"

	"github.com/mlnoga/lacosmic/internal/median"
	"github.com/mlnoga/lacosmic/internal/parallel"
)

// Lower bound for the smoothed signal entering the noise model, in electrons
const noiseFloor = 1e-5

// Median smoothing as used by the noise model and large structure removal.
// tmp is only used for separable medians
func smooth(pool *parallel.Pool, output, tmp, data []float32, width, height, size int, sepMed bool) {
	if sepMed {
		median.SeparableFilter(pool, output, tmp, data, width, height, size)
	} else {
		median.Filter(pool, output, data, width, height, size)
	}
}

// Computes the expected noise per pixel from a median smoothed image:
// noise = sqrt(max(smoothed,floor)*gain + readNoise^2) / gain.
// Shot noise follows the smoothed signal so that outliers do not inflate it.
// Result is strictly positive
func NoiseMap(pool *parallel.Pool, noise, smoothed []float32, gain, readNoise float32) {
	rn2 := readNoise * readNoise
	invGain := 1 / gain
	floor := float32(noiseFloor) / gain
	pool.Range(len(noise), func(lower, upper int) {
		for i := lower; i < upper; i++ {
			s := smoothed[i]
			if s < floor {
				s = floor
			}
			noise[i] = float32(math.Sqrt(float64(s*gain+rn2))) * invGain
		}
	})
}

// Smooths the data with the noise window and derives the noise map from it
func (d *Detector) noiseModel() {
	b := d.bufs
	size := d.params.medianSize(d.params.NoiseWindow)
	smooth(d.pool, b.smoothed, b.tmp, b.work, d.width, d.height, size, d.params.SepMed)
	// working image is in electrons
	NoiseMap(d.pool, b.noise, b.smoothed, 1, d.params.ReadNoise)
}
