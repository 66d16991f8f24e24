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

// Computes replacement values for all masked pixels of data into output, and
// copies unmasked pixels. Replacements are drawn from a window x window
// neighbourhood according to cleanType. Masked pixels without any unmasked
// neighbour receive the fallback value, except for CleanMedian which uses all
// pixels. Output must not alias data
func Clean(pool *parallel.Pool, output, data []float32, mask []bool, width, height int,
	cleanType CleanType, window int, fallback float32) {
	half := window / 2

	// inverse distance weights for the window
	var weights []float32
	if cleanType == CleanIDW {
		weights = make([]float32, window*window)
		for dy := -half; dy <= half; dy++ {
			for dx := -half; dx <= half; dx++ {
				if dx != 0 || dy != 0 {
					weights[(dy+half)*window+dx+half] = float32(1 / math.Sqrt(float64(dx*dx+dy*dy)))
				}
			}
		}
	}

	pool.Rows(height, func(y0, y1 int) {
		buffer := make([]float32, window*window)
		for y := y0; y < y1; y++ {
			for x := 0; x < width; x++ {
				i := y*width + x
				if !mask[i] {
					output[i] = data[i]
					continue
				}

				// gather the neighbourhood. Out of bounds pixels are skipped,
				// not replicated, so that edge pixels do not gain weight
				num := 0
				sum, sumWeights := float32(0), float32(0)
				for dy := -half; dy <= half; dy++ {
					yy := y + dy
					if yy < 0 || yy >= height {
						continue
					}
					for dx := -half; dx <= half; dx++ {
						xx := x + dx
						if xx < 0 || xx >= width {
							continue
						}
						j := yy*width + xx
						if cleanType != CleanMedian && mask[j] {
							continue
						}
						switch cleanType {
						case CleanMeanMask:
							sum += data[j]
						case CleanIDW:
							w := weights[(dy+half)*window+dx+half]
							sum += w * data[j]
							sumWeights += w
						default:
							buffer[num] = data[j]
						}
						num++
					}
				}

				switch {
				case num == 0:
					output[i] = fallback
				case cleanType == CleanMeanMask:
					output[i] = sum / float32(num)
				case cleanType == CleanIDW:
					output[i] = sum / sumWeights
				default:
					output[i] = median.Median(buffer[:num])
				}
			}
		}
	})
}

// Returns the median of all unmasked finite pixels, or 0 if there are none.
// Scratch must be at least as long as data
func skyMedian(data []float32, mask []bool, scratch []float32) float32 {
	num := 0
	for i, d := range data {
		if (mask == nil || !mask[i]) && finite(d) {
			scratch[num] = d
			num++
		}
	}
	if num == 0 {
		return 0
	}
	return median.Median(scratch[:num])
}

// Replaces masked pixels in the working image. Uses the repl buffer as scratch
// and copies back after the barrier
func (d *Detector) clean(mask []bool) {
	b := d.bufs
	Clean(d.pool, b.repl, b.work, mask, d.width, d.height, d.params.CleanType, d.params.CleanWindow, d.fallback)
	d.pool.Range(len(b.work), func(lower, upper int) {
		for i := lower; i < upper; i++ {
			if mask[i] {
				b.work[i] = b.repl[i]
			}
		}
	})
}
