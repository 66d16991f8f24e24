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
	"fmt"
	"math"

	"github.com/mlnoga/lacosmic/internal/median"
	"github.com/mlnoga/lacosmic/internal/parallel"
)

// Builds a normalized size x size point spread function kernel, row-major.
// gaussx and gaussy are one dimensional Gaussians along the respective axis
func PSFKernel(model PSFModel, fwhm float32, size int, beta float32) ([]float32, error) {
	if size < 1 || size%2 == 0 {
		return nil, invalid("psfSize", size, "odd and >=1")
	}
	if !(fwhm > 0) {
		return nil, invalid("psfFWHM", fwhm, ">0")
	}
	half := size / 2
	kernel := make([]float32, size*size)
	sigma := float64(fwhm) / (2 * math.Sqrt(2*math.Ln2))
	twoSigma2 := 2 * sigma * sigma
	var alpha float64
	if model == PSFMoffat {
		if !(beta > 1) {
			return nil, invalid("psfBeta", beta, ">1")
		}
		alpha = float64(fwhm) / (2 * math.Sqrt(math.Pow(2, 1/float64(beta))-1))
	}

	sum := 0.0
	for y := -half; y <= half; y++ {
		for x := -half; x <= half; x++ {
			fx, fy := float64(x), float64(y)
			var v float64
			switch model {
			case PSFGauss:
				v = math.Exp(-(fx*fx + fy*fy) / twoSigma2)
			case PSFGaussX:
				if y == 0 {
					v = math.Exp(-fx * fx / twoSigma2)
				}
			case PSFGaussY:
				if x == 0 {
					v = math.Exp(-fy * fy / twoSigma2)
				}
			case PSFMoffat:
				v = math.Pow(1+(fx*fx+fy*fy)/(alpha*alpha), -float64(beta))
			default:
				return nil, fmt.Errorf("%w: unknown psfModel %q", ErrInvalidParameter, model)
			}
			kernel[(y+half)*size+x+half] = float32(v)
			sum += v
		}
	}
	invSum := float32(1 / sum)
	for i := range kernel {
		kernel[i] *= invSum
	}
	return kernel, nil
}

// Convolves data with a square odd-sized kernel, replicating edge pixels.
// Output must not alias data
func Convolve(pool *parallel.Pool, output, data []float32, width, height int, kernel []float32, size int) {
	half := size / 2
	pool.Rows(height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < width; x++ {
				sum := float32(0)
				for ky := -half; ky <= half; ky++ {
					row := median.Clamp(y+ky, height) * width
					krow := (ky + half) * size
					for kx := -half; kx <= half; kx++ {
						if k := kernel[krow+kx+half]; k != 0 {
							sum += k * data[row+median.Clamp(x+kx, width)]
						}
					}
				}
				output[y*width+x] = sum
			}
		}
	})
}
