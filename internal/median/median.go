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

// Package median implements square and separable median filters on row-major
// float32 images. Windows are truncated at the image border, so near edges the
// median is taken over the pixels inside the image only.
package median

import (
	"math"

	"github.com/mlnoga/lacosmic/internal/parallel"
	"github.com/mlnoga/lacosmic/internal/qsort"
)

// Clamps index i into [0,n)
func Clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Applies a size x size median filter to data and stores the result in output.
// Size must be odd. Output must not alias data
func Filter(pool *parallel.Pool, output, data []float32, width, height, size int) {
	if size <= 1 {
		copy(output, data)
		return
	}
	if size == 3 {
		pool.Rows(height, func(y0, y1 int) {
			filterRows3x3(output, data, width, height, y0, y1)
		})
		return
	}
	pool.Rows(height, func(y0, y1 int) {
		filterRows(output, data, width, height, size, y0, y1)
	})
}

// 3x3 median on rows [y0,y1) using the nine element sorting network in the
// interior, truncated windows on the border
func filterRows3x3(output, data []float32, width, height, y0, y1 int) {
	var gathered [9]float32
	for y := y0; y < y1; y++ {
		row := y * width
		if y == 0 || y == height-1 || width < 3 {
			for x := 0; x < width; x++ {
				output[row+x] = windowMedian(gathered[:], data, width, height, x, y, 1)
			}
			continue
		}
		up, down := row-width, row+width
		output[row] = windowMedian(gathered[:], data, width, height, 0, y, 1)
		for x := 1; x < width-1; x++ {
			gathered[0], gathered[1], gathered[2] = data[up+x-1], data[up+x], data[up+x+1]
			gathered[3], gathered[4], gathered[5] = data[row+x-1], data[row+x], data[row+x+1]
			gathered[6], gathered[7], gathered[8] = data[down+x-1], data[down+x], data[down+x+1]
			output[row+x] = qsort.MedianFloat32Slice9(gathered[:])
		}
		output[row+width-1] = windowMedian(gathered[:], data, width, height, width-1, y, 1)
	}
}

// General odd size median on rows [y0,y1)
func filterRows(output, data []float32, width, height, size, y0, y1 int) {
	half := size / 2
	buffer := make([]float32, size*size)
	for y := y0; y < y1; y++ {
		for x := 0; x < width; x++ {
			output[y*width+x] = windowMedian(buffer, data, width, height, x, y, half)
		}
	}
}

// Median of the square window of given half size around (x,y), truncated at
// the image border. Buffer must hold (2*half+1)^2 values
func windowMedian(buffer, data []float32, width, height, x, y, half int) float32 {
	xMin, xMax := max(x-half, 0), min(x+half, width-1)
	yMin, yMax := max(y-half, 0), min(y+half, height-1)
	num := 0
	for yy := yMin; yy <= yMax; yy++ {
		row := yy * width
		for xx := xMin; xx <= xMax; xx++ {
			buffer[num] = data[row+xx]
			num++
		}
	}
	return Median(buffer[:num])
}

// Applies a separable median filter: a 1D median of given size along each row,
// followed by a 1D median along each column. Approximates the full square median
// of a slightly smaller size at a fraction of the cost. tmp must have the same
// length as data, and neither output nor tmp may alias data
func SeparableFilter(pool *parallel.Pool, output, tmp, data []float32, width, height, size int) {
	if size <= 1 {
		copy(output, data)
		return
	}
	half := size / 2
	pool.Rows(height, func(y0, y1 int) {
		buffer := make([]float32, size)
		for y := y0; y < y1; y++ {
			row := y * width
			for x := 0; x < width; x++ {
				xMin, xMax := max(x-half, 0), min(x+half, width-1)
				num := copy(buffer, data[row+xMin:row+xMax+1])
				tmp[row+x] = Median(buffer[:num])
			}
		}
	})
	pool.Rows(height, func(y0, y1 int) {
		buffer := make([]float32, size)
		for y := y0; y < y1; y++ {
			yMin, yMax := max(y-half, 0), min(y+half, height-1)
			for x := 0; x < width; x++ {
				num := 0
				for yy := yMin; yy <= yMax; yy++ {
					buffer[num] = tmp[yy*width+x]
					num++
				}
				output[y*width+x] = Median(buffer[:num])
			}
		}
	})
}

// Returns the median of the given values, NaN if empty. Reorders the values
func Median(a []float32) float32 {
	if len(a) == 0 {
		return float32(math.NaN())
	}
	if len(a) == 9 {
		return qsort.MedianFloat32Slice9(a)
	}
	return qsort.QSelectMedianFloat32(a)
}
