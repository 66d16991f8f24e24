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

package stats

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Calculate histogram of data between min and max into given bins.
// Values outside [min,max] and non-finite values are skipped
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	if !(max > min) {
		return
	}
	scale := float32(len(bins)) / (max - min)
	for _, d := range data {
		if !(d >= min && d <= max) {
			continue
		}
		index := int((d - min) * scale)
		if index >= len(bins) {
			index = len(bins) - 1
		}
		bins[index]++
	}
}

// Centre of the given bin
func binCentre(i int, min, max float32, numBins int) float32 {
	return min + (float32(i)+0.5)*(max-min)/float32(numBins)
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float32) (x, y float32) {
	maxIndex, maxValue := 0, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}
	return binCentre(maxIndex, min, max, len(bins)), float32(maxValue)
}

// Calculates the mode and the standard deviation of the given histogram by
// fitting a normal distribution with Nelder-Mead
func GetModeStdDevFromHistogram(bins []int32, min, max float32) (mode, stdDev float32, err error) {
	// Take an educated initial guess: the maximum value of the histogram
	peak, peakVal := GetPeak(bins, min, max)
	binWidth := (max - min) / float32(len(bins))
	halfMax := 0
	for _, v := range bins {
		if float32(v) >= 0.5*peakVal {
			halfMax++
		}
	}
	sigma0 := float64(halfMax) * float64(binWidth) / 2.355
	if sigma0 <= 0 {
		sigma0 = float64(binWidth)
	}

	// Now minimize the distance between the histogram and a normal distribution
	x0 := []float64{float64(peakVal) * sigma0 * math.Sqrt(2*math.Pi), float64(peak), sigma0}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := x[0], x[1], x[2]
			if sigma <= 0 {
				return math.Inf(1)
			}
			scaler := alpha / (sigma * math.Sqrt(2*math.Pi))
			sumSqDiff := 0.0
			for i, y := range bins {
				x := float64(binCentre(i, min, max, len(bins)))
				xmusig := (x - mu) / sigma
				diff := float64(y) - scaler*math.Exp(-0.5*xmusig*xmusig)
				sumSqDiff += diff * diff
			}
			return math.Sqrt(sumSqDiff / float64(len(bins)))
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return -1, -1, err
	}
	return float32(result.X[1]), float32(math.Abs(result.X[2])), nil
}

// Calculate sky location and scale by fitting a normal distribution to the
// histogram of the data around its sigma-clipped median
func HistogramScaleLoc(data []float32, numBins int) (loc, scale float32, err error) {
	median, mad := SigmaClippedMedianAndMAD(data, 3, 3)
	if mad <= 0 {
		return median, mad, nil
	}
	min, max := median-5*mad, median+5*mad
	bins := make([]int32, numBins)
	Histogram(data, min, max, bins)
	return GetModeStdDevFromHistogram(bins, min, max)
}
