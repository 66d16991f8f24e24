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
	"fmt"
	"math"

	"github.com/mlnoga/lacosmic/internal/qsort"
	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat"
)

// Basic statistics on data arrays
type BasicStats struct {
	Min    float32 // Minimum
	Max    float32 // Maximum
	Mean   float32 // Mean (average)
	StdDev float32 // Standard deviation (norm 2, sigma)

	Location float32 // Sky location (sigma-clipped median)
	Scale    float32 // Sky scale (MAD around location, normalized to Gaussian sigma)
}

// Pretty print basic stats to string
func (s *BasicStats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g Location %.6g Scale %.6g",
		s.Min, s.Max, s.Mean, s.StdDev, s.Location, s.Scale)
}

// Pretty print basic stats to CSV header
func (s *BasicStats) ToCSVHeader() string {
	return "Min,Max,Mean,StdDev,Location,Scale"
}

// Pretty print basic stats to CSV line item
func (s *BasicStats) ToCSVLine() string {
	return fmt.Sprintf("%.6g,%.6g,%.6g,%.6g,%.6g,%.6g",
		s.Min, s.Max, s.Mean, s.StdDev, s.Location, s.Scale)
}

// Calculate basic statistics for a data array, skipping non-finite values.
// Location and scale are left empty
func CalcBasicStats(data []float32) (s *BasicStats) {
	s = &BasicStats{Min: float32(math.Inf(1)), Max: float32(math.Inf(-1))}
	xs := make([]float64, 0, len(data))
	for _, d := range data {
		if math.IsNaN(float64(d)) || math.IsInf(float64(d), 0) {
			continue
		}
		if d < s.Min {
			s.Min = d
		}
		if d > s.Max {
			s.Max = d
		}
		xs = append(xs, float64(d))
	}
	if len(xs) == 0 {
		s.Min, s.Max = 0, 0
		return s
	}
	mean, stdDev := stat.MeanStdDev(xs, nil)
	s.Mean, s.StdDev = float32(mean), float32(stdDev)
	return s
}

// Calculates basic statistics plus sky location and scale
func CalcExtendedStats(data []float32) (s *BasicStats) {
	s = CalcBasicStats(data)
	s.Location, s.Scale = SigmaClippedMedianAndMAD(data, 3, 3)
	return s
}

// Calculates fast approximate median of the (presumably large) data by subsampling
// as many values as the samples array holds and taking the median of that.
// Uses provided samples array as scratchpad
func FastApproxMedian(data []float32, samples []float32) float32 {
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = data[rng.Uint32n(max)]
	}
	return qsort.QSelectMedianFloat32(samples)
}

// Calculates fast approximate median of absolute differences of the (presumably large)
// data by subsampling, normalized to a Gaussian standard deviation
func FastApproxMAD(data []float32, location float32, samples []float32) float32 {
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = float32(math.Abs(float64(data[rng.Uint32n(max)] - location)))
	}
	return qsort.QSelectMedianFloat32(samples) * 1.4826
}

// Returns the sigma clipped median of the data, and the median absolute deviation
// of the kept values around it normalized to a Gaussian standard deviation.
// Non-finite values are ignored. Does not change the data
func SigmaClippedMedianAndMAD(data []float32, sigmaLow, sigmaHigh float32) (median, mad float32) {
	remaining := make([]float32, 0, len(data))
	for _, d := range data {
		if !math.IsNaN(float64(d)) && !math.IsInf(float64(d), 0) {
			remaining = append(remaining, d)
		}
	}
	if len(remaining) == 0 {
		return 0, 0
	}
	tmp := make([]float32, len(remaining))
	for {
		copy(tmp, remaining)
		median = qsort.QSelectMedianFloat32(tmp[:len(remaining)])
		for i, r := range remaining {
			tmp[i] = float32(math.Abs(float64(r - median)))
		}
		mad = qsort.QSelectMedianFloat32(tmp[:len(remaining)]) * 1.4826

		// reject outliers based on sigma
		lowBound := median - sigmaLow*mad
		highBound := median + sigmaHigh*mad
		kept := 0
		for _, r := range remaining {
			if r >= lowBound && r <= highBound {
				remaining[kept] = r
				kept++
			}
		}
		rejected := len(remaining) - kept
		remaining = remaining[:kept]

		// once converged, return results
		if rejected == 0 || len(remaining) <= 3 {
			return median, mad
		}
	}
}

// Compares the residual of data against a smoothed version with the expected
// noise per pixel. Returns mean and standard deviation of residual/noise over all
// unmasked pixels; a consistent noise model yields a standard deviation near one
func NoiseConsistency(data, smoothed, noise []float32, mask []bool) (mean, stdDev float64) {
	zs := make([]float64, 0, len(data))
	for i, d := range data {
		if mask != nil && mask[i] {
			continue
		}
		z := float64((d - smoothed[i]) / noise[i])
		if !math.IsNaN(z) && !math.IsInf(z, 0) {
			zs = append(zs, z)
		}
	}
	if len(zs) < 2 {
		return 0, 0
	}
	return stat.MeanStdDev(zs, nil)
}

// Expected sky noise in input units for a sky location, gain and read noise in electrons
func ExpectedNoise(location, gain, readNoise float32) float32 {
	e := location * gain
	if e < 0 {
		e = 0
	}
	return float32(math.Sqrt(float64(e+readNoise*readNoise))) / gain
}

// Confusion counts of a detected mask against ground truth
type Confusion struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
}

// Fraction of true pixels detected
func (c Confusion) Completeness() float64 {
	if c.TruePositives+c.FalseNegatives == 0 {
		return 1
	}
	return float64(c.TruePositives) / float64(c.TruePositives+c.FalseNegatives)
}

// Fraction of detected pixels that are true
func (c Confusion) Purity() float64 {
	if c.TruePositives+c.FalsePositives == 0 {
		return 1
	}
	return float64(c.TruePositives) / float64(c.TruePositives+c.FalsePositives)
}

func (c Confusion) String() string {
	return fmt.Sprintf("TP %d FP %d FN %d completeness %.3f purity %.3f",
		c.TruePositives, c.FalsePositives, c.FalseNegatives, c.Completeness(), c.Purity())
}

// Compares a detected mask against ground truth. Detections directly adjacent
// to a true pixel count as neither true nor false positives, as growth into the
// wings of a hit is expected
func CompareMasks(detected, truth []bool, width int) (c Confusion) {
	height := len(truth) / width
	for i := range truth {
		switch {
		case detected[i] && truth[i]:
			c.TruePositives++
		case truth[i]:
			c.FalseNegatives++
		case detected[i] && !adjacentTrue(truth, i%width, i/width, width, height):
			c.FalsePositives++
		}
	}
	return c
}

func adjacentTrue(truth []bool, x, y, width, height int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			xx, yy := x+dx, y+dy
			if xx >= 0 && xx < width && yy >= 0 && yy < height && truth[yy*width+xx] {
				return true
			}
		}
	}
	return false
}
