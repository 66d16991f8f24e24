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
	"testing"

	"github.com/mlnoga/lacosmic/internal/synth"
)

func TestBasicStats(t *testing.T) {
	data := []float32{1, 2, 3, 4, float32(math.NaN()), 5}
	s := CalcBasicStats(data)
	if s.Min != 1 || s.Max != 5 || s.Mean != 3 {
		t.Errorf("stats=%s; want min 1 max 5 mean 3", s)
	}
	// sample standard deviation of 1..5
	if math.Abs(float64(s.StdDev)-math.Sqrt(2.5)) > 1e-6 {
		t.Errorf("stdDev=%f; want %f", s.StdDev, math.Sqrt(2.5))
	}
	if e := CalcBasicStats(nil); e.Min != 0 || e.Max != 0 {
		t.Errorf("empty stats=%s", e)
	}
}

func TestSigmaClippedMedianAndMAD(t *testing.T) {
	e := synth.New(1).FlatSky(128, 128, 500, 1, 10)
	// bright outliers must not move the location
	for i := 0; i < len(e.Data); i += 50 {
		e.Data[i] += 10000
	}
	loc, scale := SigmaClippedMedianAndMAD(e.Data, 3, 3)
	sigma := e.Sigma()
	if math.Abs(float64(loc-500)) > 0.2*float64(sigma) {
		t.Errorf("location=%f; want 500", loc)
	}
	if math.Abs(float64(scale-sigma)) > 0.1*float64(sigma) {
		t.Errorf("scale=%f; want %f", scale, sigma)
	}
}

func TestFastApprox(t *testing.T) {
	e := synth.New(2).FlatSky(256, 256, 1000, 1, 5)
	samples := make([]float32, 16384)
	median := FastApproxMedian(e.Data, samples)
	sigma := e.Sigma()
	if math.Abs(float64(median-1000)) > 0.2*float64(sigma) {
		t.Errorf("median=%f; want 1000", median)
	}
	mad := FastApproxMAD(e.Data, median, samples)
	if math.Abs(float64(mad-sigma)) > 0.1*float64(sigma) {
		t.Errorf("mad=%f; want %f", mad, sigma)
	}
}

func TestHistogram(t *testing.T) {
	bins := make([]int32, 4)
	Histogram([]float32{0, 0.5, 1, 2.5, 4, 5, -1}, 0, 4, bins)
	want := []int32{2, 1, 1, 1}
	for i := range bins {
		if bins[i] != want[i] {
			t.Errorf("bins[%d]=%d; want %d", i, bins[i], want[i])
		}
	}
	x, y := GetPeak(bins, 0, 4)
	if x != 0.5 || y != 2 {
		t.Errorf("peak=(%f,%f); want (0.5,2)", x, y)
	}
}

func TestHistogramScaleLoc(t *testing.T) {
	e := synth.New(3).FlatSky(256, 256, 2000, 2, 8)
	loc, scale, err := HistogramScaleLoc(e.Data, 200)
	if err != nil {
		t.Fatal(err)
	}
	sigma := e.Sigma()
	if math.Abs(float64(loc-2000)) > 0.2*float64(sigma) {
		t.Errorf("location=%f; want 2000", loc)
	}
	if math.Abs(float64(scale-sigma)) > 0.1*float64(sigma) {
		t.Errorf("scale=%f; want %f", scale, sigma)
	}
}

func TestNoiseConsistency(t *testing.T) {
	e := synth.New(4).FlatSky(128, 128, 1000, 1, 5)
	smoothed := make([]float32, len(e.Data))
	noise := make([]float32, len(e.Data))
	for i := range smoothed {
		smoothed[i] = 1000
		noise[i] = ExpectedNoise(1000, 1, 5)
	}
	mask := make([]bool, len(e.Data))
	mask[0] = true
	e.Data[0] = 1e9
	mean, stdDev := NoiseConsistency(e.Data, smoothed, noise, mask)
	if math.Abs(mean) > 0.05 {
		t.Errorf("mean=%f; want 0", mean)
	}
	if math.Abs(stdDev-1) > 0.05 {
		t.Errorf("stdDev=%f; want 1", stdDev)
	}
}

func TestCompareMasks(t *testing.T) {
	width := 5
	truth := make([]bool, 25)
	detected := make([]bool, 25)
	truth[6], detected[6] = true, true // hit
	truth[18] = true                   // miss
	detected[7] = true                 // growth next to a hit
	detected[24] = true                // next to the miss, not counted
	detected[20] = true                // false positive
	c := CompareMasks(detected, truth, width)
	want := Confusion{TruePositives: 1, FalsePositives: 1, FalseNegatives: 1}
	if c != want {
		t.Errorf("confusion=%s; want %s", c, want)
	}
	if c.Completeness() != 0.5 || c.Purity() != 0.5 {
		t.Errorf("completeness=%f purity=%f; want 0.5", c.Completeness(), c.Purity())
	}
}
