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

package synth

import (
	"math"
	"testing"
)

func TestNormalMoments(t *testing.T) {
	g := New(42)
	n := 100000
	sum, sumSq := 0.0, 0.0
	for i := 0; i < n; i++ {
		v := g.Normal()
		sum += v
		sumSq += v * v
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if math.Abs(mean) > 0.02 {
		t.Errorf("mean=%f; want 0", mean)
	}
	if math.Abs(variance-1) > 0.02 {
		t.Errorf("variance=%f; want 1", variance)
	}
}

func TestSeedReproducible(t *testing.T) {
	a := New(7).FlatSky(16, 16, 1000, 1, 5)
	b := New(7).FlatSky(16, 16, 1000, 1, 5)
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("data[%d]=%f; want %f", i, a.Data[i], b.Data[i])
		}
	}
}

func TestFlatSkySigma(t *testing.T) {
	e := New(1).FlatSky(128, 128, 1000, 2, 10)
	want := float32(math.Sqrt(2000+100) / 2)
	if math.Abs(float64(e.Sigma()-want)) > 1e-4 {
		t.Errorf("sigma=%f; want %f", e.Sigma(), want)
	}
	sum, sumSq := 0.0, 0.0
	for _, d := range e.Data {
		sum += float64(d)
		sumSq += float64(d) * float64(d)
	}
	n := float64(len(e.Data))
	mean := sum / n
	std := math.Sqrt(sumSq/n - mean*mean)
	if math.Abs(mean-1000) > 0.5 {
		t.Errorf("mean=%f; want 1000", mean)
	}
	if math.Abs(std-float64(want)) > 0.05*float64(want) {
		t.Errorf("std=%f; want %f", std, want)
	}
}

func TestAddTrack(t *testing.T) {
	e := &Exposure{Width: 10, Height: 10, Data: make([]float32, 100), Truth: make([]bool, 100)}
	e.AddTrack(1, 1, 5, 3, 100)
	if n := e.NumTruth(); n != 5 {
		t.Errorf("track pixels=%d; want 5", n)
	}
	if !e.Truth[1*10+1] || !e.Truth[3*10+5] {
		t.Errorf("track endpoints not set")
	}
	e.AddSpike(-1, 3, 100)
	e.AddSpike(3, 10, 100)
	if n := e.NumTruth(); n != 5 {
		t.Errorf("pixels after out of bounds spikes=%d; want 5", n)
	}
}

func TestStarPeak(t *testing.T) {
	for _, moffat := range []bool{false, true} {
		e := &Exposure{Width: 21, Height: 21, Data: make([]float32, 441), Truth: make([]bool, 441)}
		if moffat {
			e.AddMoffatStar(10, 10, 3, 4.765, 500)
		} else {
			e.AddGaussianStar(10, 10, 3, 500)
		}
		if c := e.Data[10*21+10]; c != 500 {
			t.Errorf("moffat=%v centre=%f; want 500", moffat, c)
		}
		// half maximum at half the FWHM
		half := e.Data[10*21+10+1]
		if half < 250 || half > 500 {
			t.Errorf("moffat=%v at r=1: %f; want in [250,500]", moffat, half)
		}
		if e.NumTruth() != 0 {
			t.Errorf("moffat=%v star marked as cosmic ray", moffat)
		}
	}
}

func TestAddRandomCosmics(t *testing.T) {
	g := New(3)
	e := g.FlatSky(64, 48, 100, 1, 5)
	g.AddRandomCosmics(e, 20, 500, 1000)
	n := e.NumTruth()
	if n < 10 || n > 20*5 {
		t.Errorf("truth pixels=%d; want in [10,100]", n)
	}
	for y := 0; y < e.Height; y++ {
		for x := 0; x < e.Width; x++ {
			if e.Truth[y*e.Width+x] && (x < 2 || y < 2 || x >= e.Width-2 || y >= e.Height-2) {
				t.Errorf("cosmic at (%d,%d) within edge margin", x, y)
			}
		}
	}
}
