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

package median

import (
	"math"
	"testing"

	"github.com/mlnoga/lacosmic/internal/parallel"
	"github.com/valyala/fastrand"
)

func TestFilterRemovesSpike(t *testing.T) {
	width, height := 13, 11
	data := make([]float32, width*height)
	for i := range data {
		data[i] = 100 + float32(i&3)
	}
	data[5*width+6] = 5000
	for _, size := range []int{3, 5, 7} {
		out := make([]float32, len(data))
		Filter(parallel.NewPool(4), out, data, width, height, size)
		if out[5*width+6] > 103 {
			t.Errorf("size=%d out=%f; want <=103", size, out[5*width+6])
		}
	}
}

func TestFilterEdgeTruncation(t *testing.T) {
	width, height := 4, 3
	data := []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
	}
	out := make([]float32, len(data))
	Filter(nil, out, data, width, height, 3)
	// corner window at (0,0) is 1,2 / 5,6
	if out[0] != 3.5 {
		t.Errorf("out[0]=%f; want 3.5", out[0])
	}
	// edge window at (1,0) is 1,2,3 / 5,6,7
	if out[1] != 4 {
		t.Errorf("out[1]=%f; want 4", out[1])
	}
	// corner window at (3,2) is 7,8 / 11,12
	if out[11] != 9.5 {
		t.Errorf("out[11]=%f; want 9.5", out[11])
	}
	// interior window at (1,1) is 1,2,3 / 5,6,7 / 9,10,11
	if out[5] != 6 {
		t.Errorf("out[5]=%f; want 6", out[5])
	}
}

func TestFilter3x3MatchesGeneral(t *testing.T) {
	width, height := 37, 23
	rng := fastrand.RNG{}
	data := make([]float32, width*height)
	for i := range data {
		data[i] = float32(rng.Uint32n(1000))
	}
	fast := make([]float32, len(data))
	general := make([]float32, len(data))
	Filter(parallel.NewPool(3), fast, data, width, height, 3)
	filterRows(general, data, width, height, 3, 0, height)
	for i := range fast {
		if fast[i] != general[i] {
			t.Fatalf("fast[%d]=%f; want %f", i, fast[i], general[i])
		}
	}
}

func TestSeparableFilterFlat(t *testing.T) {
	width, height := 16, 9
	data := make([]float32, width*height)
	for i := range data {
		data[i] = 42
	}
	data[4*width+4] = 1e6
	out := make([]float32, len(data))
	tmp := make([]float32, len(data))
	SeparableFilter(parallel.NewPool(2), out, tmp, data, width, height, 7)
	for i, v := range out {
		if v != 42 {
			t.Errorf("out[%d]=%f; want 42", i, v)
		}
	}
}

func TestCornerSpikeNotSpread(t *testing.T) {
	width, height := 12, 12
	data := make([]float32, width*height)
	for i := range data {
		data[i] = 10
	}
	data[0] = 1000
	out := make([]float32, len(data))
	tmp := make([]float32, len(data))
	SeparableFilter(nil, out, tmp, data, width, height, 7)
	if out[0] != 10 {
		t.Errorf("separable out[0]=%f; want 10", out[0])
	}
	Filter(nil, out, data, width, height, 5)
	if out[0] != 10 {
		t.Errorf("square out[0]=%f; want 10", out[0])
	}
}

func TestMedianEmpty(t *testing.T) {
	if !math.IsNaN(float64(Median(nil))) {
		t.Errorf("median of empty slice not NaN")
	}
	if m := Median([]float32{3, 1, 2}); m != 2 {
		t.Errorf("median=%f; want 2", m)
	}
}
