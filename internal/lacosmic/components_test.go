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
	"testing"

	"github.com/mlnoga/lacosmic/internal/parallel"
)

func constImage(width, height int, value float32) []float32 {
	data := make([]float32, width*height)
	for i := range data {
		data[i] = value
	}
	return data
}

func TestNoiseMap(t *testing.T) {
	smoothed := []float32{100, 0, -5}
	noise := make([]float32, len(smoothed))
	NoiseMap(nil, noise, smoothed, 2, 4)
	want := []float64{math.Sqrt(216) / 2, math.Sqrt(16+1e-5) / 2, math.Sqrt(16+1e-5) / 2}
	for i := range noise {
		if math.Abs(float64(noise[i])-want[i]) > 1e-4 {
			t.Errorf("noise[%d]=%f; want %f", i, noise[i], want[i])
		}
	}

	// strictly positive even without read noise
	NoiseMap(nil, noise, smoothed, 1, 0)
	for i, n := range noise {
		if !(n > 0) {
			t.Errorf("noise[%d]=%g; want >0", i, n)
		}
	}
}

func TestLaplacianFlat(t *testing.T) {
	width, height := 9, 7
	lap := make([]float32, width*height)
	Laplacian(parallel.NewPool(3), lap, constImage(width, height, 123), width, height)
	for i, l := range lap {
		if l != 0 {
			t.Errorf("lap[%d]=%f; want 0", i, l)
		}
	}
}

func TestLaplacianSpike(t *testing.T) {
	width, height := 9, 7
	tcs := []struct {
		x, y int
		want float32
	}{
		{4, 3, 100},
		{0, 0, 100},
		{width - 1, height - 1, 100},
		{width - 1, 0, 100},
		{0, 3, 100},
		{4, height - 1, 100},
	}
	for _, tc := range tcs {
		data := make([]float32, width*height)
		data[tc.y*width+tc.x] = 100
		lap := make([]float32, width*height)
		Laplacian(nil, lap, data, width, height)
		if got := lap[tc.y*width+tc.x]; got != tc.want {
			t.Errorf("spike at (%d,%d) lap=%f; want %f", tc.x, tc.y, got, tc.want)
		}
		for i, l := range lap {
			if i != tc.y*width+tc.x && l != 0 {
				t.Errorf("spike at (%d,%d) lap[%d]=%f; want 0", tc.x, tc.y, i, l)
			}
		}
	}
}

func TestFineStructureFloor(t *testing.T) {
	small := []float32{10, 5, 5, 5}
	large := []float32{5, 5, 10, 5}
	noise := []float32{1, 1, 1, 1000}
	fine := make([]float32, 4)
	FineStructure(nil, fine, small, large, noise)
	want := []float32{5, fineFloor, fineFloor, fineFloor}
	for i := range fine {
		if fine[i] != want[i] {
			t.Errorf("fine[%d]=%f; want %f", i, fine[i], want[i])
		}
	}
}

func TestPSFKernel(t *testing.T) {
	for _, model := range []PSFModel{PSFGauss, PSFGaussX, PSFGaussY, PSFMoffat} {
		size := 7
		kernel, err := PSFKernel(model, 2.5, size, 4.765)
		if err != nil {
			t.Fatalf("model=%s err=%v", model, err)
		}
		sum := float32(0)
		for _, k := range kernel {
			sum += k
		}
		if math.Abs(float64(sum-1)) > 1e-5 {
			t.Errorf("model=%s sum=%f; want 1", model, sum)
		}
		centre := kernel[3*size+3]
		for i, k := range kernel {
			if k > centre {
				t.Errorf("model=%s k[%d]=%f exceeds centre %f", model, i, k, centre)
			}
			// point symmetric
			if k != kernel[len(kernel)-1-i] {
				t.Errorf("model=%s k[%d]=%f; want %f", model, i, k, kernel[len(kernel)-1-i])
			}
		}
		switch model {
		case PSFGaussX:
			if kernel[0*size+3] != 0 || kernel[3*size+0] == 0 {
				t.Errorf("model=%s not horizontal", model)
			}
		case PSFGaussY:
			if kernel[3*size+0] != 0 || kernel[0*size+3] == 0 {
				t.Errorf("model=%s not vertical", model)
			}
		}
	}
	if _, err := PSFKernel(PSFGauss, 2.5, 6, 0); err == nil {
		t.Errorf("even kernel size accepted")
	}
	if _, err := PSFKernel(PSFMoffat, 2.5, 7, 1); err == nil {
		t.Errorf("moffat beta=1 accepted")
	}
}

func TestConvolveFlat(t *testing.T) {
	width, height := 11, 8
	kernel, _ := PSFKernel(PSFGauss, 2, 5, 0)
	out := make([]float32, width*height)
	Convolve(parallel.NewPool(2), out, constImage(width, height, 50), width, height, kernel, 5)
	for i, v := range out {
		if math.Abs(float64(v-50)) > 1e-3 {
			t.Errorf("out[%d]=%f; want 50", i, v)
		}
	}
}

func TestSelectCandidatesStrict(t *testing.T) {
	snr := []float32{5, 4.5, 10, 10, 10}
	fine := []float32{0.5, 0.1, 2, 1, 0.5}
	excluded := []bool{false, false, false, false, true}
	cand := make([]bool, len(snr))
	num := SelectCandidates(nil, cand, snr, fine, excluded, 4.5, 5)
	// index 1 at sigclip, index 2 at objlim, index 4 excluded
	want := []bool{true, false, false, true, false}
	for i := range cand {
		if cand[i] != want[i] {
			t.Errorf("cand[%d]=%v; want %v", i, cand[i], want[i])
		}
	}
	if num != 2 {
		t.Errorf("num=%d; want 2", num)
	}
}

func TestGrowBounded(t *testing.T) {
	width, height := 9, 9
	centre := 4*width + 4
	cand := make([]bool, width*height)
	cand[centre] = true
	final := make([]bool, width*height)
	tmp := make([]bool, width*height)

	// everything above sigclip: two dilations give 5x5
	num := Grow(parallel.NewPool(2), final, tmp, cand, constImage(width, height, 10), nil, width, height, 5, 0.3)
	if num != 25 {
		t.Errorf("num=%d; want 25", num)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			want := x >= 2 && x <= 6 && y >= 2 && y <= 6
			if final[y*width+x] != want {
				t.Errorf("final(%d,%d)=%v; want %v", x, y, final[y*width+x], want)
			}
		}
	}

	// neighbours only above the relaxed threshold: one dilation
	snr := constImage(width, height, 2)
	snr[centre] = 10
	excluded := make([]bool, width*height)
	excluded[centre+1] = true
	num = Grow(nil, final, tmp, cand, snr, excluded, width, height, 5, 0.3)
	if num != 8 {
		t.Errorf("num=%d; want 8", num)
	}
	if final[centre+1] {
		t.Errorf("excluded pixel grown")
	}
	if final[centre+2] {
		t.Errorf("growth beyond one pixel")
	}

	// neighbours below the relaxed threshold stay unflagged
	snr = constImage(width, height, 1)
	snr[centre] = 10
	if num = Grow(nil, final, tmp, cand, snr, nil, width, height, 5, 0.3); num != 1 {
		t.Errorf("num=%d; want 1", num)
	}
}

func TestCleanTypes(t *testing.T) {
	width, height := 5, 5
	centre := 2*width + 2
	for _, ct := range []CleanType{CleanMedian, CleanMedMask, CleanMeanMask, CleanIDW} {
		data := constImage(width, height, 10)
		data[centre] = 1000
		mask := make([]bool, width*height)
		mask[centre] = true
		out := make([]float32, width*height)
		Clean(parallel.NewPool(2), out, data, mask, width, height, ct, 5, -1)
		for i, v := range out {
			if math.Abs(float64(v-10)) > 1e-4 {
				t.Errorf("type=%s out[%d]=%f; want 10", ct, i, v)
			}
		}
	}
}

func TestCleanMaskedNeighbours(t *testing.T) {
	width, height := 3, 1
	data := []float32{2, 100, 4}
	mask := []bool{false, true, false}
	out := make([]float32, 3)
	Clean(nil, out, data, mask, width, height, CleanMeanMask, 3, -1)
	if out[1] != 3 {
		t.Errorf("meanmask=%f; want 3", out[1])
	}
	Clean(nil, out, data, mask, width, height, CleanMedMask, 3, -1)
	if out[1] != 3 {
		t.Errorf("medmask=%f; want 3", out[1])
	}
	Clean(nil, out, data, mask, width, height, CleanMedian, 3, -1)
	if out[1] != 4 {
		t.Errorf("median=%f; want 4", out[1])
	}

	// no unmasked neighbour: fallback
	mask = []bool{true, true, true}
	Clean(nil, out, data, mask, width, height, CleanIDW, 3, -1)
	for i, v := range out {
		if v != -1 {
			t.Errorf("fallback out[%d]=%f; want -1", i, v)
		}
	}
}

func TestCleanIDW(t *testing.T) {
	width, height := 3, 3
	data := []float32{
		0, 8, 0,
		0, 99, 0,
		0, 0, 0,
	}
	mask := make([]bool, 9)
	mask[4] = true
	out := make([]float32, 9)
	Clean(nil, out, data, mask, width, height, CleanIDW, 3, 0)
	// four direct neighbours with weight 1, four diagonals with weight 1/sqrt2
	want := 8 / (4 + 4/math.Sqrt2)
	if math.Abs(float64(out[4])-want) > 1e-5 {
		t.Errorf("idw=%f; want %f", out[4], want)
	}
}

func TestSaturationMask(t *testing.T) {
	width, height := 20, 20
	level := float32(1000)
	data := constImage(width, height, 10)
	// saturated star core
	for y := 4; y <= 6; y++ {
		for x := 4; x <= 6; x++ {
			data[y*width+x] = level
		}
	}
	// isolated saturated pixel
	data[15*width+15] = level

	smoothed := make([]float32, len(data))
	tmp := make([]float32, len(data))
	smooth(nil, smoothed, tmp, data, width, height, 3, false)
	sat := make([]bool, len(data))
	grown := make([]bool, len(data))
	num := SaturationMask(nil, sat, grown, data, smoothed, width, height, level)
	// 3x3 core has a saturated median on a plus shape, grown twice to 7x7 minus corners
	if num != 45 {
		t.Errorf("num=%d; want 45", num)
	}
	if !sat[5*width+5] || !sat[3*width+3] || !sat[7*width+7] {
		t.Errorf("star core not masked")
	}
	if sat[2*width+2] || !sat[2*width+3] {
		t.Errorf("star mask has wrong shape")
	}
	if sat[15*width+15] {
		t.Errorf("isolated saturated pixel masked")
	}
}

func TestEstimateBytes(t *testing.T) {
	small, large := EstimateBytes(10, 10), EstimateBytes(100, 100)
	if large != 100*small {
		t.Errorf("estimate=%d; want %d", large, 100*small)
	}
	if err := checkBudget(100, 100, small); err == nil {
		t.Errorf("budget exceeded without error")
	}
	if err := checkBudget(100, 100, 0); err != nil {
		t.Errorf("unlimited budget err=%v", err)
	}
}
