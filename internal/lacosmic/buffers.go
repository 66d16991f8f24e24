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
)

const (
	numFloatBuffers = 10
	numBoolBuffers  = 7
)

// Intermediate images of a detection run. Allocated once per detector and
// reused across passes
type Buffers struct {
	work     []float32 // working image in electrons, cleaned between passes
	smoothed []float32 // median smoothed working image
	tmp      []float32 // scratch for separable medians and sky median
	noise    []float32 // noise model
	lap      []float32 // Laplacian, then Laplacian signal to noise
	snr      []float32 // Laplacian signal to noise with large structures removed
	m3       []float32 // small scale smoothed image
	m37      []float32 // larger scale median of m3
	fine     []float32 // fine structure image
	repl     []float32 // replacement values for cleaning

	cand      []bool // candidates of the current pass
	grown     []bool // intermediate growth result
	final     []bool // grown candidates of the current pass
	excluded  []bool // bad pixels and saturated stars
	sat       []bool // saturated stars
	cleanMask []bool // pixels to replace in the working image
	crmask    []bool // accumulated cosmic ray mask

	foundIn []uint8 // 1-based pass in which a pixel was first flagged, 0 if never
}

// Estimates the number of bytes needed for the buffers of a width x height
// detection, including the result images
func EstimateBytes(width, height int) uint64 {
	n := uint64(width) * uint64(height)
	floats := uint64(numFloatBuffers + 1) // plus clean output
	bools := uint64(numBoolBuffers + 1)   // plus mask output
	return n * (floats*4 + bools + 2)     // foundIn twice
}

// Allocates buffers for n pixels
func newBuffers(n int) *Buffers {
	return &Buffers{
		work:     make([]float32, n),
		smoothed: make([]float32, n),
		tmp:      make([]float32, n),
		noise:    make([]float32, n),
		lap:      make([]float32, n),
		snr:      make([]float32, n),
		m3:       make([]float32, n),
		m37:      make([]float32, n),
		fine:     make([]float32, n),
		repl:     make([]float32, n),

		cand:      make([]bool, n),
		grown:     make([]bool, n),
		final:     make([]bool, n),
		excluded:  make([]bool, n),
		sat:       make([]bool, n),
		cleanMask: make([]bool, n),
		crmask:    make([]bool, n),

		foundIn: make([]uint8, n),
	}
}

// Checks the estimated footprint against a budget in bytes, 0=unlimited
func checkBudget(width, height int, budget uint64) error {
	if budget == 0 {
		return nil
	}
	if need := EstimateBytes(width, height); need > budget {
		return fmt.Errorf("%w: %dx%d image needs %d MB, budget %d MB", ErrResource,
			width, height, need>>20, budget>>20)
	}
	return nil
}
