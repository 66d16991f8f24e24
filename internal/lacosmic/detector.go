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

// Package lacosmic detects cosmic ray hits in single CCD exposures with the
// Laplacian edge detection method of van Dokkum (2001). Each pass computes the
// Laplacian of the 2x subsampled image, normalizes it with a noise model,
// rejects compact astronomical sources with a fine structure image, grows the
// detections and cleans them from the working image before the next pass.
package lacosmic

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/mlnoga/lacosmic/internal/parallel"
)

// Controller state of a detection run
type State int

const (
	Initializing State = iota
	Detecting
	Converged
	MaxIterationsReached
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Detecting:
		return "detecting"
	case Converged:
		return "converged"
	case MaxIterationsReached:
		return "max iterations reached"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome of a detection run
type Result struct {
	Mask         []bool    // cosmic ray mask, true=flagged
	Clean        []float32 // input image with flagged and bad pixels replaced, in input units
	FoundIn      []uint8   // 1-based pass in which each pixel was first flagged, 0 if never, capped at 255
	State        State     // Converged or MaxIterationsReached
	Iterations   int       // number of passes run
	PerIteration []int     // newly flagged pixels per pass
	NumFlagged   int       // total flagged pixels
	NumSaturated int       // pixels excluded as saturated stars
}

// Cosmic ray detector for images of a fixed size. Buffers are reused across
// runs, so a detector must not be used by multiple goroutines at once
type Detector struct {
	Prefix string // prepended to log lines, e.g. an image ID

	width, height int
	params        *Params
	pool          *parallel.Pool
	bufs          *Buffers
	psf           []float32
	fallback      float32
	log           io.Writer
	state         State
}

// Creates a detector for width x height images. Validates the parameters and
// the memory budget before allocating any buffers. A nil log writer discards
// progress output
func NewDetector(width, height int, p *Params, logWriter io.Writer) (*Detector, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image dimensions %dx%d", ErrShapeMismatch, width, height)
	}
	if err := checkBudget(width, height, p.MemoryBudget); err != nil {
		return nil, err
	}
	var psf []float32
	if p.FSMode == FSConvolve {
		var err error
		if psf, err = PSFKernel(p.PSFModel, p.PSFFWHM, p.PSFSize, p.PSFBeta); err != nil {
			return nil, err
		}
	}
	if logWriter == nil {
		logWriter = io.Discard
	}
	params := *p
	return &Detector{
		width:  width,
		height: height,
		params: &params,
		pool:   parallel.NewPool(p.Workers),
		bufs:   newBuffers(width * height),
		psf:    psf,
		log:    logWriter,
		state:  Initializing,
	}, nil
}

// Returns the controller state of the most recent run
func (d *Detector) State() State {
	return d.state
}

// Runs the detection on data, with optional bad pixel mask. Neither input is
// modified. Bad pixels may hold non-finite values, all other pixels must be finite
func (d *Detector) Run(data []float32, badPixels []bool) (*Result, error) {
	if err := validateInput(data, d.width, d.height, badPixels); err != nil {
		return nil, err
	}
	return d.run(data, badPixels), nil
}

func (d *Detector) run(data []float32, badPixels []bool) *Result {
	start := time.Now()
	d.state = Initializing
	p, b := d.params, d.bufs

	// convert to electrons and reset masks
	d.pool.Range(len(data), func(lower, upper int) {
		for i := lower; i < upper; i++ {
			b.work[i] = (data[i] + p.Background) * p.Gain
			bad := badPixels != nil && badPixels[i]
			b.excluded[i] = bad
			b.cleanMask[i] = bad
			b.crmask[i] = false
			b.foundIn[i] = 0
		}
	})
	d.fallback = skyMedian(b.work, badPixels, b.tmp)
	numBad := 0
	for i, bad := range b.cleanMask {
		if bad {
			numBad++
			if !finite(b.work[i]) {
				b.work[i] = d.fallback
			}
		}
	}

	numSat := d.saturationMask()
	if numSat > 0 {
		fmt.Fprintf(d.log, "%sExcluding %d pixels of saturated stars\n", d.Prefix, numSat)
	}
	if p.PreClean && numBad > 0 {
		d.clean(b.cleanMask)
		fmt.Fprintf(d.log, "%sPre-cleaned %d bad pixels\n", d.Prefix, numBad)
	}

	res := &Result{NumSaturated: numSat}
	for iter := 1; iter <= p.MaxIter; iter++ {
		d.state = Detecting
		d.noiseModel()
		d.laplacianSNR()
		d.fineStructure()
		numCand := SelectCandidates(d.pool, b.cand, b.snr, b.fine, b.excluded, p.SigClip, p.ObjLim)
		Grow(d.pool, b.final, b.grown, b.cand, b.snr, b.excluded, d.width, d.height, p.SigClip, p.SigFrac)

		// merge on the controller goroutine
		numNew := 0
		for i, f := range b.final {
			if f && !b.crmask[i] {
				b.crmask[i] = true
				b.foundIn[i] = passTag(iter)
				numNew++
			}
		}
		res.NumFlagged += numNew
		res.PerIteration = append(res.PerIteration, numNew)
		res.Iterations = iter
		fmt.Fprintf(d.log, "%sPass %d: %d candidates, %d new pixels, %d total\n",
			d.Prefix, iter, numCand, numNew, res.NumFlagged)

		if numNew == 0 {
			d.state = Converged
			break
		}
		d.pool.Range(len(b.cleanMask), func(lower, upper int) {
			for i := lower; i < upper; i++ {
				b.cleanMask[i] = b.crmask[i] || (badPixels != nil && badPixels[i])
			}
		})
		d.clean(b.cleanMask)
		if iter == p.MaxIter {
			d.state = MaxIterationsReached
		}
	}
	res.State = d.state

	// back to input units
	res.Mask = make([]bool, len(data))
	copy(res.Mask, b.crmask)
	res.FoundIn = make([]uint8, len(data))
	copy(res.FoundIn, b.foundIn)
	res.Clean = make([]float32, len(data))
	invGain := 1 / p.Gain
	d.pool.Range(len(data), func(lower, upper int) {
		for i := lower; i < upper; i++ {
			res.Clean[i] = b.work[i]*invGain - p.Background
		}
	})
	fmt.Fprintf(d.log, "%s%s after %d passes, %d pixels flagged in %v\n",
		d.Prefix, res.State, res.Iterations, res.NumFlagged, time.Since(start))
	return res
}

// Per-pixel pass number for the iteration map. Passes beyond 255 share the last tag
func passTag(iter int) uint8 {
	if iter > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(iter)
}

// Detects cosmic rays in a width x height image with a fresh detector.
// See Detector.Run
func Detect(data []float32, width, height int, badPixels []bool, p *Params, logWriter io.Writer) (*Result, error) {
	if err := validateInput(data, width, height, badPixels); err != nil {
		return nil, err
	}
	d, err := NewDetector(width, height, p, logWriter)
	if err != nil {
		return nil, err
	}
	return d.run(data, badPixels), nil
}
