// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed ins the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Package cosmic wraps the LA Cosmic detector into an image operator
package cosmic

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/mlnoga/lacosmic/internal/fits"
	"github.com/mlnoga/lacosmic/internal/lacosmic"
	"github.com/mlnoga/lacosmic/internal/ops"
	"github.com/mlnoga/lacosmic/internal/stats"
)

// Detects and removes cosmic rays from an image. Returns the cleaned image
// with the cosmic ray mask attached. Optionally writes the mask and a preview
// of the original data with the mask overlaid
type OpCosmic struct {
	ops.OpUnaryBase
	lacosmic.Params
	UseHeader     bool        `json:"useHeader"`     // take gain, read noise and saturation level from the FITS header if present
	MaskNonFinite bool        `json:"maskNonFinite"` // treat NaN and Inf pixels as bad pixels
	BadPixels     string      `json:"badPixels"`     // bad pixel mask file, nonzero pixels are bad
	Mask          *ops.OpSave `json:"mask"`
	Preview       *ops.OpSave `json:"preview"`

	mutex sync.Mutex
	bpm   *fits.Image
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpCosmicDefaults() }) } // register the operator for JSON decoding

func NewOpCosmicDefaults() *OpCosmic {
	return NewOpCosmic(lacosmic.DefaultParams(), "", "", "")
}

func NewOpCosmic(p *lacosmic.Params, badPixels, maskPattern, previewPattern string) *OpCosmic {
	op := &OpCosmic{
		OpUnaryBase:   ops.OpUnaryBase{OpBase: ops.OpBase{Type: "cosmic", Active: true}},
		Params:        *p,
		MaskNonFinite: true,
		BadPixels:     badPixels,
		Mask:          ops.NewOpSave(maskPattern, ops.SaveMask),
		Preview:       ops.NewOpSave(previewPattern, ops.SavePreview),
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpCosmic) UnmarshalJSON(data []byte) error {
	type defaults OpCosmic
	def := (*defaults)(NewOpCosmicDefaults())
	if err := json.Unmarshal(data, def); err != nil {
		return err
	}
	op.OpUnaryBase = def.OpUnaryBase
	op.Params = def.Params
	op.UseHeader = def.UseHeader
	op.MaskNonFinite = def.MaskNonFinite
	op.BadPixels = def.BadPixels
	op.Mask = def.Mask
	op.Preview = def.Preview
	op.bpm = nil
	if op.Mask != nil {
		op.Mask.Content = ops.SaveMask
	}
	if op.Preview != nil {
		op.Preview.Content = ops.SavePreview
	}

	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Lazily loads the bad pixel mask, once for all images
func (op *OpCosmic) init(c *ops.Context) error {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	if op.BadPixels == "" || op.bpm != nil {
		return nil
	}
	bpm, err := fits.NewImageFromFile(op.BadPixels, -1, c.Log)
	if err != nil {
		return fmt.Errorf("loading bad pixel mask: %w", err)
	}
	if err = bpm.CheckMono(); err != nil {
		return fmt.Errorf("bad pixel mask %s: %w", op.BadPixels, err)
	}
	op.bpm = bpm
	return nil
}

// Returns the parameters for the given image: header overrides if enabled,
// and the context's share of workers and memory
func (op *OpCosmic) paramsFor(f *fits.Image, c *ops.Context) *lacosmic.Params {
	p := op.Params
	if op.UseHeader {
		if v, ok := f.Header.Number(fits.GainKeys...); ok && v > 0 {
			p.Gain = v
		}
		if v, ok := f.Header.Number(fits.ReadNoiseKeys...); ok && v >= 0 {
			p.ReadNoise = v
		}
		if v, ok := f.Header.Number(fits.SatLevelKeys...); ok && v > 0 {
			p.SatLevel = v
		}
	}
	workers, budget := c.Share()
	if p.Workers == 0 {
		p.Workers = workers
	}
	if p.MemoryBudget == 0 {
		p.MemoryBudget = budget
	}
	return &p
}

// Builds the bad pixel mask for an image from the mask file and non-finite pixels.
// Returns nil if no pixel is bad
func (op *OpCosmic) badPixelsFor(f *fits.Image) (bad []bool, num int, err error) {
	if op.bpm != nil {
		if op.bpm.Width() != f.Width() || op.bpm.Height() != f.Height() {
			return nil, 0, fmt.Errorf("%w: bad pixel mask %s is %s, image %s", lacosmic.ErrShapeMismatch,
				op.bpm.FileName, op.bpm.DimensionsToString(), f.DimensionsToString())
		}
		bad = make([]bool, len(f.Data))
		for i, v := range op.bpm.Data {
			if v != 0 {
				bad[i] = true
				num++
			}
		}
	}
	if op.MaskNonFinite {
		for i, v := range f.Data {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				if bad == nil {
					bad = make([]bool, len(f.Data))
				}
				if !bad[i] {
					bad[i] = true
					num++
				}
			}
		}
	}
	return bad, num, nil
}

func (op *OpCosmic) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	if err = op.init(c); err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	if err = f.CheckMono(); err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	bad, numBad, err := op.badPixelsFor(f)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	if numBad > 0 {
		fmt.Fprintf(c.Log, "%d: Using %d bad pixels\n", f.ID, numBad)
	}

	p := op.paramsFor(f, c)
	fmt.Fprintf(c.Log, "%d: Detecting cosmic rays with gain %.4g readNoise %.4g sigClip %.4g sigFrac %.4g objLim %.4g satLevel %.6g\n",
		f.ID, p.Gain, p.ReadNoise, p.SigClip, p.SigFrac, p.ObjLim, p.SatLevel)
	d, err := lacosmic.NewDetector(f.Width(), f.Height(), p, c.Log)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	d.Prefix = fmt.Sprintf("%d: ", f.ID)
	res, err := d.Run(f.Data, bad)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}

	// the preview shows the original data under the mask
	f.Mask, f.FoundIn = res.Mask, res.FoundIn
	if op.Preview != nil && op.Preview.Active {
		if _, err = op.Preview.Apply(f, c); err != nil {
			return nil, err
		}
	}

	out := fits.NewImageFromImage(f, res.Clean)
	out.Mask, out.FoundIn = res.Mask, res.FoundIn
	out.Header.Ints["CRNPIX"] = int32(res.NumFlagged)
	out.Header.Ints["CRNITER"] = int32(res.Iterations)
	out.Header.History = append(out.Header.History,
		fmt.Sprintf("LA Cosmic sigclip=%.4g sigfrac=%.4g objlim=%.4g gain=%.4g rdnoise=%.4g",
			p.SigClip, p.SigFrac, p.ObjLim, p.Gain, p.ReadNoise),
		fmt.Sprintf("LA Cosmic %s after %d passes, %d pixels replaced", res.State, res.Iterations, res.NumFlagged),
	)
	out.Stats = stats.CalcBasicStats(out.Data)
	if f.Stats != nil {
		out.Stats.Location, out.Stats.Scale = f.Stats.Location, f.Stats.Scale
	}

	if op.Mask != nil && op.Mask.Active {
		if _, err = op.Mask.Apply(out, c); err != nil {
			return nil, err
		}
	}
	return out, nil
}
