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
	"errors"
	"fmt"
	"math"
)

var (
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNonFiniteInput   = errors.New("non-finite input")
	ErrResource         = errors.New("insufficient resources")
)

// Replacement strategy for flagged pixels in the working image
type CleanType string

const (
	CleanMedian   CleanType = "median"   // median of the full window, flagged pixels included
	CleanMedMask  CleanType = "medmask"  // median of unflagged pixels in the window
	CleanMeanMask CleanType = "meanmask" // mean of unflagged pixels in the window
	CleanIDW      CleanType = "idw"      // inverse distance weighted mean of unflagged pixels
)

// Fine structure estimation mode
type FSMode string

const (
	FSMedian   FSMode = "median"   // median filtered image minus its larger scale median
	FSConvolve FSMode = "convolve" // PSF convolved image minus its larger scale median
)

// Point spread function model for FSConvolve
type PSFModel string

const (
	PSFGauss  PSFModel = "gauss"
	PSFGaussX PSFModel = "gaussx"
	PSFGaussY PSFModel = "gaussy"
	PSFMoffat PSFModel = "moffat"
)

// Detection parameters. Intensities are in input units (ADU), noise in electrons
type Params struct {
	Gain       float32 `json:"gain"       yaml:"gain"`       // electrons per ADU
	ReadNoise  float32 `json:"readNoise"  yaml:"readNoise"`  // read noise in electrons
	SigClip    float32 `json:"sigClip"    yaml:"sigClip"`    // Laplacian signal to noise detection limit
	SigFrac    float32 `json:"sigFrac"    yaml:"sigFrac"`    // fraction of SigClip for neighbouring pixels
	ObjLim     float32 `json:"objLim"     yaml:"objLim"`     // minimum contrast between Laplacian and fine structure
	Background float32 `json:"background" yaml:"background"` // previously subtracted sky level in ADU
	SatLevel   float32 `json:"satLevel"   yaml:"satLevel"`   // saturation level in ADU, <=0 disables saturation masking
	MaxIter    int     `json:"maxIter"    yaml:"maxIter"`    // maximum number of detection passes

	SepMed    bool      `json:"sepMed"    yaml:"sepMed"`    // use separable medians
	CleanType CleanType `json:"cleanType" yaml:"cleanType"` // replacement strategy for flagged pixels

	// Replace bad pixels before the first pass. Only pre-cleaning keeps bad pixel
	// values out of the noise and fine structure medians. With it disabled they
	// are still never reported as cosmic rays
	PreClean bool `json:"preClean" yaml:"preClean"`

	FSMode   FSMode   `json:"fsMode"   yaml:"fsMode"`
	PSFModel PSFModel `json:"psfModel" yaml:"psfModel"`
	PSFFWHM  float32  `json:"psfFWHM"  yaml:"psfFWHM"`  // PSF full width at half maximum in pixels
	PSFSize  int      `json:"psfSize"  yaml:"psfSize"`  // PSF kernel size in pixels, odd
	PSFBeta  float32  `json:"psfBeta"  yaml:"psfBeta"`  // Moffat beta

	NoiseWindow      int `json:"noiseWindow"      yaml:"noiseWindow"`      // median window for noise model and large structure removal
	FineWindow       int `json:"fineWindow"       yaml:"fineWindow"`       // median window for fine structure
	FineSmoothWindow int `json:"fineSmoothWindow" yaml:"fineSmoothWindow"` // median window for the fine structure baseline
	CleanWindow      int `json:"cleanWindow"      yaml:"cleanWindow"`      // neighbourhood for replacing flagged pixels

	Workers      int    `json:"workers"      yaml:"workers"`      // worker goroutines, 0=GOMAXPROCS
	MemoryBudget uint64 `json:"memoryBudget" yaml:"memoryBudget"` // maximum buffer bytes, 0=unlimited
}

// Returns the standard LA Cosmic parameters
func DefaultParams() *Params {
	return &Params{
		Gain:       1.0,
		ReadNoise:  6.5,
		SigClip:    4.5,
		SigFrac:    0.3,
		ObjLim:     5.0,
		Background: 0,
		SatLevel:   65536,
		MaxIter:    4,

		SepMed:    true,
		CleanType: CleanMeanMask,
		PreClean:  true,

		FSMode:   FSMedian,
		PSFModel: PSFGauss,
		PSFFWHM:  2.5,
		PSFSize:  7,
		PSFBeta:  4.765,

		NoiseWindow:      5,
		FineWindow:       3,
		FineSmoothWindow: 7,
		CleanWindow:      5,
	}
}

func invalid(name string, value interface{}, want string) error {
	return fmt.Errorf("%w: %s=%v, want %s", ErrInvalidParameter, name, value, want)
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// Checks all parameters against their valid ranges. Comparisons are written
// so that NaN values fail them
func (p *Params) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: missing parameters", ErrInvalidParameter)
	}
	if !(p.Gain > 0) || !finite(p.Gain) {
		return invalid("gain", p.Gain, ">0")
	}
	if !(p.ReadNoise >= 0) || !finite(p.ReadNoise) {
		return invalid("readNoise", p.ReadNoise, ">=0")
	}
	if !(p.SigClip > 0) || !finite(p.SigClip) {
		return invalid("sigClip", p.SigClip, ">0")
	}
	if !(p.SigFrac > 0 && p.SigFrac < 1) {
		return invalid("sigFrac", p.SigFrac, "in (0,1)")
	}
	if !(p.ObjLim > 0) || !finite(p.ObjLim) {
		return invalid("objLim", p.ObjLim, ">0")
	}
	if !finite(p.Background) {
		return invalid("background", p.Background, "finite")
	}
	if math.IsNaN(float64(p.SatLevel)) {
		return invalid("satLevel", p.SatLevel, "a number")
	}
	if p.MaxIter < 1 {
		return invalid("maxIter", p.MaxIter, ">=1")
	}
	switch p.CleanType {
	case CleanMedian, CleanMedMask, CleanMeanMask, CleanIDW:
	default:
		return invalid("cleanType", p.CleanType, "one of median, medmask, meanmask, idw")
	}
	switch p.FSMode {
	case FSMedian:
	case FSConvolve:
		switch p.PSFModel {
		case PSFGauss, PSFGaussX, PSFGaussY:
		case PSFMoffat:
			if !(p.PSFBeta > 1) || !finite(p.PSFBeta) {
				return invalid("psfBeta", p.PSFBeta, ">1")
			}
		default:
			return invalid("psfModel", p.PSFModel, "one of gauss, gaussx, gaussy, moffat")
		}
		if !(p.PSFFWHM > 0) || !finite(p.PSFFWHM) {
			return invalid("psfFWHM", p.PSFFWHM, ">0")
		}
		if p.PSFSize < 3 || p.PSFSize%2 == 0 {
			return invalid("psfSize", p.PSFSize, "odd and >=3")
		}
	default:
		return invalid("fsMode", p.FSMode, "one of median, convolve")
	}
	windows := []struct {
		name  string
		value int
	}{
		{"noiseWindow", p.NoiseWindow},
		{"fineWindow", p.FineWindow},
		{"fineSmoothWindow", p.FineSmoothWindow},
		{"cleanWindow", p.CleanWindow},
	}
	for _, w := range windows {
		if w.value < 3 || w.value%2 == 0 {
			return invalid(w.name, w.value, "odd and >=3")
		}
	}
	if p.Workers < 0 {
		return invalid("workers", p.Workers, ">=0")
	}
	return nil
}

// Window size to use for a median of the given nominal size. Separable medians
// are two pixels wider to approximate the square median
func (p *Params) medianSize(size int) int {
	if p.SepMed {
		return size + 2
	}
	return size
}

// Checks shapes and pixel values of an input exposure
func validateInput(data []float32, width, height int, badPixels []bool) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: image dimensions %dx%d", ErrShapeMismatch, width, height)
	}
	if len(data) != width*height {
		return fmt.Errorf("%w: image has %d pixels, want %dx%d=%d", ErrShapeMismatch, len(data), width, height, width*height)
	}
	if badPixels != nil && len(badPixels) != len(data) {
		return fmt.Errorf("%w: bad pixel mask has %d pixels, image %dx%d=%d", ErrShapeMismatch, len(badPixels), width, height, len(data))
	}
	for i, d := range data {
		if !finite(d) && (badPixels == nil || !badPixels[i]) {
			return fmt.Errorf("%w: pixel (%d,%d)=%v is not masked", ErrNonFiniteInput, i%width, i/width, d)
		}
	}
	return nil
}
