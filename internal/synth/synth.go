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

// Package synth generates synthetic CCD exposures with known cosmic ray hits
// and stars, for testing detection quality.
package synth

import (
	"math"

	"github.com/valyala/fastrand"
)

// A synthetic exposure in ADU, with the ground truth of injected cosmic rays
type Exposure struct {
	Width, Height int
	Data          []float32
	Truth         []bool // true where a cosmic ray was injected
	Sky           float32
	Gain          float32 // electrons per ADU
	ReadNoise     float32 // electrons
}

// Reproducible random source for synthetic exposures. Not safe for concurrent use
type Generator struct {
	rng      fastrand.RNG
	hasSpare bool
	spare    float64
}

// Creates a generator with the given seed
func New(seed uint32) *Generator {
	g := &Generator{}
	g.rng.Seed(seed)
	return g
}

// Returns a uniform random number in (0,1]
func (g *Generator) Uniform() float64 {
	return (float64(g.rng.Uint32()) + 1) / (1 << 32)
}

// Returns a standard normal random number, using the Box-Muller transform
func (g *Generator) Normal() float64 {
	if g.hasSpare {
		g.hasSpare = false
		return g.spare
	}
	u1, u2 := g.Uniform(), g.Uniform()
	r := math.Sqrt(-2 * math.Log(u1))
	g.spare, g.hasSpare = r*math.Sin(2*math.Pi*u2), true
	return r * math.Cos(2*math.Pi*u2)
}

// Returns a random integer in [0,n)
func (g *Generator) Intn(n int) int {
	return int(g.rng.Uint32n(uint32(n)))
}

// Creates a flat sky exposure with shot noise and read noise. Shot noise is
// approximated by a Gaussian, which is accurate for sky levels of more than a
// few dozen electrons
func (g *Generator) FlatSky(width, height int, sky, gain, readNoise float32) *Exposure {
	e := &Exposure{
		Width:     width,
		Height:    height,
		Data:      make([]float32, width*height),
		Truth:     make([]bool, width*height),
		Sky:       sky,
		Gain:      gain,
		ReadNoise: readNoise,
	}
	sigma := float64(e.Sigma())
	for i := range e.Data {
		e.Data[i] = sky + float32(sigma*g.Normal())
	}
	return e
}

// Returns the standard deviation of the sky in ADU
func (e *Exposure) Sigma() float32 {
	return float32(math.Sqrt(float64(e.Sky*e.Gain+e.ReadNoise*e.ReadNoise))) / e.Gain
}

// Injects a single pixel cosmic ray with the given amplitude above sky.
// Coordinates outside the image are ignored
func (e *Exposure) AddSpike(x, y int, amplitude float32) {
	if x < 0 || x >= e.Width || y < 0 || y >= e.Height {
		return
	}
	i := y*e.Width + x
	e.Data[i] += amplitude
	e.Truth[i] = true
}

// Injects a straight cosmic ray track from (x0,y0) to (x1,y1), one pixel wide
func (e *Exposure) AddTrack(x0, y0, x1, y1 int, amplitude float32) {
	dx, dy := x1-x0, y1-y0
	steps := abs(dx)
	if abs(dy) > steps {
		steps = abs(dy)
	}
	if steps == 0 {
		e.AddSpike(x0, y0, amplitude)
		return
	}
	for s := 0; s <= steps; s++ {
		x := x0 + int(math.Round(float64(dx*s)/float64(steps)))
		y := y0 + int(math.Round(float64(dy*s)/float64(steps)))
		e.AddSpike(x, y, amplitude)
	}
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// Adds a noiseless circular Gaussian star with given full width at half maximum
// and peak above sky. Stars are not part of the ground truth
func (e *Exposure) AddGaussianStar(cx, cy, fwhm, peak float32) {
	sigma := float64(fwhm) / (2 * math.Sqrt(2*math.Ln2))
	e.addStar(cx, cy, float32(4*sigma+1), func(r2 float64) float64 {
		return math.Exp(-r2 / (2 * sigma * sigma))
	}, peak)
}

// Adds a noiseless circular Moffat star with given full width at half maximum,
// beta and peak above sky
func (e *Exposure) AddMoffatStar(cx, cy, fwhm, beta, peak float32) {
	alpha := float64(fwhm) / (2 * math.Sqrt(math.Pow(2, 1/float64(beta))-1))
	e.addStar(cx, cy, float32(6*alpha+1), func(r2 float64) float64 {
		return math.Pow(1+r2/(alpha*alpha), -float64(beta))
	}, peak)
}

func (e *Exposure) addStar(cx, cy, radius float32, profile func(r2 float64) float64, peak float32) {
	x0, x1 := int(cx-radius), int(cx+radius+1)
	y0, y1 := int(cy-radius), int(cy+radius+1)
	for y := y0; y <= y1; y++ {
		if y < 0 || y >= e.Height {
			continue
		}
		for x := x0; x <= x1; x++ {
			if x < 0 || x >= e.Width {
				continue
			}
			dx, dy := float64(float32(x)-cx), float64(float32(y)-cy)
			e.Data[y*e.Width+x] += peak * float32(profile(dx*dx+dy*dy))
		}
	}
}

// Injects n cosmic rays at random positions with amplitudes uniform in
// [minAmp,maxAmp). About one in four hits is a short track rather than a spike.
// Positions keep a margin of two pixels from the edges
func (g *Generator) AddRandomCosmics(e *Exposure, n int, minAmp, maxAmp float32) {
	if e.Width <= 4 || e.Height <= 4 {
		return
	}
	for i := 0; i < n; i++ {
		x := 2 + g.Intn(e.Width-4)
		y := 2 + g.Intn(e.Height-4)
		amp := minAmp + float32(g.Uniform())*(maxAmp-minAmp)
		if g.Intn(4) == 0 {
			x1 := x + g.Intn(5) - 2
			y1 := y + g.Intn(5) - 2
			if x1 < 2 {
				x1 = 2
			} else if x1 >= e.Width-2 {
				x1 = e.Width - 3
			}
			if y1 < 2 {
				y1 = 2
			} else if y1 >= e.Height-2 {
				y1 = e.Height - 3
			}
			e.AddTrack(x, y, x1, y1, amp)
		} else {
			e.AddSpike(x, y, amp)
		}
	}
}

// Returns the number of injected cosmic ray pixels
func (e *Exposure) NumTruth() int {
	num := 0
	for _, t := range e.Truth {
		if t {
			num++
		}
	}
	return num
}
