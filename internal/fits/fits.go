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

package fits

import (
	"fmt"
	"strings"

	"github.com/mlnoga/lacosmic/internal/stats"
)

// A FITS image.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
type Image struct {
	ID       int    // Sequential ID number, for log output. Counted upwards from 0
	FileName string // Original file name, if any, for log output

	Header Header  // The header with all keys, values, comments, history entries etc.
	Bitpix int32   // Bits per pixel value from the header. Positive values are integral, negative floating.
	Bzero  float32 // Zero offset. True pixel value is Bzero + Bscale * Data[i].
	Bscale float32 // Value scaler. True pixel value is Bzero + Bscale * Data[i].
	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first (i.e. X,Y)
	Pixels int32   // Number of pixels in the image. Product of Naxisn[]

	Data []float32 // The image data

	Exposure float32 // Image exposure in seconds

	Stats *stats.BasicStats // Basic image statistics, nil until calculated

	Mask    []bool  // Cosmic ray mask, if detected
	FoundIn []uint8 // Detection pass per masked pixel, if detected
}

// Creates a FITS image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header: NewHeader(),
		Bscale: 1,
	}
}

// Creates a FITS image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels := int32(1)
	for _, naxis := range naxisn {
		numPixels *= naxis
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		Header: NewHeader(),
		Bitpix: -32,
		Bscale: 1,
		Naxisn: append([]int32(nil), naxisn...), // clone slice
		Pixels: numPixels,
		Data:   data,
	}
}

// Creates a FITS image with the metadata of the given image and the given data.
// Data is not copied, allocated if nil
func NewImageFromImage(img *Image, data []float32) *Image {
	res := NewImageFromNaxisn(img.Naxisn, data)
	res.ID, res.FileName, res.Exposure = img.ID, img.FileName, img.Exposure
	res.Header = img.Header.Clone()
	return res
}

// Image width in pixels
func (f *Image) Width() int {
	if len(f.Naxisn) == 0 {
		return 0
	}
	return int(f.Naxisn[0])
}

// Image height in pixels, 1 for one-dimensional images
func (f *Image) Height() int {
	if len(f.Naxisn) < 2 {
		return 1
	}
	return int(f.Naxisn[1])
}

// Returns nil if the image is a single two-dimensional plane
func (f *Image) CheckMono() error {
	if len(f.Naxisn) != 2 && !(len(f.Naxisn) == 3 && f.Naxisn[2] == 1) {
		return fmt.Errorf("%d: expected a monochrome image, got %s", f.ID, f.DimensionsToString())
	}
	return nil
}

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float32
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string]float32),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
		End:      false,
	}
}

// Returns a deep copy of the header
func (h Header) Clone() Header {
	c := NewHeader()
	for k, v := range h.Bools {
		c.Bools[k] = v
	}
	for k, v := range h.Ints {
		c.Ints[k] = v
	}
	for k, v := range h.Floats {
		c.Floats[k] = v
	}
	for k, v := range h.Strings {
		c.Strings[k] = v
	}
	for k, v := range h.Dates {
		c.Dates[k] = v
	}
	c.Comments = append(c.Comments, h.Comments...)
	c.History = append(c.History, h.History...)
	return c
}

// Returns the value of the first of the given keys present as int or float
func (h Header) Number(keys ...string) (float32, bool) {
	for _, key := range keys {
		if v, ok := h.Floats[key]; ok {
			return v, true
		}
		if v, ok := h.Ints[key]; ok {
			return float32(v), true
		}
	}
	return 0, false
}

// Header keys carrying detector properties, in order of preference
var (
	GainKeys      = []string{"GAIN", "EGAIN", "CCDGAIN"}
	ReadNoiseKeys = []string{"RDNOISE", "READNOIS", "RON"}
	SatLevelKeys  = []string{"SATURATE", "SATLEVEL"}
)

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const HeaderLineSize int = 80  // Line size of a FITS header
