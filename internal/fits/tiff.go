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
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"

	"golang.org/x/image/tiff"
)

// Write a grayscale FITS image to 16-bit TIFF, using the given min, max and gamma.
func (f *Image) WriteMonoTIFF16ToFile(fileName string, min, max, gamma float32) error {
	return writeFile(fileName, func(w io.Writer) error {
		return f.WriteMonoTIFF16(w, min, max, gamma)
	})
}

// Write a grayscale FITS image to 16-bit TIFF, using the given min, max and gamma.
func (f *Image) WriteMonoTIFF16(writer io.Writer, min, max, gamma float32) error {
	width, height := f.Width(), f.Height()
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := normalize(f.Data[yoffset+x], min, max, gamma)
			img.SetGray16(x, y, color.Gray16{uint16(gray * 65535)})
		}
	}
	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// Scales a value from [min,max] into [0,1] with gamma. NaNs become zero, else exports break
func normalize(v, min, max, gamma float32) float32 {
	v = (v - min) / (max - min)
	if math.IsNaN(float64(v)) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	if gamma != 1 {
		v = float32(math.Pow(float64(v), 1/float64(gamma)))
	}
	return v
}

// Read a color or grayscale TIFF image into a monochrome FITS image.
// Color images are converted to luminance
func (f *Image) ReadTIFF(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	t, err := tiff.Decode(bufio.NewReader(file))
	if err != nil {
		return fmt.Errorf("%d: %w", f.ID, err)
	}

	width, height := t.Bounds().Dx(), t.Bounds().Dy()
	minX, minY := t.Bounds().Min.X, t.Bounds().Min.Y
	f.Bitpix = colorModelToBitpix(t.ColorModel())
	f.Naxisn = []int32{int32(width), int32(height)}
	f.Pixels = int32(width) * int32(height)
	f.Bzero, f.Bscale = 0, 1
	f.Data = make([]float32, f.Pixels)

	scale := float32(1)
	if f.Bitpix == 8 {
		scale = 1.0 / 257 // keep 8-bit values in 8-bit range
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.Gray16Model.Convert(t.At(minX+x, minY+y)).(color.Gray16)
			f.Data[y*width+x] = float32(c.Y) * scale
		}
	}
	return nil
}

func colorModelToBitpix(m color.Model) int32 {
	switch m {
	case color.RGBAModel, color.NRGBAModel, color.AlphaModel, color.GrayModel:
		return 8
	default:
		return 16
	}
}
