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
	"image"
	"image/color"
	"image/jpeg"
	"io"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Write a grayscale FITS image to JPG, using the given min, max and gamma.
func (f *Image) WriteMonoJPGToFile(fileName string, min, max, gamma float32, quality int) error {
	return writeFile(fileName, func(w io.Writer) error {
		return f.WriteMonoJPG(w, min, max, gamma, quality)
	})
}

// Write a grayscale FITS image to JPG, using the given min, max and gamma.
func (f *Image) WriteMonoJPG(writer io.Writer, min, max, gamma float32, quality int) error {
	width, height := f.Width(), f.Height()
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := normalize(f.Data[yoffset+x], min, max, gamma)
			img.SetGray(x, y, color.Gray{uint8(gray * 255)})
		}
	}
	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

// Write the image to JPG with the cosmic ray mask overlaid, see WriteMaskOverlayJPG
func (f *Image) WriteMaskOverlayJPGToFile(fileName string, min, max, gamma float32, quality int) error {
	return writeFile(fileName, func(w io.Writer) error {
		return f.WriteMaskOverlayJPG(w, min, max, gamma, quality)
	})
}

// Write the grayscale image to JPG with flagged pixels coloured by the pass in
// which they were first detected: red for the first pass, shifting through
// orange and yellow towards green for later passes
func (f *Image) WriteMaskOverlayJPG(writer io.Writer, min, max, gamma float32, quality int) error {
	width, height := f.Width(), f.Height()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	palette := passPalette(maxPass(f.FoundIn))
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			i := yoffset + x
			if f.Mask != nil && f.Mask[i] {
				pass := 1
				if f.FoundIn != nil && f.FoundIn[i] > 0 {
					pass = int(f.FoundIn[i])
				}
				img.SetRGBA(x, y, palette[pass-1])
				continue
			}
			g := uint8(normalize(f.Data[i], min, max, gamma) * 255)
			img.SetRGBA(x, y, color.RGBA{g, g, g, 255})
		}
	}
	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

func maxPass(foundIn []uint8) int {
	m := 1
	for _, p := range foundIn {
		if int(p) > m {
			m = int(p)
		}
	}
	return m
}

// Returns one saturated colour per detection pass, evenly spaced in HCL hue
// between red and green so that equal hue steps look equally different
func passPalette(passes int) []color.RGBA {
	palette := make([]color.RGBA, passes)
	for i := range palette {
		hue := 30.0
		if passes > 1 {
			hue += 100.0 * float64(i) / float64(passes-1)
		}
		r, g, b := colorful.Hcl(hue, 0.9, 0.6).Clamped().RGB255()
		palette[i] = color.RGBA{r, g, b, 255}
	}
	return palette
}
