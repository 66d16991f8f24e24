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
	"bytes"
	"compress/gzip"
	"image/jpeg"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func testImage(width, height int) *Image {
	img := NewImageFromNaxisn([]int32{int32(width), int32(height)}, nil)
	for i := range img.Data {
		img.Data[i] = float32(i) * 1.5
	}
	img.Exposure = 120
	img.Header.Floats["GAIN"] = 1.25
	img.Header.Ints["RDNOISE"] = 7
	img.Header.Strings["OBJECT"] = "M 42"
	img.Header.History = append(img.Header.History, "cosmic rays removed")
	return img
}

func TestWriteReadRoundTrip(t *testing.T) {
	img := testImage(37, 23)
	var buf bytes.Buffer
	if err := img.Write(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len()%fitsBlockSize != 0 {
		t.Errorf("length=%d; want multiple of %d", buf.Len(), fitsBlockSize)
	}

	read := NewImage()
	if err := read.Read(&buf, true, io.Discard); err != nil {
		t.Fatal(err)
	}
	if read.Width() != 37 || read.Height() != 23 || read.Bitpix != -32 {
		t.Errorf("dims=%s bitpix=%d; want 37x23 -32", read.DimensionsToString(), read.Bitpix)
	}
	for i := range img.Data {
		if read.Data[i] != img.Data[i] {
			t.Fatalf("data[%d]=%f; want %f", i, read.Data[i], img.Data[i])
		}
	}
	if read.Exposure != 120 {
		t.Errorf("exposure=%f; want 120", read.Exposure)
	}
	if g, ok := read.Header.Number(GainKeys...); !ok || g != 1.25 {
		t.Errorf("gain=%f ok=%v; want 1.25", g, ok)
	}
	if rn, ok := read.Header.Number(ReadNoiseKeys...); !ok || rn != 7 {
		t.Errorf("read noise=%f ok=%v; want 7", rn, ok)
	}
	if _, ok := read.Header.Number(SatLevelKeys...); ok {
		t.Errorf("saturation level found in header without one")
	}
	if read.Header.Strings["OBJECT"] != "M 42" {
		t.Errorf("object=%q; want %q", read.Header.Strings["OBJECT"], "M 42")
	}
	if len(read.Header.History) != 1 || read.Header.History[0] != "cosmic rays removed" {
		t.Errorf("history=%v", read.Header.History)
	}
}

func TestWriteFloatHeaderValues(t *testing.T) {
	for _, v := range []float32{1e6, 2, -0.5, 1.5e-7} {
		img := NewImageFromNaxisn([]int32{1, 1}, nil)
		img.Header.Floats["VALUE"] = v
		var buf bytes.Buffer
		if err := img.Write(&buf); err != nil {
			t.Fatal(err)
		}
		read := NewImage()
		if err := read.Read(&buf, true, io.Discard); err != nil {
			t.Fatal(err)
		}
		if got, ok := read.Header.Floats["VALUE"]; !ok || got != v {
			t.Errorf("value=%g ok=%v; want %g", got, ok, v)
		}
	}
}

func TestWriteMask(t *testing.T) {
	img := testImage(5, 4)
	img.Mask = make([]bool, 20)
	img.FoundIn = make([]uint8, 20)
	img.Mask[3], img.FoundIn[3] = true, 1
	img.Mask[17], img.FoundIn[17] = true, 2
	var buf bytes.Buffer
	if err := img.WriteMask(&buf); err != nil {
		t.Fatal(err)
	}
	read := NewImage()
	if err := read.Read(&buf, true, io.Discard); err != nil {
		t.Fatal(err)
	}
	if read.Bitpix != 8 {
		t.Errorf("bitpix=%d; want 8", read.Bitpix)
	}
	for i, d := range read.Data {
		if d != float32(img.FoundIn[i]) {
			t.Errorf("mask[%d]=%f; want %d", i, d, img.FoundIn[i])
		}
	}

	if err := NewImageFromNaxisn([]int32{2, 2}, nil).WriteMask(&buf); err == nil {
		t.Errorf("writing missing mask succeeded")
	}
}

// Builds a FITS file of given BITPIX by hand, big-endian, with BZERO
func TestReadIntegerData(t *testing.T) {
	img := NewImageFromNaxisn([]int32{3, 1}, nil)
	img.Header.Ints["BZERO"] = 32768
	var buf bytes.Buffer
	if err := img.writeHeader(&buf, 16, ""); err != nil {
		t.Fatal(err)
	}
	// int16 values -32768, 0, 32767 -> 0, 32768, 65535
	buf.Write([]byte{0x80, 0x00, 0x00, 0x00, 0x7f, 0xff})
	writePadding(&buf, 6)

	read := NewImage()
	if err := read.Read(&buf, true, io.Discard); err != nil {
		t.Fatal(err)
	}
	want := []float32{0, 32768, 65535}
	for i := range want {
		if read.Data[i] != want[i] {
			t.Errorf("data[%d]=%f; want %f", i, read.Data[i], want[i])
		}
	}
	if read.Bzero != 0 || read.Bscale != 1 {
		t.Errorf("bzero=%f bscale=%f; want 0 1", read.Bzero, read.Bscale)
	}
}

func TestReadTruncated(t *testing.T) {
	img := testImage(10, 10)
	var buf bytes.Buffer
	if err := img.Write(&buf); err != nil {
		t.Fatal(err)
	}
	truncated := bytes.NewReader(buf.Bytes()[:fitsBlockSize+100])
	if err := NewImage().Read(truncated, true, io.Discard); err == nil {
		t.Errorf("truncated file read without error")
	}
	if err := NewImage().Read(bytes.NewReader(make([]byte, fitsBlockSize)), true, io.Discard); err == nil {
		t.Errorf("empty header read without error")
	}
}

func TestReadFileGzip(t *testing.T) {
	img := testImage(8, 8)
	dir := t.TempDir()
	name := filepath.Join(dir, "test.fits.gz")
	f, err := os.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if err := img.Write(gz); err != nil {
		t.Fatal(err)
	}
	gz.Close()
	f.Close()

	read, err := NewImageFromFile(name, 3, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if read.ID != 3 || read.FileName != name {
		t.Errorf("id=%d name=%s", read.ID, read.FileName)
	}
	if read.Data[63] != img.Data[63] {
		t.Errorf("data[63]=%f; want %f", read.Data[63], img.Data[63])
	}
}

func TestTIFFRoundTrip(t *testing.T) {
	img := NewImageFromNaxisn([]int32{16, 9}, nil)
	for i := range img.Data {
		img.Data[i] = float32(i * 400)
	}
	name := filepath.Join(t.TempDir(), "test.tif")
	if err := img.WriteMonoTIFF16ToFile(name, 0, 65535, 1); err != nil {
		t.Fatal(err)
	}
	read, err := NewImageFromFile(name, 0, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if read.Width() != 16 || read.Height() != 9 || read.Bitpix != 16 {
		t.Errorf("dims=%s bitpix=%d; want 16x9 16", read.DimensionsToString(), read.Bitpix)
	}
	for i := range img.Data {
		if math.Abs(float64(read.Data[i]-img.Data[i])) > 1 {
			t.Errorf("data[%d]=%f; want %f", i, read.Data[i], img.Data[i])
		}
	}
}

func TestMaskOverlayJPG(t *testing.T) {
	img := NewImageFromNaxisn([]int32{32, 32}, nil)
	img.Mask = make([]bool, len(img.Data))
	img.FoundIn = make([]uint8, len(img.Data))
	for y := 8; y < 24; y++ {
		for x := 8; x < 24; x++ {
			img.Mask[y*32+x], img.FoundIn[y*32+x] = true, 1
		}
	}
	var buf bytes.Buffer
	if err := img.WriteMaskOverlayJPG(&buf, 0, 1, 1, 95); err != nil {
		t.Fatal(err)
	}
	decoded, err := jpeg.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := decoded.At(16, 16).RGBA()
	if r <= g || r <= b {
		t.Errorf("first pass colour r=%d g=%d b=%d; want reddish", r>>8, g>>8, b>>8)
	}
	r, g, b, _ = decoded.At(2, 2).RGBA()
	if r>>8 > 16 || g>>8 > 16 || b>>8 > 16 {
		t.Errorf("background r=%d g=%d b=%d; want black", r>>8, g>>8, b>>8)
	}
}

func TestPassPalette(t *testing.T) {
	p := passPalette(4)
	if len(p) != 4 {
		t.Fatalf("len=%d; want 4", len(p))
	}
	for i := 1; i < len(p); i++ {
		if p[i] == p[i-1] {
			t.Errorf("palette[%d]=palette[%d]=%v", i, i-1, p[i])
		}
	}
	// later passes shift towards green
	if p[3].G <= p[0].G {
		t.Errorf("last pass g=%d not greener than first g=%d", p[3].G, p[0].G)
	}
}

func TestNormalize(t *testing.T) {
	tcs := []struct {
		v, want float32
	}{
		{-1, 0}, {0, 0}, {5, 0.5}, {10, 1}, {20, 1}, {float32(math.NaN()), 0},
	}
	for _, tc := range tcs {
		if got := normalize(tc.v, 0, 10, 1); got != tc.want {
			t.Errorf("normalize(%f)=%f; want %f", tc.v, got, tc.want)
		}
	}
}
