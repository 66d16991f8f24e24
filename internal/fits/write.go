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
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Writes an in-memory FITS image to a file with given filename.
// Creates/overwrites the file if necessary
func (fits *Image) WriteFile(fileName string) error {
	return writeFile(fileName, fits.Write)
}

// Writes the cosmic ray mask of the image as 8-bit FITS to a file with given filename.
// Pixel values are the detection pass per flagged pixel, 0 for unflagged
func (fits *Image) WriteMaskFile(fileName string) error {
	return writeFile(fileName, fits.WriteMask)
}

func writeFile(fileName string, write func(io.Writer) error) error {
	f, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err = write(w); err != nil {
		f.Close()
		return err
	}
	if err = w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Writes an in-memory FITS image to an io.Writer as 32-bit float data.
func (fits *Image) Write(f io.Writer) error {
	if err := fits.writeHeader(f, -32, "32-bit floating point"); err != nil {
		return err
	}
	// Write payload data, replacing NaNs with zeros for compatibility
	if err := writeFloat32Array(f, fits.Data, true); err != nil {
		return err
	}
	return writePadding(f, len(fits.Data)*4)
}

// Writes the cosmic ray mask of the image to an io.Writer as 8-bit data.
// Uses the detection pass per pixel if available, else 1 for flagged pixels
func (fits *Image) WriteMask(f io.Writer) error {
	if fits.Mask == nil {
		return fmt.Errorf("%d: no cosmic ray mask to write", fits.ID)
	}
	if err := fits.writeHeader(f, 8, "8-bit unsigned integer"); err != nil {
		return err
	}
	buf := make([]byte, len(fits.Mask))
	for i, m := range fits.Mask {
		if !m {
			continue
		}
		if fits.FoundIn != nil && fits.FoundIn[i] > 0 {
			buf[i] = fits.FoundIn[i]
		} else {
			buf[i] = 1
		}
	}
	if _, err := f.Write(buf); err != nil {
		return err
	}
	return writePadding(f, len(buf))
}

// Writes the header for the given BITPIX, including all retained header entries
func (fits *Image) writeHeader(f io.Writer, bitpix int32, bitpixComment string) error {
	// Build header in string buffer
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "FITS standard 4.0")
	writeInt32(&sb, "BITPIX", bitpix, bitpixComment)
	writeInt32(&sb, "NAXIS", int32(len(fits.Naxisn)), "[1] Number of axis")
	for i := 0; i < len(fits.Naxisn); i++ {
		writeInt32(&sb, fmt.Sprintf("NAXIS%d", i+1), fits.Naxisn[i], "[1] Axis size")
	}
	if bitpix < 0 {
		writeFloat32(&sb, "BZERO", fits.Bzero, "[1] Zero offset")
	}
	if fits.Exposure != 0 {
		writeFloat32(&sb, "EXPTIME", fits.Exposure, "[s] Exposure time")
	}
	h := fits.Header
	for _, k := range sortedKeys(h.Bools) {
		writeBool(&sb, k, h.Bools[k], "")
	}
	for _, k := range sortedKeys(h.Ints) {
		writeInt32(&sb, k, h.Ints[k], "")
	}
	for _, k := range sortedKeys(h.Floats) {
		writeFloat32(&sb, k, h.Floats[k], "")
	}
	for _, k := range sortedKeys(h.Strings) {
		writeString(&sb, k, h.Strings[k], "")
	}
	for _, k := range sortedKeys(h.Dates) {
		writeString(&sb, k, h.Dates[k], "")
	}
	for _, c := range h.Comments {
		writeText(&sb, "COMMENT", c)
	}
	for _, c := range h.History {
		writeText(&sb, "HISTORY", c)
	}
	writeEnd(&sb)

	// Pad current header block with spaces if necessary
	if bytesInHeaderBlock := sb.Len() % fitsBlockSize; bytesInHeaderBlock > 0 {
		sb.WriteString(strings.Repeat(" ", fitsBlockSize-bytesInHeaderBlock))
	}

	// Write header block(s)
	_, err := io.WriteString(f, sb.String())
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Writes a FITS header boolean value
func writeBool(w io.Writer, key string, value bool, comment string) {
	v := "F"
	if value {
		v = "T"
	}
	writeRecord(w, key, fmt.Sprintf("%20s", v), comment)
}

// Writes a FITS header int32 value
func writeInt32(w io.Writer, key string, value int32, comment string) {
	writeRecord(w, key, fmt.Sprintf("%20d", value), comment)
}

// Writes a FITS header float32 value. Always carries a decimal point or exponent,
// so that readers do not parse it back as integer
func writeFloat32(w io.Writer, key string, value float32, comment string) {
	s := strconv.FormatFloat(float64(value), 'G', -1, 32)
	if !strings.ContainsAny(s, ".N") {
		if e := strings.IndexByte(s, 'E'); e >= 0 {
			s = s[:e] + "." + s[e:]
		} else {
			s += "."
		}
	}
	writeRecord(w, key, fmt.Sprintf("%20s", s), comment)
}

// Writes a FITS header string value, truncated to fit a single record
func writeString(w io.Writer, key, value, comment string) {
	// escape ' characters
	value = strings.ReplaceAll(value, "'", "''")
	if len(value) > 68 {
		value = value[:68]
	}
	if len(value) < 8 {
		value += strings.Repeat(" ", 8-len(value))
	}
	writeRecord(w, key, fmt.Sprintf("%-20s", "'"+value+"'"), comment)
}

// Writes a keyed value record padded to the line size
func writeRecord(w io.Writer, key, value, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	line := fmt.Sprintf("%-8s= %s", key, value)
	if comment != "" && len(line)+3 < HeaderLineSize {
		line += " / " + comment
	}
	if len(line) > HeaderLineSize {
		line = line[:HeaderLineSize]
	}
	fmt.Fprintf(w, "%-80s", line)
}

// Writes a COMMENT or HISTORY record
func writeText(w io.Writer, key, text string) {
	if len(text) > HeaderLineSize-8 {
		text = text[:HeaderLineSize-8]
	}
	fmt.Fprintf(w, "%-8s%-72s", key, text)
}

// Writes a FITS header end record
func writeEnd(w io.Writer) {
	fmt.Fprintf(w, "END%s", strings.Repeat(" ", HeaderLineSize-3))
}

// Pads the data unit with zeros to a full block
func writePadding(w io.Writer, written int) error {
	if rest := written % fitsBlockSize; rest > 0 {
		_, err := w.Write(make([]byte, fitsBlockSize-rest))
		return err
	}
	return nil
}

// Writes FITS binary body data in network byte order.
// Optionally replaces NaNs with zeros for compatibility with other software
func writeFloat32Array(w io.Writer, data []float32, replaceNaNs bool) error {
	buf := make([]byte, bufLen)

	for block := 0; block < len(data); block += (bufLen >> 2) {
		size := len(data) - block
		if size > (bufLen >> 2) {
			size = (bufLen >> 2)
		}

		for offset := 0; offset < size; offset++ {
			d := data[block+offset]
			if replaceNaNs && math.IsNaN(float64(d)) {
				d = 0
			}
			val := math.Float32bits(d)
			buf[(offset<<2)+0] = byte(val >> 24)
			buf[(offset<<2)+1] = byte(val >> 16)
			buf[(offset<<2)+2] = byte(val >> 8)
			buf[(offset<<2)+3] = byte(val)
		}
		_, err := w.Write(buf[:(size << 2)])
		if err != nil {
			return err
		}
	}
	return nil
}
