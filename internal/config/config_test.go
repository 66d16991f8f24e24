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


package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlnoga/lacosmic/internal/lacosmic"
)

func TestParseOverridesDefaults(t *testing.T) {
	yml := `
detection:
  gain: 2.2
  readNoise: 10
  cleanType: idw
  sepMed: false
input:
  badPixels: bpm.fits
output:
  mask: mask%04d.fits
processing:
  parallel: 2
`
	cfg, err := Parse(strings.NewReader(yml))
	if err != nil {
		t.Fatal(err)
	}
	d := cfg.Detection
	def := lacosmic.DefaultParams()
	if d.Gain != 2.2 || d.ReadNoise != 10 || d.CleanType != lacosmic.CleanIDW || d.SepMed {
		t.Errorf("detection=%+v; want gain 2.2, readNoise 10, idw, no sepMed", d)
	}
	if d.SigClip != def.SigClip || d.ObjLim != def.ObjLim || d.NoiseWindow != def.NoiseWindow {
		t.Errorf("defaults lost: %+v", d)
	}
	if cfg.Input.BadPixels != "bpm.fits" || !cfg.Input.MaskNonFinite {
		t.Errorf("input=%+v; want bpm.fits and non-finite masking", cfg.Input)
	}
	if cfg.Output.Mask != "mask%04d.fits" || cfg.Output.Clean != "clean%04d.fits" {
		t.Errorf("output=%+v", cfg.Output)
	}
	if cfg.Processing.Parallel != 2 {
		t.Errorf("parallel=%d; want 2", cfg.Processing.Parallel)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Detection != *lacosmic.DefaultParams() {
		t.Errorf("detection=%+v; want defaults", cfg.Detection)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse(strings.NewReader("detection:\n  sigclip: 3\n")); err == nil {
		t.Errorf("unknown key accepted; want error")
	}
	if _, err := Parse(strings.NewReader("detection:\n  sigFrac: 1.5\n")); !errors.Is(err, lacosmic.ErrInvalidParameter) {
		t.Errorf("err=%v; want ErrInvalidParameter", err)
	}
	if _, err := Parse(strings.NewReader("processing:\n  parallel: -1\n")); !errors.Is(err, lacosmic.ErrInvalidParameter) {
		t.Errorf("err=%v; want ErrInvalidParameter", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("missing file accepted; want error")
	}
}

func TestSaveLoad(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detection.SigClip = 6
	cfg.Detection.FSMode = lacosmic.FSConvolve
	cfg.Detection.PSFModel = lacosmic.PSFMoffat
	cfg.Output.Preview = "p%d.jpg"
	name := filepath.Join(t.TempDir(), "sub", "cfg.yaml")
	if err := Save(cfg, name); err != nil {
		t.Fatal(err)
	}
	back, err := Load(name)
	if err != nil {
		t.Fatal(err)
	}
	if back.Detection != cfg.Detection || back.Output != cfg.Output || back.Input != cfg.Input {
		t.Errorf("back=%+v; want %+v", back, cfg)
	}
}
