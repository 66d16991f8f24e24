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


// Package config loads detection settings from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mlnoga/lacosmic/internal/lacosmic"
	"gopkg.in/yaml.v3"
)

// Config represents a run configuration loaded from YAML
type Config struct {
	// Detection parameters of the LA Cosmic algorithm
	Detection lacosmic.Params `yaml:"detection"`

	// Input handling
	Input struct {
		// BadPixels is a FITS bad pixel mask applied to all inputs, nonzero pixels are bad
		BadPixels string `yaml:"badPixels"`

		// UseHeader takes gain, read noise and saturation level from the FITS header if present
		UseHeader bool `yaml:"useHeader"`

		// MaskNonFinite treats NaN and Inf pixels as bad pixels
		MaskNonFinite bool `yaml:"maskNonFinite"`
	} `yaml:"input"`

	// Output file patterns. %d expands to the image ID, empty disables the output
	Output struct {
		Clean   string `yaml:"clean"`
		Mask    string `yaml:"mask"`
		Preview string `yaml:"preview"`
	} `yaml:"output"`

	// Processing resources
	Processing struct {
		// Parallel is the number of images processed concurrently, 0=auto
		Parallel int `yaml:"parallel"`
	} `yaml:"processing"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{Detection: *lacosmic.DefaultParams()}
	cfg.Input.MaskNonFinite = true
	cfg.Output.Clean = "clean%04d.fits"
	return cfg
}

// Load reads configuration from a YAML file on top of the defaults.
// Unknown keys are an error
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// Parse decodes a YAML configuration on top of the defaults and validates it
func Parse(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks detection parameters and resource settings
func (cfg *Config) Validate() error {
	if err := cfg.Detection.Validate(); err != nil {
		return err
	}
	if cfg.Processing.Parallel < 0 {
		return fmt.Errorf("%w: processing.parallel=%d, want >=0", lacosmic.ErrInvalidParameter, cfg.Processing.Parallel)
	}
	return nil
}

// Save writes the configuration to a YAML file
func Save(cfg *Config, configPath string) error {
	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
