// Package config handles grainmesh configuration loading and management.
package config

import (
	"errors"
	"fmt"

	"github.com/Faultbox/grainmesh/pkg/formats"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all mesher settings.
type Config struct {
	Mesh    MeshConfig    `yaml:"mesh"`
	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
	Batch   BatchConfig   `yaml:"batch"`
	Logging LoggingConfig `yaml:"logging"`
}

// MeshConfig holds surface extraction settings.
type MeshConfig struct {
	TransferPhaseID bool `yaml:"transfer_phase_id"`
	Workers         int  `yaml:"workers"`     // 0 means GOMAXPROCS
	MaxCorners      int  `yaml:"max_corners"` // 0 means the int32 limit
}

// InputConfig describes how voxel volumes are read.
type InputConfig struct {
	Format     string     `yaml:"format"`     // auto, binvox or npy
	PhasePath  string     `yaml:"phase_path"` // NPY phase array matching the region array
	Resolution [3]float64 `yaml:"resolution"`
	Origin     [3]float64 `yaml:"origin"`
	// Crop restricts meshing to a voxel sub-volume. Nil meshes everything.
	Crop *CropConfig `yaml:"crop,omitempty"`
}

// CropConfig selects voxels Min..Max inclusive on every axis.
type CropConfig struct {
	Min [3]int `yaml:"min"`
	Max [3]int `yaml:"max"`
}

// OutputConfig describes how meshes are written.
type OutputConfig struct {
	Format       string `yaml:"format"` // stl or vtk
	BinaryVTK    bool   `yaml:"binary_vtk"`
	PerRegionSTL bool   `yaml:"per_region_stl"`
	Dir          string `yaml:"dir"`
}

// BatchConfig holds batch conversion settings.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Mesh: MeshConfig{
			TransferPhaseID: false,
			Workers:         0,
			MaxCorners:      0,
		},
		Input: InputConfig{
			Format:     string(formats.FormatAuto),
			Resolution: [3]float64{1, 1, 1},
		},
		Output: OutputConfig{
			Format:    string(formats.FormatVTK),
			BinaryVTK: true,
			Dir:       ".",
		},
		Batch: BatchConfig{
			Concurrency: 2,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.Mesh.Workers < 0 {
		return fmt.Errorf("%w: mesh.workers must not be negative, got %d", ErrInvalidConfig, c.Mesh.Workers)
	}
	if c.Mesh.MaxCorners < 0 {
		return fmt.Errorf("%w: mesh.max_corners must not be negative, got %d", ErrInvalidConfig, c.Mesh.MaxCorners)
	}

	in, err := formats.ParseFormat(c.Input.Format)
	if err != nil || (in != formats.FormatAuto && !in.IsVolume()) {
		return fmt.Errorf("%w: input.format %q", ErrInvalidConfig, c.Input.Format)
	}
	for axis, r := range c.Input.Resolution {
		if r <= 0 {
			return fmt.Errorf("%w: input.resolution[%d] must be positive, got %g", ErrInvalidConfig, axis, r)
		}
	}

	if cr := c.Input.Crop; cr != nil {
		for axis := 0; axis < 3; axis++ {
			if cr.Min[axis] < 0 || cr.Min[axis] > cr.Max[axis] {
				return fmt.Errorf("%w: input.crop %v..%v is empty on axis %d", ErrInvalidConfig, cr.Min, cr.Max, axis)
			}
		}
	}

	out, err := formats.ParseFormat(c.Output.Format)
	if err != nil || !out.IsMesh() {
		return fmt.Errorf("%w: output.format %q", ErrInvalidConfig, c.Output.Format)
	}
	if c.Output.PerRegionSTL && out != formats.FormatSTL {
		return fmt.Errorf("%w: output.per_region_stl needs stl output", ErrInvalidConfig)
	}

	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("%w: batch.concurrency must be at least 1, got %d", ErrInvalidConfig, c.Batch.Concurrency)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}
