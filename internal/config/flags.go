package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

var (
	flagConfig  = flag.String("config", "", "Path to config file")
	flagDebug   = flag.Bool("debug", false, "Enable debug logging")
	flagPhases  = flag.String("phases", "", "NPY phase array; enables phase transfer")
	flagWorkers = flag.Int("workers", 0, "Classification workers (0 = all CPUs)")
	flagFormat  = flag.String("format", "", "Output format (stl, vtk)")
	flagOut     = flag.String("out", "", "Output directory")
	flagCrop    = flag.String("crop", "", "Voxel sub-volume x0,y0,z0,x1,y1,z1 (inclusive)")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) error {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagPhases != "" {
		cfg.Input.PhasePath = *flagPhases
		cfg.Mesh.TransferPhaseID = true
	}
	if *flagWorkers > 0 {
		cfg.Mesh.Workers = *flagWorkers
	}
	if *flagFormat != "" {
		cfg.Output.Format = *flagFormat
	}
	if *flagOut != "" {
		cfg.Output.Dir = *flagOut
	}
	if *flagCrop != "" {
		crop, err := parseCrop(*flagCrop)
		if err != nil {
			return err
		}
		cfg.Input.Crop = crop
	}
	return nil
}

// parseCrop parses "x0,y0,z0,x1,y1,z1".
func parseCrop(s string) (*CropConfig, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 6 {
		return nil, fmt.Errorf("%w: --crop needs 6 comma-separated integers, got %q", ErrInvalidConfig, s)
	}
	var v [6]int
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("%w: --crop %q: %v", ErrInvalidConfig, s, err)
		}
		v[i] = n
	}
	return &CropConfig{Min: [3]int{v[0], v[1], v[2]}, Max: [3]int{v[3], v[4], v[5]}}, nil
}
