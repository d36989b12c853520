// Package formats reads labeled voxel volumes and writes surface meshes.
package formats

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnknownFormat is returned when a file's format cannot be determined.
var ErrUnknownFormat = errors.New("unknown file format")

// Format names a supported file format.
type Format string

// Supported formats.
const (
	FormatAuto   Format = "auto"
	FormatBinvox Format = "binvox"
	FormatNPY    Format = "npy"
	FormatSTL    Format = "stl"
	FormatVTK    Format = "vtk"
)

// Ext returns the conventional file extension, including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// IsVolume reports whether f is an input volume format.
func (f Format) IsVolume() bool {
	return f == FormatBinvox || f == FormatNPY
}

// IsMesh reports whether f is an output mesh format.
func (f Format) IsMesh() bool {
	return f == FormatSTL || f == FormatVTK
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatAuto, FormatBinvox, FormatNPY, FormatSTL, FormatVTK:
		return f, nil
	case "":
		return FormatAuto, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// DetectVolumeFormat guesses an input format from the file extension, falling
// back to the file's magic bytes.
func DetectVolumeFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".binvox":
		return FormatBinvox, nil
	case ".npy":
		return FormatNPY, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, len(binvoxSignature))
	n, _ := f.Read(head)
	head = head[:n]
	switch {
	case bytes.HasPrefix(head, []byte(npyMagic)):
		return FormatNPY, nil
	case bytes.Equal(head, []byte(binvoxSignature)):
		return FormatBinvox, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}
