package formats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/grainmesh/pkg/volume"
)

// Binvox format errors.
var (
	ErrInvalidBinvoxMagic  = errors.New("invalid binvox signature: expected '#binvox 1'")
	ErrInvalidBinvoxHeader = errors.New("invalid binvox header")
	ErrTruncatedBinvoxData = errors.New("truncated binvox data")
)

const (
	binvoxSignature = "#binvox 1"
	binvoxMaxDim    = 4096
)

// Binvox is a parsed binvox occupancy grid.
//
// Binvox stores voxels with y varying fastest, then z, then x, so the file's
// "dim" line lists the x, y and z extents as depth, width and height.
type Binvox struct {
	Depth, Width, Height int
	Translate            r3.Vec
	Scale                float64
	// Voxels holds occupancy in binvox order: x*width*height + z*width + y.
	Voxels []bool
}

// Dims returns the grid dimensions as (nx, ny, nz).
func (b *Binvox) Dims() volume.Dims {
	return volume.Dims{b.Depth, b.Width, b.Height}
}

// VoxelSize returns the edge length of one voxel in model units.
func (b *Binvox) VoxelSize() float64 {
	return b.Scale / float64(max(b.Depth, b.Width, b.Height))
}

// index converts grid coordinates to a binvox voxel index.
func (b *Binvox) index(x, y, z int) int {
	return x*b.Width*b.Height + z*b.Width + y
}

// Occupied returns the number of filled voxels.
func (b *Binvox) Occupied() int {
	n := 0
	for _, v := range b.Voxels {
		if v {
			n++
		}
	}
	return n
}

// Grid converts the occupancy grid into a labeled volume, giving filled
// voxels the solid label and empty voxels the empty label.
func (b *Binvox) Grid(solid, empty int32) (*volume.Grid, error) {
	dims := b.Dims()
	regions := make([]int32, dims.Count())
	n := 0
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				if b.Voxels[b.index(x, y, z)] {
					regions[n] = solid
				} else {
					regions[n] = empty
				}
				n++
			}
		}
	}
	vs := b.VoxelSize()
	return volume.NewGrid(dims, r3.Vec{X: vs, Y: vs, Z: vs}, b.Translate, regions, nil)
}

// BinvoxFromGrid marks every voxel of g labeled solid as filled. Voxels are
// assumed cubic with edge g.Resolution().X.
func BinvoxFromGrid(g *volume.Grid, solid int32) *Binvox {
	dims := g.Dimensions()
	b := &Binvox{
		Depth:     dims[0],
		Width:     dims[1],
		Height:    dims[2],
		Translate: g.Origin(),
		Scale:     g.Resolution().X * float64(max(dims[0], dims[1], dims[2])),
		Voxels:    make([]bool, dims.Count()),
	}
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				b.Voxels[b.index(x, y, z)] = g.RegionLabel(x, y, z) == solid
			}
		}
	}
	return b
}

// ParseBinvox parses a binvox file from raw bytes.
func ParseBinvox(data []byte) (*Binvox, error) {
	src := bytes.NewReader(data)
	r := bufio.NewReader(src)

	line, err := readHeaderLine(r)
	if err != nil {
		return nil, err
	}
	if line != binvoxSignature {
		return nil, ErrInvalidBinvoxMagic
	}

	b := &Binvox{Scale: 1}
	haveDim := false
	for {
		line, err := readHeaderLine(r)
		if err != nil {
			return nil, err
		}
		if line == "data" {
			break
		}
		key, _, _ := strings.Cut(line, " ")
		switch key {
		case "dim":
			if _, err := fmt.Sscanf(line, "dim %d %d %d", &b.Depth, &b.Width, &b.Height); err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidBinvoxHeader, line, err)
			}
			haveDim = true
		case "translate":
			if _, err := fmt.Sscanf(line, "translate %g %g %g", &b.Translate.X, &b.Translate.Y, &b.Translate.Z); err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidBinvoxHeader, line, err)
			}
		case "scale":
			if _, err := fmt.Sscanf(line, "scale %g", &b.Scale); err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidBinvoxHeader, line, err)
			}
		default:
			return nil, fmt.Errorf("%w: unexpected line %q", ErrInvalidBinvoxHeader, line)
		}
	}

	if !haveDim {
		return nil, fmt.Errorf("%w: missing dim", ErrInvalidBinvoxHeader)
	}
	for _, d := range []int{b.Depth, b.Width, b.Height} {
		if d <= 0 || d > binvoxMaxDim {
			return nil, fmt.Errorf("%w: dimensions %dx%dx%d", ErrInvalidBinvoxHeader, b.Depth, b.Width, b.Height)
		}
	}
	if b.Scale <= 0 {
		return nil, fmt.Errorf("%w: scale %g", ErrInvalidBinvoxHeader, b.Scale)
	}

	// Run-length pairs of (value, count). A pair covers at most 255 voxels.
	total := b.Depth * b.Width * b.Height
	if pairs := (r.Buffered() + src.Len()) / 2; pairs*255 < total {
		return nil, fmt.Errorf("%w: %d run pairs cannot cover %d voxels", ErrTruncatedBinvoxData, pairs, total)
	}
	b.Voxels = make([]bool, total)
	for i := 0; i < len(b.Voxels); {
		value, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: at voxel %d", ErrTruncatedBinvoxData, i)
		}
		count, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: at voxel %d", ErrTruncatedBinvoxData, i)
		}
		end := i + int(count)
		if end > len(b.Voxels) {
			return nil, fmt.Errorf("%w: run past end of grid", ErrInvalidBinvoxHeader)
		}
		if value != 0 {
			for j := i; j < end; j++ {
				b.Voxels[j] = true
			}
		}
		i = end
	}

	return b, nil
}

func readHeaderLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTruncatedBinvoxData, err)
	}
	return strings.TrimSpace(line), nil
}

// ParseBinvoxFile parses a binvox file from disk.
func ParseBinvoxFile(path string) (*Binvox, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading binvox file: %w", err)
	}
	return ParseBinvox(data)
}

// WriteBinvox writes b in binvox format.
func WriteBinvox(w io.Writer, b *Binvox) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n", binvoxSignature)
	fmt.Fprintf(bw, "dim %d %d %d\n", b.Depth, b.Width, b.Height)
	fmt.Fprintf(bw, "translate %g %g %g\n", b.Translate.X, b.Translate.Y, b.Translate.Z)
	fmt.Fprintf(bw, "scale %g\n", b.Scale)
	bw.WriteString("data\n")

	for i := 0; i < len(b.Voxels); {
		value := b.Voxels[i]
		n := 0
		for i < len(b.Voxels) && b.Voxels[i] == value && n < 255 {
			i++
			n++
		}
		var v byte
		if value {
			v = 1
		}
		bw.WriteByte(v)
		bw.WriteByte(byte(n))
	}
	return bw.Flush()
}
