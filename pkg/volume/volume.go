// Package volume provides labeled voxel volumes consumed by the surface mesher.
package volume

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Volume errors.
var (
	ErrInvalidGrid = errors.New("invalid voxel grid")
	ErrOutOfBounds = errors.New("voxel index out of bounds")
)

// Dims holds the voxel counts along X, Y and Z.
type Dims [3]int

// Count returns nx*ny*nz.
func (d Dims) Count() int {
	return d[0] * d[1] * d[2]
}

// Empty reports whether any dimension is zero or negative.
func (d Dims) Empty() bool {
	return d[0] <= 0 || d[1] <= 0 || d[2] <= 0
}

// String returns the dimensions as "NxMxK".
func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d[0], d[1], d[2])
}

// Provider exposes a read-only, fully labeled rectilinear volume.
type Provider interface {
	Dimensions() Dims
	Resolution() r3.Vec
	Origin() r3.Vec
	RegionLabel(i, j, k int) int32
}

// PhaseProvider is implemented by volumes that may carry per-voxel phase ids.
type PhaseProvider interface {
	Provider
	// HasPhases reports whether a phase array of full length is present.
	HasPhases() bool
	PhaseLabel(i, j, k int) int32
}

// Grid is a dense in-memory volume indexed as k*nx*ny + j*nx + i.
type Grid struct {
	dims    Dims
	res     r3.Vec
	origin  r3.Vec
	regions []int32
	phases  []int32
}

// NewGrid creates a grid over the given label arrays. The arrays are not
// copied. phases may be nil.
func NewGrid(dims Dims, res, origin r3.Vec, regions, phases []int32) (*Grid, error) {
	if dims.Empty() {
		return nil, fmt.Errorf("%w: dimensions %s", ErrInvalidGrid, dims)
	}
	if res.X <= 0 || res.Y <= 0 || res.Z <= 0 {
		return nil, fmt.Errorf("%w: resolution %v", ErrInvalidGrid, res)
	}
	n := dims.Count()
	if len(regions) != n {
		return nil, fmt.Errorf("%w: %d region labels for %d voxels", ErrInvalidGrid, len(regions), n)
	}
	if phases != nil && len(phases) != n {
		return nil, fmt.Errorf("%w: %d phase labels for %d voxels", ErrInvalidGrid, len(phases), n)
	}
	return &Grid{
		dims:    dims,
		res:     res,
		origin:  origin,
		regions: regions,
		phases:  phases,
	}, nil
}

// Dimensions returns the voxel counts.
func (g *Grid) Dimensions() Dims { return g.dims }

// Resolution returns the voxel edge lengths.
func (g *Grid) Resolution() r3.Vec { return g.res }

// Origin returns the position of corner (0,0,0).
func (g *Grid) Origin() r3.Vec { return g.origin }

// Len returns the number of voxels.
func (g *Grid) Len() int { return len(g.regions) }

// Index converts (i,j,k) to a linear voxel index.
func (g *Grid) Index(i, j, k int) int {
	return (k*g.dims[1]+j)*g.dims[0] + i
}

// InBounds reports whether (i,j,k) addresses a voxel.
func (g *Grid) InBounds(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < g.dims[0] && j < g.dims[1] && k < g.dims[2]
}

// RegionLabel returns the region id of voxel (i,j,k).
func (g *Grid) RegionLabel(i, j, k int) int32 {
	return g.regions[g.Index(i, j, k)]
}

// HasPhases reports whether the grid carries phase ids.
func (g *Grid) HasPhases() bool { return g.phases != nil }

// PhaseLabel returns the phase id of voxel (i,j,k), or 0 without phases.
func (g *Grid) PhaseLabel(i, j, k int) int32 {
	if g.phases == nil {
		return 0
	}
	return g.phases[g.Index(i, j, k)]
}

// Regions returns the underlying region array.
func (g *Grid) Regions() []int32 { return g.regions }

// Phases returns the underlying phase array, or nil.
func (g *Grid) Phases() []int32 { return g.phases }

// WithPhases returns a grid sharing this grid's regions with a new phase array.
func (g *Grid) WithPhases(phases []int32) (*Grid, error) {
	return NewGrid(g.dims, g.res, g.origin, g.regions, phases)
}

// RegionCounts returns the number of voxels carrying each region label.
func (g *Grid) RegionCounts() map[int32]int {
	counts := make(map[int32]int)
	for _, r := range g.regions {
		counts[r]++
	}
	return counts
}

// Crop extracts the sub-volume spanning voxels min..max inclusive. The
// cropped grid's origin is moved so positions stay in the parent's frame.
func (g *Grid) Crop(min, max [3]int) (*Grid, error) {
	if !g.InBounds(min[0], min[1], min[2]) || !g.InBounds(max[0], max[1], max[2]) ||
		min[0] > max[0] || min[1] > max[1] || min[2] > max[2] {
		return nil, fmt.Errorf("%w: crop %v..%v of %s", ErrOutOfBounds, min, max, g.dims)
	}
	dims := Dims{max[0] - min[0] + 1, max[1] - min[1] + 1, max[2] - min[2] + 1}
	regions := make([]int32, 0, dims.Count())
	var phases []int32
	if g.phases != nil {
		phases = make([]int32, 0, dims.Count())
	}
	for k := min[2]; k <= max[2]; k++ {
		for j := min[1]; j <= max[1]; j++ {
			lo := g.Index(min[0], j, k)
			hi := g.Index(max[0], j, k) + 1
			regions = append(regions, g.regions[lo:hi]...)
			if phases != nil {
				phases = append(phases, g.phases[lo:hi]...)
			}
		}
	}
	origin := r3.Vec{
		X: g.origin.X + float64(min[0])*g.res.X,
		Y: g.origin.Y + float64(min[1])*g.res.Y,
		Z: g.origin.Z + float64(min[2])*g.res.Z,
	}
	return NewGrid(dims, g.res, origin, regions, phases)
}
