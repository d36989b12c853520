package surfacemesh

import "fmt"

// Orientation identifies one of the six axis-aligned faces of a voxel.
type Orientation uint8

// Face orientations, in the order faces are tested for each voxel.
const (
	XMin Orientation = iota
	YMin
	ZMin
	XMax
	YMax
	ZMax
)

// faceSpec describes how a voxel face maps onto the corner lattice.
//
// Corners are offsets from the voxel's (i,j,k) corner, ordered
// counter-clockwise when viewed from outside the voxel, so the quad is split
// along c0-c2 into (c0,c1,c2) and (c0,c2,c3) with outward normals.
type faceSpec struct {
	name    string
	axis    int
	max     bool
	corners [4][3]int
	normal  [3]int
}

var faceSpecs = [6]faceSpec{
	XMin: {
		name:    "-X",
		axis:    0,
		corners: [4][3]int{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}},
		normal:  [3]int{-1, 0, 0},
	},
	YMin: {
		name:    "-Y",
		axis:    1,
		corners: [4][3]int{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}},
		normal:  [3]int{0, -1, 0},
	},
	ZMin: {
		name:    "-Z",
		axis:    2,
		corners: [4][3]int{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}},
		normal:  [3]int{0, 0, -1},
	},
	XMax: {
		name:    "+X",
		axis:    0,
		max:     true,
		corners: [4][3]int{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}},
		normal:  [3]int{1, 0, 0},
	},
	YMax: {
		name:    "+Y",
		axis:    1,
		max:     true,
		corners: [4][3]int{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}},
		normal:  [3]int{0, 1, 0},
	},
	ZMax: {
		name:    "+Z",
		axis:    2,
		max:     true,
		corners: [4][3]int{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}},
		normal:  [3]int{0, 0, 1},
	},
}

// triangleCorners is the fixed diagonal split applied to every quad.
var triangleCorners = [2][3]int{{0, 1, 2}, {0, 2, 3}}

// String returns the signed axis name, e.g. "+X".
func (o Orientation) String() string {
	if int(o) < len(faceSpecs) {
		return faceSpecs[o].name
	}
	return fmt.Sprintf("Orientation(%d)", o)
}

// Axis returns 0, 1 or 2 for X, Y or Z.
func (o Orientation) Axis() int { return faceSpecs[o].axis }

// IsMax reports whether the face lies on the voxel's positive side.
func (o Orientation) IsMax() bool { return faceSpecs[o].max }

// Opposite returns the orientation facing the other way on the same axis.
func (o Orientation) Opposite() Orientation { return (o + 3) % 6 }

// Normal returns the outward unit normal in lattice coordinates.
func (o Orientation) Normal() [3]int { return faceSpecs[o].normal }

// Corner returns lattice corner c (0..3) of the face of voxel v.
func (o Orientation) Corner(v [3]int, c int) [3]int {
	off := faceSpecs[o].corners[c]
	return [3]int{v[0] + off[0], v[1] + off[1], v[2] + off[2]}
}
