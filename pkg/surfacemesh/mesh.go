package surfacemesh

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidMesh is wrapped by every violation reported from Validate.
var ErrInvalidMesh = errors.New("invalid surface mesh")

// maxViolations bounds how many problems Validate reports.
const maxViolations = 16

// Mesh is a conforming triangle surface mesh separating labeled regions.
type Mesh struct {
	Vertices []r3.Vec
	// Faces holds three vertex ids per triangle, wound so the normal points
	// out of the FaceLabels[f][0] region.
	Faces [][3]int32
	// FaceLabels holds (labelA, labelB) per triangle; labelB is
	// ExteriorLabel on the grid boundary.
	FaceLabels [][2]int32
	// FacePhases is nil unless phase transfer was requested.
	FacePhases [][2]int32
	NodeTypes  []NodeType
}

// Stats summarizes a mesh.
type Stats struct {
	Vertices      int
	Faces         int
	ExteriorFaces int
	Regions       int
	NodeTypes     map[NodeType]int
}

// Stats returns counts of vertices, faces, regions and node types.
func (m *Mesh) Stats() Stats {
	s := Stats{
		Vertices:  len(m.Vertices),
		Faces:     len(m.Faces),
		NodeTypes: make(map[NodeType]int),
	}
	regions := make(map[int32]struct{})
	for _, l := range m.FaceLabels {
		regions[l[0]] = struct{}{}
		if l[1] == ExteriorLabel {
			s.ExteriorFaces++
		} else {
			regions[l[1]] = struct{}{}
		}
	}
	s.Regions = len(regions)
	for _, t := range m.NodeTypes {
		s.NodeTypes[t]++
	}
	return s
}

// Regions returns the sorted distinct region labels present on faces.
func (m *Mesh) Regions() []int32 {
	seen := make(map[int32]struct{})
	for _, l := range m.FaceLabels {
		for _, v := range l {
			if v != ExteriorLabel {
				seen[v] = struct{}{}
			}
		}
	}
	out := make([]int32, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RegionFaces returns the indices of faces bounding the given region.
func (m *Mesh) RegionFaces(label int32) []int {
	var faces []int
	for f, l := range m.FaceLabels {
		if l[0] == label || l[1] == label {
			faces = append(faces, f)
		}
	}
	return faces
}

// Triangle returns the three vertex positions of face f.
func (m *Mesh) Triangle(f int) [3]r3.Vec {
	t := m.Faces[f]
	return [3]r3.Vec{m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]}
}

// FaceNormal returns the unit normal of face f.
func (m *Mesh) FaceNormal(f int) r3.Vec {
	p := m.Triangle(f)
	return r3.Unit(r3.Cross(r3.Sub(p[1], p[0]), r3.Sub(p[2], p[0])))
}

// Bounds returns the axis-aligned bounding box of the vertices.
func (m *Mesh) Bounds() r3.Box {
	if len(m.Vertices) == 0 {
		return r3.Box{}
	}
	b := r3.Box{Min: m.Vertices[0], Max: m.Vertices[0]}
	for _, v := range m.Vertices[1:] {
		b.Min = r3.Vec{X: math.Min(b.Min.X, v.X), Y: math.Min(b.Min.Y, v.Y), Z: math.Min(b.Min.Z, v.Z)}
		b.Max = r3.Vec{X: math.Max(b.Max.X, v.X), Y: math.Max(b.Max.Y, v.Y), Z: math.Max(b.Max.Z, v.Z)}
	}
	return b
}

// Validate checks the structural invariants of the mesh: array lengths agree,
// faces reference distinct in-range vertices, no vertex is orphaned, interior
// faces separate different regions, exterior faces lie on the bounding box and
// node types are well formed.
func (m *Mesh) Validate() error {
	var errs error
	n := 0
	report := func(format string, args ...any) {
		n++
		if n <= maxViolations {
			errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidMesh}, args...)...))
		}
	}

	if len(m.FaceLabels) != len(m.Faces) {
		report("%d face labels for %d faces", len(m.FaceLabels), len(m.Faces))
		return errs
	}
	if m.FacePhases != nil && len(m.FacePhases) != len(m.Faces) {
		report("%d face phases for %d faces", len(m.FacePhases), len(m.Faces))
	}
	if len(m.NodeTypes) != len(m.Vertices) {
		report("%d node types for %d vertices", len(m.NodeTypes), len(m.Vertices))
	}

	bounds := m.Bounds()
	referenced := make([]bool, len(m.Vertices))
	for f, tri := range m.Faces {
		inRange := true
		for _, v := range tri {
			if v < 0 || int(v) >= len(m.Vertices) {
				report("face %d references vertex %d of %d", f, v, len(m.Vertices))
				inRange = false
				continue
			}
			referenced[v] = true
		}
		if tri[0] == tri[1] || tri[1] == tri[2] || tri[0] == tri[2] {
			report("face %d has repeated vertices %v", f, tri)
		}

		labels := m.FaceLabels[f]
		switch {
		case labels[0] == ExteriorLabel:
			report("face %d has exterior as its first label", f)
		case labels[1] == ExteriorLabel:
			if inRange && !onBoundary(m.Triangle(f), bounds) {
				report("exterior face %d is not on the bounding box", f)
			}
		case labels[0] == labels[1]:
			report("face %d separates region %d from itself", f, labels[0])
		}
	}

	for v, ok := range referenced {
		if !ok {
			report("vertex %d is not referenced by any face", v)
		}
	}
	for v, t := range m.NodeTypes {
		if !t.Valid() {
			report("vertex %d has node type %d", v, t)
		}
	}

	if n > maxViolations {
		errs = multierr.Append(errs, fmt.Errorf("%w: %d more violations", ErrInvalidMesh, n-maxViolations))
	}
	return errs
}

// onBoundary reports whether all three points share a bounding-box plane.
func onBoundary(p [3]r3.Vec, b r3.Box) bool {
	const eps = 1e-9
	coord := func(v r3.Vec, axis int) float64 {
		switch axis {
		case 0:
			return v.X
		case 1:
			return v.Y
		}
		return v.Z
	}
	for axis := 0; axis < 3; axis++ {
		for _, plane := range []float64{coord(b.Min, axis), coord(b.Max, axis)} {
			if math.Abs(coord(p[0], axis)-plane) < eps &&
				math.Abs(coord(p[1], axis)-plane) < eps &&
				math.Abs(coord(p[2], axis)-plane) < eps {
				return true
			}
		}
	}
	return false
}
