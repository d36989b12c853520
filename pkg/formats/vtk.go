package formats

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Faultbox/grainmesh/pkg/surfacemesh"
)

// WriteVTK writes m as legacy VTK POLYDATA. Face labels (and phases, when
// present) become two-component CELL_DATA; node types become POINT_DATA.
// Binary output is big-endian as the legacy format requires.
func WriteVTK(w io.Writer, m *surfacemesh.Mesh, binaryData bool) error {
	bw := bufio.NewWriter(w)
	enc := vtkEncoder{w: bw, binary: binaryData}

	mode := "ASCII"
	if binaryData {
		mode = "BINARY"
	}
	fmt.Fprintf(bw, "# vtk DataFile Version 2.0\ngrainmesh surface\n%s\nDATASET POLYDATA\n", mode)

	fmt.Fprintf(bw, "POINTS %d float\n", len(m.Vertices))
	for _, v := range m.Vertices {
		enc.floats(float32(v.X), float32(v.Y), float32(v.Z))
	}
	enc.end()

	fmt.Fprintf(bw, "POLYGONS %d %d\n", len(m.Faces), len(m.Faces)*4)
	for _, f := range m.Faces {
		enc.ints(3, f[0], f[1], f[2])
	}
	enc.end()

	fmt.Fprintf(bw, "CELL_DATA %d\n", len(m.Faces))
	fmt.Fprintf(bw, "SCALARS FaceLabels int 2\nLOOKUP_TABLE default\n")
	for _, l := range m.FaceLabels {
		enc.ints(l[0], l[1])
	}
	enc.end()
	if m.FacePhases != nil {
		fmt.Fprintf(bw, "SCALARS PhaseLabels int 2\nLOOKUP_TABLE default\n")
		for _, l := range m.FacePhases {
			enc.ints(l[0], l[1])
		}
		enc.end()
	}

	fmt.Fprintf(bw, "POINT_DATA %d\n", len(m.Vertices))
	fmt.Fprintf(bw, "SCALARS NodeType int 1\nLOOKUP_TABLE default\n")
	for _, t := range m.NodeTypes {
		enc.ints(int32(t))
	}
	enc.end()

	if enc.err != nil {
		return enc.err
	}
	return bw.Flush()
}

// vtkEncoder writes one record per call, either as a text line or as
// big-endian binary values.
type vtkEncoder struct {
	w      *bufio.Writer
	binary bool
	err    error
}

func (e *vtkEncoder) floats(vs ...float32) {
	if e.err != nil {
		return
	}
	if e.binary {
		e.err = binary.Write(e.w, binary.BigEndian, vs)
		return
	}
	for i, v := range vs {
		if i > 0 {
			e.w.WriteByte(' ')
		}
		fmt.Fprintf(e.w, "%g", v)
	}
	e.w.WriteByte('\n')
}

func (e *vtkEncoder) ints(vs ...int32) {
	if e.err != nil {
		return
	}
	if e.binary {
		e.err = binary.Write(e.w, binary.BigEndian, vs)
		return
	}
	for i, v := range vs {
		if i > 0 {
			e.w.WriteByte(' ')
		}
		fmt.Fprintf(e.w, "%d", v)
	}
	e.w.WriteByte('\n')
}

// end terminates a binary block with a newline.
func (e *vtkEncoder) end() {
	if e.binary && e.err == nil {
		e.err = e.w.WriteByte('\n')
	}
}
