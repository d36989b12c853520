package formats

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/Faultbox/grainmesh/pkg/surfacemesh"
)

// stlTriangleSize is the byte size of one binary STL record.
const stlTriangleSize = 50

// WriteSTL writes every face of m as binary STL. The attribute word of each
// triangle carries the low 16 bits of its first region label.
func WriteSTL(w io.Writer, m *surfacemesh.Mesh) error {
	faces := make([]int, len(m.Faces))
	for f := range faces {
		faces[f] = f
	}
	return writeSTL(w, m, "grainmesh surface", faces, nil)
}

// WriteRegionSTL writes the closed boundary of one region as binary STL, with
// every normal pointing out of the region.
func WriteRegionSTL(w io.Writer, m *surfacemesh.Mesh, label int32) error {
	faces := m.RegionFaces(label)
	if len(faces) == 0 {
		return fmt.Errorf("region %d has no faces", label)
	}
	// Faces are wound out of their first label; flip the ones where the
	// region is the second label.
	flip := make([]bool, len(faces))
	for n, f := range faces {
		flip[n] = m.FaceLabels[f][0] != label
	}
	return writeSTL(w, m, fmt.Sprintf("grainmesh region %d", label), faces, flip)
}

func writeSTL(w io.Writer, m *surfacemesh.Mesh, name string, faces []int, flip []bool) error {
	bw := bufio.NewWriter(w)

	var header [80]byte
	copy(header[:], name)
	bw.Write(header[:])
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(faces))); err != nil {
		return err
	}

	var rec [stlTriangleSize]byte
	for n, f := range faces {
		p := m.Triangle(f)
		normal := m.FaceNormal(f)
		if flip != nil && flip[n] {
			p[1], p[2] = p[2], p[1]
			normal.X, normal.Y, normal.Z = -normal.X, -normal.Y, -normal.Z
		}
		putFloat32(rec[0:], normal.X)
		putFloat32(rec[4:], normal.Y)
		putFloat32(rec[8:], normal.Z)
		for v := 0; v < 3; v++ {
			putFloat32(rec[12+v*12:], p[v].X)
			putFloat32(rec[16+v*12:], p[v].Y)
			putFloat32(rec[20+v*12:], p[v].Z)
		}
		binary.LittleEndian.PutUint16(rec[48:], uint16(m.FaceLabels[f][0]))
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func putFloat32(b []byte, v float64) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
}
