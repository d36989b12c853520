package surfacemesh

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/grainmesh/pkg/volume"
)

var unitRes = r3.Vec{X: 1, Y: 1, Z: 1}

// makeGrid creates a unit-resolution grid at the origin.
func makeGrid(t *testing.T, dims volume.Dims, regions, phases []int32) *volume.Grid {
	t.Helper()
	g, err := volume.NewGrid(dims, unitRes, r3.Vec{}, regions, phases)
	require.NoError(t, err)
	return g
}

// randomGrid creates a grid with labels drawn from [0, regions).
func randomGrid(t *testing.T, dims volume.Dims, regions int, seed int64) *volume.Grid {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	labels := make([]int32, dims.Count())
	phases := make([]int32, dims.Count())
	for i := range labels {
		labels[i] = int32(rng.Intn(regions))
		phases[i] = labels[i]%2 + 1
	}
	return makeGrid(t, dims, labels, phases)
}

// stubVolume lets tests hand Build dimensions a Grid would reject.
type stubVolume struct {
	dims volume.Dims
	res  r3.Vec
}

func (s stubVolume) Dimensions() volume.Dims       { return s.dims }
func (s stubVolume) Resolution() r3.Vec            { return s.res }
func (s stubVolume) Origin() r3.Vec                { return r3.Vec{} }
func (s stubVolume) RegionLabel(i, j, k int) int32 { return 0 }

func build(t *testing.T, src volume.Provider, opts Options) *Mesh {
	t.Helper()
	m, err := Build(context.Background(), src, opts)
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	return m
}

func centroid(p [3]r3.Vec) r3.Vec {
	return r3.Scale(1.0/3, r3.Add(r3.Add(p[0], p[1]), p[2]))
}

func TestBuild_SingleVoxel(t *testing.T) {
	m := build(t, makeGrid(t, volume.Dims{1, 1, 1}, []int32{7}, nil), Options{})

	assert.Len(t, m.Vertices, 8)
	assert.Len(t, m.Faces, 12)
	assert.Nil(t, m.FacePhases)
	for v, nt := range m.NodeTypes {
		assert.Equal(t, NodeExteriorBoundary, nt, "vertex %d", v)
	}

	center := r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}
	for f := range m.Faces {
		assert.Equal(t, [2]int32{7, ExteriorLabel}, m.FaceLabels[f])
		out := r3.Sub(centroid(m.Triangle(f)), center)
		assert.Greater(t, r3.Dot(m.FaceNormal(f), out), 0.0, "face %d normal points inward", f)
	}
}

func TestBuild_UniformBox(t *testing.T) {
	dims := volume.Dims{3, 2, 4}
	labels := make([]int32, dims.Count())
	for i := range labels {
		labels[i] = 3
	}
	m := build(t, makeGrid(t, dims, labels, nil), Options{})

	quads := 2 * (dims[0]*dims[1] + dims[1]*dims[2] + dims[0]*dims[2])
	assert.Len(t, m.Faces, 2*quads)

	// Every lattice point on the box surface, and nothing inside.
	all := (dims[0] + 1) * (dims[1] + 1) * (dims[2] + 1)
	inner := (dims[0] - 1) * (dims[1] - 1) * (dims[2] - 1)
	assert.Len(t, m.Vertices, all-inner)

	for _, nt := range m.NodeTypes {
		assert.Equal(t, NodeExteriorBoundary, nt)
	}
	for _, l := range m.FaceLabels {
		assert.Equal(t, [2]int32{3, ExteriorLabel}, l)
	}
}

func TestBuild_TwoRegions(t *testing.T) {
	m := build(t, makeGrid(t, volume.Dims{2, 1, 1}, []int32{0, 1}, nil), Options{})

	assert.Len(t, m.Vertices, 12)
	assert.Len(t, m.Faces, 22)

	var interior []int
	for f, l := range m.FaceLabels {
		if l[1] != ExteriorLabel {
			interior = append(interior, f)
		}
	}
	require.Len(t, interior, 2)
	for _, f := range interior {
		assert.Equal(t, [2]int32{1, 0}, m.FaceLabels[f])
		// Normal points out of region 1 toward region 0.
		assert.InDelta(t, -1.0, m.FaceNormal(f).X, 1e-12)
	}

	for v, p := range m.Vertices {
		want := NodeExteriorBoundary
		if p.X == 1 {
			want = NodeExteriorTriple
		}
		assert.Equal(t, want, m.NodeTypes[v], "vertex %d at %v", v, p)
	}
}

func TestBuild_JunctionTypes(t *testing.T) {
	t.Run("quadruple on exterior", func(t *testing.T) {
		m := build(t, makeGrid(t, volume.Dims{2, 2, 1}, []int32{1, 2, 3, 4}, nil), Options{})
		for v, p := range m.Vertices {
			if p.X == 1 && p.Y == 1 {
				assert.Equal(t, NodeExteriorQuadPoint, m.NodeTypes[v])
			}
		}
	})

	t.Run("interior triple line", func(t *testing.T) {
		layer := []int32{0, 1, 2, 2}
		m := build(t, makeGrid(t, volume.Dims{2, 2, 2}, append(append([]int32{}, layer...), layer...), nil), Options{})
		found := false
		for v, p := range m.Vertices {
			if p == (r3.Vec{X: 1, Y: 1, Z: 1}) {
				found = true
				assert.Equal(t, NodeTripleLine, m.NodeTypes[v])
			}
		}
		assert.True(t, found, "center vertex missing")
	})

	t.Run("interior saturated", func(t *testing.T) {
		m := build(t, makeGrid(t, volume.Dims{2, 2, 2}, []int32{0, 1, 2, 3, 4, 5, 6, 7}, nil), Options{})
		for v, p := range m.Vertices {
			if p == (r3.Vec{X: 1, Y: 1, Z: 1}) {
				assert.Equal(t, NodeQuadPoint, m.NodeTypes[v])
			}
		}
	})
}

func TestBuild_RandomVolumeInvariants(t *testing.T) {
	dims := volume.Dims{6, 5, 4}
	g := randomGrid(t, dims, 4, 42)
	m := build(t, g, Options{TransferPhaseID: true})

	// No two vertices share a position.
	seen := make(map[r3.Vec]int)
	for v, p := range m.Vertices {
		if prev, ok := seen[p]; ok {
			t.Fatalf("vertices %d and %d share position %v", prev, v, p)
		}
		seen[p] = v
	}

	labelAt := func(p r3.Vec) (int32, bool) {
		i, j, k := int(p.X), int(p.Y), int(p.Z)
		if !g.InBounds(i, j, k) || p.X < 0 || p.Y < 0 || p.Z < 0 {
			return ExteriorLabel, false
		}
		return g.RegionLabel(i, j, k), true
	}

	for f, l := range m.FaceLabels {
		c := centroid(m.Triangle(f))
		n := m.FaceNormal(f)

		// labelA lies behind the normal, labelB in front of it.
		a, ok := labelAt(r3.Sub(c, r3.Scale(0.5, n)))
		require.True(t, ok, "face %d: no voxel behind normal", f)
		assert.Equal(t, l[0], a, "face %d labelA", f)
		b, _ := labelAt(r3.Add(c, r3.Scale(0.5, n)))
		assert.Equal(t, l[1], b, "face %d labelB", f)

		if l[1] == ExteriorLabel {
			assert.Equal(t, ExteriorPhase, m.FacePhases[f][1])
		}
		assert.Equal(t, l[0]%2+1, m.FacePhases[f][0], "face %d phaseA", f)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	g := randomGrid(t, volume.Dims{5, 5, 5}, 6, 7)
	first := build(t, g, Options{TransferPhaseID: true})
	second := build(t, g, Options{TransferPhaseID: true})
	assert.Equal(t, first, second)
}

func TestBuild_ParallelClassification(t *testing.T) {
	g := randomGrid(t, volume.Dims{40, 40, 40}, 12, 3)
	serial := build(t, g, Options{Workers: 1})
	parallel := build(t, g, Options{Workers: 4})
	require.Greater(t, len(serial.Vertices), 2*minShard)
	assert.Equal(t, serial.NodeTypes, parallel.NodeTypes)
}

func TestBuild_Phases(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		m := build(t, makeGrid(t, volume.Dims{2, 1, 1}, []int32{0, 1}, nil), Options{})
		assert.Nil(t, m.FacePhases)
	})

	t.Run("enabled without array", func(t *testing.T) {
		m, err := Build(context.Background(), makeGrid(t, volume.Dims{2, 1, 1}, []int32{0, 1}, nil), Options{TransferPhaseID: true})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Nil(t, m)
	})

	t.Run("enabled on provider without phases", func(t *testing.T) {
		_, err := Build(context.Background(), stubVolume{dims: volume.Dims{1, 1, 1}, res: unitRes}, Options{TransferPhaseID: true})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("enabled", func(t *testing.T) {
		m := build(t, makeGrid(t, volume.Dims{2, 1, 1}, []int32{0, 1}, []int32{5, 6}), Options{TransferPhaseID: true})
		require.Len(t, m.FacePhases, len(m.Faces))
		for f, l := range m.FaceLabels {
			switch {
			case l[1] != ExteriorLabel:
				assert.Equal(t, [2]int32{6, 5}, m.FacePhases[f])
			case l[0] == 0:
				assert.Equal(t, [2]int32{5, ExteriorPhase}, m.FacePhases[f])
			default:
				assert.Equal(t, [2]int32{6, ExteriorPhase}, m.FacePhases[f])
			}
		}
	})
}

func TestBuild_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		src  volume.Provider
		opts Options
		want error
	}{
		{"nil volume", nil, Options{}, ErrInvalidInput},
		{"zero x", stubVolume{dims: volume.Dims{0, 4, 4}, res: unitRes}, Options{}, ErrInvalidInput},
		{"zero z", stubVolume{dims: volume.Dims{4, 4, 0}, res: unitRes}, Options{}, ErrInvalidInput},
		{"zero resolution", stubVolume{dims: volume.Dims{1, 1, 1}}, Options{}, ErrInvalidInput},
		{"corner limit", stubVolume{dims: volume.Dims{10, 10, 10}, res: unitRes}, Options{MaxCorners: 100}, ErrAllocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Preflight(tt.src, tt.opts), tt.want)
			m, err := Build(context.Background(), tt.src, tt.opts)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, m)
		})
	}
}

func TestBuild_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, err := Build(ctx, randomGrid(t, volume.Dims{3, 3, 3}, 2, 1), Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, m)
}

func TestBuild_ResolutionAndOrigin(t *testing.T) {
	g, err := volume.NewGrid(volume.Dims{1, 1, 1}, r3.Vec{X: 0.5, Y: 2, Z: 3}, r3.Vec{X: 10, Y: -1, Z: 0}, []int32{1}, nil)
	require.NoError(t, err)
	m := build(t, g, Options{})

	b := m.Bounds()
	assert.Equal(t, r3.Vec{X: 10, Y: -1, Z: 0}, b.Min)
	assert.Equal(t, r3.Vec{X: 10.5, Y: 1, Z: 3}, b.Max)
}
