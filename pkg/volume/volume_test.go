package volume

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

var unit = r3.Vec{X: 1, Y: 1, Z: 1}

// sequentialGrid creates a grid whose region label equals its linear index.
func sequentialGrid(t *testing.T, dims Dims) *Grid {
	t.Helper()
	regions := make([]int32, dims.Count())
	for i := range regions {
		regions[i] = int32(i)
	}
	g, err := NewGrid(dims, unit, r3.Vec{}, regions, nil)
	if err != nil {
		t.Fatalf("NewGrid failed: %v", err)
	}
	return g
}

func TestNewGrid_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		dims    Dims
		res     r3.Vec
		regions []int32
		phases  []int32
	}{
		{"zero x", Dims{0, 1, 1}, unit, nil, nil},
		{"negative z", Dims{1, 1, -1}, unit, []int32{0}, nil},
		{"zero resolution", Dims{1, 1, 1}, r3.Vec{X: 1, Y: 0, Z: 1}, []int32{0}, nil},
		{"short regions", Dims{2, 1, 1}, unit, []int32{0}, nil},
		{"short phases", Dims{2, 1, 1}, unit, []int32{0, 1}, []int32{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGrid(tt.dims, tt.res, r3.Vec{}, tt.regions, tt.phases)
			if !errors.Is(err, ErrInvalidGrid) {
				t.Errorf("expected ErrInvalidGrid, got %v", err)
			}
		})
	}
}

func TestGridIndexing(t *testing.T) {
	g := sequentialGrid(t, Dims{3, 4, 5})

	if got := g.Index(2, 1, 3); got != 3*12+1*3+2 {
		t.Errorf("Index(2,1,3) = %d, want %d", got, 3*12+1*3+2)
	}
	if got := g.RegionLabel(1, 2, 4); got != int32(g.Index(1, 2, 4)) {
		t.Errorf("RegionLabel(1,2,4) = %d, want %d", got, g.Index(1, 2, 4))
	}
	if g.InBounds(3, 0, 0) {
		t.Error("expected (3,0,0) to be out of bounds")
	}
	if g.HasPhases() {
		t.Error("expected grid without phases")
	}
	if got := g.PhaseLabel(0, 0, 0); got != 0 {
		t.Errorf("PhaseLabel without phases = %d, want 0", got)
	}
}

func TestGridRegionCounts(t *testing.T) {
	g, err := NewGrid(Dims{2, 2, 1}, unit, r3.Vec{}, []int32{5, 5, 7, 5}, nil)
	if err != nil {
		t.Fatalf("NewGrid failed: %v", err)
	}
	counts := g.RegionCounts()
	if counts[5] != 3 || counts[7] != 1 || len(counts) != 2 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestGridCrop(t *testing.T) {
	g := sequentialGrid(t, Dims{4, 3, 2})
	g.res = r3.Vec{X: 0.5, Y: 2, Z: 1}

	sub, err := g.Crop([3]int{1, 1, 1}, [3]int{2, 2, 1})
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	if sub.Dimensions() != (Dims{2, 2, 1}) {
		t.Fatalf("cropped dims = %s, want 2x2x1", sub.Dimensions())
	}
	for j := 0; j < 2; j++ {
		for i := 0; i < 2; i++ {
			want := g.RegionLabel(i+1, j+1, 1)
			if got := sub.RegionLabel(i, j, 0); got != want {
				t.Errorf("cropped (%d,%d,0) = %d, want %d", i, j, got, want)
			}
		}
	}
	wantOrigin := r3.Vec{X: 0.5, Y: 2, Z: 1}
	if sub.Origin() != wantOrigin {
		t.Errorf("cropped origin = %v, want %v", sub.Origin(), wantOrigin)
	}

	if _, err := g.Crop([3]int{0, 0, 0}, [3]int{4, 0, 0}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestGridWithPhases(t *testing.T) {
	g := sequentialGrid(t, Dims{2, 1, 1})
	pg, err := g.WithPhases([]int32{1, 2})
	if err != nil {
		t.Fatalf("WithPhases failed: %v", err)
	}
	if !pg.HasPhases() || pg.PhaseLabel(1, 0, 0) != 2 {
		t.Errorf("unexpected phases %v", pg.Phases())
	}
	if _, err := g.WithPhases([]int32{1}); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("expected ErrInvalidGrid, got %v", err)
	}
}
