package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/grainmesh/pkg/formats"
	"github.com/Faultbox/grainmesh/pkg/volume"
)

// synthesize labels every voxel with the id (1..regions) of its nearest seed
// point, giving a Voronoi grain structure. Phases alternate between 1 and 2
// by region id.
func synthesize(dims volume.Dims, regions int, seed uint64) (labels, phases []int32) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	seeds := make([]r3.Vec, regions)
	for i := range seeds {
		seeds[i] = r3.Vec{
			X: rng.Float64() * float64(dims[0]),
			Y: rng.Float64() * float64(dims[1]),
			Z: rng.Float64() * float64(dims[2]),
		}
	}

	labels = make([]int32, 0, dims.Count())
	phases = make([]int32, 0, dims.Count())
	for k := 0; k < dims[2]; k++ {
		for j := 0; j < dims[1]; j++ {
			for i := 0; i < dims[0]; i++ {
				c := r3.Vec{X: float64(i) + 0.5, Y: float64(j) + 0.5, Z: float64(k) + 0.5}
				best, bestDist := 0, -1.0
				for s, p := range seeds {
					d := r3.Norm2(r3.Sub(c, p))
					if bestDist < 0 || d < bestDist {
						best, bestDist = s, d
					}
				}
				label := int32(best + 1)
				labels = append(labels, label)
				phases = append(phases, label%2+1)
			}
		}
	}
	return labels, phases
}

// writeSynthetic writes the region labels as NPY. A .binvox path instead
// gets the phase-2 voxels as occupancy.
func writeSynthetic(path, phasePath string, dims [3]int, regions int, seed uint64) error {
	labels, phases := synthesize(volume.Dims(dims), regions, seed)
	shape := []int{dims[2], dims[1], dims[0]}

	if strings.EqualFold(filepath.Ext(path), formats.FormatBinvox.Ext()) {
		if err := writeBinvoxFile(path, volume.Dims(dims), phases); err != nil {
			return err
		}
	} else if err := writeNPYFile(path, shape, labels); err != nil {
		return err
	}
	if phasePath == "" {
		return nil
	}
	return writeNPYFile(phasePath, shape, phases)
}

func writeNPYFile(path string, shape []int, data []int32) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return formats.WriteNPY(f, shape, data)
}

func writeBinvoxFile(path string, dims volume.Dims, phases []int32) (err error) {
	g, err := volume.NewGrid(dims, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{}, phases, nil)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return formats.WriteBinvox(f, formats.BinvoxFromGrid(g, 2))
}
