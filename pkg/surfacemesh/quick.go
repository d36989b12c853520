// Package surfacemesh converts labeled voxel volumes into conforming triangle
// surface meshes.
//
// Every voxel face separating two different region labels, and every face on
// the grid exterior, becomes a quad split into two triangles. Shared corners
// are deduplicated into a single vertex, and each vertex is classified by the
// number of distinct regions (and the exterior) that meet at it.
package surfacemesh

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/grainmesh/pkg/volume"
)

// Build errors.
var (
	ErrInvalidInput = errors.New("invalid input volume")
	ErrAllocation   = errors.New("volume too large to mesh")
)

// DefaultMaxCorners is the largest corner lattice Build accepts by default.
// Vertex ids are int32, so the lattice can never exceed that range.
const DefaultMaxCorners = math.MaxInt32

// minShard is the smallest vertex range handed to a classification worker.
const minShard = 1 << 14

// Options controls a Build.
type Options struct {
	// TransferPhaseID copies per-voxel phase ids onto FacePhases. The source
	// must implement volume.PhaseProvider and report HasPhases.
	TransferPhaseID bool
	// Workers bounds the goroutines used to classify vertices. Zero means
	// GOMAXPROCS; one classifies inline.
	Workers int
	// MaxCorners caps the corner lattice size. Zero means DefaultMaxCorners.
	MaxCorners int
	// Logger receives debug timings. Nil disables logging.
	Logger *zap.Logger
}

func (o Options) maxCorners() int {
	if o.MaxCorners <= 0 || o.MaxCorners > DefaultMaxCorners {
		return DefaultMaxCorners
	}
	return o.MaxCorners
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return o.Workers
}

// Preflight validates src against opts without meshing.
func Preflight(src volume.Provider, opts Options) error {
	_, err := preflight(src, opts)
	return err
}

func preflight(src volume.Provider, opts Options) (volume.PhaseProvider, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil volume", ErrInvalidInput)
	}
	dims := src.Dimensions()
	if dims.Empty() {
		return nil, fmt.Errorf("%w: dimensions %s", ErrInvalidInput, dims)
	}
	if res := src.Resolution(); res.X <= 0 || res.Y <= 0 || res.Z <= 0 {
		return nil, fmt.Errorf("%w: resolution %v", ErrInvalidInput, res)
	}

	var phases volume.PhaseProvider
	if opts.TransferPhaseID {
		pp, ok := src.(volume.PhaseProvider)
		if !ok || !pp.HasPhases() {
			return nil, fmt.Errorf("%w: phase transfer requested without a phase array", ErrInvalidInput)
		}
		phases = pp
	}

	corners := float64(dims[0]+1) * float64(dims[1]+1) * float64(dims[2]+1)
	if limit := opts.maxCorners(); corners > float64(limit) {
		return nil, fmt.Errorf("%w: %s grid needs %.0f corners, limit %d", ErrAllocation, dims, corners, limit)
	}
	return phases, nil
}

// Build converts src into a surface mesh. Either a complete mesh or an error
// is returned; src is never modified.
func Build(ctx context.Context, src volume.Provider, opts Options) (*Mesh, error) {
	phases, err := preflight(src, opts)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	dims := src.Dimensions()
	b := &builder{
		src:     src,
		phases:  phases,
		dims:    dims,
		res:     src.Resolution(),
		origin:  src.Origin(),
		corners: newCornerRegistry(dims[0], dims[1], dims[2]),
	}

	start := time.Now()
	triangles, err := b.count(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug("surface mesh counted",
		zap.Stringer("dims", dims),
		zap.Int("vertices", b.corners.Len()),
		zap.Int("triangles", triangles),
		zap.Duration("elapsed", time.Since(start)))

	start = time.Now()
	mesh, owners, err := b.fill(ctx, triangles)
	if err != nil {
		return nil, err
	}
	log.Debug("surface mesh filled", zap.Duration("elapsed", time.Since(start)))

	start = time.Now()
	if err := classifyNodes(ctx, mesh.NodeTypes, owners, opts.workers()); err != nil {
		return nil, err
	}
	log.Debug("surface mesh nodes classified",
		zap.Int("workers", opts.workers()),
		zap.Duration("elapsed", time.Since(start)))

	return mesh, nil
}

// quad is one emitted voxel face. owner is the voxel holding labels[0]; the
// face is wound with owner's outward orientation.
type quad struct {
	owner  [3]int
	orient Orientation
	labels [2]int32
	phases [2]int32
}

func (q *quad) corner(c int) [3]int {
	return q.orient.Corner(q.owner, c)
}

type builder struct {
	src     volume.Provider
	phases  volume.PhaseProvider
	dims    volume.Dims
	res     r3.Vec
	origin  r3.Vec
	corners *cornerRegistry
}

// scan visits voxels with k outermost and i innermost, testing faces in
// Orientation order, and calls emit for every boundary face. The traversal is
// identical on every call.
func (b *builder) scan(ctx context.Context, emit func(q *quad) error) error {
	var q quad
	for k := 0; k < b.dims[2]; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for j := 0; j < b.dims[1]; j++ {
			for i := 0; i < b.dims[0]; i++ {
				v := [3]int{i, j, k}
				label := b.src.RegionLabel(i, j, k)
				for o := XMin; o <= ZMax; o++ {
					axis := o.Axis()
					switch {
					case !o.IsMax():
						if v[axis] != 0 {
							continue
						}
						b.exterior(&q, v, o, label)
					case v[axis] == b.dims[axis]-1:
						b.exterior(&q, v, o, label)
					default:
						n := v
						n[axis]++
						nl := b.src.RegionLabel(n[0], n[1], n[2])
						if nl == label {
							continue
						}
						// The neighbor holds labelA, so the face is wound
						// as the neighbor's opposite face.
						q = quad{owner: n, orient: o.Opposite(), labels: [2]int32{nl, label}}
						if b.phases != nil {
							q.phases = [2]int32{
								b.phases.PhaseLabel(n[0], n[1], n[2]),
								b.phases.PhaseLabel(i, j, k),
							}
						}
					}
					if err := emit(&q); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (b *builder) exterior(q *quad, v [3]int, o Orientation, label int32) {
	*q = quad{owner: v, orient: o, labels: [2]int32{label, ExteriorLabel}}
	if b.phases != nil {
		q.phases = [2]int32{b.phases.PhaseLabel(v[0], v[1], v[2]), ExteriorPhase}
	}
}

// count claims vertex ids for every referenced corner and returns the number
// of triangles the fill pass will emit.
func (b *builder) count(ctx context.Context) (int, error) {
	triangles := 0
	err := b.scan(ctx, func(q *quad) error {
		for c := 0; c < 4; c++ {
			b.corners.claim(q.corner(c))
		}
		triangles += len(triangleCorners)
		return nil
	})
	return triangles, err
}

// fill repeats the scan, writing vertex positions, triangles and labels, and
// collects the ownership set of every vertex.
func (b *builder) fill(ctx context.Context, triangles int) (*Mesh, []labelSet, error) {
	nv := b.corners.Len()
	mesh := &Mesh{
		Vertices:   make([]r3.Vec, nv),
		Faces:      make([][3]int32, 0, triangles),
		FaceLabels: make([][2]int32, 0, triangles),
		NodeTypes:  make([]NodeType, nv),
	}
	if b.phases != nil {
		mesh.FacePhases = make([][2]int32, 0, triangles)
	}
	owners := make([]labelSet, nv)

	err := b.scan(ctx, func(q *quad) error {
		var ids [4]int32
		for c := range ids {
			corner := q.corner(c)
			id, ok := b.corners.lookup(corner)
			if !ok {
				return fmt.Errorf("corner %v was not registered by the count pass", corner)
			}
			ids[c] = id
			mesh.Vertices[id] = b.position(corner)
			owners[id].add(q.labels[0])
			owners[id].add(q.labels[1])
		}
		for _, tc := range triangleCorners {
			mesh.Faces = append(mesh.Faces, [3]int32{ids[tc[0]], ids[tc[1]], ids[tc[2]]})
			mesh.FaceLabels = append(mesh.FaceLabels, q.labels)
			if mesh.FacePhases != nil {
				mesh.FacePhases = append(mesh.FacePhases, q.phases)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(mesh.Faces) != triangles {
		return nil, nil, fmt.Errorf("fill pass emitted %d triangles, count pass %d", len(mesh.Faces), triangles)
	}
	return mesh, owners, nil
}

// position returns the world coordinates of a lattice corner.
func (b *builder) position(c [3]int) r3.Vec {
	return r3.Vec{
		X: b.origin.X + float64(c[0])*b.res.X,
		Y: b.origin.Y + float64(c[1])*b.res.Y,
		Z: b.origin.Z + float64(c[2])*b.res.Z,
	}
}

// classifyNodes fills types from owners. Shards cover disjoint vertex ranges,
// so workers never write the same element.
func classifyNodes(ctx context.Context, types []NodeType, owners []labelSet, workers int) error {
	n := len(types)
	if workers <= 1 || n < 2*minShard {
		for v := range types {
			types[v] = classify(owners[v])
		}
		return nil
	}

	shard := (n + workers - 1) / workers
	if shard < minShard {
		shard = minShard
	}
	g, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += shard {
		hi := min(lo+shard, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for v := lo; v < hi; v++ {
				types[v] = classify(owners[v])
			}
			return nil
		})
	}
	return g.Wait()
}
