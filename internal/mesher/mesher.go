// Package mesher runs volume-to-surface conversions end to end: it loads a
// labeled volume, builds and validates the surface mesh, and writes it out.
package mesher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/grainmesh/internal/config"
	"github.com/Faultbox/grainmesh/internal/logger"
	"github.com/Faultbox/grainmesh/pkg/formats"
	"github.com/Faultbox/grainmesh/pkg/surfacemesh"
	"github.com/Faultbox/grainmesh/pkg/volume"
)

// Binvox occupancy becomes a two-region volume with these labels.
const (
	BinvoxSolidLabel int32 = 1
	BinvoxEmptyLabel int32 = 0
)

// ErrNoOutput is returned when the configured writer produced nothing.
var ErrNoOutput = errors.New("no output written")

// Job is one volume to convert.
type Job struct {
	Input string
	// Output is the mesh path. Empty means <output.dir>/<input base><ext>.
	// With per-region STL output it is used as a filename prefix.
	Output string
}

// Result describes a finished job.
type Result struct {
	Job     Job
	Dims    volume.Dims
	Stats   surfacemesh.Stats
	Files   []string
	Elapsed time.Duration
	Err     error
}

// LoadVolume reads a region volume in the configured input format, attaching
// a phase array when cfg.Input.PhasePath is set and cropping to
// cfg.Input.Crop when one is configured.
func LoadVolume(path string, cfg *config.Config) (*volume.Grid, error) {
	g, err := loadGrid(path, cfg)
	if err != nil {
		return nil, err
	}
	if c := cfg.Input.Crop; c != nil {
		if g, err = g.Crop(c.Min, c.Max); err != nil {
			return nil, fmt.Errorf("%w: %w", surfacemesh.ErrInvalidInput, err)
		}
	}
	return g, nil
}

func loadGrid(path string, cfg *config.Config) (*volume.Grid, error) {
	format, err := formats.ParseFormat(cfg.Input.Format)
	if err != nil {
		return nil, err
	}
	if format == formats.FormatAuto {
		if format, err = formats.DetectVolumeFormat(path); err != nil {
			return nil, err
		}
	}

	var phases *formats.NPYArray
	if cfg.Input.PhasePath != "" {
		if phases, err = formats.ParseNPYFile(cfg.Input.PhasePath); err != nil {
			return nil, fmt.Errorf("phase array: %w", err)
		}
	}

	switch format {
	case formats.FormatBinvox:
		b, err := formats.ParseBinvoxFile(path)
		if err != nil {
			return nil, err
		}
		g, err := b.Grid(BinvoxSolidLabel, BinvoxEmptyLabel)
		if err != nil {
			return nil, err
		}
		if phases == nil {
			return g, nil
		}
		if pd, err := phases.Dims(); err != nil || pd != g.Dimensions() {
			return nil, fmt.Errorf("%w: %w: phase shape %v does not match %s",
				surfacemesh.ErrInvalidInput, volume.ErrInvalidGrid, phases.Shape, g.Dimensions())
		}
		return g.WithPhases(phases.Data)

	case formats.FormatNPY:
		regions, err := formats.ParseNPYFile(path)
		if err != nil {
			return nil, err
		}
		res := cfg.Input.Resolution
		origin := cfg.Input.Origin
		return formats.NPYGrid(regions, phases,
			r3.Vec{X: res[0], Y: res[1], Z: res[2]},
			r3.Vec{X: origin[0], Y: origin[1], Z: origin[2]})
	}
	return nil, fmt.Errorf("%w: %s is not a volume format", formats.ErrUnknownFormat, format)
}

// MeshOptions maps config onto converter options.
func MeshOptions(cfg *config.Config) surfacemesh.Options {
	return surfacemesh.Options{
		TransferPhaseID: cfg.Mesh.TransferPhaseID,
		Workers:         cfg.Mesh.Workers,
		MaxCorners:      cfg.Mesh.MaxCorners,
		Logger:          logger.Named("surfacemesh"),
	}
}

// OutputPath returns where job's mesh is written.
func OutputPath(job Job, cfg *config.Config) string {
	if job.Output != "" {
		return job.Output
	}
	base := strings.TrimSuffix(filepath.Base(job.Input), filepath.Ext(job.Input))
	format, _ := formats.ParseFormat(cfg.Output.Format)
	return filepath.Join(cfg.Output.Dir, base+format.Ext())
}

// Run converts a single volume.
func Run(ctx context.Context, job Job, cfg *config.Config) (*Result, error) {
	log := logger.Named("mesher").With(zap.String("input", job.Input))
	start := time.Now()
	res := &Result{Job: job}

	g, err := LoadVolume(job.Input, cfg)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", job.Input, err)
	}
	res.Dims = g.Dimensions()
	log.Info("volume loaded",
		zap.Stringer("dims", res.Dims),
		zap.Bool("phases", g.HasPhases()))

	m, err := surfacemesh.Build(ctx, g, MeshOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("meshing %s: %w", job.Input, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("meshing %s: %w", job.Input, err)
	}
	res.Stats = m.Stats()
	log.Info("mesh built",
		zap.Int("vertices", res.Stats.Vertices),
		zap.Int("faces", res.Stats.Faces),
		zap.Int("regions", res.Stats.Regions))

	if res.Files, err = Write(m, OutputPath(job, cfg), cfg); err != nil {
		return nil, fmt.Errorf("writing %s: %w", job.Input, err)
	}
	res.Elapsed = time.Since(start)
	log.Info("mesh written",
		zap.Strings("files", res.Files),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// Write stores m at path in the configured output format and returns the
// files created.
func Write(m *surfacemesh.Mesh, path string, cfg *config.Config) ([]string, error) {
	format, err := formats.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	switch {
	case format == formats.FormatSTL && cfg.Output.PerRegionSTL:
		prefix := strings.TrimSuffix(path, filepath.Ext(path))
		var files []string
		for _, label := range m.Regions() {
			name := fmt.Sprintf("%s_region%d%s", prefix, label, format.Ext())
			if err := writeFile(name, func(f *os.File) error {
				return formats.WriteRegionSTL(f, m, label)
			}); err != nil {
				return files, err
			}
			files = append(files, name)
		}
		if len(files) == 0 {
			return nil, ErrNoOutput
		}
		return files, nil

	case format == formats.FormatSTL:
		return []string{path}, writeFile(path, func(f *os.File) error {
			return formats.WriteSTL(f, m)
		})

	case format == formats.FormatVTK:
		return []string{path}, writeFile(path, func(f *os.File) error {
			return formats.WriteVTK(f, m, cfg.Output.BinaryVTK)
		})
	}
	return nil, fmt.Errorf("%w: %s is not a mesh format", formats.ErrUnknownFormat, format)
}

func writeFile(path string, write func(f *os.File) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return write(f)
}

// RunBatch converts jobs concurrently, at most cfg.Batch.Concurrency at a
// time. Every job runs to completion; results keep the order of jobs and the
// returned error combines all job failures.
func RunBatch(ctx context.Context, jobs []Job, cfg *config.Config) ([]*Result, error) {
	results := make([]*Result, len(jobs))
	var (
		mu   sync.Mutex
		errs error
	)

	g := new(errgroup.Group)
	g.SetLimit(max(cfg.Batch.Concurrency, 1))
	for n, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[n] = &Result{Job: job, Err: err}
			} else if res, err := Run(ctx, job, cfg); err != nil {
				results[n] = &Result{Job: job, Err: err}
			} else {
				results[n] = res
			}
			if err := results[n].Err; err != nil {
				logger.Named("mesher").Warn("job failed", zap.String("input", job.Input), zap.Error(err))
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return results, errs
}
