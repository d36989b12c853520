// grainmesh converts labeled voxel volumes into conforming surface meshes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/grainmesh/internal/config"
	"github.com/Faultbox/grainmesh/internal/logger"
	"github.com/Faultbox/grainmesh/internal/mesher"
	"github.com/Faultbox/grainmesh/pkg/surfacemesh"
)

func main() {
	flag.Usage = printUsage
	config.ParseFlags()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	args = args[1:]

	switch command {
	case "help", "-h", "--help":
		printUsage()
		return
	case "synth":
		cmdSynth(args)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var code int
	switch command {
	case "mesh":
		code = cmdMesh(ctx, cfg, args)
	case "batch":
		code = cmdBatch(ctx, cfg, args)
	case "info":
		code = cmdInfo(cfg, args)
	case "validate":
		code = cmdValidate(ctx, cfg, args)
	case "config":
		code = cmdConfig(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		code = 1
	}
	if code != 0 {
		logger.Sync()
		stop()
		os.Exit(code)
	}
}

func printUsage() {
	fmt.Println(`grainmesh - voxel volume to surface mesh converter

Usage:
  grainmesh [flags] <command> [options]

Commands:
  mesh <input> [output]                    Convert one volume
  batch <input>...                         Convert volumes into --out
  info <input>                             Show volume dimensions and regions
  validate <input>                         Mesh in memory and check invariants
  synth <out.npy> <nx> <ny> <nz> <regions> Write a synthetic grain volume
                                           (.binvox writes phase-2 occupancy)
  config [path]                            Write the effective config

Flags:
  --config <path>   Config file (default ./grainmesh.yaml)
  --debug           Enable debug logging
  --phases <path>   NPY phase array; enables phase transfer
  --workers <n>     Classification workers (0 = all CPUs)
  --format <fmt>    Output format: stl or vtk
  --out <dir>       Output directory
  --crop <x0,y0,z0,x1,y1,z1>
                    Mesh only this voxel sub-volume (inclusive)

Examples:
  grainmesh mesh grains.npy grains.vtk
  grainmesh --format stl --phases phases.npy mesh grains.npy
  grainmesh --out meshes batch scans/*.npy
  grainmesh synth grains.npy 64 64 64 40
  grainmesh --crop 0,0,0,31,31,31 config crop.yaml`)
}

func cmdMesh(ctx context.Context, cfg *config.Config, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: grainmesh mesh <input> [output]")
		return 1
	}
	job := mesher.Job{Input: args[0]}
	if len(args) > 1 {
		job.Output = args[1]
	}

	res, err := mesher.Run(ctx, job, cfg)
	if err != nil {
		logger.Error("mesh failed", zap.Error(err))
		return 1
	}
	printResult(res)
	return 0
}

func cmdBatch(ctx context.Context, cfg *config.Config, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: grainmesh batch <input>...")
		return 1
	}
	jobs := make([]mesher.Job, len(args))
	for i, in := range args {
		jobs[i] = mesher.Job{Input: in}
	}

	results, err := mesher.RunBatch(ctx, jobs, cfg)
	for _, res := range results {
		if res.Err != nil {
			fmt.Printf("%-30s FAILED: %v\n", res.Job.Input, res.Err)
			continue
		}
		printResult(res)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%d of %d jobs failed\n", len(multierr.Errors(err)), len(jobs))
		return 1
	}
	return 0
}

func cmdInfo(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	top := fs.Int("n", 20, "Show the N largest regions (0 = all)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: grainmesh info [-n N] <input>")
		return 1
	}

	g, err := mesher.LoadVolume(fs.Arg(0), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	dims := g.Dimensions()
	fmt.Printf("Volume:     %s\n", fs.Arg(0))
	fmt.Printf("Dimensions: %s (%d voxels)\n", dims, dims.Count())
	fmt.Printf("Resolution: %g x %g x %g\n", g.Resolution().X, g.Resolution().Y, g.Resolution().Z)
	fmt.Printf("Origin:     %g, %g, %g\n", g.Origin().X, g.Origin().Y, g.Origin().Z)
	fmt.Printf("Phases:     %v\n", g.HasPhases())

	type regionStat struct {
		label int32
		count int
	}
	counts := g.RegionCounts()
	stats := make([]regionStat, 0, len(counts))
	for label, count := range counts {
		stats = append(stats, regionStat{label, count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].count != stats[j].count {
			return stats[i].count > stats[j].count
		}
		return stats[i].label < stats[j].label
	})

	fmt.Printf("Regions:    %d\n\n", len(stats))
	fmt.Println("Largest regions:")
	for i, s := range stats {
		if *top > 0 && i >= *top {
			fmt.Printf("  ... and %d more\n", len(stats)-i)
			break
		}
		fmt.Printf("  %-8d %d voxels\n", s.label, s.count)
	}
	return 0
}

func cmdValidate(ctx context.Context, cfg *config.Config, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: grainmesh validate <input>")
		return 1
	}

	g, err := mesher.LoadVolume(args[0], cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	m, err := surfacemesh.Build(ctx, g, mesher.MeshOptions(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	printStats(m.Stats())
	if err := m.Validate(); err != nil {
		fmt.Println("\nViolations:")
		for _, v := range multierr.Errors(err) {
			fmt.Printf("  %v\n", v)
		}
		return 1
	}
	fmt.Println("\nMesh OK")
	return 0
}

// cmdConfig saves cfg with flags applied, to args[0] or the user config
// directory.
func cmdConfig(cfg *config.Config, args []string) int {
	path := filepath.Join(config.ConfigDir(), "grainmesh.yaml")
	save := cfg.Save
	if len(args) > 0 {
		path = args[0]
		save = func() error { return cfg.SaveTo(path) }
	}
	if err := save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger.Named("config").Debug("config saved", zap.String("path", path))
	fmt.Printf("Wrote config to %s\n", path)
	return 0
}

func cmdSynth(args []string) {
	fs := flag.NewFlagSet("synth", flag.ExitOnError)
	seed := fs.Uint64("seed", 1, "Random seed")
	phases := fs.String("phases", "", "Also write a two-phase array to this path")
	fs.Parse(args)

	if fs.NArg() < 5 {
		fmt.Fprintln(os.Stderr, "Usage: grainmesh synth [-seed N] [-phases out.npy] <out.npy> <nx> <ny> <nz> <regions>")
		os.Exit(1)
	}

	var n [4]int
	for i := range n {
		v, err := strconv.Atoi(fs.Arg(i + 1))
		if err != nil || v < 1 {
			fmt.Fprintf(os.Stderr, "Error: %q must be a positive integer\n", fs.Arg(i+1))
			os.Exit(1)
		}
		n[i] = v
	}

	if err := writeSynthetic(fs.Arg(0), *phases, [3]int{n[0], n[1], n[2]}, n[3], *seed); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %dx%dx%d volume with %d regions to %s\n", n[0], n[1], n[2], n[3], fs.Arg(0))
}

func printResult(res *mesher.Result) {
	fmt.Printf("%-30s %s  %d vertices  %d faces  %d regions  %v\n",
		res.Job.Input, res.Dims, res.Stats.Vertices, res.Stats.Faces, res.Stats.Regions, res.Elapsed.Round(time.Millisecond))
	for _, f := range res.Files {
		fmt.Printf("  -> %s\n", f)
	}
}

func printStats(s surfacemesh.Stats) {
	fmt.Printf("Vertices:       %d\n", s.Vertices)
	fmt.Printf("Faces:          %d\n", s.Faces)
	fmt.Printf("Exterior faces: %d\n", s.ExteriorFaces)
	fmt.Printf("Regions:        %d\n", s.Regions)
	fmt.Println("Node types:")

	types := make([]surfacemesh.NodeType, 0, len(s.NodeTypes))
	for t := range s.NodeTypes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		fmt.Printf("  %-3d %-20s %d\n", int(t), t, s.NodeTypes[t])
	}
}
