package main

import (
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"autotune/backend"
	"autotune/cache"
	"autotune/experiments/metrics"
	"autotune/kernel"
	"autotune/searcher"
)

type tuneFlags struct {
	iterations  int
	exploration float64
	cacheDir    string
	noCache     bool
	reportDir   string
	verbose     bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := &tuneFlags{}
	cmd := &cobra.Command{
		Use:          "autotune",
		Short:        "Tune the built-in matmul kernels on the local CPU",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTune(flags)
		},
	}
	cmd.Flags().IntVar(&flags.iterations, "iterations", 100, "search iterations per kernel")
	cmd.Flags().Float64Var(&flags.exploration, "exploration", math.Sqrt2, "UCB1 exploration constant")
	cmd.Flags().StringVar(&flags.cacheDir, "cache-dir", ".autotune-cache", "directory of the persistent result cache")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "disable the result cache")
	cmd.Flags().StringVar(&flags.reportDir, "report-dir", "reports", "directory for CSV tuning reports")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "log per-iteration timings")
	return cmd
}

func runTune(flags *tuneFlags) error {
	level := zerolog.InfoLevel
	if flags.verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	compiler, err := backend.NewClangCompiler()
	if err != nil {
		return err
	}
	defer compiler.Close()

	var store cache.Cache
	if !flags.noCache {
		bc, err := cache.NewBadgerCache(flags.cacheDir)
		if err != nil {
			return fmt.Errorf("open result cache: %w", err)
		}
		defer bc.Close()
		store = bc
	}

	kernels := []*kernel.LoopKernel{
		kernel.NewMatmul("matmul_64", 64, 64, 64),
		kernel.NewMatmul("matmul_128", 128, 128, 128),
		kernel.NewMatmul("matmul_256x64x128", 256, 64, 128),
	}

	// Each kernel gets its own searcher; the compiler and cache are
	// shared and reentrant.
	var mu sync.Mutex
	records := make([]metrics.TuneRecord, 0, len(kernels))
	var g errgroup.Group
	for _, k := range kernels {
		k := k
		g.Go(func() error {
			s := searcher.New(kernel.LoopActions{}, compiler,
				searcher.WithIterations(flags.iterations),
				searcher.WithExploration(flags.exploration),
				searcher.WithCache(store),
				searcher.WithMetrics(),
			)
			best, metric, err := s.Search(k, nil)
			if err != nil {
				return fmt.Errorf("tune %s: %w", k.Name(), err)
			}
			log.Info().Msgf("%s: best %.2f us, opts %v (%d rollouts, %d prunes, cached %v)",
				k.Name(), metric.BestUS, best.AppliedOpts(), metric.Rollouts, metric.Prunes, metric.CacheHit)

			mu.Lock()
			records = append(records, metrics.TuneRecord{
				Kernel:   k.Name(),
				Rollouts: metric.Rollouts,
				Prunes:   metric.Prunes,
				CacheHit: metric.CacheHit,
				BestUS:   metric.BestUS,
				Duration: metric.Duration,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w, err := metrics.NewWriter(flags.reportDir)
	if err != nil {
		return err
	}
	if err := w.WriteTuneRecords(records); err != nil {
		return err
	}
	log.Info().Msgf("report written to %s", w.Dir())
	return nil
}
