// Package searcher discovers fast kernel variants with a Monte Carlo
// tree search over the legal transformations of an input kernel.
// Candidates are compiled and timed on real hardware; compile failures
// prune the offending variant and the search continues. Completed
// searches are memoized by search key.
package searcher

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"autotune/backend"
	"autotune/cache"
	"autotune/kernel"
)

type Option func(s *Searcher)

// Searcher runs auto-tuning searches. A Searcher may be reused for
// several kernels, but each Search call owns its own tree and best
// accumulator, so distinct kernels can be tuned from distinct
// Searchers concurrently.
type Searcher struct {
	iterations  int
	exploration float64 // UCB1 constant C
	earlyStop   float64 // timing bound multiplier over the current best
	device      string
	suffix      string
	gen         kernel.ActionGenerator
	compiler    backend.Compiler
	cache       cache.Cache
	metrics     Collector
}

// WithIterations sets the rollout budget per search call.
func WithIterations(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.iterations = n
		}
	}
}

// WithExploration overrides the UCB1 exploration constant.
func WithExploration(c float64) Option {
	return func(s *Searcher) {
		if c > 0 {
			s.exploration = c
		}
	}
}

// WithEarlyStopFactor overrides the multiplier applied to the current
// best timing to bound each rollout's timing run.
func WithEarlyStopFactor(f float64) Option {
	return func(s *Searcher) {
		if f > 0 {
			s.earlyStop = f
		}
	}
}

// WithDevice sets the target device identity baked into search keys.
func WithDevice(device, suffix string) Option {
	return func(s *Searcher) {
		s.device = device
		s.suffix = suffix
	}
}

// WithCache enables result memoization through c.
func WithCache(c cache.Cache) Option {
	return func(s *Searcher) {
		s.cache = c
	}
}

// WithMetrics enables diagnostics collection.
func WithMetrics() Option {
	return func(s *Searcher) {
		s.metrics = NewCollector()
	}
}

func New(gen kernel.ActionGenerator, compiler backend.Compiler, options ...Option) *Searcher {
	if gen == nil || compiler == nil {
		panic("searcher requires an action generator and a compiler")
	}
	s := &Searcher{ // Default values
		iterations:  100,
		exploration: math.Sqrt2,
		earlyStop:   10,
		device:      "CPU",
		gen:         gen,
		compiler:    compiler,
		metrics:     NewDummyCollector(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Search returns the fastest variant of kern found within the iteration
// budget, or kern itself if nothing faster was measured. With a cache
// configured, a prior result under the same search key is replayed
// without compiling or timing anything.
func (s *Searcher) Search(kern kernel.Kernel, bufs []*backend.Buffer) (kernel.Kernel, SearchMetric, error) {
	s.metrics.Start()

	key := kernel.SearchKey{AST: kern.Key(), Amt: s.iterations, Device: s.device, Suffix: s.suffix}.String()
	if s.cache != nil {
		if opts, ok := s.cache.Get(key); ok {
			ret, err := kernel.Replay(kern, opts)
			if err == nil {
				s.metrics.SetCacheHit(true)
				log.Debug().Msgf("%s: cached result replayed (%d opts)", kern.Name(), len(opts))
				return ret, s.metrics.Complete(), nil
			}
			// Corrupt entry: fall through to a fresh search.
			log.Warn().Err(err).Msgf("%s: cache entry not replayable", kern.Name())
		}
	}

	bufs = backend.EnsureAlloc(kern, bufs)
	vars := backend.MidpointVars(kern)
	t := newTree(kern)
	best, bestUS := kern, math.Inf(1)

	for i := 0; i < s.iterations; i++ {
		// Tree traversal
		idx, terminal := t.descend(s.exploration)
		if terminal { // No more nodes
			break
		}

		// Node expansion
		variant := t.at(idx).kern
		actions, err := s.gen.Actions(variant)
		if err != nil {
			return nil, s.metrics.Complete(), fmt.Errorf("enumerate actions for %s: %w", variant.Name(), err)
		}
		t.expand(idx, actions)
		if len(actions) == 0 && idx == 0 {
			// The root has no legal transformations at all; it is
			// already the answer and never gets rolled out.
			break
		}

		// Rollout
		prog, err := s.compiler.Compile(variant)
		if err != nil {
			var cerr *backend.CompileError
			if !errors.As(err, &cerr) {
				return nil, s.metrics.Complete(), err
			}
			s.metrics.AddPrune()
			t.prune(idx)
			log.Debug().Msgf("%s: variant pruned: %v", kern.Name(), cerr)
			continue
		}
		samples, err := prog.Run(vars, bufs, bestUS*s.earlyStop)
		if err != nil {
			return nil, s.metrics.Complete(), fmt.Errorf("time %s: %w", variant.Name(), err)
		}
		if len(samples) == 0 {
			return nil, s.metrics.Complete(), fmt.Errorf("time %s: no samples returned", variant.Name())
		}
		tm := samples[0]
		for _, us := range samples[1:] {
			if us < tm {
				tm = us
			}
		}
		if tm < bestUS {
			best, bestUS = variant, tm
			s.metrics.ObserveBest(tm)
		}
		log.Debug().Msgf("%s: %4d/%4d %12.2f us, best %12.2f us", kern.Name(), i+1, s.iterations, tm, bestUS)

		// Backprop
		t.backprop(idx, tm)
		s.metrics.AddRollout()
	}

	if s.cache != nil {
		if err := s.cache.Put(key, best.AppliedOpts()); err != nil {
			// Best effort: a failed cache write never fails the search.
			log.Warn().Err(err).Msgf("%s: result not cached", kern.Name())
		}
	}
	return best, s.metrics.Complete(), nil
}
