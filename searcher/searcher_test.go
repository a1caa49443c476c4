package searcher

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"autotune/cache"
	"autotune/kernel"
)

func TestSearchFindsFastestVariant(t *testing.T) {
	root := mockKernel{name: "mm"}
	a1, a2 := opt(0, 8), opt(1, 8)
	c1, _ := root.Apply(a1)
	c2, _ := root.Apply(a2)
	g1, _ := c1.Apply(opt(2, 8))
	g2, _ := c2.Apply(opt(0, 16))
	g3, _ := c2.Apply(opt(1, 16))

	gen := &mockGen{actions: map[string][]kernel.Opt{
		root.Key(): {a1, a2},
		c1.Key():   {opt(2, 8)},
		c2.Key():   {opt(0, 16), opt(1, 16)},
	}}
	compiler := &mockCompiler{times: map[string]float64{
		root.Key(): 120,
		c1.Key():   100,
		c2.Key():   80,
		g1.Key():   110,
		g2.Key():   90,
		g3.Key():   95,
	}}

	s := New(gen, compiler, WithIterations(5), WithMetrics())
	best, metric, err := s.Search(root, nil)

	require.NoError(t, err)
	require.Equal(t, c2.AppliedOpts(), best.AppliedOpts(),
		"Search should return the fastest measured variant")
	require.Equal(t, 80.0, metric.BestUS, "Best timing should be the minimum over all rollouts")
	require.Equal(t, 5, metric.Rollouts, "Every iteration should complete a rollout")
	require.Equal(t, 0, metric.Prunes)
	require.Equal(t, 5, compiler.compiles, "Each rollout should compile exactly one candidate")
	require.Equal(t, 5, compiler.runs)
}

func TestSearchTerminalRootReturnsInput(t *testing.T) {
	for _, amt := range []int{1, 10, 10000} {
		root := mockKernel{name: "mm"}
		gen := &mockGen{actions: map[string][]kernel.Opt{}}
		compiler := &mockCompiler{times: map[string]float64{}}

		s := New(gen, compiler, WithIterations(amt), WithMetrics())
		best, metric, err := s.Search(root, nil)

		require.NoError(t, err)
		require.Equal(t, root.Key(), best.Key(),
			"A kernel with no legal transformations should come back unchanged")
		require.Equal(t, 0, metric.Rollouts, "The terminal root should never be rolled out")
		require.Equal(t, 0, compiler.compiles)
		require.Equal(t, 1, gen.calls, "The root should be expanded exactly once regardless of the budget")
	}
}

func TestSearchPrunesFailedCompile(t *testing.T) {
	root := mockKernel{name: "mm"}
	a1, a2 := opt(0, 8), opt(1, 8)
	c2, _ := root.Apply(a2)

	gen := &mockGen{actions: map[string][]kernel.Opt{
		root.Key(): {a1, a2},
	}}
	// The a1 variant is missing from the table, so it fails to compile.
	compiler := &mockCompiler{times: map[string]float64{
		root.Key(): 120,
		c2.Key():   80,
	}}

	s := New(gen, compiler, WithIterations(5), WithMetrics())
	best, metric, err := s.Search(root, nil)

	require.NoError(t, err, "Compile failures should never surface from Search")
	require.Equal(t, c2.AppliedOpts(), best.AppliedOpts())
	require.Equal(t, 1, metric.Prunes)
	require.Equal(t, 2, metric.Rollouts, "The pruned iteration should not count as a rollout")
	require.Equal(t, 3, compiler.compiles, "The pruned variant should never be compiled again")
	require.Equal(t, 2, compiler.runs)
}

func TestSearchSurvivesRootCompileFailure(t *testing.T) {
	root := mockKernel{name: "mm"}
	a1, a2 := opt(0, 8), opt(1, 8)
	c1, _ := root.Apply(a1)
	c2, _ := root.Apply(a2)

	gen := &mockGen{actions: map[string][]kernel.Opt{
		root.Key(): {a1, a2},
	}}
	compiler := &mockCompiler{times: map[string]float64{
		// root itself fails to compile but is never removed
		c1.Key(): 100,
		c2.Key(): 80,
	}}

	s := New(gen, compiler, WithIterations(5), WithMetrics())
	best, metric, err := s.Search(root, nil)

	require.NoError(t, err)
	require.Equal(t, c2.AppliedOpts(), best.AppliedOpts(),
		"Children should still be explored after a root compile failure")
	require.Equal(t, 1, metric.Prunes)
	require.Equal(t, 2, metric.Rollouts)
}

func TestSearchCacheHitSkipsCompilerAndTimer(t *testing.T) {
	root := mockKernel{name: "mm"}
	a2 := opt(1, 8)
	c2, _ := root.Apply(a2)

	store := cache.NewMemoryCache()
	key := kernel.SearchKey{AST: root.Key(), Amt: 5, Device: "CPU"}.String()
	require.NoError(t, store.Put(key, c2.AppliedOpts()))

	gen := &mockGen{actions: map[string][]kernel.Opt{}}
	compiler := &mockCompiler{times: map[string]float64{}}

	s := New(gen, compiler, WithIterations(5), WithCache(store), WithMetrics())
	best, metric, err := s.Search(root, nil)

	require.NoError(t, err)
	require.Equal(t, c2.AppliedOpts(), best.AppliedOpts(),
		"The cached opt sequence should be replayed onto the input kernel")
	require.True(t, metric.CacheHit)
	require.Equal(t, 0, compiler.compiles, "A cache hit should not compile anything")
	require.Equal(t, 0, compiler.runs, "A cache hit should not time anything")
	require.Equal(t, 0, gen.calls, "A cache hit should not build a tree")
}

func TestSearchPersistsResult(t *testing.T) {
	root := mockKernel{name: "mm"}
	a1, a2 := opt(0, 8), opt(1, 8)
	c1, _ := root.Apply(a1)
	c2, _ := root.Apply(a2)

	gen := &mockGen{actions: map[string][]kernel.Opt{
		root.Key(): {a1, a2},
	}}
	compiler := &mockCompiler{times: map[string]float64{
		root.Key(): 120,
		c1.Key():   100,
		c2.Key():   80,
	}}

	store := cache.NewMemoryCache()
	s := New(gen, compiler, WithIterations(5), WithCache(store))
	_, _, err := s.Search(root, nil)
	require.NoError(t, err)

	key := kernel.SearchKey{AST: root.Key(), Amt: 5, Device: "CPU"}.String()
	opts, ok := store.Get(key)
	require.True(t, ok, "The winning opt sequence should be persisted under the search key")
	require.Equal(t, c2.AppliedOpts(), opts)

	// A rerun with a compiler that cannot build anything must be served
	// from the cache.
	rerun := New(&mockGen{}, &mockCompiler{}, WithIterations(5), WithCache(store), WithMetrics())
	best, metric, err := rerun.Search(root, nil)
	require.NoError(t, err)
	require.True(t, metric.CacheHit)
	require.Equal(t, c2.AppliedOpts(), best.AppliedOpts())
}

func TestSearchSurfacesGeneratorError(t *testing.T) {
	gen := &mockGen{err: errors.New("enumeration broken")}
	compiler := &mockCompiler{times: map[string]float64{}}

	s := New(gen, compiler, WithIterations(3))
	_, _, err := s.Search(mockKernel{name: "mm"}, nil)

	require.Error(t, err, "Action generator failures are not recoverable")
	require.ErrorContains(t, err, "enumeration broken")
}
