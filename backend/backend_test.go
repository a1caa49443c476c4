package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"autotune/kernel"
)

func TestBuffers(t *testing.T) {
	t.Run("random buffers are deterministic per seed", func(t *testing.T) {
		a := RandomBuffer(16, 7)
		b := RandomBuffer(16, 7)
		c := RandomBuffer(16, 8)

		require.Equal(t, a.Data, b.Data)
		require.NotEqual(t, a.Data, c.Data)
	})

	t.Run("EnsureAlloc fills in missing buffers", func(t *testing.T) {
		k := kernel.NewMatmul("mm", 8, 8, 8)

		bufs := EnsureAlloc(k, nil)

		require.Len(t, bufs, 3)
		for i, n := range k.Buffers() {
			require.Len(t, bufs[i].Data, n)
		}
	})

	t.Run("EnsureAlloc keeps correctly sized buffers", func(t *testing.T) {
		k := kernel.NewMatmul("mm", 8, 8, 8)
		mine := NewBuffer(64)

		bufs := EnsureAlloc(k, []*Buffer{mine})

		require.Same(t, mine, bufs[0])
	})
}

func TestMidpointVars(t *testing.T) {
	t.Run("static kernels bind nothing", func(t *testing.T) {
		require.Nil(t, MidpointVars(kernel.NewMatmul("mm", 8, 8, 8)))
	})

	t.Run("variables bind to their midpoint", func(t *testing.T) {
		k := varKernel{vars: []kernel.Var{{Name: "n", Min: 2, Max: 10}}}

		require.Equal(t, map[string]int{"n": 6}, MidpointVars(k))
	})
}

func TestCompileError(t *testing.T) {
	cause := errors.New("exit status 1")
	err := error(&CompileError{Kernel: "mm", Output: "bad pragma", Err: cause})

	var cerr *CompileError
	require.True(t, errors.As(err, &cerr))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "mm")
	require.Contains(t, err.Error(), "bad pragma")
}

func TestHarnessSource(t *testing.T) {
	k := kernel.NewMatmul("mm", 8, 8, 8)

	src := harnessSource(k)

	require.Contains(t, src, "void kern(")
	require.Contains(t, src, "int main(")
	require.Contains(t, src, "kern(b0, b1, b2);")
	require.Contains(t, src, "clock_gettime")
	require.Contains(t, src, "early_stop_us", "The harness must honor the early-stop bound")
}

// varKernel is a minimal kernel with symbolic variables.
type varKernel struct {
	vars []kernel.Var
}

func (v varKernel) Name() string                           { return "var" }
func (v varKernel) Key() string                            { return "var" }
func (v varKernel) AppliedOpts() []kernel.Opt              { return nil }
func (v varKernel) Apply(kernel.Opt) (kernel.Kernel, error) { return v, nil }
func (v varKernel) Buffers() []int                         { return []int{1} }
func (v varKernel) Vars() []kernel.Var                     { return v.vars }
func (v varKernel) Render() string                         { return "" }
