package searcher

import (
	"errors"
	"fmt"

	"autotune/backend"
	"autotune/kernel"
)

// mockKernel identifies a variant purely by its applied opt sequence.
type mockKernel struct {
	name string
	opts []kernel.Opt
}

func (m mockKernel) Name() string { return m.name }

func (m mockKernel) Key() string { return fmt.Sprintf("%s%v", m.name, m.opts) }

func (m mockKernel) AppliedOpts() []kernel.Opt {
	opts := make([]kernel.Opt, len(m.opts))
	copy(opts, m.opts)
	return opts
}

func (m mockKernel) Apply(o kernel.Opt) (kernel.Kernel, error) {
	return mockKernel{name: m.name, opts: append(m.AppliedOpts(), o)}, nil
}

func (m mockKernel) Buffers() []int     { return []int{4, 4, 4} }
func (m mockKernel) Vars() []kernel.Var { return nil }
func (m mockKernel) Render() string     { return "" }

// mockGen maps a kernel key to the opts of its legal actions. Kernels
// with no entry are terminal.
type mockGen struct {
	actions map[string][]kernel.Opt
	calls   int
	err     error
}

func (g *mockGen) Actions(k kernel.Kernel) ([]kernel.Action, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	var out []kernel.Action
	for _, o := range g.actions[k.Key()] {
		next, err := k.Apply(o)
		if err != nil {
			return nil, err
		}
		out = append(out, kernel.Action{ID: o.String(), Kernel: next})
	}
	return out, nil
}

// mockCompiler times kernels from a fixed table; kernels missing from
// the table fail to compile.
type mockCompiler struct {
	times    map[string]float64 // key -> microseconds
	compiles int
	runs     int
}

func (c *mockCompiler) Compile(k kernel.Kernel) (backend.Program, error) {
	c.compiles++
	us, ok := c.times[k.Key()]
	if !ok {
		return nil, &backend.CompileError{Kernel: k.Name(), Err: errors.New("unsupported variant")}
	}
	return &mockProgram{c: c, us: us}, nil
}

type mockProgram struct {
	c  *mockCompiler
	us float64
}

func (p *mockProgram) Run(vars map[string]int, bufs []*backend.Buffer, earlyStopUS float64) ([]float64, error) {
	p.c.runs++
	// The minimum sample is the canonical timing.
	return []float64{p.us * 1.5, p.us, p.us * 1.2}, nil
}

func opt(axis, arg int) kernel.Opt {
	return kernel.Opt{Kind: kernel.OptTile, Axis: axis, Arg: arg}
}
