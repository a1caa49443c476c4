package backend

import (
	"fmt"

	"golang.org/x/exp/rand"

	"autotune/kernel"
)

// Buffer is a flat float32 argument buffer. The engine passes buffers
// through to the timing harness untouched.
type Buffer struct {
	Data []float32
}

// NewBuffer allocates a zeroed buffer of n elements.
func NewBuffer(n int) *Buffer {
	return &Buffer{Data: make([]float32, n)}
}

// RandomBuffer allocates a buffer of n elements filled with
// deterministic pseudo-random data, so repeated timing runs see the
// same inputs.
func RandomBuffer(n int, seed uint64) *Buffer {
	rng := rand.New(rand.NewSource(seed))
	b := NewBuffer(n)
	for i := range b.Data {
		b.Data[i] = rng.Float32()
	}
	return b
}

// EnsureAlloc returns buffers matching the kernel's argument sizes,
// reusing the given ones where present and allocating the rest.
func EnsureAlloc(k kernel.Kernel, bufs []*Buffer) []*Buffer {
	sizes := k.Buffers()
	out := make([]*Buffer, len(sizes))
	for i, n := range sizes {
		if i < len(bufs) && bufs[i] != nil && len(bufs[i].Data) == n {
			out[i] = bufs[i]
			continue
		}
		out[i] = RandomBuffer(n, uint64(i)+1)
	}
	return out
}

// MidpointVars binds every symbolic variable of the kernel to the
// midpoint of its range, the canonical binding for timing runs.
func MidpointVars(k kernel.Kernel) map[string]int {
	vars := k.Vars()
	if len(vars) == 0 {
		return nil
	}
	out := make(map[string]int, len(vars))
	for _, v := range vars {
		out[v.Name] = (v.Min + v.Max) / 2
	}
	return out
}

// Program is a compiled kernel ready to be timed. Run executes the
// program repeatedly and returns wall-clock samples in microseconds;
// the harness may stop early once a sample exceeds earlyStopUS
// (0 disables the bound). Callers take the minimum sample.
type Program interface {
	Run(vars map[string]int, bufs []*Buffer, earlyStopUS float64) ([]float64, error)
}

// Compiler turns a kernel into a runnable program for one device.
// Kernels that are not realizable on the device fail with a
// *CompileError.
type Compiler interface {
	Compile(k kernel.Kernel) (Program, error)
}

// CompileError reports a kernel variant the backend could not realize.
// The search engine treats it as data: the offending node is pruned and
// the search continues.
type CompileError struct {
	Kernel string // kernel name
	Output string // compiler diagnostics, may be empty
	Err    error
}

func (e *CompileError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("compile %s: %v: %s", e.Kernel, e.Err, e.Output)
	}
	return fmt.Sprintf("compile %s: %v", e.Kernel, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }
