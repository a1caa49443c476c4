package kernel

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"strings"
)

// Axis indices of the matmul loop nest.
const (
	axisI = 0
	axisJ = 1
	axisK = 2
)

var tileSizes = []int{8, 16, 32}
var unrollFactors = []int{2, 4}

// LoopKernel is a dense matmul loop nest (C[i,j] += A[i,k]*B[k,j]) that
// supports per-axis tiling and reduction unrolling. It is the reference
// kernel for the CPU backend and the test suite.
type LoopKernel struct {
	name string
	m    int
	n    int
	k    int
	tile [3]int // 0 means untiled on that axis
	unr  int    // reduction unroll factor, 0 means none
	opts []Opt
}

// NewMatmul returns an untransformed M x N x K matmul kernel.
func NewMatmul(name string, m, n, k int) *LoopKernel {
	return &LoopKernel{name: name, m: m, n: n, k: k}
}

func (l *LoopKernel) Name() string { return l.name }

func (l *LoopKernel) Key() string {
	h := fnv.New64a()
	h.Write([]byte(l.name))
	var buf [8]byte
	for _, d := range []int{l.m, l.n, l.k} {
		binary.LittleEndian.PutUint64(buf[:], uint64(d))
		h.Write(buf[:])
	}
	for _, o := range l.opts {
		h.Write([]byte(o.String()))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func (l *LoopKernel) AppliedOpts() []Opt {
	opts := make([]Opt, len(l.opts))
	copy(opts, l.opts)
	return opts
}

func (l *LoopKernel) Buffers() []int {
	return []int{l.m * l.k, l.k * l.n, l.m * l.n}
}

func (l *LoopKernel) Vars() []Var { return nil }

func (l *LoopKernel) extent(axis int) int {
	switch axis {
	case axisI:
		return l.m
	case axisJ:
		return l.n
	default:
		return l.k
	}
}

// innerK is the trip count of the innermost reduction loop, after any
// tiling on the reduction axis.
func (l *LoopKernel) innerK() int {
	if l.tile[axisK] > 0 {
		return l.tile[axisK]
	}
	return l.k
}

func (l *LoopKernel) legal(o Opt) error {
	switch o.Kind {
	case OptTile:
		if o.Axis < axisI || o.Axis > axisK {
			return fmt.Errorf("tile axis %d out of range", o.Axis)
		}
		if l.tile[o.Axis] > 0 {
			return fmt.Errorf("axis %d already tiled", o.Axis)
		}
		ext := l.extent(o.Axis)
		if o.Arg <= 1 || o.Arg >= ext || ext%o.Arg != 0 {
			return fmt.Errorf("tile size %d does not divide extent %d", o.Arg, ext)
		}
	case OptUnroll:
		if o.Axis != axisK {
			return fmt.Errorf("unroll only supported on the reduction axis")
		}
		if l.unr > 0 {
			return fmt.Errorf("reduction already unrolled")
		}
		if o.Arg <= 1 || l.innerK()%o.Arg != 0 {
			return fmt.Errorf("unroll factor %d does not divide inner extent %d", o.Arg, l.innerK())
		}
	default:
		return fmt.Errorf("unknown opt kind %q", o.Kind)
	}
	return nil
}

func (l *LoopKernel) Apply(o Opt) (Kernel, error) {
	if err := l.legal(o); err != nil {
		return nil, err
	}
	next := *l
	next.opts = append(l.AppliedOpts(), o)
	switch o.Kind {
	case OptTile:
		next.tile[o.Axis] = o.Arg
	case OptUnroll:
		next.unr = o.Arg
	}
	return &next, nil
}

func (l *LoopKernel) legalOpts() []Opt {
	var opts []Opt
	for axis := axisI; axis <= axisK; axis++ {
		for _, size := range tileSizes {
			o := Opt{Kind: OptTile, Axis: axis, Arg: size}
			if l.legal(o) == nil {
				opts = append(opts, o)
			}
		}
	}
	for _, f := range unrollFactors {
		o := Opt{Kind: OptUnroll, Axis: axisK, Arg: f}
		if l.legal(o) == nil {
			opts = append(opts, o)
		}
	}
	return opts
}

// blockSize is the step of the outer loop on axis, the full extent when
// the axis is untiled.
func (l *LoopKernel) blockSize(axis int) int {
	if l.tile[axis] > 0 {
		return l.tile[axis]
	}
	return l.extent(axis)
}

func (l *LoopKernel) Render() string {
	ti, tj, tk := l.blockSize(axisI), l.blockSize(axisJ), l.blockSize(axisK)
	var b strings.Builder
	b.WriteString("void kern(const float* restrict A, const float* restrict B, float* restrict C) {\n")
	fmt.Fprintf(&b, "  for (int i0 = 0; i0 < %d; i0 += %d)\n", l.m, ti)
	fmt.Fprintf(&b, "  for (int j0 = 0; j0 < %d; j0 += %d)\n", l.n, tj)
	fmt.Fprintf(&b, "  for (int k0 = 0; k0 < %d; k0 += %d)\n", l.k, tk)
	fmt.Fprintf(&b, "    for (int i = i0; i < i0 + %d; i++)\n", ti)
	fmt.Fprintf(&b, "    for (int j = j0; j < j0 + %d; j++) {\n", tj)
	fmt.Fprintf(&b, "      float acc = C[i*%d + j];\n", l.n)
	if l.unr > 0 {
		fmt.Fprintf(&b, "      #pragma clang loop unroll_count(%d)\n", l.unr)
	}
	fmt.Fprintf(&b, "      for (int k = k0; k < k0 + %d; k++)\n", tk)
	fmt.Fprintf(&b, "        acc += A[i*%d + k] * B[k*%d + j];\n", l.k, l.n)
	fmt.Fprintf(&b, "      C[i*%d + j] = acc;\n", l.n)
	b.WriteString("    }\n")
	b.WriteString("}\n")
	return b.String()
}

// LoopActions enumerates the legal tilings and unrollings of a
// LoopKernel, excluding the identity.
type LoopActions struct{}

func (LoopActions) Actions(k Kernel) ([]Action, error) {
	lk, ok := k.(*LoopKernel)
	if !ok {
		return nil, fmt.Errorf("loop actions: unsupported kernel type %T", k)
	}
	var actions []Action
	for _, o := range lk.legalOpts() {
		next, err := lk.Apply(o)
		if err != nil {
			return nil, fmt.Errorf("apply %s: %w", o, err)
		}
		actions = append(actions, Action{ID: o.String(), Kernel: next})
	}
	return actions, nil
}
