package backend

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"autotune/kernel"
)

// ClangCompiler builds kernels into standalone timing binaries with the
// host clang. Each compiled program embeds its own buffer allocation
// and a repeat-and-report timing loop, so Run only has to execute the
// binary and parse microsecond samples from stdout.
type ClangCompiler struct {
	CC   string // compiler executable, defaults to "clang"
	Reps int    // timing repetitions per run, defaults to 10

	dir string
}

func NewClangCompiler() (*ClangCompiler, error) {
	dir, err := os.MkdirTemp("", "autotune-clang-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &ClangCompiler{CC: "clang", Reps: 10, dir: dir}, nil
}

// Close removes the scratch directory holding compiled binaries.
func (c *ClangCompiler) Close() error {
	if c.dir == "" {
		return nil
	}
	return os.RemoveAll(c.dir)
}

func (c *ClangCompiler) Compile(k kernel.Kernel) (Program, error) {
	srcPath := filepath.Join(c.dir, k.Key()+".c")
	binPath := filepath.Join(c.dir, k.Key())
	if err := os.WriteFile(srcPath, []byte(harnessSource(k)), 0o644); err != nil {
		return nil, fmt.Errorf("write kernel source: %w", err)
	}

	// -fno-math-errno so sqrt and friends compile to instructions
	// rather than libm calls.
	args := []string{"-x", "c", "-O2", "-march=native", "-fno-math-errno", "-o", binPath, srcPath}
	var stderr bytes.Buffer
	cmd := exec.Command(c.CC, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &CompileError{Kernel: k.Name(), Output: strings.TrimSpace(stderr.String()), Err: err}
	}
	return &clangProgram{bin: binPath, reps: c.Reps}, nil
}

type clangProgram struct {
	bin  string
	reps int
}

func (p *clangProgram) Run(vars map[string]int, bufs []*Buffer, earlyStopUS float64) ([]float64, error) {
	if earlyStopUS <= 0 || math.IsInf(earlyStopUS, 1) {
		earlyStopUS = 0 // disabled
	}
	cmd := exec.Command(p.bin,
		strconv.Itoa(p.reps),
		strconv.FormatFloat(earlyStopUS, 'f', 3, 64))
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", filepath.Base(p.bin), err)
	}

	var samples []float64
	for _, line := range strings.Fields(string(out)) {
		us, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("parse timing sample %q: %w", line, err)
		}
		samples = append(samples, us)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("run %s: no timing samples", filepath.Base(p.bin))
	}
	return samples, nil
}

// harnessSource wraps the rendered kernel in a self-timing main: argv
// is {reps, early_stop_us}, one microsecond sample is printed per rep,
// and the loop stops early once a sample exceeds the bound.
func harnessSource(k kernel.Kernel) string {
	sizes := k.Buffers()
	var b strings.Builder
	b.WriteString("#include <stdio.h>\n#include <stdlib.h>\n#include <time.h>\n\n")
	b.WriteString(k.Render())
	b.WriteString("\nint main(int argc, char **argv) {\n")
	b.WriteString("  int reps = argc > 1 ? atoi(argv[1]) : 10;\n")
	b.WriteString("  double early_stop_us = argc > 2 ? atof(argv[2]) : 0;\n")
	b.WriteString("  unsigned int s = 123456789u;\n")
	args := make([]string, len(sizes))
	for i, n := range sizes {
		fmt.Fprintf(&b, "  float *b%d = malloc(%d * sizeof(float));\n", i, n)
		fmt.Fprintf(&b, "  for (int i = 0; i < %d; i++) { s = s*1664525u + 1013904223u; b%d[i] = (float)(s >> 8) / 16777216.0f; }\n", n, i)
		args[i] = fmt.Sprintf("b%d", i)
	}
	fmt.Fprintf(&b, "  for (int r = 0; r < reps; r++) {\n")
	b.WriteString("    struct timespec t0, t1;\n")
	b.WriteString("    clock_gettime(CLOCK_MONOTONIC, &t0);\n")
	fmt.Fprintf(&b, "    kern(%s);\n", strings.Join(args, ", "))
	b.WriteString("    clock_gettime(CLOCK_MONOTONIC, &t1);\n")
	b.WriteString("    double us = (t1.tv_sec - t0.tv_sec) * 1e6 + (t1.tv_nsec - t0.tv_nsec) / 1e3;\n")
	b.WriteString("    printf(\"%f\\n\", us);\n")
	b.WriteString("    if (early_stop_us > 0 && us > early_stop_us) break;\n")
	b.WriteString("  }\n")
	// Checksum the output buffer so the kernel call cannot be elided.
	last := len(sizes) - 1
	fmt.Fprintf(&b, "  double sink = 0;\n  for (int i = 0; i < %d; i++) sink += b%d[i];\n", sizes[last], last)
	b.WriteString("  fprintf(stderr, \"%g\\n\", sink);\n")
	for i := range sizes {
		fmt.Fprintf(&b, "  free(b%d);\n", i)
	}
	b.WriteString("  return 0;\n}\n")
	return b.String()
}
