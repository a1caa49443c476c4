package kernel

// Kernel is a transformable representation of a computation. The search
// engine only relies on Key, AppliedOpts and Apply; Render, Buffers and
// Vars form the contract with the compile/time backend.
type Kernel interface {
	// Name is a short human-readable label used in logs and reports.
	Name() string
	// Key is a stable identity hash of the kernel's abstract syntax,
	// covering its shape and every applied opt.
	Key() string
	// AppliedOpts returns the transformation sequence applied so far,
	// oldest first.
	AppliedOpts() []Opt
	// Apply returns a new kernel with the opt applied. The receiver is
	// not mutated. Returns an error if the opt is not legal here.
	Apply(Opt) (Kernel, error)
	// Buffers returns the element counts of the kernel's arguments, in
	// argument order.
	Buffers() []int
	// Vars returns the symbolic variables of the kernel, empty for
	// fully static kernels.
	Vars() []Var
	// Render emits the kernel as a C function named "kern".
	Render() string
}

// Var is a bounded symbolic variable of a kernel.
type Var struct {
	Name string
	Min  int
	Max  int
}

// Action is one legal rewrite of a kernel, paired with the variant it
// produces.
type Action struct {
	ID     string
	Kernel Kernel
}

// ActionGenerator enumerates the legal rewrites of a kernel. The
// identity rewrite is never included. The returned order is stable for
// a given kernel.
type ActionGenerator interface {
	Actions(k Kernel) ([]Action, error)
}
