package kernel

import "fmt"

type OptKind string

const (
	OptTile   OptKind = "tile"
	OptUnroll OptKind = "unroll"
)

// Opt is a single applied transformation. Opt sequences are the
// persisted artifact of a search, so the encoding must stay stable.
type Opt struct {
	Kind OptKind `json:"kind"`
	Axis int     `json:"axis"`
	Arg  int     `json:"arg"`
}

func (o Opt) String() string {
	return fmt.Sprintf("%s(%d,%d)", o.Kind, o.Axis, o.Arg)
}

// Replay applies a cached opt sequence onto base, skipping the prefix
// base already carries. This is how a memoized search result is turned
// back into a kernel without recompiling anything.
func Replay(base Kernel, opts []Opt) (Kernel, error) {
	applied := len(base.AppliedOpts())
	if applied > len(opts) {
		return nil, fmt.Errorf("replay: kernel has %d applied opts, sequence has %d", applied, len(opts))
	}
	ret := base
	for _, o := range opts[applied:] {
		next, err := ret.Apply(o)
		if err != nil {
			return nil, fmt.Errorf("replay %s: %w", o, err)
		}
		ret = next
	}
	return ret, nil
}
