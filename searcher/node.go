package searcher

import "autotune/kernel"

// node is one point in the search tree. rewards and visits are only
// written by backpropagation.
type node struct {
	kern     kernel.Kernel
	rewards  float64 // cumulative negated microseconds
	visits   int
	parent   int32   // arena index, -1 for the root
	children []int32 // meaningful only once expanded
	expanded bool
}

// leaf reports whether the node has not been expanded yet. An expanded
// node with zero children is terminal, not a leaf.
func (n *node) leaf() bool { return !n.expanded }

// tree is an arena of nodes. Parent and child links are indices into
// the arena, so backpropagation walks ancestors without any cyclic
// references; pruned nodes simply become unreachable slots.
type tree struct {
	nodes []node
}

func newTree(root kernel.Kernel) *tree {
	return &tree{nodes: []node{{kern: root, parent: -1}}}
}

func (t *tree) at(i int32) *node { return &t.nodes[i] }

func (t *tree) root() *node { return &t.nodes[0] }

// expand materializes children of the node at i, one per action. A
// zero-action expansion leaves the node terminal. Appending to the
// arena may relocate it, so callers must not hold node pointers across
// this call.
func (t *tree) expand(i int32, actions []kernel.Action) {
	children := make([]int32, 0, len(actions))
	for _, a := range actions {
		t.nodes = append(t.nodes, node{kern: a.Kernel, parent: i})
		children = append(children, int32(len(t.nodes)-1))
	}
	n := t.at(i)
	n.children = children
	n.expanded = true
}

// backprop credits one completed rollout to i and every ancestor of i,
// root inclusive. The reward is the negated timing so that faster
// kernels score higher.
func (t *tree) backprop(i int32, us float64) {
	for j := i; j >= 0; j = t.at(j).parent {
		n := t.at(j)
		n.visits++
		n.rewards += -us
	}
}

// prune removes the node at i from its parent's child list so
// selection can never reach it again. Pruning the root is a no-op.
func (t *tree) prune(i int32) {
	p := t.at(i).parent
	if p < 0 {
		return
	}
	children := t.at(p).children
	for j, c := range children {
		if c == i {
			t.at(p).children = append(children[:j], children[j+1:]...)
			return
		}
	}
}
