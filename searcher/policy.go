package searcher

import "math"

// ucb1 scores a child given c2LnN = C^2 * ln(parent visits).
// Unvisited children always score highest.
func ucb1(rewards float64, visits int, c2LnN float64) float64 {
	if visits == 0 {
		return math.Inf(1)
	}
	return rewards/float64(visits) + math.Sqrt(c2LnN/float64(visits))
}

// bestChild returns the arena index of the highest-UCB1 child of the
// node at i. The first maximum wins, so ties resolve in child order.
func (t *tree) bestChild(i int32, exploration float64) int32 {
	n := t.at(i)
	c2LnN := exploration * exploration * math.Log(float64(n.visits))

	best := n.children[0]
	bestScore := math.Inf(-1)
	for _, ci := range n.children {
		score := ucb1(t.at(ci).rewards, t.at(ci).visits, c2LnN)
		if math.IsInf(score, 1) {
			return ci
		}
		if score > bestScore {
			bestScore = score
			best = ci
		}
	}
	return best
}

// descend walks from the root along the highest-UCB1 children until it
// reaches an unexpanded leaf. terminal reports that descent ended on a
// node with no legal actions instead, which ends the whole search.
func (t *tree) descend(exploration float64) (i int32, terminal bool) {
	for t.at(i).expanded {
		if len(t.at(i).children) == 0 {
			return i, true
		}
		i = t.bestChild(i, exploration)
	}
	return i, false
}
