package searcher

import (
	"math"
	"time"
)

// SearchMetric summarizes one completed search call.
type SearchMetric struct {
	StartTime time.Time
	Duration  time.Duration
	Rollouts  int     // completed (non-pruned) rollouts
	Prunes    int     // compile failures recovered by pruning
	CacheHit  bool    // result served from the cache
	BestUS    float64 // best observed timing, +Inf if nothing ran
}

// Collector gathers diagnostics during a search. A search call owns
// exactly one collector, so implementations need no synchronization.
type Collector interface {
	Start()
	AddRollout()
	AddPrune()
	SetCacheHit(bool)
	ObserveBest(us float64)
	Complete() SearchMetric
}

type collector struct {
	startTime time.Time
	rollouts  int
	prunes    int
	cacheHit  bool
	bestUS    float64
}

func NewCollector() Collector {
	return &collector{bestUS: math.Inf(1)}
}

func (c *collector) Start()             { c.startTime = time.Now() }
func (c *collector) AddRollout()        { c.rollouts++ }
func (c *collector) AddPrune()          { c.prunes++ }
func (c *collector) SetCacheHit(v bool) { c.cacheHit = v }

func (c *collector) ObserveBest(us float64) {
	if us < c.bestUS {
		c.bestUS = us
	}
}

func (c *collector) Complete() SearchMetric {
	return SearchMetric{
		StartTime: c.startTime,
		Duration:  time.Since(c.startTime),
		Rollouts:  c.rollouts,
		Prunes:    c.prunes,
		CacheHit:  c.cacheHit,
		BestUS:    c.bestUS,
	}
}

type dummyCollector struct{}

func NewDummyCollector() Collector { return dummyCollector{} }

func (dummyCollector) Start()                 {}
func (dummyCollector) AddRollout()            {}
func (dummyCollector) AddPrune()              {}
func (dummyCollector) SetCacheHit(bool)       {}
func (dummyCollector) ObserveBest(float64)    {}
func (dummyCollector) Complete() SearchMetric { return SearchMetric{} }
