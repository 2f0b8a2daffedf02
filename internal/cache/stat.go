package cache

import (
	"log/slog"
	"sync/atomic"
)

// CacheStat tracks cache statistics for one run
type CacheStat struct {
	name         string
	log          *slog.Logger
	hit          atomic.Uint64
	miss         atomic.Uint64
	sizeCallback func() int
}

// NewCacheStat creates a new cache stat tracker
func NewCacheStat(name string, log *slog.Logger, sizeCallback func() int) *CacheStat {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &CacheStat{
		name:         name,
		log:          log,
		sizeCallback: sizeCallback,
	}
}

// IncrementHit increments hit counter
func (cs *CacheStat) IncrementHit() {
	cs.hit.Add(1)
}

// IncrementMiss increments miss counter
func (cs *CacheStat) IncrementMiss() {
	cs.miss.Add(1)
}

// Hits returns the number of hits so far
func (cs *CacheStat) Hits() uint64 { return cs.hit.Load() }

// Misses returns the number of misses so far
func (cs *CacheStat) Misses() uint64 { return cs.miss.Load() }

// Report logs the counters at DEBUG. Batch runs call it once at the end
// instead of on a ticker.
func (cs *CacheStat) Report() {
	hit, miss := cs.Hits(), cs.Misses()
	total := hit + miss
	if total == 0 {
		return
	}

	size := 0
	if cs.sizeCallback != nil {
		size = cs.sizeCallback()
	}
	cs.log.Debug("cache stats",
		"cache", cs.name,
		"requests", total,
		"hit_ratio", float64(hit)/float64(total),
		"elements", size,
		"hit", hit,
		"miss", miss,
	)
}
