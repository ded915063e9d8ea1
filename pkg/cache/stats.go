package cache

import (
	"sync/atomic"
)

// Statistics tracks cache activity. All methods are safe for concurrent use.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
	size      atomic.Int64
	maxSize   atomic.Int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) hit()      { s.hits.Add(1) }
func (s *Statistics) miss()     { s.misses.Add(1) }
func (s *Statistics) set()      { s.sets.Add(1) }
func (s *Statistics) delete()   { s.deletes.Add(1) }
func (s *Statistics) eviction() { s.evictions.Add(1) }

func (s *Statistics) updateSize(n int) {
	size := int64(n)
	s.size.Store(size)
	for {
		current := s.maxSize.Load()
		if size <= current || s.maxSize.CompareAndSwap(current, size) {
			return
		}
	}
}

// Hits returns the total number of cache hits.
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses returns the total number of cache misses.
func (s *Statistics) Misses() int64 { return s.misses.Load() }

// Sets returns the total number of set operations.
func (s *Statistics) Sets() int64 { return s.sets.Load() }

// Deletes returns the total number of explicit deletes.
func (s *Statistics) Deletes() int64 { return s.deletes.Load() }

// Evictions returns the number of entries removed by expiry or the bound.
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

// CurrentSize returns the current number of entries.
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// MaxSize returns the largest size observed.
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }

// HitRatio returns hits / (hits + misses), 0 when nothing was requested.
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// StatsSummary is a snapshot of all statistics.
type StatsSummary struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Sets        int64   `json:"sets"`
	Deletes     int64   `json:"deletes"`
	Evictions   int64   `json:"evictions"`
	CurrentSize int64   `json:"current_size"`
	MaxSize     int64   `json:"max_size"`
	HitRatio    float64 `json:"hit_ratio"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Hits:        s.Hits(),
		Misses:      s.Misses(),
		Sets:        s.Sets(),
		Deletes:     s.Deletes(),
		Evictions:   s.Evictions(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		HitRatio:    s.HitRatio(),
	}
}
