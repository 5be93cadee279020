package export

import (
	"math"
	"sync"
)

// runningCeiling is the highest value reported before a job completes.
const runningCeiling = 99.0

// Progress reports job progress in [0,100]. Values never decrease, stay at or
// below 99 while running, and 100 is reported once, by Complete.
type Progress struct {
	mu       sync.Mutex
	fn       func(float64)
	last     float64
	started  bool
	complete bool
}

func NewProgress(fn func(float64)) *Progress {
	return &Progress{fn: fn}
}

// Update reports v, clamped to [0,99] and raised to the last reported value.
// Repeated values are not re-reported.
func (p *Progress) Update(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.complete {
		return
	}
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	if v > runningCeiling {
		v = runningCeiling
	}
	if v < p.last {
		v = p.last
	}
	if p.started && v == p.last {
		return
	}
	p.started = true
	p.last = v
	if p.fn != nil {
		p.fn(v)
	}
}

// Complete reports 100. Only the first call has an effect.
func (p *Progress) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.complete {
		return
	}
	p.complete = true
	p.last = 100
	if p.fn != nil {
		p.fn(100)
	}
}

// Value returns the last reported value.
func (p *Progress) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Fraction computes overall progress for position pos inside [start, end],
// the range at index of n ranges.
func Fraction(index, n int, start, end, pos float64) float64 {
	if n <= 0 {
		return 0
	}
	within := 0.0
	if span := end - start; span > 0 {
		within = (pos - start) / span
		if within < 0 {
			within = 0
		}
		if within > 1 {
			within = 1
		}
	}
	return (float64(index) + within) / float64(n) * 100
}
