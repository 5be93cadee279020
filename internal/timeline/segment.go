// Package timeline models the edited timeline of a loaded source: an unordered
// set of keep-ranges, the sorted view consumers walk, and the pure editing
// operations that produce new sets.
package timeline

import (
	"fmt"
	"math"
)

// Segment is one contiguous keep-range of the source, in seconds.
//
// Start > End is allowed at rest; editing may leave a segment inverted and
// consumers resolve it when they read the set.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Inverted reports whether the segment has Start > End. Inverted segments are
// never members of the timeline and are never skip targets.
func (s Segment) Inverted() bool {
	return s.Start > s.End
}

// Degenerate reports whether the segment contributes no content (Start >= End).
func (s Segment) Degenerate() bool {
	return s.Start >= s.End
}

// Contains reports whether position p lies within [Start, End].
func (s Segment) Contains(p float64) bool {
	if s.Inverted() {
		return false
	}
	return p >= s.Start && p <= s.End
}

// Duration returns End-Start, or zero for degenerate segments.
func (s Segment) Duration() float64 {
	if s.Degenerate() {
		return 0
	}
	return s.End - s.Start
}

func (s Segment) String() string {
	return fmt.Sprintf("[%.3f, %.3f]", s.Start, s.End)
}

func validBound(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
