package timeline

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrInvalidSegmentBound = errors.New("invalid segment bound")
	ErrSegmentNotFound     = errors.New("segment index out of range")
)

// DefaultSpan is the length of a segment created by Add when no span is configured.
const DefaultSpan = 5.0

// Bound selects which end of a segment an edit applies to.
type Bound int

const (
	BoundStart Bound = iota
	BoundEnd
)

func (b Bound) String() string {
	if b == BoundEnd {
		return "end"
	}
	return "start"
}

// ParseBound accepts "start" or "end", case-insensitively.
func ParseBound(s string) (Bound, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return BoundStart, nil
	case "end":
		return BoundEnd, nil
	default:
		return BoundStart, fmt.Errorf("%w: unknown bound %q", ErrInvalidSegmentBound, s)
	}
}

// Add appends a segment beginning at currentTime and lasting span seconds,
// clipped to the source duration. A currentTime past the end starts the
// segment at duration. Non-finite or negative times are rejected and s is
// returned unchanged.
func Add(s Set, currentTime, span, duration float64) (Set, error) {
	if !validBound(currentTime) {
		return s, fmt.Errorf("%w: %v", ErrInvalidSegmentBound, currentTime)
	}
	if span <= 0 {
		span = DefaultSpan
	}
	start := currentTime
	if duration >= 0 && start > duration {
		start = duration
	}
	out := make(Set, len(s), len(s)+1)
	copy(out, s)
	return append(out, Segment{
		Start: start,
		End:   math.Min(start+span, duration),
	}), nil
}

// Remove returns s without the element at index. Out-of-range indexes leave
// the set unchanged.
func Remove(s Set, index int) Set {
	if index < 0 || index >= len(s) {
		return s
	}
	out := make(Set, 0, len(s)-1)
	out = append(out, s[:index]...)
	return append(out, s[index+1:]...)
}

// SetBound replaces one bound of the segment at index. The other bound is not
// consulted, so the result may be inverted.
func SetBound(s Set, index int, which Bound, value float64) (Set, error) {
	if index < 0 || index >= len(s) {
		return s, fmt.Errorf("%w: %d", ErrSegmentNotFound, index)
	}
	if !validBound(value) {
		return s, fmt.Errorf("%w: %v", ErrInvalidSegmentBound, value)
	}

	out := s.Clone()
	switch which {
	case BoundEnd:
		out[index].End = value
	default:
		out[index].Start = value
	}
	return out, nil
}

// SetBoundToPlayhead is SetBound using the live playhead as the value.
func SetBoundToPlayhead(s Set, index int, which Bound, currentTime float64) (Set, error) {
	return SetBound(s, index, which, currentTime)
}
