package timeline

import "sort"

// Set is an unordered collection of keep-ranges. A Set is treated as an
// immutable value: editing operations return a new Set and never write to
// the receiver's backing array.
type Set []Segment

// Clone returns a copy that shares no memory with s.
func (s Set) Clone() Set {
	if s == nil {
		return Set{}
	}
	out := make(Set, len(s))
	copy(out, s)
	return out
}

// Sorted returns the Sorted View of the set. Segments with equal starts keep
// their relative insertion order.
func (s Set) Sorted() SortedView {
	view := make(SortedView, len(s))
	copy(view, s)
	sort.SliceStable(view, func(i, j int) bool {
		return view[i].Start < view[j].Start
	})
	return view
}

// Equivalent reports whether a and b hold the same segments regardless of order.
func Equivalent(a, b Set) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[Segment]int, len(a))
	for _, seg := range a {
		counts[seg]++
	}
	for _, seg := range b {
		if counts[seg] == 0 {
			return false
		}
		counts[seg]--
	}
	return true
}

// SortedView is a Set ordered ascending by Start. It is the only ordering
// playback and export rely on.
type SortedView []Segment

// Contains reports whether any segment covers p.
func (v SortedView) Contains(p float64) bool {
	for _, seg := range v {
		if seg.Contains(p) {
			return true
		}
	}
	return false
}

// NextStart returns the smallest segment start strictly greater than p.
// Inverted segments are ignored.
func (v SortedView) NextStart(p float64) (float64, bool) {
	for _, seg := range v {
		if seg.Inverted() {
			continue
		}
		if seg.Start > p {
			return seg.Start, true
		}
	}
	return 0, false
}

// Contributing returns the segments that carry content, in order.
func (v SortedView) Contributing() SortedView {
	out := make(SortedView, 0, len(v))
	for _, seg := range v {
		if !seg.Degenerate() {
			out = append(out, seg)
		}
	}
	return out
}

// TotalDuration sums the durations of all non-degenerate segments. Overlaps
// are counted once per segment, matching what a sequential walk produces.
func (v SortedView) TotalDuration() float64 {
	var total float64
	for _, seg := range v {
		total += seg.Duration()
	}
	return total
}

// Effective returns the list playback and export actually walk: the whole
// source when skipping is off or the set is empty, otherwise the Sorted View.
func Effective(s Set, skip bool, duration float64) SortedView {
	if !skip || len(s) == 0 {
		if duration < 0 {
			duration = 0
		}
		return SortedView{{Start: 0, End: duration}}
	}
	return s.Sorted()
}
