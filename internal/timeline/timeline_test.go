package timeline

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment_Contains(t *testing.T) {
	tests := []struct {
		name string
		seg  Segment
		p    float64
		want bool
	}{
		{"inside", Segment{1, 3}, 2, true},
		{"at start", Segment{1, 3}, 1, true},
		{"at end", Segment{1, 3}, 3, true},
		{"before", Segment{1, 3}, 0.5, false},
		{"after", Segment{1, 3}, 3.01, false},
		{"zero length point", Segment{3, 3}, 3, true},
		{"inverted never contains", Segment{5, 2}, 3, false},
		{"inverted bound", Segment{5, 2}, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.seg.Contains(tt.p))
		})
	}
}

func TestSegment_Duration(t *testing.T) {
	assert.Equal(t, 2.0, Segment{1, 3}.Duration())
	assert.Equal(t, 0.0, Segment{3, 3}.Duration())
	assert.Equal(t, 0.0, Segment{5, 2}.Duration())
	assert.True(t, Segment{3, 3}.Degenerate())
	assert.False(t, Segment{3, 3}.Inverted())
}

func TestSet_SortedDoesNotMutate(t *testing.T) {
	s := Set{{2, 5}, {0, 1}}
	view := s.Sorted()

	assert.Equal(t, SortedView{{0, 1}, {2, 5}}, view)
	assert.Equal(t, Set{{2, 5}, {0, 1}}, s, "insertion order must be preserved")
}

func TestSortedView_Membership(t *testing.T) {
	view := Set{{2, 5}, {0, 1}, {4, 9}, {12, 10}}.Sorted()

	for _, p := range []float64{0, 0.5, 1, 2, 4.5, 5, 7, 9} {
		assert.True(t, view.Contains(p), "position %v", p)
	}
	for _, p := range []float64{1.5, 9.5, 11, 12} {
		assert.False(t, view.Contains(p), "position %v", p)
	}
}

func TestSortedView_NextStart(t *testing.T) {
	view := Set{{8, 3}, {6, 7}, {2, 5}, {6, 9}}.Sorted()

	next, ok := view.NextStart(1)
	require.True(t, ok)
	assert.Equal(t, 2.0, next)

	next, ok = view.NextStart(5.5)
	require.True(t, ok)
	assert.Equal(t, 6.0, next, "shared start resolves to the shared value")

	_, ok = view.NextStart(7.5)
	assert.False(t, ok, "inverted {8,3} must not be a skip target")
}

func TestEffective(t *testing.T) {
	tests := []struct {
		name     string
		set      Set
		skip     bool
		duration float64
		want     SortedView
	}{
		{"skip disabled", Set{{1, 2}}, false, 10, SortedView{{0, 10}}},
		{"empty set", Set{}, true, 10, SortedView{{0, 10}}},
		{"nil set", nil, true, 7.5, SortedView{{0, 7.5}}},
		{"sorted", Set{{5, 8}, {0, 3}}, true, 10, SortedView{{0, 3}, {5, 8}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Effective(tt.set, tt.skip, tt.duration))
		})
	}
}

func TestSortedView_TotalDurationWithDegenerate(t *testing.T) {
	view := Set{{0, 3}, {3, 3}, {5, 8}}.Sorted()

	assert.InDelta(t, 6.0, view.TotalDuration(), 1e-9)
	assert.Len(t, view.Contributing(), 2)
}

func TestAdd(t *testing.T) {
	s := Set{{0, 1}}
	out, err := Add(s, 3, 5, 100)
	require.NoError(t, err)
	assert.Equal(t, Set{{0, 1}, {3, 8}}, out)
	assert.Len(t, s, 1, "original set must be untouched")

	clipped, err := Add(nil, 98, 5, 100)
	require.NoError(t, err)
	assert.Equal(t, Set{{98, 100}}, clipped)

	defaulted, err := Add(nil, 1, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, Set{{1, 1 + DefaultSpan}}, defaulted)
}

func TestAdd_CurrentTime(t *testing.T) {
	base := Set{{0, 1}}
	tests := []struct {
		name    string
		current float64
		want    Segment
		wantErr bool
	}{
		{"start of source", 0, Segment{0, 5}, false},
		{"past the end starts at duration", 30, Segment{20, 20}, false},
		{"negative", -2, Segment{}, true},
		{"NaN", math.NaN(), Segment{}, true},
		{"infinite", math.Inf(1), Segment{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Add(base, tt.current, 5, 20)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSegmentBound)
				assert.Equal(t, base, out)
				return
			}
			require.NoError(t, err)
			require.Len(t, out, 2)
			assert.Equal(t, tt.want, out[1])
			assert.GreaterOrEqual(t, out[1].Start, 0.0)
		})
	}
}

func TestAdd_DoesNotAliasBackingArray(t *testing.T) {
	base := make(Set, 1, 4)
	base[0] = Segment{0, 1}

	a, _ := Add(base, 2, 1, 10)
	b, _ := Add(base, 5, 1, 10)

	assert.Equal(t, Segment{2, 3}, a[1])
	assert.Equal(t, Segment{5, 6}, b[1])
}

func TestRemove(t *testing.T) {
	s := Set{{0, 1}, {2, 3}, {4, 5}}

	assert.Equal(t, Set{{0, 1}, {4, 5}}, Remove(s, 1))
	assert.Equal(t, s, Remove(s, -1))
	assert.Equal(t, s, Remove(s, 3))
	assert.Equal(t, Set{{0, 1}, {2, 3}, {4, 5}}, s)
}

func TestRemoveThenAdd_EquivalentView(t *testing.T) {
	s := Set{{2, 5}, {0, 1}, {7, 9}}
	removed := Remove(s, 0)
	restored := append(removed.Clone(), Segment{2, 5})

	assert.True(t, Equivalent(s, restored))
	assert.Equal(t, s.Sorted(), Set(restored).Sorted())
}

func TestSetBound(t *testing.T) {
	s := Set{{2, 5}}

	out, err := SetBound(s, 0, BoundEnd, 1)
	require.NoError(t, err)
	assert.Equal(t, Set{{2, 1}}, out, "no cross-validation against start")
	assert.Equal(t, Set{{2, 5}}, s)

	out, err = SetBoundToPlayhead(s, 0, BoundStart, 3.25)
	require.NoError(t, err)
	assert.Equal(t, Set{{3.25, 5}}, out)
}

func TestSetBound_Rejected(t *testing.T) {
	s := Set{{2, 5}}

	for _, v := range []float64{math.NaN(), math.Inf(1), -1} {
		out, err := SetBound(s, 0, BoundStart, v)
		assert.True(t, errors.Is(err, ErrInvalidSegmentBound), "value %v", v)
		assert.Equal(t, s, out)
	}

	out, err := SetBound(s, 4, BoundStart, 1)
	assert.ErrorIs(t, err, ErrSegmentNotFound)
	assert.Equal(t, s, out)
}

func TestParseBound(t *testing.T) {
	b, err := ParseBound("End")
	require.NoError(t, err)
	assert.Equal(t, BoundEnd, b)

	b, err = ParseBound("start")
	require.NoError(t, err)
	assert.Equal(t, BoundStart, b)

	_, err = ParseBound("middle")
	assert.ErrorIs(t, err, ErrInvalidSegmentBound)
}

func TestEquivalent(t *testing.T) {
	assert.True(t, Equivalent(Set{{1, 2}, {1, 2}, {3, 4}}, Set{{3, 4}, {1, 2}, {1, 2}}))
	assert.False(t, Equivalent(Set{{1, 2}, {1, 2}}, Set{{1, 2}, {3, 4}}))
	assert.False(t, Equivalent(Set{{1, 2}}, Set{}))
}
