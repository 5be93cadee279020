package playback

import "github.com/heimdex/smartcut/internal/timeline"

// State is the position's membership relative to the keep-ranges.
type State int

const (
	StateInside State = iota
	StateOutside
)

func (s State) String() string {
	if s == StateOutside {
		return "outside"
	}
	return "inside"
}

// ActionKind describes what a tick did to the live position.
type ActionKind string

const (
	ActionNone     ActionKind = "none"
	ActionRelocate ActionKind = "relocate"
)

// Action is the outcome of evaluating one position sample.
type Action struct {
	Kind   ActionKind `json:"action"`
	State  State      `json:"-"`
	Target float64    `json:"seek_to,omitempty"`
}

// Relocates reports whether the action moves the playhead.
func (a Action) Relocates() bool {
	return a.Kind == ActionRelocate
}

// Decide applies the smart-skip rule to one position. An empty view never
// intervenes. Outside every range, the playhead jumps to the nearest later
// start; past the last range playback is left to run out.
func Decide(view timeline.SortedView, position float64) Action {
	if len(view) == 0 || view.Contains(position) {
		return Action{Kind: ActionNone, State: StateInside}
	}
	next, ok := view.NextStart(position)
	if !ok {
		return Action{Kind: ActionNone, State: StateOutside}
	}
	return Action{Kind: ActionRelocate, State: StateOutside, Target: next}
}
