// Package session holds per-chat conversations and the state machine that
// drives them.
//
// State graph:
//
//	IDLE ──► AWAITING_MODEL ──► AWAITING_DOCUMENT ──► ANALYZING ──► AWAITING_LOCATIONS ──► SEARCHING ──► RESULTS
//
// A failed analysis returns to AWAITING_DOCUMENT, a failed search to
// AWAITING_LOCATIONS. A document received after the analysis started
// returns to AWAITING_DOCUMENT and discards the previous résumé.
package session

import "fmt"

type State string

const (
	StateIdle              State = "IDLE"
	StateAwaitingModel     State = "AWAITING_MODEL"
	StateAwaitingDocument  State = "AWAITING_DOCUMENT"
	StateAnalyzing         State = "ANALYZING"
	StateAwaitingLocations State = "AWAITING_LOCATIONS"
	StateSearching         State = "SEARCHING"
	StateResults           State = "RESULTS"
)

func (s State) String() string { return string(s) }

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[State][]State{
	StateIdle:              {StateAwaitingModel, StateAwaitingDocument},
	StateAwaitingModel:     {StateAwaitingDocument},
	StateAwaitingDocument:  {StateAwaitingDocument, StateAnalyzing},
	StateAnalyzing:         {StateAwaitingLocations, StateAwaitingDocument},
	StateAwaitingLocations: {StateSearching, StateAwaitingDocument},
	StateSearching:         {StateResults, StateAwaitingLocations},
	StateResults:           {StateAwaitingDocument},
}

// IsTransitionAllowed returns true when moving from → to is permitted.
func IsTransitionAllowed(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// resets lists the states in which a new document discards the previous
// résumé and its results.
var resets = map[State]bool{
	StateAnalyzing:         true,
	StateAwaitingLocations: true,
	StateSearching:         true,
	StateResults:           true,
}

// ResetsOnDocument reports whether a document received in s starts over.
func ResetsOnDocument(s State) bool { return resets[s] }

// TransitionError is returned for moves outside the graph.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s is not allowed", e.From, e.To)
}
