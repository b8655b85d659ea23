package aoi

import "sync"

// State is a batch run's position in its lifecycle.
type State string

const (
	StateInitializing State = "initializing"
	StateQuerying     State = "querying"
	StateSubmitting   State = "submitting"
	StateRecording    State = "recording"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// transitions lists the states reachable from each state. Submitting may
// follow itself when a row is skipped or fails without being recorded.
var transitions = map[State][]State{
	"":                {StateInitializing},
	StateInitializing: {StateQuerying, StateFailed},
	StateQuerying:     {StateSubmitting, StateDone, StateFailed},
	StateSubmitting:   {StateSubmitting, StateRecording, StateDone, StateFailed},
	StateRecording:    {StateSubmitting, StateDone, StateFailed},
}

// CanTransitionTo reports whether next may follow s.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Observer is called after every state transition.
type Observer func(from, to State)

// StateRecorder keeps the sequence of states a run passed through.
type StateRecorder struct {
	mu   sync.Mutex
	path []string
}

func NewStateRecorder() *StateRecorder {
	return &StateRecorder{path: make([]string, 0)}
}

// Observe records to. It satisfies Observer.
func (r *StateRecorder) Observe(_, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = append(r.path, string(to))
}

func (r *StateRecorder) Path() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.path...)
}
