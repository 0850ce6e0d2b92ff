package watch

import "sync"

// State is the last observed state of one target.
type State struct {
	// Known is false until the first successful observation.
	Known bool
	// ID is the current external id; empty means none.
	ID string
}

// Tracker holds per-target State and decides which observations are
// transitions. It is the only writer of State.
type Tracker struct {
	mu     sync.Mutex
	states map[string]State
}

// NewTracker returns an empty tracker; every target starts unknown.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]State)}
}

// State returns a copy of the state tracked for name.
func (t *Tracker) State(name string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[name]
}

// Apply records obs for target and returns the transition it represents, if any.
// The new state is computed first and assigned in one step.
func (t *Tracker) Apply(target Target, obs Observation) (Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.states[target.Name]
	next, ev, ok := transition(target, prev, obs)
	t.states[target.Name] = next
	return ev, ok
}

func transition(target Target, prev State, obs Observation) (State, Event, bool) {
	next := State{Known: true, ID: prev.ID}
	if !obs.Present {
		next.ID = ""
		if target.Style == StyleLatestItem {
			// feeds do not end; keep the last seen item as baseline
			next.ID = prev.ID
			return next, Event{}, false
		}
		if prev.Known && prev.ID != "" {
			return next, Event{Kind: Ended, Target: target, ExternalID: prev.ID}, true
		}
		return next, Event{}, false
	}

	next.ID = obs.ExternalID
	if prev.Known && prev.ID == obs.ExternalID {
		return next, Event{}, false
	}
	switch target.Style {
	case StyleLiveness:
		return next, Event{Kind: Started, Target: target, ExternalID: obs.ExternalID, Observation: obs}, true
	case StyleLatestItem:
		if !prev.Known {
			return next, Event{}, false
		}
		return next, Event{Kind: NewItem, Target: target, ExternalID: obs.ExternalID, Observation: obs}, true
	}
	return next, Event{}, false
}
