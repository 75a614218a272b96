// Package fsm is a small guarded-transition engine. Machines are
// declared once from an event table; the current state itself lives
// with the owning record, so transition checks are pure:
//
//	machine := fsm.MustNewFSM(name, initialState, events)
//	next, err := machine.Next(current, event)
package fsm

import (
	"fmt"
	"strings"
)

type State string

func (s State) String() string {
	return string(s)
}

type Event string

func (e Event) String() string {
	return string(e)
}

// InvalidStateError reports an event fired from a state that has no
// transition for it. It always names the actual current state.
type InvalidStateError struct {
	Machine string
	Event   Event
	Current State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot execute event %q for state %q in machine %q",
		e.Event, e.Current, e.Machine)
}

// EventDesc declares one event: its source states and destination.
type EventDesc struct {
	Name     Event
	SrcState []State
	DstState State
}

type trKey struct {
	source State
	event  Event
}

type FSM struct {
	name         string
	initialState State
	transitions  map[trKey]State

	// Final states have no outgoing transitions; nothing leaves them.
	finStates map[State]bool
}

// MustNewFSM validates the event table and builds the machine. Broken
// declarations are programmer errors, hence the panics.
func MustNewFSM(machineName string, initialState State, events []EventDesc) *FSM {
	machineName = strings.TrimSpace(machineName)
	if machineName == "" {
		panic("machine name cannot be empty")
	}
	if strings.TrimSpace(initialState.String()) == "" {
		panic("initial state cannot be empty")
	}
	if len(events) == 0 {
		panic("cannot init fsm with empty events")
	}

	f := &FSM{
		name:         machineName,
		initialState: initialState,
		transitions:  make(map[trKey]State),
		finStates:    make(map[State]bool),
	}

	allEvents := make(map[Event]bool)
	allSources := make(map[State]bool)
	allStates := make(map[State]bool)

	for _, event := range events {
		if strings.TrimSpace(event.Name.String()) == "" {
			panic("cannot init empty event")
		}
		if strings.TrimSpace(event.DstState.String()) == "" {
			panic(fmt.Sprintf("event %q has empty dst state", event.Name))
		}
		if allEvents[event.Name] {
			panic(fmt.Sprintf("duplicate event %q", event.Name))
		}
		allEvents[event.Name] = true
		allStates[event.DstState] = true

		if len(event.SrcState) == 0 {
			panic(fmt.Sprintf("event %q must have at least one source state", event.Name))
		}

		for _, source := range event.SrcState {
			key := trKey{source, event.Name}
			if _, ok := f.transitions[key]; ok {
				panic(fmt.Sprintf("duplicate dst for pair source %q + event %q", source, event.Name))
			}
			f.transitions[key] = event.DstState
			allSources[source] = true
			allStates[source] = true
		}
	}

	if len(allStates) < 2 {
		panic("machine must contain at least two states")
	}

	for state := range allStates {
		if !allSources[state] {
			f.finStates[state] = true
		}
	}
	if len(f.finStates) == 0 {
		panic("cannot initialize machine without final states")
	}

	return f
}

// Next resolves the destination state for firing event from current.
// An undeclared pair yields *InvalidStateError and no state change.
func (f *FSM) Next(current State, event Event) (State, error) {
	dst, ok := f.transitions[trKey{current, event}]
	if !ok {
		return current, &InvalidStateError{Machine: f.name, Event: event, Current: current}
	}
	return dst, nil
}

// CanFire reports whether event is legal from current.
func (f *FSM) CanFire(current State, event Event) bool {
	_, ok := f.transitions[trKey{current, event}]
	return ok
}

func (f *FSM) Name() string {
	return f.name
}

func (f *FSM) InitialState() State {
	return f.initialState
}

// IsFinState reports whether no transition leaves the given state.
func (f *FSM) IsFinState(state State) bool {
	return f.finStates[state]
}

// StatesList returns every state the machine knows, sources and
// destinations alike, in no particular order.
func (f *FSM) StatesList() []State {
	seen := make(map[State]bool)
	var states []State
	for key, dst := range f.transitions {
		for _, s := range []State{key.source, dst} {
			if !seen[s] {
				seen[s] = true
				states = append(states, s)
			}
		}
	}
	return states
}
