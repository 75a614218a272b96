package fsm_test

import (
	"errors"
	"testing"

	"github.com/meetd/meetd/fsm"

	"github.com/stretchr/testify/require"
)

const (
	statePending  = fsm.State("pending")
	stateAccepted = fsm.State("accepted")
	stateDeclined = fsm.State("declined")

	eventAccept  = fsm.Event("accept")
	eventDecline = fsm.Event("decline")
)

func newTestMachine() *fsm.FSM {
	return fsm.MustNewFSM("test_machine", statePending, []fsm.EventDesc{
		{Name: eventAccept, SrcState: []fsm.State{statePending}, DstState: stateAccepted},
		{Name: eventDecline, SrcState: []fsm.State{statePending}, DstState: stateDeclined},
	})
}

func TestNextTransition(t *testing.T) {
	req := require.New(t)
	machine := newTestMachine()

	next, err := machine.Next(statePending, eventAccept)
	req.NoError(err)
	req.Equal(stateAccepted, next)
}

func TestNextFromTerminalState(t *testing.T) {
	req := require.New(t)
	machine := newTestMachine()

	_, err := machine.Next(stateAccepted, eventDecline)
	req.Error(err)

	var invalid *fsm.InvalidStateError
	req.True(errors.As(err, &invalid))
	req.Equal(stateAccepted, invalid.Current)
	req.Equal(eventDecline, invalid.Event)
}

func TestFinStates(t *testing.T) {
	req := require.New(t)
	machine := newTestMachine()

	req.False(machine.IsFinState(statePending))
	req.True(machine.IsFinState(stateAccepted))
	req.True(machine.IsFinState(stateDeclined))

	req.True(machine.CanFire(statePending, eventAccept))
	req.False(machine.CanFire(stateDeclined, eventAccept))

	req.Len(machine.StatesList(), 3)
}

func TestMustNewFSMValidation(t *testing.T) {
	req := require.New(t)

	req.Panics(func() {
		fsm.MustNewFSM("", statePending, []fsm.EventDesc{
			{Name: eventAccept, SrcState: []fsm.State{statePending}, DstState: stateAccepted},
		})
	})

	req.Panics(func() {
		fsm.MustNewFSM("m", statePending, nil)
	})

	// Duplicate source+event pair.
	req.Panics(func() {
		fsm.MustNewFSM("m", statePending, []fsm.EventDesc{
			{Name: eventAccept, SrcState: []fsm.State{statePending, statePending}, DstState: stateAccepted},
		})
	})

	// Every state has an exit: no final state.
	req.Panics(func() {
		fsm.MustNewFSM("m", statePending, []fsm.EventDesc{
			{Name: eventAccept, SrcState: []fsm.State{statePending}, DstState: stateAccepted},
			{Name: eventDecline, SrcState: []fsm.State{stateAccepted}, DstState: statePending},
		})
	})
}
