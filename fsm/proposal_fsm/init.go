// Package proposal_fsm declares the proposal lifecycle machine:
// pending is the only live state, accepted/declined/expired are
// terminal and nothing transitions out of them.
package proposal_fsm

import (
	"github.com/meetd/meetd/fsm"
	"github.com/meetd/meetd/proposal"
)

const FsmName = "proposal_lifecycle"

const (
	StatePending  = fsm.State(proposal.StatusPending)
	StateAccepted = fsm.State(proposal.StatusAccepted)
	StateDeclined = fsm.State(proposal.StatusDeclined)
	StateExpired  = fsm.State(proposal.StatusExpired)
)

const (
	EventAccept  = fsm.Event("event_proposal_accept")
	EventDecline = fsm.Event("event_proposal_decline")
	EventExpire  = fsm.Event("event_proposal_expire")
)

func New() *fsm.FSM {
	return fsm.MustNewFSM(
		FsmName,
		StatePending,
		[]fsm.EventDesc{
			{Name: EventAccept, SrcState: []fsm.State{StatePending}, DstState: StateAccepted},
			{Name: EventDecline, SrcState: []fsm.State{StatePending}, DstState: StateDeclined},
			{Name: EventExpire, SrcState: []fsm.State{StatePending}, DstState: StateExpired},
		},
	)
}
