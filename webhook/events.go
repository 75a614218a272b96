package webhook

import (
	"time"

	"github.com/meetd/meetd/proposal"
)

// EventType tags a webhook notification.
type EventType string

const (
	EventProposalReceived = EventType("proposal.received")
	EventProposalAccepted = EventType("proposal.accepted")
	EventProposalDeclined = EventType("proposal.declined")
	EventProposalExpired  = EventType("proposal.expired")

	// EventTest is what the webhook test endpoint delivers.
	EventTest = EventType("test")
)

func (t EventType) String() string {
	return string(t)
}

// Event is the JSON body pushed to a registered webhook URL.
type Event struct {
	Event     EventType `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

// EventData always carries the proposal id and the counterparty; the
// rest depends on the event type.
type EventData struct {
	ProposalID   string         `json:"proposal_id"`
	From         string         `json:"from"`
	FromPubKey   string         `json:"from_pubkey,omitempty"`
	Slot         *proposal.Slot `json:"slot,omitempty"`
	Title        string         `json:"title,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Signature    string         `json:"signature,omitempty"`
	CalendarLink string         `json:"calendar_link,omitempty"`
}

func NewEvent(eventType EventType, data EventData) *Event {
	return &Event{
		Event:     eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// NewProposalReceived carries the full envelope context so the
// recipient's agent can act without a follow-up fetch.
func NewProposalReceived(sp *proposal.SignedProposal, proposalID string) *Event {
	slot := sp.Slot
	expiresAt := sp.ExpiresAt
	return NewEvent(EventProposalReceived, EventData{
		ProposalID: proposalID,
		From:       sp.From,
		FromPubKey: sp.FromPubKey,
		Slot:       &slot,
		Title:      sp.Title,
		ExpiresAt:  &expiresAt,
		Signature:  sp.Signature,
	})
}

func NewProposalAccepted(proposalID, from, calendarLink string) *Event {
	return NewEvent(EventProposalAccepted, EventData{
		ProposalID:   proposalID,
		From:         from,
		CalendarLink: calendarLink,
	})
}

func NewProposalDeclined(proposalID, from string) *Event {
	return NewEvent(EventProposalDeclined, EventData{
		ProposalID: proposalID,
		From:       from,
	})
}

func NewProposalExpired(proposalID, from string) *Event {
	return NewEvent(EventProposalExpired, EventData{
		ProposalID: proposalID,
		From:       from,
	})
}
