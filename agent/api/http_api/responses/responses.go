package responses

import (
	"time"

	"github.com/meetd/meetd/agent/types"
	"github.com/meetd/meetd/availability"
	"github.com/meetd/meetd/proposal"
)

type BaseResponse struct {
	ErrorMessage string      `json:"error_message,omitempty"`
	Result       interface{} `json:"result"`
}

type RegisterResponse struct {
	User types.UserInfo `json:"user"`
	// APIKey is shown exactly once, at registration. Only its bcrypt
	// hash survives server-side.
	APIKey string `json:"api_key"`
}

type PubKeyResponse struct {
	Email     string `json:"email"`
	PublicKey string `json:"public_key"`
}

type IssueProposalResponse struct {
	ProposalID     string `json:"proposal_id"`
	SignedProposal string `json:"signed_proposal"`
	AcceptLink     string `json:"accept_link"`
}

type ReceiveProposalResponse struct {
	ProposalID string               `json:"proposal_id"`
	Status     proposal.Status      `json:"status"`
	Event      *types.CalendarEvent `json:"event,omitempty"`
}

type AcceptProposalResponse struct {
	Status proposal.Status      `json:"status"`
	Event  *types.CalendarEvent `json:"event,omitempty"`
}

type DeclineProposalResponse struct {
	Status proposal.Status `json:"status"`
}

type VerifyProposalResponse struct {
	Valid    bool                     `json:"valid"`
	Proposal *proposal.SignedProposal `json:"proposal,omitempty"`
	Reason   string                   `json:"reason,omitempty"`
}

type AvailabilityResponse struct {
	Slots []availability.AvailableSlot `json:"slots"`
}

type WebhookResponse struct {
	URL string `json:"url"`
	// Secret is shown exactly once, at registration time.
	Secret string `json:"secret"`
}

type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}
