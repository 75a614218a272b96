package requests

import "time"

type RegisterUserForm struct {
	Email              string `json:"email" validate:"attr=email,min=3"`
	Visibility         string `json:"visibility"`
	GoogleRefreshToken string `json:"google_refresh_token"`
}

type EmailForm struct {
	Email string `param:"email" query:"email" json:"email" validate:"attr=email,min=3"`
}

type IssueProposalForm struct {
	ToEmail         string    `json:"to" validate:"attr=to,min=3"`
	SlotStart       time.Time `json:"slot_start"`
	DurationMinutes int       `json:"duration_minutes"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
}

type ProposalIdForm struct {
	ProposalID string `param:"id" query:"id" json:"proposal_id" validate:"attr=proposal_id,min=5"`
}

type InboxForm struct {
	Status string `query:"status" json:"status"`
}

type ReceiveProposalForm struct {
	SignedProposal string `json:"signed_proposal" validate:"attr=signed_proposal,min=8"`
	AutoAccept     bool   `json:"auto_accept"`
}

type VerifyProposalForm struct {
	SignedProposal string `json:"signed_proposal" validate:"attr=signed_proposal,min=8"`
}

type AvailabilityQueryForm struct {
	WithEmail       string `query:"with" json:"with" validate:"attr=with,min=3"`
	Window          string `query:"window" json:"window" validate:"attr=window,min=8"`
	DurationMinutes int    `query:"duration_minutes" json:"duration_minutes"`
}

type WebhookForm struct {
	URL string `json:"url" validate:"attr=url,min=8"`
}

type VisibilityForm struct {
	Visibility string `json:"visibility" validate:"attr=visibility,min=4"`
}
