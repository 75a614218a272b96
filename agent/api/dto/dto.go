// Package dto contains DTO (Data Transfer Object) structures
// for providing validated and sanitized values to service layer
package dto

import "time"

type RegisterUserDTO struct {
	Email              string
	Visibility         string
	GoogleRefreshToken string
}

type EmailDTO struct {
	Email string
}

type IssueProposalDTO struct {
	ToEmail         string
	SlotStart       time.Time
	DurationMinutes int
	Title           string
	Description     string
}

type ProposalIdDTO struct {
	ProposalID string
}

type InboxDTO struct {
	Status string
}

type ReceiveProposalDTO struct {
	SignedProposal string
	AutoAccept     bool
}

type VerifyProposalDTO struct {
	SignedProposal string
}

type AvailabilityQueryDTO struct {
	WithEmail       string
	Window          string
	DurationMinutes int
}

type WebhookDTO struct {
	URL string
}

type VisibilityDTO struct {
	Visibility string
}
