package proposal

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a stored proposal. Pending is the
// only non-terminal status.
type Status string

const (
	StatusPending  = Status("pending")
	StatusAccepted = Status("accepted")
	StatusDeclined = Status("declined")
	StatusExpired  = Status("expired")
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no transition may leave this status.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined || s == StatusExpired
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusAccepted, StatusDeclined, StatusExpired:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown proposal status %q", s)
}

// Slot is the proposed meeting interval.
type Slot struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
}

func (s Slot) End() time.Time {
	return s.Start.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// SignedProposal is the agent-to-agent wire format. The signature covers
// the canonical signing payload; Description is deliberately outside of
// it and therefore not integrity-protected.
type SignedProposal struct {
	Version     uint32    `json:"version"`
	From        string    `json:"from"`
	FromPubKey  string    `json:"from_pubkey"`
	To          string    `json:"to"`
	Slot        Slot      `json:"slot"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Nonce       string    `json:"nonce"`
	ExpiresAt   time.Time `json:"expires_at"`
	Signature   string    `json:"signature"`
}

// Proposal is the server-side record. It is a superset of the signed
// envelope; expired proposals are retained for audit, never deleted.
type Proposal struct {
	ID              string    `json:"id"`
	FromUserID      string    `json:"from_user_id"`
	ToEmail         string    `json:"to_email"`
	SlotStart       time.Time `json:"slot_start"`
	DurationMinutes int       `json:"duration_minutes"`
	Title           string    `json:"title,omitempty"`
	Description     string    `json:"description,omitempty"`
	Nonce           string    `json:"nonce"`
	ExpiresAt       time.Time `json:"expires_at"`
	Signature       string    `json:"signature"`
	Status          Status    `json:"status"`
	CreatedAt       int64     `json:"created_at"`
}

func (p *Proposal) Slot() Slot {
	return Slot{Start: p.SlotStart, DurationMinutes: p.DurationMinutes}
}
