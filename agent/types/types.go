package types

import (
	"fmt"
	"time"

	"github.com/meetd/meetd/proposal"
)

// Visibility controls how much calendar detail is shared with
// counterparties during availability queries.
type Visibility string

const (
	// VisibilityBusyOnly shares busy/free status, no details.
	VisibilityBusyOnly = Visibility("busy_only")
	// VisibilityMasked shares "Busy" without titles or attendees.
	VisibilityMasked = Visibility("masked")
	// VisibilityFull shares event titles, never attendees.
	VisibilityFull = Visibility("full")
)

func (v Visibility) String() string {
	return string(v)
}

func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case VisibilityBusyOnly, VisibilityMasked, VisibilityFull:
		return Visibility(s), nil
	}
	return "", fmt.Errorf("unknown visibility %q", s)
}

// User is a registered identity on this agent.
type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	GoogleRefreshToken string     `json:"-"`
	PublicKey          string     `json:"public_key"`
	APIKeyHash         string     `json:"-"`
	Visibility         Visibility `json:"visibility"`
	WebhookURL         string     `json:"webhook_url,omitempty"`
	WebhookSecret      string     `json:"-"`
	CreatedAt          int64      `json:"created_at"`
}

// UserInfo is the API-safe projection of User.
type UserInfo struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	PublicKey  string     `json:"public_key"`
	Visibility Visibility `json:"visibility"`
	WebhookURL string     `json:"webhook_url,omitempty"`
	CreatedAt  int64      `json:"created_at"`
}

func (u *User) Info() UserInfo {
	return UserInfo{
		ID:         u.ID,
		Email:      u.Email,
		PublicKey:  u.PublicKey,
		Visibility: u.Visibility,
		WebhookURL: u.WebhookURL,
		CreatedAt:  u.CreatedAt,
	}
}

// InboxProposal is the listing projection of a stored proposal.
type InboxProposal struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	Slot      proposal.Slot   `json:"slot"`
	Title     string          `json:"title,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
	Status    proposal.Status `json:"status"`
}

// CalendarEvent is the accept-response projection of the created
// calendar entry; Link is absent when event creation failed or was
// skipped.
type CalendarEvent struct {
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Link  string    `json:"calendar_link,omitempty"`
}
