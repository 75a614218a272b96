package proposalservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meetd/meetd/agent/modules/keystore"
	"github.com/meetd/meetd/agent/modules/logger"
	"github.com/meetd/meetd/agent/repositories/noncerepo"
	"github.com/meetd/meetd/agent/repositories/proposalrepo"
	"github.com/meetd/meetd/agent/repositories/userrepo"
	"github.com/meetd/meetd/agent/types"
	"github.com/meetd/meetd/calendar"
	"github.com/meetd/meetd/fsm"
	"github.com/meetd/meetd/fsm/proposal_fsm"
	"github.com/meetd/meetd/proposal"
	"github.com/meetd/meetd/webhook"

	"github.com/google/uuid"
)

// Rejection reasons for a received envelope. Each is distinguishable
// so callers can give actionable feedback instead of an opaque no.
var (
	ErrNotAddressee    = errors.New("proposal is not addressed to you")
	ErrBadSignature    = errors.New("invalid proposal signature")
	ErrProposalExpired = errors.New("proposal has expired")
	ErrNotAuthorized   = errors.New("not authorized for this proposal")

	// ErrReplayed wraps the nonce ledger's refusal so transport
	// handlers can answer "replay attack?".
	ErrReplayed = fmt.Errorf("%w (replay attack?)", noncerepo.ErrAlreadyUsed)
)

// DefaultExpiry is how long an issued proposal stays open.
const DefaultExpiry = 7 * 24 * time.Hour

// CalendarFactory builds a per-user calendar provider from the user's
// stored refresh token. Injected so tests can substitute mocks and so
// token state stays owned, never ambient.
type CalendarFactory func(refreshToken string) calendar.Provider

type IssueRequest struct {
	ToEmail         string
	SlotStart       time.Time
	DurationMinutes int
	Title           string
	Description     string
}

type IssueResult struct {
	ProposalID     string
	SignedProposal string
	AcceptLink     string
}

type ReceiveResult struct {
	ProposalID string
	Status     proposal.Status
	Event      *types.CalendarEvent
}

type AcceptResult struct {
	Status proposal.Status
	Event  *types.CalendarEvent
}

type VerifyResult struct {
	Valid    bool
	Proposal *proposal.SignedProposal
	Reason   string
}

type ProposalService interface {
	Issue(ctx context.Context, user *types.User, req IssueRequest) (*IssueResult, error)
	Receive(ctx context.Context, user *types.User, envelope string, autoAccept bool) (*ReceiveResult, error)
	Accept(ctx context.Context, user *types.User, proposalID string) (*AcceptResult, error)
	Decline(ctx context.Context, user *types.User, proposalID string) error
	ExpireSweep(now time.Time) (int, error)
	Verify(envelope string) *VerifyResult
	Inbox(user *types.User, status *proposal.Status) ([]types.InboxProposal, error)
	Sent(user *types.User) ([]types.InboxProposal, error)
	Get(user *types.User, proposalID string) (*types.InboxProposal, error)
}

type BaseProposalService struct {
	proposalRepo proposalrepo.ProposalRepo
	nonceRepo    noncerepo.NonceRepo
	userRepo     userrepo.UserRepo
	keyStore     keystore.KeyStore
	calendars    CalendarFactory
	dispatcher   *webhook.Dispatcher
	machine      *fsm.FSM
	logger       logger.Logger
	serverURL    string
}

func NewProposalService(
	proposalRepo proposalrepo.ProposalRepo,
	nonceRepo noncerepo.NonceRepo,
	userRepo userrepo.UserRepo,
	keyStore keystore.KeyStore,
	calendars CalendarFactory,
	dispatcher *webhook.Dispatcher,
	log logger.Logger,
	serverURL string,
) *BaseProposalService {
	return &BaseProposalService{
		proposalRepo: proposalRepo,
		nonceRepo:    nonceRepo,
		userRepo:     userRepo,
		keyStore:     keyStore,
		calendars:    calendars,
		dispatcher:   dispatcher,
		machine:      proposal_fsm.New(),
		logger:       log,
		serverURL:    serverURL,
	}
}

func newProposalID() string {
	return "prop_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// Issue creates, signs and persists a pending proposal and hands back
// the envelope for out-of-band delivery to the recipient.
func (s *BaseProposalService) Issue(ctx context.Context, user *types.User, req IssueRequest) (*IssueResult, error) {
	if req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %d", req.DurationMinutes)
	}

	keyPair, err := s.keyStore.LoadKeys(user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair: %w", err)
	}

	now := time.Now().UTC()
	signed := &proposal.SignedProposal{
		Version:    proposal.CurrentVersion,
		From:       user.Email,
		FromPubKey: user.PublicKey,
		To:         req.ToEmail,
		Slot: proposal.Slot{
			Start:           req.SlotStart,
			DurationMinutes: req.DurationMinutes,
		},
		Title:       req.Title,
		Description: req.Description,
		Nonce:       uuid.New().String(),
		ExpiresAt:   now.Add(DefaultExpiry),
	}
	if err := signed.Sign(keyPair); err != nil {
		return nil, fmt.Errorf("failed to sign proposal: %w", err)
	}

	p := &proposal.Proposal{
		ID:              newProposalID(),
		FromUserID:      user.ID,
		ToEmail:         req.ToEmail,
		SlotStart:       req.SlotStart,
		DurationMinutes: req.DurationMinutes,
		Title:           req.Title,
		Description:     req.Description,
		Nonce:           signed.Nonce,
		ExpiresAt:       signed.ExpiresAt,
		Signature:       signed.Signature,
		Status:          proposal.StatusPending,
		CreatedAt:       now.Unix(),
	}
	if err := s.proposalRepo.Create(p); err != nil {
		return nil, fmt.Errorf("failed to create proposal: %w", err)
	}

	// The sender-side notification to a locally registered recipient.
	if recipient, err := s.userRepo.GetByEmail(req.ToEmail); err == nil && recipient.WebhookURL != "" {
		s.dispatcher.Emit(recipient.WebhookURL, recipient.WebhookSecret,
			webhook.NewProposalReceived(signed, p.ID))
	}

	envelope, err := signed.Encode()
	if err != nil {
		return nil, err
	}

	return &IssueResult{
		ProposalID:     p.ID,
		SignedProposal: envelope,
		AcceptLink:     fmt.Sprintf("%s/accept/%s", s.serverURL, p.ID),
	}, nil
}

// Receive runs the four admission checks in order: addressing,
// signature, expiry, replay. The nonce is only burned once everything
// before it has passed, so a failed receipt leaves no trace and an
// attacker cannot spend someone else's nonce with a broken envelope.
func (s *BaseProposalService) Receive(ctx context.Context, user *types.User, envelope string, autoAccept bool) (*ReceiveResult, error) {
	signed, err := proposal.DecodeEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	if signed.To != user.Email {
		return nil, ErrNotAddressee
	}

	ok, err := signed.Verify()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBadSignature
	}

	if signed.ExpiresAt.Before(time.Now()) {
		return nil, ErrProposalExpired
	}

	if err := s.nonceRepo.MarkUsed(signed.Nonce); err != nil {
		if errors.Is(err, noncerepo.ErrAlreadyUsed) {
			return nil, ErrReplayed
		}
		return nil, fmt.Errorf("failed to mark nonce used: %w", err)
	}

	// Senders registered here keep their user id; external senders are
	// keyed by their email.
	fromUserID := signed.From
	if sender, err := s.userRepo.GetByEmail(signed.From); err == nil {
		fromUserID = sender.ID
	}

	p := &proposal.Proposal{
		ID:              newProposalID(),
		FromUserID:      fromUserID,
		ToEmail:         user.Email,
		SlotStart:       signed.Slot.Start,
		DurationMinutes: signed.Slot.DurationMinutes,
		Title:           signed.Title,
		Description:     signed.Description,
		Nonce:           signed.Nonce,
		ExpiresAt:       signed.ExpiresAt,
		Signature:       signed.Signature,
		Status:          proposal.StatusPending,
		CreatedAt:       time.Now().Unix(),
	}
	if err := s.proposalRepo.Create(p); err != nil {
		return nil, fmt.Errorf("failed to create proposal: %w", err)
	}

	if !autoAccept {
		return &ReceiveResult{ProposalID: p.ID, Status: proposal.StatusPending}, nil
	}

	// The combined receive-and-accept path notifies the sender with
	// proposal.accepted only; the recipient acted, so it gets no
	// proposal.received for its own action.
	accepted, err := s.Accept(ctx, user, p.ID)
	if err != nil {
		return nil, err
	}
	return &ReceiveResult{ProposalID: p.ID, Status: accepted.Status, Event: accepted.Event}, nil
}

// Accept transitions pending -> accepted for the addressed recipient.
// The repo's guarded update is the linearization point: of two
// concurrent accepts exactly one sees the guard hold.
func (s *BaseProposalService) Accept(ctx context.Context, user *types.User, proposalID string) (*AcceptResult, error) {
	p, err := s.proposalRepo.Get(proposalID)
	if err != nil {
		return nil, err
	}

	if p.ToEmail != user.Email {
		return nil, ErrNotAuthorized
	}

	if _, err := s.machine.Next(fsm.State(p.Status), proposal_fsm.EventAccept); err != nil {
		return nil, err
	}

	if p.ExpiresAt.Before(time.Now()) {
		_, _ = s.proposalRepo.UpdateStatus(proposalID, proposal.StatusPending, proposal.StatusExpired)
		return nil, ErrProposalExpired
	}

	ok, err := s.proposalRepo.UpdateStatus(proposalID, proposal.StatusPending, proposal.StatusAccepted)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.proposalRepo.Get(proposalID)
		if err != nil {
			return nil, err
		}
		return nil, &fsm.InvalidStateError{
			Machine: proposal_fsm.FsmName,
			Event:   proposal_fsm.EventAccept,
			Current: fsm.State(current.Status),
		}
	}

	// Only the accept that won the guarded transition creates the
	// calendar event. Creation is best-effort: a provider failure still
	// leaves the proposal accepted, the link is simply absent.
	event := s.createCalendarEvent(ctx, user, p)

	s.notifySender(p, webhook.NewProposalAccepted(p.ID, user.Email, eventLink(event)))

	return &AcceptResult{Status: proposal.StatusAccepted, Event: event}, nil
}

// Decline transitions to declined for the addressed recipient. Unlike
// Accept there is no status guard: a decline lands regardless of the
// prior state. Known asymmetry, kept as-is.
func (s *BaseProposalService) Decline(ctx context.Context, user *types.User, proposalID string) error {
	p, err := s.proposalRepo.Get(proposalID)
	if err != nil {
		return err
	}

	if p.ToEmail != user.Email {
		return ErrNotAuthorized
	}

	if err := s.proposalRepo.UpdateStatusUnconditional(proposalID, proposal.StatusDeclined); err != nil {
		return err
	}

	s.notifySender(p, webhook.NewProposalDeclined(p.ID, user.Email))
	return nil
}

// ExpireSweep flips stale pending proposals to expired and notifies
// their senders. Safe to run arbitrarily often.
func (s *BaseProposalService) ExpireSweep(now time.Time) (int, error) {
	expired, err := s.proposalRepo.ExpirePendingOlderThan(now)
	if err != nil {
		return 0, err
	}

	for _, p := range expired {
		s.notifySender(p, webhook.NewProposalExpired(p.ID, p.ToEmail))
	}
	return len(expired), nil
}

// Verify is the read-only verification endpoint: every failure is a
// soft valid=false with a reason, never an error.
func (s *BaseProposalService) Verify(envelope string) *VerifyResult {
	signed, err := proposal.DecodeEnvelope(envelope)
	if err != nil {
		return &VerifyResult{Valid: false, Reason: err.Error()}
	}

	ok, err := signed.Verify()
	if err != nil {
		return &VerifyResult{Valid: false, Proposal: signed, Reason: err.Error()}
	}
	if !ok {
		return &VerifyResult{Valid: false, Proposal: signed, Reason: "invalid signature"}
	}
	return &VerifyResult{Valid: true, Proposal: signed}
}

func (s *BaseProposalService) Inbox(user *types.User, status *proposal.Status) ([]types.InboxProposal, error) {
	// Surface fresh expirations before listing.
	if _, err := s.ExpireSweep(time.Now()); err != nil {
		return nil, err
	}

	proposals, err := s.proposalRepo.GetForEmail(user.Email, status)
	if err != nil {
		return nil, err
	}

	inbox := make([]types.InboxProposal, 0, len(proposals))
	for _, p := range proposals {
		inbox = append(inbox, s.toInboxProposal(p))
	}
	return inbox, nil
}

func (s *BaseProposalService) Sent(user *types.User) ([]types.InboxProposal, error) {
	proposals, err := s.proposalRepo.GetFromUser(user.ID)
	if err != nil {
		return nil, err
	}

	sent := make([]types.InboxProposal, 0, len(proposals))
	for _, p := range proposals {
		item := s.toInboxProposal(p)
		item.From = user.Email
		sent = append(sent, item)
	}
	return sent, nil
}

// Get returns one proposal, visible to its sender and recipient only.
func (s *BaseProposalService) Get(user *types.User, proposalID string) (*types.InboxProposal, error) {
	p, err := s.proposalRepo.Get(proposalID)
	if err != nil {
		return nil, err
	}

	if p.FromUserID != user.ID && p.ToEmail != user.Email {
		return nil, ErrNotAuthorized
	}

	item := s.toInboxProposal(p)
	return &item, nil
}

func (s *BaseProposalService) toInboxProposal(p *proposal.Proposal) types.InboxProposal {
	from := p.FromUserID
	if sender, err := s.userRepo.Get(p.FromUserID); err == nil {
		from = sender.Email
	}
	return types.InboxProposal{
		ID:        p.ID,
		From:      from,
		Slot:      p.Slot(),
		Title:     p.Title,
		ExpiresAt: p.ExpiresAt,
		Status:    p.Status,
	}
}

func (s *BaseProposalService) createCalendarEvent(ctx context.Context, user *types.User, p *proposal.Proposal) *types.CalendarEvent {
	title := p.Title
	if title == "" {
		title = "Meeting"
	}
	end := p.SlotStart.Add(time.Duration(p.DurationMinutes) * time.Minute)

	event := &types.CalendarEvent{
		Title: title,
		Start: p.SlotStart,
		End:   end,
	}

	if user.GoogleRefreshToken == "" || s.calendars == nil {
		return event
	}

	attendee := ""
	if sender, err := s.userRepo.Get(p.FromUserID); err == nil {
		attendee = sender.Email
	} else if strings.Contains(p.FromUserID, "@") {
		attendee = p.FromUserID
	}

	created, err := s.calendars(user.GoogleRefreshToken).CreateEvent(
		ctx, title, p.Description, p.SlotStart, end, attendee)
	if err != nil {
		s.logger.Log("failed to create calendar event for %s: %v", p.ID, err)
		return event
	}

	event.Link = created.HTMLLink
	return event
}

func (s *BaseProposalService) notifySender(p *proposal.Proposal, event *webhook.Event) {
	sender, err := s.userRepo.Get(p.FromUserID)
	if err != nil || sender.WebhookURL == "" {
		return
	}
	s.dispatcher.Emit(sender.WebhookURL, sender.WebhookSecret, event)
}

func eventLink(event *types.CalendarEvent) string {
	if event == nil {
		return ""
	}
	return event.Link
}
