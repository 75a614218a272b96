package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/meetd/meetd/agent/modules/logger"
	"github.com/meetd/meetd/agent/modules/state"
	"github.com/meetd/meetd/agent/repositories/noncerepo"
	"github.com/meetd/meetd/agent/repositories/userrepo"
	"github.com/meetd/meetd/agent/services/proposalservice"
	"github.com/meetd/meetd/relay"
)

const (
	pollingPeriod = time.Second
	sweepPeriod   = time.Minute

	offsetKey = "relay_offset"
)

// NodeService drives the background loops of one agent daemon: it
// polls the relay for envelopes addressed to local users and runs the
// periodic expiry and nonce sweeps.
type NodeService interface {
	Poll() error
	Sweep() error
	SendEnvelope(sender, recipient, envelope string) error
	ProcessMessage(message relay.Message) error
	GetStateOffset() (uint64, error)
	SaveOffset(offset uint64) error
}

type BaseNodeService struct {
	ctx       context.Context
	relay     relay.Relay
	state     state.State
	users     userrepo.UserRepo
	nonces    noncerepo.NonceRepo
	proposals proposalservice.ProposalService
	logger    logger.Logger
	topic     string
}

func NewNodeService(
	ctx context.Context,
	rl relay.Relay,
	stg state.State,
	users userrepo.UserRepo,
	nonces noncerepo.NonceRepo,
	proposals proposalservice.ProposalService,
	log logger.Logger,
	topic string,
) *BaseNodeService {
	return &BaseNodeService{
		ctx:       ctx,
		relay:     rl,
		state:     stg,
		users:     users,
		nonces:    nonces,
		proposals: proposals,
		logger:    log,
		topic:     topic,
	}
}

// Poll is the main node loop, which gets new messages from the relay
// log and feeds the ones addressed to local users into the receive path.
func (s *BaseNodeService) Poll() error {
	tk := time.NewTicker(pollingPeriod)
	defer tk.Stop()
	for {
		select {
		case <-tk.C:
			offset, err := s.GetStateOffset()
			if err != nil {
				return fmt.Errorf("failed to load offset: %w", err)
			}

			messages, err := s.relay.GetMessages(offset)
			if err != nil {
				return fmt.Errorf("failed to GetMessages: %w", err)
			}

			for _, message := range messages {
				if err := s.ProcessMessage(message); err != nil {
					s.logger.Log("failed to process message with offset %d: %v", message.Offset, err)
				}
				if err := s.SaveOffset(message.Offset + 1); err != nil {
					s.logger.Log("failed to save offset: %v", err)
				}
			}
		case <-s.ctx.Done():
			s.logger.Log("context closed, stop polling")
			return nil
		}
	}
}

// ProcessMessage hands one relay message to its addressee. Messages for
// users not registered on this agent are skipped, replays are logged
// and dropped since the relay is at-least-once.
func (s *BaseNodeService) ProcessMessage(message relay.Message) error {
	user, err := s.users.GetByEmail(message.Recipient)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil
		}
		return err
	}

	result, err := s.proposals.Receive(s.ctx, user, message.Envelope, false)
	if err != nil {
		if errors.Is(err, noncerepo.ErrAlreadyUsed) {
			s.logger.Log("skipping replayed envelope with offset %d", message.Offset)
			return nil
		}
		return err
	}

	s.logger.Log("received proposal %s for %s via relay", result.ProposalID, user.Email)
	return nil
}

// SendEnvelope publishes a signed envelope for the recipient's agent.
func (s *BaseNodeService) SendEnvelope(sender, recipient, envelope string) error {
	if _, err := s.relay.Send(relay.Message{
		Sender:    sender,
		Recipient: recipient,
		Envelope:  envelope,
	}); err != nil {
		return fmt.Errorf("failed to send envelope: %w", err)
	}
	return nil
}

// Sweep runs the periodic maintenance until the context closes:
// pending proposals past their expiry flip to expired, and nonces past
// the retention window are purged.
func (s *BaseNodeService) Sweep() error {
	tk := time.NewTicker(sweepPeriod)
	defer tk.Stop()
	for {
		select {
		case <-tk.C:
			now := time.Now()
			if count, err := s.proposals.ExpireSweep(now); err != nil {
				s.logger.Log("failed to expire proposals: %v", err)
			} else if count > 0 {
				s.logger.Log("expired %d proposals", count)
			}
			if count, err := s.nonces.CleanupOlderThan(now); err != nil {
				s.logger.Log("failed to cleanup nonces: %v", err)
			} else if count > 0 {
				s.logger.Log("purged %d nonces", count)
			}
		case <-s.ctx.Done():
			return nil
		}
	}
}

func (s *BaseNodeService) GetStateOffset() (uint64, error) {
	bz, err := s.state.Get(state.MakeCompositeKey(s.topic, offsetKey))
	if err != nil {
		return 0, err
	}
	if bz == nil {
		return 0, nil
	}
	var offset uint64
	if err := json.Unmarshal(bz, &offset); err != nil {
		return 0, fmt.Errorf("failed to unmarshal offset: %w", err)
	}
	return offset, nil
}

func (s *BaseNodeService) SaveOffset(offset uint64) error {
	bz, err := json.Marshal(offset)
	if err != nil {
		return fmt.Errorf("failed to marshal offset: %w", err)
	}
	return s.state.Set(state.MakeCompositeKey(s.topic, offsetKey), bz)
}
