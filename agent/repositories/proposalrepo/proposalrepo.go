package proposalrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/meetd/meetd/agent/modules/state"
	"github.com/meetd/meetd/proposal"
)

const (
	ProposalsKey = "proposals"
)

// ErrNotFound is returned for an unknown proposal id.
var ErrNotFound = errors.New("proposal not found")

type ProposalRepo interface {
	Create(p *proposal.Proposal) error
	Get(id string) (*proposal.Proposal, error)
	GetForEmail(email string, status *proposal.Status) ([]*proposal.Proposal, error)
	GetFromUser(userID string) ([]*proposal.Proposal, error)
	// UpdateStatus performs the guarded transition: the write happens
	// only if the stored status equals fromGuard. A false return with
	// nil error means the guard did not hold.
	UpdateStatus(id string, fromGuard, to proposal.Status) (bool, error)
	// UpdateStatusUnconditional overwrites the status regardless of
	// the stored value. Used by the decline path only.
	UpdateStatusUnconditional(id string, to proposal.Status) error
	// ExpirePendingOlderThan flips every pending proposal whose expiry
	// is behind now to expired and returns them. Idempotent.
	ExpirePendingOlderThan(now time.Time) ([]*proposal.Proposal, error)
}

// BaseProposalRepo keeps the whole proposal map JSON-encoded under one
// composite state key. The repo mutex is what makes status transitions
// linearizable per process: every read-modify-write runs under it.
type BaseProposalRepo struct {
	sync.Mutex
	state        state.State
	compositeKey string
}

func NewProposalRepo(s state.State, topic string) (*BaseProposalRepo, error) {
	repo := &BaseProposalRepo{
		state:        s,
		compositeKey: state.MakeCompositeKey(topic, ProposalsKey),
	}

	if err := repo.initJsonKey(); err != nil {
		return nil, fmt.Errorf("failed to init %s storage: %w", repo.compositeKey, err)
	}

	return repo, nil
}

func (r *BaseProposalRepo) initJsonKey() error {
	bz, err := r.state.Get(r.compositeKey)
	if err != nil {
		return err
	}
	if bz != nil {
		return nil
	}
	empty, err := json.Marshal(map[string]*proposal.Proposal{})
	if err != nil {
		return fmt.Errorf("failed to marshal storage structure: %w", err)
	}
	return r.state.Set(r.compositeKey, empty)
}

func (r *BaseProposalRepo) load() (map[string]*proposal.Proposal, error) {
	bz, err := r.state.Get(r.compositeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get proposals: %w", err)
	}
	proposals := map[string]*proposal.Proposal{}
	if bz != nil {
		if err := json.Unmarshal(bz, &proposals); err != nil {
			return nil, fmt.Errorf("failed to unmarshal proposals: %w", err)
		}
	}
	return proposals, nil
}

func (r *BaseProposalRepo) store(proposals map[string]*proposal.Proposal) error {
	bz, err := json.Marshal(proposals)
	if err != nil {
		return fmt.Errorf("failed to marshal proposals: %w", err)
	}
	if err := r.state.Set(r.compositeKey, bz); err != nil {
		return fmt.Errorf("failed to save proposals: %w", err)
	}
	return nil
}

func (r *BaseProposalRepo) Create(p *proposal.Proposal) error {
	r.Lock()
	defer r.Unlock()

	proposals, err := r.load()
	if err != nil {
		return err
	}

	if _, ok := proposals[p.ID]; ok {
		return fmt.Errorf("proposal %s already exists", p.ID)
	}

	proposals[p.ID] = p
	return r.store(proposals)
}

func (r *BaseProposalRepo) Get(id string) (*proposal.Proposal, error) {
	r.Lock()
	defer r.Unlock()

	proposals, err := r.load()
	if err != nil {
		return nil, err
	}

	p, ok := proposals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (r *BaseProposalRepo) GetForEmail(email string, status *proposal.Status) ([]*proposal.Proposal, error) {
	r.Lock()
	defer r.Unlock()

	proposals, err := r.load()
	if err != nil {
		return nil, err
	}

	var result []*proposal.Proposal
	for _, p := range proposals {
		if p.ToEmail != email {
			continue
		}
		if status != nil && p.Status != *status {
			continue
		}
		result = append(result, p)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SlotStart.Before(result[j].SlotStart)
	})
	return result, nil
}

func (r *BaseProposalRepo) GetFromUser(userID string) ([]*proposal.Proposal, error) {
	r.Lock()
	defer r.Unlock()

	proposals, err := r.load()
	if err != nil {
		return nil, err
	}

	var result []*proposal.Proposal
	for _, p := range proposals {
		if p.FromUserID == userID {
			result = append(result, p)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})
	return result, nil
}

func (r *BaseProposalRepo) UpdateStatus(id string, fromGuard, to proposal.Status) (bool, error) {
	r.Lock()
	defer r.Unlock()

	proposals, err := r.load()
	if err != nil {
		return false, err
	}

	p, ok := proposals[id]
	if !ok {
		return false, ErrNotFound
	}
	if p.Status != fromGuard {
		return false, nil
	}

	p.Status = to
	if err := r.store(proposals); err != nil {
		return false, err
	}
	return true, nil
}

func (r *BaseProposalRepo) UpdateStatusUnconditional(id string, to proposal.Status) error {
	r.Lock()
	defer r.Unlock()

	proposals, err := r.load()
	if err != nil {
		return err
	}

	p, ok := proposals[id]
	if !ok {
		return ErrNotFound
	}

	p.Status = to
	return r.store(proposals)
}

func (r *BaseProposalRepo) ExpirePendingOlderThan(now time.Time) ([]*proposal.Proposal, error) {
	r.Lock()
	defer r.Unlock()

	proposals, err := r.load()
	if err != nil {
		return nil, err
	}

	var expired []*proposal.Proposal
	for _, p := range proposals {
		if p.Status == proposal.StatusPending && p.ExpiresAt.Before(now) {
			p.Status = proposal.StatusExpired
			expired = append(expired, p)
		}
	}

	if len(expired) == 0 {
		return nil, nil
	}
	if err := r.store(proposals); err != nil {
		return nil, err
	}
	return expired, nil
}
