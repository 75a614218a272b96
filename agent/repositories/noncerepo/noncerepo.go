package noncerepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meetd/meetd/agent/modules/state"
)

const (
	NoncesKey = "nonces"

	// RetentionWindow is how long a used nonce must stay recorded.
	// Purging earlier would reopen the replay window for in-flight
	// envelopes, so the sweep never touches younger entries.
	RetentionWindow = 24 * time.Hour
)

// ErrAlreadyUsed signals a replayed nonce, distinct from storage
// failures so callers can report "replay attack?" rather than an
// opaque error.
var ErrAlreadyUsed = errors.New("nonce already used")

type NonceRepo interface {
	IsUsed(nonce string) (bool, error)
	// MarkUsed is the atomic check-absence-then-insert gate. Exactly
	// one of two concurrent calls with the same nonce succeeds; the
	// other gets ErrAlreadyUsed.
	MarkUsed(nonce string) error
	// CleanupOlderThan drops entries recorded before now minus the
	// retention window and returns how many were dropped.
	CleanupOlderThan(now time.Time) (int, error)
}

// BaseNonceRepo keeps nonce -> used-at-unix under one composite key.
// The repo mutex makes MarkUsed a single conditional insert; a
// relational backend would use a uniqueness constraint instead.
type BaseNonceRepo struct {
	sync.Mutex
	state        state.State
	compositeKey string
}

func NewNonceRepo(s state.State, topic string) (*BaseNonceRepo, error) {
	repo := &BaseNonceRepo{
		state:        s,
		compositeKey: state.MakeCompositeKey(topic, NoncesKey),
	}

	if err := repo.initJsonKey(); err != nil {
		return nil, fmt.Errorf("failed to init %s storage: %w", repo.compositeKey, err)
	}

	return repo, nil
}

func (r *BaseNonceRepo) initJsonKey() error {
	bz, err := r.state.Get(r.compositeKey)
	if err != nil {
		return err
	}
	if bz != nil {
		return nil
	}
	empty, err := json.Marshal(map[string]int64{})
	if err != nil {
		return fmt.Errorf("failed to marshal storage structure: %w", err)
	}
	return r.state.Set(r.compositeKey, empty)
}

func (r *BaseNonceRepo) load() (map[string]int64, error) {
	bz, err := r.state.Get(r.compositeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonces: %w", err)
	}
	nonces := map[string]int64{}
	if bz != nil {
		if err := json.Unmarshal(bz, &nonces); err != nil {
			return nil, fmt.Errorf("failed to unmarshal nonces: %w", err)
		}
	}
	return nonces, nil
}

func (r *BaseNonceRepo) store(nonces map[string]int64) error {
	bz, err := json.Marshal(nonces)
	if err != nil {
		return fmt.Errorf("failed to marshal nonces: %w", err)
	}
	if err := r.state.Set(r.compositeKey, bz); err != nil {
		return fmt.Errorf("failed to save nonces: %w", err)
	}
	return nil
}

func (r *BaseNonceRepo) IsUsed(nonce string) (bool, error) {
	r.Lock()
	defer r.Unlock()

	nonces, err := r.load()
	if err != nil {
		return false, err
	}
	_, used := nonces[nonce]
	return used, nil
}

func (r *BaseNonceRepo) MarkUsed(nonce string) error {
	r.Lock()
	defer r.Unlock()

	nonces, err := r.load()
	if err != nil {
		return err
	}

	if _, used := nonces[nonce]; used {
		return ErrAlreadyUsed
	}

	nonces[nonce] = time.Now().Unix()
	return r.store(nonces)
}

func (r *BaseNonceRepo) CleanupOlderThan(now time.Time) (int, error) {
	r.Lock()
	defer r.Unlock()

	nonces, err := r.load()
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-RetentionWindow).Unix()
	count := 0
	for nonce, usedAt := range nonces {
		if usedAt < cutoff {
			delete(nonces, nonce)
			count++
		}
	}

	if count == 0 {
		return 0, nil
	}
	if err := r.store(nonces); err != nil {
		return 0, err
	}
	return count, nil
}
