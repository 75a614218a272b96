package userrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/meetd/meetd/agent/modules/state"
	"github.com/meetd/meetd/agent/types"
	"github.com/meetd/meetd/crypto"
)

const (
	UsersKey = "users"
)

var ErrNotFound = errors.New("user not found")

type UserRepo interface {
	Create(user *types.User) error
	Get(id string) (*types.User, error)
	GetByEmail(email string) (*types.User, error)
	// FindByAPIKey resolves a bearer token to its user by checking the
	// stored bcrypt hashes. Nil without error when nothing matches.
	FindByAPIKey(apiKey string) (*types.User, error)
	UpdateWebhook(userID, url, secret string) error
	UpdateVisibility(userID string, visibility types.Visibility) error
	UpdateAPIKeyHash(userID, hash string) error
	UpdateGoogleRefreshToken(userID, refreshToken string) error
}

type BaseUserRepo struct {
	sync.Mutex
	state        state.State
	compositeKey string
}

func NewUserRepo(s state.State, topic string) (*BaseUserRepo, error) {
	repo := &BaseUserRepo{
		state:        s,
		compositeKey: state.MakeCompositeKey(topic, UsersKey),
	}

	if err := repo.initJsonKey(); err != nil {
		return nil, fmt.Errorf("failed to init %s storage: %w", repo.compositeKey, err)
	}

	return repo, nil
}

func (r *BaseUserRepo) initJsonKey() error {
	bz, err := r.state.Get(r.compositeKey)
	if err != nil {
		return err
	}
	if bz != nil {
		return nil
	}
	empty, err := json.Marshal(map[string]*storedUser{})
	if err != nil {
		return fmt.Errorf("failed to marshal storage structure: %w", err)
	}
	return r.state.Set(r.compositeKey, empty)
}

// storedUser carries the fields the public JSON tags of types.User
// hide from API responses.
type storedUser struct {
	ID                 string           `json:"id"`
	Email              string           `json:"email"`
	GoogleRefreshToken string           `json:"google_refresh_token,omitempty"`
	PublicKey          string           `json:"public_key"`
	APIKeyHash         string           `json:"api_key_hash"`
	Visibility         types.Visibility `json:"visibility"`
	WebhookURL         string           `json:"webhook_url,omitempty"`
	WebhookSecret      string           `json:"webhook_secret,omitempty"`
	CreatedAt          int64            `json:"created_at"`
}

func toStored(u *types.User) *storedUser {
	return &storedUser{
		ID:                 u.ID,
		Email:              u.Email,
		GoogleRefreshToken: u.GoogleRefreshToken,
		PublicKey:          u.PublicKey,
		APIKeyHash:         u.APIKeyHash,
		Visibility:         u.Visibility,
		WebhookURL:         u.WebhookURL,
		WebhookSecret:      u.WebhookSecret,
		CreatedAt:          u.CreatedAt,
	}
}

func fromStored(s *storedUser) *types.User {
	return &types.User{
		ID:                 s.ID,
		Email:              s.Email,
		GoogleRefreshToken: s.GoogleRefreshToken,
		PublicKey:          s.PublicKey,
		APIKeyHash:         s.APIKeyHash,
		Visibility:         s.Visibility,
		WebhookURL:         s.WebhookURL,
		WebhookSecret:      s.WebhookSecret,
		CreatedAt:          s.CreatedAt,
	}
}

func (r *BaseUserRepo) load() (map[string]*storedUser, error) {
	bz, err := r.state.Get(r.compositeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	users := map[string]*storedUser{}
	if bz != nil {
		if err := json.Unmarshal(bz, &users); err != nil {
			return nil, fmt.Errorf("failed to unmarshal users: %w", err)
		}
	}
	return users, nil
}

func (r *BaseUserRepo) store(users map[string]*storedUser) error {
	bz, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("failed to marshal users: %w", err)
	}
	if err := r.state.Set(r.compositeKey, bz); err != nil {
		return fmt.Errorf("failed to save users: %w", err)
	}
	return nil
}

func (r *BaseUserRepo) Create(user *types.User) error {
	r.Lock()
	defer r.Unlock()

	users, err := r.load()
	if err != nil {
		return err
	}

	if _, ok := users[user.ID]; ok {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	for _, u := range users {
		if u.Email == user.Email {
			return fmt.Errorf("user with email %s already exists", user.Email)
		}
	}

	users[user.ID] = toStored(user)
	return r.store(users)
}

func (r *BaseUserRepo) Get(id string) (*types.User, error) {
	r.Lock()
	defer r.Unlock()

	users, err := r.load()
	if err != nil {
		return nil, err
	}

	u, ok := users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return fromStored(u), nil
}

func (r *BaseUserRepo) GetByEmail(email string) (*types.User, error) {
	r.Lock()
	defer r.Unlock()

	users, err := r.load()
	if err != nil {
		return nil, err
	}

	for _, u := range users {
		if u.Email == email {
			return fromStored(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *BaseUserRepo) FindByAPIKey(apiKey string) (*types.User, error) {
	r.Lock()
	defer r.Unlock()

	users, err := r.load()
	if err != nil {
		return nil, err
	}

	for _, u := range users {
		if crypto.CheckAPIKey(apiKey, u.APIKeyHash) {
			return fromStored(u), nil
		}
	}
	return nil, nil
}

func (r *BaseUserRepo) UpdateWebhook(userID, url, secret string) error {
	return r.update(userID, func(u *storedUser) {
		u.WebhookURL = url
		u.WebhookSecret = secret
	})
}

func (r *BaseUserRepo) UpdateVisibility(userID string, visibility types.Visibility) error {
	return r.update(userID, func(u *storedUser) {
		u.Visibility = visibility
	})
}

func (r *BaseUserRepo) UpdateAPIKeyHash(userID, hash string) error {
	return r.update(userID, func(u *storedUser) {
		u.APIKeyHash = hash
	})
}

func (r *BaseUserRepo) UpdateGoogleRefreshToken(userID, refreshToken string) error {
	return r.update(userID, func(u *storedUser) {
		u.GoogleRefreshToken = refreshToken
	})
}

func (r *BaseUserRepo) update(userID string, mutate func(*storedUser)) error {
	r.Lock()
	defer r.Unlock()

	users, err := r.load()
	if err != nil {
		return err
	}

	u, ok := users[userID]
	if !ok {
		return ErrNotFound
	}

	mutate(u)
	return r.store(users)
}
