package userservice

import (
	"errors"
	"fmt"
	"time"

	"github.com/meetd/meetd/agent/modules/keystore"
	"github.com/meetd/meetd/agent/repositories/userrepo"
	"github.com/meetd/meetd/agent/types"
	"github.com/meetd/meetd/crypto"

	"github.com/google/uuid"
)

type RegisterRequest struct {
	Email              string
	Visibility         string
	GoogleRefreshToken string
}

type UserService interface {
	// Register creates the identity: signing keypair, API key, user
	// record. The plaintext API key is returned exactly once.
	// Re-registering an existing email rotates the API key and refresh
	// token instead, the recovery path for a lost key; signing keys and
	// webhook state are untouched. Webhook delivery is configured
	// separately via RegisterWebhook, which mints the signing secret.
	Register(req RegisterRequest) (*types.User, string, error)
	GetByEmail(email string) (*types.User, error)
	// RegisterWebhook stores the delivery URL and mints a fresh signing
	// secret, returned exactly once.
	RegisterWebhook(user *types.User, url string) (string, error)
	RemoveWebhook(user *types.User) error
	SetVisibility(user *types.User, visibility string) error
}

type BaseUserService struct {
	users userrepo.UserRepo
	keys  keystore.KeyStore
}

func NewUserService(users userrepo.UserRepo, keys keystore.KeyStore) *BaseUserService {
	return &BaseUserService{users: users, keys: keys}
}

func (s *BaseUserService) Register(req RegisterRequest) (*types.User, string, error) {
	existing, err := s.users.GetByEmail(req.Email)
	if err == nil {
		return s.rotateCredentials(existing, req.GoogleRefreshToken)
	}
	if !errors.Is(err, userrepo.ErrNotFound) {
		return nil, "", err
	}

	visibility := types.VisibilityBusyOnly
	if req.Visibility != "" {
		parsed, err := types.ParseVisibility(req.Visibility)
		if err != nil {
			return nil, "", err
		}
		visibility = parsed
	}

	keyPair, err := crypto.GenerateKeypair()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate keypair: %w", err)
	}
	if err := s.keys.PutKeys(req.Email, keyPair); err != nil {
		return nil, "", fmt.Errorf("failed to store keypair: %w", err)
	}

	apiKey, err := crypto.GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate api key: %w", err)
	}
	hash, err := crypto.HashAPIKey(apiKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash api key: %w", err)
	}

	user := &types.User{
		ID:                 "user_" + uuid.New().String(),
		Email:              req.Email,
		GoogleRefreshToken: req.GoogleRefreshToken,
		PublicKey:          keyPair.PublicKeyBase64(),
		APIKeyHash:         hash,
		Visibility:         visibility,
		CreatedAt:          time.Now().Unix(),
	}
	if err := s.users.Create(user); err != nil {
		return nil, "", err
	}

	return user, apiKey, nil
}

func (s *BaseUserService) rotateCredentials(user *types.User, refreshToken string) (*types.User, string, error) {
	apiKey, err := crypto.GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate api key: %w", err)
	}
	hash, err := crypto.HashAPIKey(apiKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash api key: %w", err)
	}
	if err := s.users.UpdateAPIKeyHash(user.ID, hash); err != nil {
		return nil, "", err
	}
	user.APIKeyHash = hash

	if refreshToken != "" {
		if err := s.users.UpdateGoogleRefreshToken(user.ID, refreshToken); err != nil {
			return nil, "", err
		}
		user.GoogleRefreshToken = refreshToken
	}

	return user, apiKey, nil
}

func (s *BaseUserService) GetByEmail(email string) (*types.User, error) {
	return s.users.GetByEmail(email)
}

func (s *BaseUserService) RegisterWebhook(user *types.User, url string) (string, error) {
	secret, err := crypto.GenerateWebhookSecret()
	if err != nil {
		return "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	if err := s.users.UpdateWebhook(user.ID, url, secret); err != nil {
		return "", err
	}
	return secret, nil
}

func (s *BaseUserService) RemoveWebhook(user *types.User) error {
	return s.users.UpdateWebhook(user.ID, "", "")
}

func (s *BaseUserService) SetVisibility(user *types.User, visibility string) error {
	parsed, err := types.ParseVisibility(visibility)
	if err != nil {
		return err
	}
	return s.users.UpdateVisibility(user.ID, parsed)
}
