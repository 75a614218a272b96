package userrepo_test

import (
	"os"
	"testing"
	"time"

	"github.com/meetd/meetd/agent/modules/state"
	"github.com/meetd/meetd/agent/repositories/userrepo"
	"github.com/meetd/meetd/agent/types"
	"github.com/meetd/meetd/crypto"

	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T, name string) userrepo.UserRepo {
	t.Helper()

	dbPath := "/tmp/meetd_test_" + name
	require.NoError(t, os.RemoveAll(dbPath))
	t.Cleanup(func() { os.RemoveAll(dbPath) })

	stg, err := state.NewLevelDBState(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { stg.Close() })

	repo, err := userrepo.NewUserRepo(stg, "test_topic")
	require.NoError(t, err)
	return repo
}

func newUser(id, email string) *types.User {
	return &types.User{
		ID:         id,
		Email:      email,
		PublicKey:  "pubkey",
		Visibility: types.VisibilityBusyOnly,
		CreatedAt:  time.Now().Unix(),
	}
}

func TestCreateAndLookup(t *testing.T) {
	req := require.New(t)
	repo := newTestRepo(t, "user_create")

	alice := newUser("user_alice", "alice@example.com")
	alice.GoogleRefreshToken = "refresh-token"
	req.NoError(repo.Create(alice))

	got, err := repo.Get("user_alice")
	req.NoError(err)
	req.Equal("alice@example.com", got.Email)
	// Hidden fields survive the round trip even though the public JSON
	// tags drop them.
	req.Equal("refresh-token", got.GoogleRefreshToken)

	got, err = repo.GetByEmail("alice@example.com")
	req.NoError(err)
	req.Equal("user_alice", got.ID)

	_, err = repo.Get("user_unknown")
	req.ErrorIs(err, userrepo.ErrNotFound)
	_, err = repo.GetByEmail("nobody@example.com")
	req.ErrorIs(err, userrepo.ErrNotFound)

	// Duplicate ids and emails are rejected.
	req.Error(repo.Create(newUser("user_alice", "other@example.com")))
	req.Error(repo.Create(newUser("user_other", "alice@example.com")))
}

func TestFindByAPIKey(t *testing.T) {
	req := require.New(t)
	repo := newTestRepo(t, "user_api_key")

	apiKey, err := crypto.GenerateAPIKey()
	req.NoError(err)
	hash, err := crypto.HashAPIKey(apiKey)
	req.NoError(err)

	alice := newUser("user_alice", "alice@example.com")
	alice.APIKeyHash = hash
	req.NoError(repo.Create(alice))

	got, err := repo.FindByAPIKey(apiKey)
	req.NoError(err)
	req.NotNil(got)
	req.Equal("user_alice", got.ID)

	// An unknown key is not an error, just no match.
	got, err = repo.FindByAPIKey("mdk_bogus")
	req.NoError(err)
	req.Nil(got)
}

func TestUpdates(t *testing.T) {
	req := require.New(t)
	repo := newTestRepo(t, "user_updates")

	req.NoError(repo.Create(newUser("user_alice", "alice@example.com")))

	req.NoError(repo.UpdateWebhook("user_alice", "https://hooks.example/x", "secret"))
	got, err := repo.Get("user_alice")
	req.NoError(err)
	req.Equal("https://hooks.example/x", got.WebhookURL)
	req.Equal("secret", got.WebhookSecret)

	// Clearing the webhook clears the secret too.
	req.NoError(repo.UpdateWebhook("user_alice", "", ""))
	got, err = repo.Get("user_alice")
	req.NoError(err)
	req.Empty(got.WebhookURL)
	req.Empty(got.WebhookSecret)

	req.NoError(repo.UpdateVisibility("user_alice", types.VisibilityFull))
	got, err = repo.Get("user_alice")
	req.NoError(err)
	req.Equal(types.VisibilityFull, got.Visibility)

	req.ErrorIs(repo.UpdateVisibility("user_unknown", types.VisibilityFull), userrepo.ErrNotFound)
}
