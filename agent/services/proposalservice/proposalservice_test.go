package proposalservice_test

import (
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meetd/meetd/agent/modules/keystore"
	"github.com/meetd/meetd/agent/modules/logger"
	"github.com/meetd/meetd/agent/modules/state"
	"github.com/meetd/meetd/agent/repositories/noncerepo"
	"github.com/meetd/meetd/agent/repositories/proposalrepo"
	"github.com/meetd/meetd/agent/repositories/userrepo"
	"github.com/meetd/meetd/agent/services/proposalservice"
	"github.com/meetd/meetd/agent/types"
	"github.com/meetd/meetd/calendar"
	"github.com/meetd/meetd/calendar/mocks"
	"github.com/meetd/meetd/crypto"
	"github.com/meetd/meetd/fsm"
	"github.com/meetd/meetd/proposal"
	"github.com/meetd/meetd/webhook"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	users     userrepo.UserRepo
	proposals proposalrepo.ProposalRepo
	nonces    noncerepo.NonceRepo
	keys      keystore.KeyStore
	svc       *proposalservice.BaseProposalService
}

func newTestEnv(t *testing.T, name string, calendars proposalservice.CalendarFactory) *testEnv {
	t.Helper()

	dbPath := "/tmp/meetd_test_svc_" + name
	keysPath := dbPath + "_keys"
	require.NoError(t, os.RemoveAll(dbPath))
	require.NoError(t, os.RemoveAll(keysPath))
	t.Cleanup(func() {
		os.RemoveAll(dbPath)
		os.RemoveAll(keysPath)
	})

	stg, err := state.NewLevelDBState(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { stg.Close() })

	keys, err := keystore.NewLevelDBKeyStore(keysPath)
	require.NoError(t, err)
	t.Cleanup(func() { keys.Close() })

	users, err := userrepo.NewUserRepo(stg, "test_topic")
	require.NoError(t, err)
	proposals, err := proposalrepo.NewProposalRepo(stg, "test_topic")
	require.NoError(t, err)
	nonces, err := noncerepo.NewNonceRepo(stg, "test_topic")
	require.NoError(t, err)

	log := logger.NewLogger("test")
	dispatcher := webhook.NewDispatcher(webhook.NewClient(), log)
	t.Cleanup(dispatcher.Close)

	svc := proposalservice.NewProposalService(
		proposals, nonces, users, keys, calendars, dispatcher, log, "http://localhost:8080")

	return &testEnv{
		users:     users,
		proposals: proposals,
		nonces:    nonces,
		keys:      keys,
		svc:       svc,
	}
}

func (e *testEnv) registerUser(t *testing.T, id, email string) *types.User {
	t.Helper()

	keyPair, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	require.NoError(t, e.keys.PutKeys(email, keyPair))

	user := &types.User{
		ID:         id,
		Email:      email,
		PublicKey:  keyPair.PublicKeyBase64(),
		Visibility: types.VisibilityBusyOnly,
		CreatedAt:  time.Now().Unix(),
	}
	require.NoError(t, e.users.Create(user))
	return user
}

func issueRequest() proposalservice.IssueRequest {
	return proposalservice.IssueRequest{
		ToEmail:         "bob@example.com",
		SlotStart:       time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Title:           "Coffee chat",
	}
}

func TestIssueSignsAndPersists(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "issue", nil)
	alice := env.registerUser(t, "user_alice", "alice@example.com")

	result, err := env.svc.Issue(context.Background(), alice, issueRequest())
	req.NoError(err)
	req.Contains(result.ProposalID, "prop_")
	req.Len(result.ProposalID, len("prop_")+12)
	req.Equal("http://localhost:8080/accept/"+result.ProposalID, result.AcceptLink)

	signed, err := proposal.DecodeEnvelope(result.SignedProposal)
	req.NoError(err)
	req.Equal("alice@example.com", signed.From)
	req.Equal(alice.PublicKey, signed.FromPubKey)

	ok, err := signed.Verify()
	req.NoError(err)
	req.True(ok)

	stored, err := env.proposals.Get(result.ProposalID)
	req.NoError(err)
	req.Equal(proposal.StatusPending, stored.Status)
	req.Equal(signed.Nonce, stored.Nonce)
	req.WithinDuration(time.Now().Add(proposalservice.DefaultExpiry), stored.ExpiresAt, time.Minute)
}

func TestReceiveChecksInOrder(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "receive_order", nil)
	alice := env.registerUser(t, "user_alice", "alice@example.com")
	bob := env.registerUser(t, "user_bob", "bob@example.com")

	issued, err := env.svc.Issue(context.Background(), alice, issueRequest())
	req.NoError(err)

	signed, err := proposal.DecodeEnvelope(issued.SignedProposal)
	req.NoError(err)

	// Not addressed to the caller.
	_, err = env.svc.Receive(context.Background(), alice, issued.SignedProposal, false)
	req.ErrorIs(err, proposalservice.ErrNotAddressee)

	// Tampering breaks the signature and must not burn the nonce.
	tampered := *signed
	tampered.Slot.DurationMinutes = 120
	tamperedEnvelope, err := tampered.Encode()
	req.NoError(err)

	_, err = env.svc.Receive(context.Background(), bob, tamperedEnvelope, false)
	req.ErrorIs(err, proposalservice.ErrBadSignature)

	used, err := env.nonces.IsUsed(signed.Nonce)
	req.NoError(err)
	req.False(used)

	// The untampered envelope still goes through.
	result, err := env.svc.Receive(context.Background(), bob, issued.SignedProposal, false)
	req.NoError(err)
	req.Equal(proposal.StatusPending, result.Status)

	// Replaying it does not.
	_, err = env.svc.Receive(context.Background(), bob, issued.SignedProposal, false)
	req.ErrorIs(err, noncerepo.ErrAlreadyUsed)
}

func TestReceiveExpiredLeavesNonceUnused(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "receive_expired", nil)
	bob := env.registerUser(t, "user_bob", "bob@example.com")

	keyPair, err := crypto.GenerateKeypair()
	req.NoError(err)

	signed := &proposal.SignedProposal{
		Version:    proposal.CurrentVersion,
		From:       "alice@example.com",
		FromPubKey: keyPair.PublicKeyBase64(),
		To:         "bob@example.com",
		Slot: proposal.Slot{
			Start:           time.Now().Add(time.Hour).UTC(),
			DurationMinutes: 30,
		},
		Nonce:     uuid.New().String(),
		ExpiresAt: time.Now().Add(-time.Hour).UTC(),
	}
	req.NoError(signed.Sign(keyPair))

	envelope, err := signed.Encode()
	req.NoError(err)

	_, err = env.svc.Receive(context.Background(), bob, envelope, false)
	req.ErrorIs(err, proposalservice.ErrProposalExpired)

	used, err := env.nonces.IsUsed(signed.Nonce)
	req.NoError(err)
	req.False(used)
}

func TestAcceptTransitionsAndGuards(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "accept", nil)
	alice := env.registerUser(t, "user_alice", "alice@example.com")
	bob := env.registerUser(t, "user_bob", "bob@example.com")

	issued, err := env.svc.Issue(context.Background(), alice, issueRequest())
	req.NoError(err)

	// The sender cannot accept on the recipient's behalf.
	_, err = env.svc.Accept(context.Background(), alice, issued.ProposalID)
	req.ErrorIs(err, proposalservice.ErrNotAuthorized)

	result, err := env.svc.Accept(context.Background(), bob, issued.ProposalID)
	req.NoError(err)
	req.Equal(proposal.StatusAccepted, result.Status)
	req.NotNil(result.Event)
	req.Equal("Coffee chat", result.Event.Title)

	// A second accept names the actual current state.
	_, err = env.svc.Accept(context.Background(), bob, issued.ProposalID)
	var stateErr *fsm.InvalidStateError
	req.ErrorAs(err, &stateErr)
	req.Equal(fsm.State(proposal.StatusAccepted), stateErr.Current)
}

func TestAcceptConcurrentSingleWinner(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "accept_concurrent", nil)
	alice := env.registerUser(t, "user_alice", "alice@example.com")
	bob := env.registerUser(t, "user_bob", "bob@example.com")

	issued, err := env.svc.Issue(context.Background(), alice, issueRequest())
	req.NoError(err)

	const callers = 8
	var wg sync.WaitGroup
	var won int32

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.Accept(context.Background(), bob, issued.ProposalID); err == nil {
				atomic.AddInt32(&won, 1)
			}
		}()
	}
	wg.Wait()

	req.Equal(int32(1), won)

	stored, err := env.proposals.Get(issued.ProposalID)
	req.NoError(err)
	req.Equal(proposal.StatusAccepted, stored.Status)
}

func TestDeclineIsUnconditional(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "decline", nil)
	alice := env.registerUser(t, "user_alice", "alice@example.com")
	bob := env.registerUser(t, "user_bob", "bob@example.com")

	issued, err := env.svc.Issue(context.Background(), alice, issueRequest())
	req.NoError(err)

	_, err = env.svc.Accept(context.Background(), bob, issued.ProposalID)
	req.NoError(err)

	// Accept is guarded, decline is not: it lands even on an already
	// accepted proposal.
	req.NoError(env.svc.Decline(context.Background(), bob, issued.ProposalID))

	stored, err := env.proposals.Get(issued.ProposalID)
	req.NoError(err)
	req.Equal(proposal.StatusDeclined, stored.Status)
}

func TestAcceptExpiredProposal(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "accept_expired", nil)
	alice := env.registerUser(t, "user_alice", "alice@example.com")
	bob := env.registerUser(t, "user_bob", "bob@example.com")

	issued, err := env.svc.Issue(context.Background(), alice, issueRequest())
	req.NoError(err)

	// Sweep well past the expiry window, then try to accept.
	count, err := env.svc.ExpireSweep(time.Now().Add(8 * 24 * time.Hour))
	req.NoError(err)
	req.Equal(1, count)

	_, err = env.svc.Accept(context.Background(), bob, issued.ProposalID)
	var stateErr *fsm.InvalidStateError
	req.ErrorAs(err, &stateErr)
	req.Equal(fsm.State(proposal.StatusExpired), stateErr.Current)
}

func TestExpireSweepIsIdempotent(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "expire_sweep", nil)
	alice := env.registerUser(t, "user_alice", "alice@example.com")

	_, err := env.svc.Issue(context.Background(), alice, issueRequest())
	req.NoError(err)

	future := time.Now().Add(8 * 24 * time.Hour)

	count, err := env.svc.ExpireSweep(future)
	req.NoError(err)
	req.Equal(1, count)

	count, err = env.svc.ExpireSweep(future)
	req.NoError(err)
	req.Zero(count)
}

func TestVerifyIsSoft(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "verify", nil)
	alice := env.registerUser(t, "user_alice", "alice@example.com")

	issued, err := env.svc.Issue(context.Background(), alice, issueRequest())
	req.NoError(err)

	result := env.svc.Verify(issued.SignedProposal)
	req.True(result.Valid)
	req.NotNil(result.Proposal)

	signed, err := proposal.DecodeEnvelope(issued.SignedProposal)
	req.NoError(err)
	signed.Title = "Changed"
	tampered, err := signed.Encode()
	req.NoError(err)

	result = env.svc.Verify(tampered)
	req.False(result.Valid)
	req.Equal("invalid signature", result.Reason)

	result = env.svc.Verify("not base64 json")
	req.False(result.Valid)
	req.NotEmpty(result.Reason)
}

func TestInboxAndSent(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "inbox", nil)
	alice := env.registerUser(t, "user_alice", "alice@example.com")
	bob := env.registerUser(t, "user_bob", "bob@example.com")

	issued, err := env.svc.Issue(context.Background(), alice, issueRequest())
	req.NoError(err)

	inbox, err := env.svc.Inbox(bob, nil)
	req.NoError(err)
	req.Len(inbox, 1)
	req.Equal(issued.ProposalID, inbox[0].ID)
	req.Equal("alice@example.com", inbox[0].From)

	accepted := proposal.StatusAccepted
	inbox, err = env.svc.Inbox(bob, &accepted)
	req.NoError(err)
	req.Empty(inbox)

	sent, err := env.svc.Sent(alice)
	req.NoError(err)
	req.Len(sent, 1)
	req.Equal(issued.ProposalID, sent[0].ID)

	// A third party cannot fetch the proposal directly.
	carol := env.registerUser(t, "user_carol", "carol@example.com")
	_, err = env.svc.Get(carol, issued.ProposalID)
	req.ErrorIs(err, proposalservice.ErrNotAuthorized)

	got, err := env.svc.Get(bob, issued.ProposalID)
	req.NoError(err)
	req.Equal(issued.ProposalID, got.ID)
}

func TestAcceptCreatesCalendarEvent(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().
		CreateEvent(gomock.Any(), "Coffee chat", "", gomock.Any(), gomock.Any(), "alice@example.com").
		Return(&calendar.CreatedEvent{ID: "evt_1", HTMLLink: "https://calendar.example/evt_1"}, nil)

	env := newTestEnv(t, "accept_calendar", func(refreshToken string) calendar.Provider {
		return provider
	})
	alice := env.registerUser(t, "user_alice", "alice@example.com")
	bob := env.registerUser(t, "user_bob", "bob@example.com")
	bob.GoogleRefreshToken = "refresh-token"

	issued, err := env.svc.Issue(context.Background(), alice, issueRequest())
	req.NoError(err)

	result, err := env.svc.Accept(context.Background(), bob, issued.ProposalID)
	req.NoError(err)
	req.Equal("https://calendar.example/evt_1", result.Event.Link)
}

func TestConcurrentAcceptsCreateOneCalendarEvent(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// Only the accept that wins the guarded transition may reach the
	// provider; the losers must not create duplicate events.
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().
		CreateEvent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&calendar.CreatedEvent{ID: "evt_1", HTMLLink: "https://calendar.example/evt_1"}, nil).
		Times(1)

	env := newTestEnv(t, "accept_concurrent_calendar", func(refreshToken string) calendar.Provider {
		return provider
	})
	alice := env.registerUser(t, "user_alice", "alice@example.com")
	bob := env.registerUser(t, "user_bob", "bob@example.com")
	bob.GoogleRefreshToken = "refresh-token"

	issued, err := env.svc.Issue(context.Background(), alice, issueRequest())
	req.NoError(err)

	const callers = 8
	var wg sync.WaitGroup
	var won int32

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.Accept(context.Background(), bob, issued.ProposalID); err == nil {
				atomic.AddInt32(&won, 1)
			}
		}()
	}
	wg.Wait()

	req.Equal(int32(1), won)
}

func TestAcceptSurvivesCalendarFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().
		CreateEvent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("provider down"))

	env := newTestEnv(t, "accept_calendar_fail", func(refreshToken string) calendar.Provider {
		return provider
	})
	alice := env.registerUser(t, "user_alice", "alice@example.com")
	bob := env.registerUser(t, "user_bob", "bob@example.com")
	bob.GoogleRefreshToken = "refresh-token"

	issued, err := env.svc.Issue(context.Background(), alice, issueRequest())
	req.NoError(err)

	result, err := env.svc.Accept(context.Background(), bob, issued.ProposalID)
	req.NoError(err)
	req.Equal(proposal.StatusAccepted, result.Status)
	req.Empty(result.Event.Link)
}

func collectEvents(t *testing.T) (*httptest.Server, chan webhook.Event) {
	t.Helper()

	events := make(chan webhook.Event, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := ioutil.ReadAll(r.Body)
		require.NoError(t, err)
		var event webhook.Event
		require.NoError(t, json.Unmarshal(body, &event))
		events <- event
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, events
}

func waitEvent(t *testing.T, events chan webhook.Event) webhook.Event {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for webhook event")
		return webhook.Event{}
	}
}

func TestLifecycleWebhooks(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "webhooks", nil)
	alice := env.registerUser(t, "user_alice", "alice@example.com")
	bob := env.registerUser(t, "user_bob", "bob@example.com")

	aliceServer, aliceEvents := collectEvents(t)
	bobServer, bobEvents := collectEvents(t)
	req.NoError(env.users.UpdateWebhook(alice.ID, aliceServer.URL, "alice-secret"))
	req.NoError(env.users.UpdateWebhook(bob.ID, bobServer.URL, "bob-secret"))

	issued, err := env.svc.Issue(context.Background(), alice, issueRequest())
	req.NoError(err)

	received := waitEvent(t, bobEvents)
	req.Equal(webhook.EventProposalReceived, received.Event)
	req.Equal(issued.ProposalID, received.Data.ProposalID)
	req.Equal("alice@example.com", received.Data.From)

	_, err = env.svc.Accept(context.Background(), bob, issued.ProposalID)
	req.NoError(err)

	accepted := waitEvent(t, aliceEvents)
	req.Equal(webhook.EventProposalAccepted, accepted.Event)
	req.Equal("bob@example.com", accepted.Data.From)
}

func TestAutoAcceptEmitsAcceptedOnly(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, "auto_accept", nil)
	alice := env.registerUser(t, "user_alice", "alice@example.com")
	bob := env.registerUser(t, "user_bob", "bob@example.com")

	aliceServer, aliceEvents := collectEvents(t)
	req.NoError(env.users.UpdateWebhook(alice.ID, aliceServer.URL, "alice-secret"))

	issued, err := env.svc.Issue(context.Background(), alice, issueRequest())
	req.NoError(err)

	result, err := env.svc.Receive(context.Background(), bob, issued.SignedProposal, true)
	req.NoError(err)
	req.Equal(proposal.StatusAccepted, result.Status)

	accepted := waitEvent(t, aliceEvents)
	req.Equal(webhook.EventProposalAccepted, accepted.Event)
	req.Equal(result.ProposalID, accepted.Data.ProposalID)

	// The recipient's own action produces no proposal.received.
	select {
	case event := <-aliceEvents:
		t.Fatalf("unexpected extra event %s", event.Event)
	case <-time.After(200 * time.Millisecond):
	}
}
