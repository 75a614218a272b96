package proposal_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/meetd/meetd/crypto"
	"github.com/meetd/meetd/proposal"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestProposal(t *testing.T) (*proposal.SignedProposal, *crypto.Keypair) {
	t.Helper()

	keypair, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	start := time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC)
	return &proposal.SignedProposal{
		Version:    proposal.CurrentVersion,
		From:       "alice@example.com",
		FromPubKey: keypair.PublicKeyBase64(),
		To:         "bob@example.com",
		Slot: proposal.Slot{
			Start:           start,
			DurationMinutes: 30,
		},
		Title:       "Coffee chat",
		Description: "Catching up",
		Nonce:       uuid.New().String(),
		ExpiresAt:   start.Add(7 * 24 * time.Hour),
	}, keypair
}

func TestSigningPayloadLayout(t *testing.T) {
	req := require.New(t)

	sp, _ := newTestProposal(t)
	payload, err := sp.SigningPayload()
	req.NoError(err)

	expected := fmt.Sprintf("1|alice@example.com|bob@example.com|2026-09-03T10:00:00Z|30|Coffee chat|%s|2026-09-10T10:00:00Z", sp.Nonce)
	req.Equal(expected, payload)
}

func TestSigningPayloadUnknownVersion(t *testing.T) {
	sp, _ := newTestProposal(t)
	sp.Version = 99

	_, err := sp.SigningPayload()
	require.Error(t, err)
}

func TestSignAndVerifyProposal(t *testing.T) {
	req := require.New(t)

	sp, keypair := newTestProposal(t)
	req.NoError(sp.Sign(keypair))
	req.NotEmpty(sp.Signature)

	ok, err := sp.Verify()
	req.NoError(err)
	req.True(ok)

	// A different keypair must not verify it.
	other, err := crypto.GenerateKeypair()
	req.NoError(err)
	pub, err := crypto.PublicKeyFromBase64(other.PublicKeyBase64())
	req.NoError(err)

	ok, err = sp.VerifyWith(pub)
	req.NoError(err)
	req.False(ok)
}

func TestMutatingSignedFieldsInvalidatesSignature(t *testing.T) {
	mutations := map[string]func(*proposal.SignedProposal){
		"from":     func(sp *proposal.SignedProposal) { sp.From = "mallory@example.com" },
		"to":       func(sp *proposal.SignedProposal) { sp.To = "mallory@example.com" },
		"start":    func(sp *proposal.SignedProposal) { sp.Slot.Start = sp.Slot.Start.Add(time.Hour) },
		"duration": func(sp *proposal.SignedProposal) { sp.Slot.DurationMinutes = 60 },
		"title":    func(sp *proposal.SignedProposal) { sp.Title = "Totally different" },
		"nonce":    func(sp *proposal.SignedProposal) { sp.Nonce = uuid.New().String() },
		"expires":  func(sp *proposal.SignedProposal) { sp.ExpiresAt = sp.ExpiresAt.Add(time.Hour) },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)

			sp, keypair := newTestProposal(t)
			req.NoError(sp.Sign(keypair))

			mutate(sp)

			ok, err := sp.Verify()
			req.NoError(err)
			req.False(ok)
		})
	}
}

// Description is excluded from the signing payload, so editing it does
// not invalidate the signature. That is a documented protocol property.
func TestDescriptionNotIntegrityProtected(t *testing.T) {
	req := require.New(t)

	sp, keypair := newTestProposal(t)
	req.NoError(sp.Sign(keypair))

	sp.Description = "edited in transit"

	ok, err := sp.Verify()
	req.NoError(err)
	req.True(ok)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	req := require.New(t)

	sp, keypair := newTestProposal(t)
	req.NoError(sp.Sign(keypair))

	envelope, err := sp.Encode()
	req.NoError(err)

	decoded, err := proposal.DecodeEnvelope(envelope)
	req.NoError(err)
	req.Equal(sp.From, decoded.From)
	req.Equal(sp.Nonce, decoded.Nonce)
	req.True(sp.Slot.Start.Equal(decoded.Slot.Start))
	req.Equal(sp.Signature, decoded.Signature)

	ok, err := decoded.Verify()
	req.NoError(err)
	req.True(ok)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := proposal.DecodeEnvelope("@@@not-base64@@@")
	require.Error(t, err)

	_, err = proposal.DecodeEnvelope("bm90LWpzb24=")
	require.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	req := require.New(t)

	for _, s := range []string{"pending", "accepted", "declined", "expired"} {
		parsed, err := proposal.ParseStatus(s)
		req.NoError(err)
		req.Equal(s, parsed.String())
	}

	_, err := proposal.ParseStatus("cancelled")
	req.Error(err)

	req.False(proposal.StatusPending.Terminal())
	req.True(proposal.StatusAccepted.Terminal())
	req.True(proposal.StatusDeclined.Terminal())
	req.True(proposal.StatusExpired.Terminal())
}
