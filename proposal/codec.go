package proposal

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/meetd/meetd/crypto"
)

// CurrentVersion is the payload format emitted for new proposals.
const CurrentVersion uint32 = 1

// payloadTimeFormat pins the RFC3339 rendering used inside the signing
// payload: UTC, second precision. Both sides must agree on it or
// signatures will not survive a decode/re-encode round trip.
const payloadTimeFormat = time.RFC3339

// SigningPayload builds the canonical string the signature covers.
// The construction is dispatched on Version so that old envelopes stay
// verifiable against their own rule; changing the field set requires a
// new version branch, never an edit to an existing one.
func (sp *SignedProposal) SigningPayload() (string, error) {
	switch sp.Version {
	case 1:
		return strings.Join([]string{
			fmt.Sprintf("%d", sp.Version),
			sp.From,
			sp.To,
			sp.Slot.Start.UTC().Format(payloadTimeFormat),
			fmt.Sprintf("%d", sp.Slot.DurationMinutes),
			sp.Title,
			sp.Nonce,
			sp.ExpiresAt.UTC().Format(payloadTimeFormat),
		}, "|"), nil
	}
	return "", fmt.Errorf("unsupported signed proposal version %d", sp.Version)
}

// Sign computes the payload and writes the signature field. No other
// field is touched.
func (sp *SignedProposal) Sign(keypair *crypto.Keypair) error {
	payload, err := sp.SigningPayload()
	if err != nil {
		return fmt.Errorf("failed to build signing payload: %w", err)
	}
	sp.Signature = keypair.Sign(payload)
	return nil
}

// VerifyWith recomputes the payload from the proposal body and checks
// the signature against pub. The stored signature field participates
// only as the signature, never as signed content.
func (sp *SignedProposal) VerifyWith(pub *crypto.PublicKey) (bool, error) {
	payload, err := sp.SigningPayload()
	if err != nil {
		return false, fmt.Errorf("failed to build signing payload: %w", err)
	}
	return pub.Verify(payload, sp.Signature)
}

// Verify resolves the embedded sender public key and verifies.
func (sp *SignedProposal) Verify() (bool, error) {
	pub, err := crypto.PublicKeyFromBase64(sp.FromPubKey)
	if err != nil {
		return false, err
	}
	return sp.VerifyWith(pub)
}

// Encode renders the envelope as base64(JSON) for out-of-band handoff.
func (sp *SignedProposal) Encode() (string, error) {
	data, err := json.Marshal(sp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal signed proposal: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeEnvelope parses a base64(JSON) signed proposal envelope.
func DecodeEnvelope(envelope string) (*SignedProposal, error) {
	data, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to decode envelope base64: %w", err)
	}
	var sp SignedProposal
	if err := json.Unmarshal(data, &sp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signed proposal: %w", err)
	}
	return &sp, nil
}
