package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrInvalidKeyMaterial is returned when key or signature bytes are
// structurally broken (bad base64, wrong length). A semantically valid
// signature that simply does not match reports false, not this error.
var ErrInvalidKeyMaterial = errors.New("invalid key material")

const (
	PublicKeySize  = ed25519.PublicKeySize
	SignatureSize  = ed25519.SignatureSize
	privateSeedLen = ed25519.SeedSize
)

// Keypair holds an Ed25519 signing key. The private part never leaves
// the process except through PrivateKeyBase64 for keystore persistence.
type Keypair struct {
	priv ed25519.PrivateKey
}

func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromPrivateKeyBase64 restores a keypair from a base64-encoded
// 32-byte private seed.
func KeypairFromPrivateKeyBase64(privateKey string) (*Keypair, error) {
	seed, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 private key: %v", ErrInvalidKeyMaterial, err)
	}
	if len(seed) != privateSeedLen {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d",
			ErrInvalidKeyMaterial, privateSeedLen, len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k *Keypair) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(k.priv.Public().(ed25519.PublicKey))
}

// PrivateKeyBase64 returns the base64 private seed for encrypted-at-rest
// storage by the keystore.
func (k *Keypair) PrivateKeyBase64() string {
	return base64.StdEncoding.EncodeToString(k.priv.Seed())
}

// Sign returns the base64 Ed25519 signature over message.
func (k *Keypair) Sign(message string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(k.priv, []byte(message)))
}

// PublicKey verifies signatures produced by a Keypair.
type PublicKey struct {
	key ed25519.PublicKey
}

// PublicKeyFromBase64 parses a base64-encoded 32-byte Ed25519 public key.
func PublicKeyFromBase64(publicKey string) (*PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 public key: %v", ErrInvalidKeyMaterial, err)
	}
	if len(raw) != PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d",
			ErrInvalidKeyMaterial, PublicKeySize, len(raw))
	}
	return &PublicKey{key: ed25519.PublicKey(raw)}, nil
}

func (p *PublicKey) Base64() string {
	return base64.StdEncoding.EncodeToString(p.key)
}

// Verify checks a base64 signature over message. It returns false for a
// well-formed signature that does not match and ErrInvalidKeyMaterial for
// signature bytes of the wrong shape.
func (p *PublicKey) Verify(message, signatureBase64 string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil {
		return false, fmt.Errorf("%w: bad base64 signature: %v", ErrInvalidKeyMaterial, err)
	}
	if len(sig) != SignatureSize {
		return false, fmt.Errorf("%w: signature must be %d bytes, got %d",
			ErrInvalidKeyMaterial, SignatureSize, len(sig))
	}
	return ed25519.Verify(p.key, []byte(message), sig), nil
}
