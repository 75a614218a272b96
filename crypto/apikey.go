package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	apiKeyPrefix       = "mdk_"
	apiKeyBytes        = 24
	webhookSecretBytes = 32

	bcryptCost = 10
)

// GenerateAPIKey returns a fresh bearer token of the form "mdk_<random>".
func GenerateAPIKey() (string, error) {
	raw := make([]byte, apiKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	encoded = strings.NewReplacer("+", "", "/", "", "=", "").Replace(encoded)
	return apiKeyPrefix + encoded, nil
}

// GenerateWebhookSecret returns a hex-encoded 32-byte HMAC secret.
func GenerateWebhookSecret() (string, error) {
	raw := make([]byte, webhookSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// HashAPIKey hashes an API key for storage. Only the hash is persisted.
func HashAPIKey(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}
	return string(hash), nil
}

// CheckAPIKey reports whether apiKey matches the stored bcrypt hash.
func CheckAPIKey(apiKey, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)) == nil
}
