package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 over
	// "<timestamp>.<json-payload>".
	SignatureHeader = "X-Meetd-Signature"
	// TimestampHeader carries the Unix seconds the signature was made at.
	TimestampHeader = "X-Meetd-Timestamp"

	deliveryTimeout = 10 * time.Second

	// maxClockSkew bounds |now - timestamp| on verification. Anything
	// staler is rejected to close the replay window.
	maxClockSkew = 300
)

// Client delivers HMAC-signed webhook events. One delivery attempt per
// event; retry policy is the receiver's problem, not ours.
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: deliveryTimeout},
	}
}

// Deliver serializes event, signs it with secret, and POSTs it to url.
// A non-2xx response is a delivery failure.
func (c *Client) Deliver(ctx context.Context, url, secret string, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := Sign(string(payload), timestamp, secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set(TimestampHeader, timestamp)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook delivery failed: %d - %s", resp.StatusCode, string(body))
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of "<timestamp>.<payload>".
func Sign(payload, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an incoming webhook. It returns false (not an
// error) for a stale timestamp, an unparseable timestamp, or a
// signature mismatch. The comparison is constant-time.
func VerifySignature(payload, timestamp, signature, secret string) bool {
	return verifySignatureAt(payload, timestamp, signature, secret, time.Now())
}

func verifySignatureAt(payload, timestamp, signature, secret string, now time.Time) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > maxClockSkew {
		return false
	}

	expected := Sign(payload, timestamp, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
