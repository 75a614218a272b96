package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/meetd/meetd/availability"
)

const (
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleFreeBusyURL = "https://www.googleapis.com/calendar/v3/freeBusy"
	googleEventsURL   = "https://www.googleapis.com/calendar/v3/calendars/primary/events"

	// Refresh slightly early so a token never expires mid-request.
	tokenExpirySlack = 5 * time.Minute
)

var _ Provider = (*GoogleCalendar)(nil)

// GoogleCalendar talks to the Google Calendar REST API. Each instance
// owns its token cache; there is no package-level token state.
type GoogleCalendar struct {
	httpClient *http.Client
	tokens     *tokenCache
}

// tokenCache trades a refresh token for short-lived access tokens and
// caches them until close to expiry.
type tokenCache struct {
	sync.Mutex
	clientID     string
	clientSecret string
	refreshToken string

	accessToken string
	expiresAt   time.Time
}

func NewGoogleCalendar(clientID, clientSecret, refreshToken string) *GoogleCalendar {
	return &GoogleCalendar{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokens: &tokenCache{
			clientID:     clientID,
			clientSecret: clientSecret,
			refreshToken: refreshToken,
		},
	}
}

func (t *tokenCache) accessTokenFor(ctx context.Context, client *http.Client) (string, error) {
	t.Lock()
	defer t.Unlock()

	if t.accessToken != "" && time.Now().Before(t.expiresAt.Add(-tokenExpirySlack)) {
		return t.accessToken, nil
	}

	form := url.Values{
		"client_id":     {t.clientID},
		"client_secret": {t.clientSecret},
		"refresh_token": {t.refreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("token refresh failed: %d - %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	t.accessToken = parsed.AccessToken
	t.expiresAt = time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)

	return t.accessToken, nil
}

func (g *GoogleCalendar) GetBusyPeriods(ctx context.Context, start, end time.Time) ([]availability.BusyPeriod, error) {
	token, err := g.tokens.accessTokenFor(ctx, g.httpClient)
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"timeMin": start.UTC().Format(time.RFC3339),
		"timeMax": end.UTC().Format(time.RFC3339),
		"items":   []map[string]string{{"id": "primary"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal freeBusy request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleFreeBusyURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build freeBusy request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query freeBusy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("freeBusy query failed: %d - %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Calendars map[string]struct {
			Busy []struct {
				Start time.Time `json:"start"`
				End   time.Time `json:"end"`
			} `json:"busy"`
		} `json:"calendars"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse freeBusy response: %w", err)
	}

	var busy []availability.BusyPeriod
	for _, cal := range parsed.Calendars {
		for _, b := range cal.Busy {
			busy = append(busy, availability.BusyPeriod{Start: b.Start, End: b.End})
		}
	}
	return busy, nil
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, title, description string, start, end time.Time, attendeeEmail string) (*CreatedEvent, error) {
	token, err := g.tokens.accessTokenFor(ctx, g.httpClient)
	if err != nil {
		return nil, err
	}

	event := map[string]interface{}{
		"summary": title,
		"start":   map[string]string{"dateTime": start.UTC().Format(time.RFC3339)},
		"end":     map[string]string{"dateTime": end.UTC().Format(time.RFC3339)},
	}
	if description != "" {
		event["description"] = description
	}
	if attendeeEmail != "" {
		event["attendees"] = []map[string]string{{"email": attendeeEmail}}
	}

	reqBody, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleEventsURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build event request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("event creation failed: %d - %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		ID       string `json:"id"`
		HTMLLink string `json:"htmlLink"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse event response: %w", err)
	}

	return &CreatedEvent{ID: parsed.ID, HTMLLink: parsed.HTMLLink}, nil
}
