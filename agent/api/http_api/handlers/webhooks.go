package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	. "github.com/meetd/meetd/agent/api/dto"
	cs "github.com/meetd/meetd/agent/api/http_api/context_service"
	req "github.com/meetd/meetd/agent/api/http_api/requests"
	"github.com/meetd/meetd/agent/api/http_api/responses"
	"github.com/meetd/meetd/webhook"
)

func (a *HTTPApp) RegisterWebhook(c echo.Context) error {
	stx := c.(*cs.ContextService)
	formDTO := &WebhookDTO{}
	if err := stx.BindToDTO(&req.WebhookForm{}, formDTO); err != nil {
		return err
	}

	secret, err := a.users.RegisterWebhook(stx.User(), formDTO.URL)
	if err != nil {
		return stx.JsonError(http.StatusInternalServerError, err)
	}

	return stx.Json(http.StatusOK, &responses.WebhookResponse{
		URL:    formDTO.URL,
		Secret: secret,
	})
}

func (a *HTTPApp) RemoveWebhook(c echo.Context) error {
	stx := c.(*cs.ContextService)

	if err := a.users.RemoveWebhook(stx.User()); err != nil {
		return stx.JsonError(http.StatusInternalServerError, err)
	}
	return stx.JsonEmpty(http.StatusOK)
}

// TestWebhook delivers a signed test event synchronously so the caller
// learns right away whether their endpoint and secret line up.
func (a *HTTPApp) TestWebhook(c echo.Context) error {
	stx := c.(*cs.ContextService)
	user := stx.User()

	// Re-read the record: the auth middleware's copy predates any
	// webhook registration done in this session.
	current, err := a.users.GetByEmail(user.Email)
	if err != nil {
		return stx.JsonError(http.StatusInternalServerError, err)
	}
	if current.WebhookURL == "" {
		return stx.JsonError(http.StatusBadRequest, errors.New("no webhook registered"))
	}

	event := webhook.NewEvent(webhook.EventTest, webhook.EventData{
		ProposalID: "prop_test",
		From:       current.Email,
	})
	if err := a.webhookClient.Deliver(
		stx.Request().Context(), current.WebhookURL, current.WebhookSecret, event); err != nil {
		return stx.JsonError(http.StatusBadGateway, err)
	}

	return stx.Json(http.StatusOK, "delivered")
}
