package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	. "github.com/meetd/meetd/agent/api/dto"
	cs "github.com/meetd/meetd/agent/api/http_api/context_service"
	req "github.com/meetd/meetd/agent/api/http_api/requests"
	"github.com/meetd/meetd/agent/api/http_api/responses"
	"github.com/meetd/meetd/agent/repositories/userrepo"
	"github.com/meetd/meetd/agent/services/userservice"
)

func (a *HTTPApp) Register(c echo.Context) error {
	stx := c.(*cs.ContextService)
	formDTO := &RegisterUserDTO{}
	if err := stx.BindToDTO(&req.RegisterUserForm{}, formDTO); err != nil {
		return err
	}

	user, apiKey, err := a.users.Register(userservice.RegisterRequest{
		Email:              formDTO.Email,
		Visibility:         formDTO.Visibility,
		GoogleRefreshToken: formDTO.GoogleRefreshToken,
	})
	if err != nil {
		return stx.JsonError(http.StatusBadRequest, err)
	}

	return stx.Json(http.StatusOK, &responses.RegisterResponse{
		User:   user.Info(),
		APIKey: apiKey,
	})
}

// GetPubKey resolves an email to its signing public key, the lookup
// counterparty agents use before verifying an envelope.
func (a *HTTPApp) GetPubKey(c echo.Context) error {
	stx := c.(*cs.ContextService)
	formDTO := &EmailDTO{}
	if err := stx.BindToDTO(&req.EmailForm{}, formDTO); err != nil {
		return err
	}

	user, err := a.users.GetByEmail(formDTO.Email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return stx.JsonError(http.StatusNotFound, err)
		}
		return stx.JsonError(http.StatusInternalServerError, err)
	}

	return stx.Json(http.StatusOK, &responses.PubKeyResponse{
		Email:     user.Email,
		PublicKey: user.PublicKey,
	})
}

func (a *HTTPApp) GetMe(c echo.Context) error {
	stx := c.(*cs.ContextService)
	return stx.Json(http.StatusOK, stx.User().Info())
}

func (a *HTTPApp) SetVisibility(c echo.Context) error {
	stx := c.(*cs.ContextService)
	formDTO := &VisibilityDTO{}
	if err := stx.BindToDTO(&req.VisibilityForm{}, formDTO); err != nil {
		return err
	}

	if err := a.users.SetVisibility(stx.User(), formDTO.Visibility); err != nil {
		return stx.JsonError(http.StatusBadRequest, err)
	}
	return stx.Json(http.StatusOK, "ok")
}

func (a *HTTPApp) Health(c echo.Context) error {
	stx := c.(*cs.ContextService)
	return stx.Json(http.StatusOK, &responses.HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC(),
	})
}
