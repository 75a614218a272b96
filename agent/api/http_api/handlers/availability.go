package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	. "github.com/meetd/meetd/agent/api/dto"
	cs "github.com/meetd/meetd/agent/api/http_api/context_service"
	req "github.com/meetd/meetd/agent/api/http_api/requests"
	"github.com/meetd/meetd/agent/api/http_api/responses"
	"github.com/meetd/meetd/agent/services/availabilityservice"
	"github.com/meetd/meetd/availability"
)

func (a *HTTPApp) QueryAvailability(c echo.Context) error {
	stx := c.(*cs.ContextService)
	formDTO := &AvailabilityQueryDTO{}
	if err := stx.BindToDTO(&req.AvailabilityQueryForm{}, formDTO); err != nil {
		return err
	}

	window, err := availability.ParseWindow(formDTO.Window)
	if err != nil {
		return stx.JsonError(http.StatusBadRequest, err)
	}

	durationMinutes := formDTO.DurationMinutes
	if durationMinutes == 0 {
		durationMinutes = 30
	}

	slots, err := a.availability.Query(stx.Request().Context(), stx.User(), availabilityservice.QueryRequest{
		WithEmail:       formDTO.WithEmail,
		Window:          window,
		DurationMinutes: durationMinutes,
	})
	if err != nil {
		return stx.JsonError(http.StatusInternalServerError, err)
	}

	return stx.Json(http.StatusOK, &responses.AvailabilityResponse{Slots: slots})
}
