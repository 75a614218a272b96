package router

import (
	"github.com/labstack/echo/v4"

	"github.com/meetd/meetd/agent/api/http_api/handlers"
	"github.com/meetd/meetd/agent/services"
)

func SetRouter(e *echo.Echo, authMiddleware echo.MiddlewareFunc, sp *services.ServiceProvider) {
	h := handlers.NewHTTPApp(sp)

	e.GET("/health", h.Health)
	e.GET("/getPubKey/:email", h.GetPubKey)
	e.POST("/register", h.Register)

	authed := e.Group("", authMiddleware)

	authed.GET("/me", h.GetMe)
	authed.POST("/me/visibility", h.SetVisibility)

	authed.POST("/proposals", h.IssueProposal)
	authed.GET("/proposals/sent", h.GetSent)
	authed.GET("/proposals/:id", h.GetProposal)
	authed.POST("/proposals/:id/accept", h.AcceptProposal)
	authed.POST("/proposals/:id/decline", h.DeclineProposal)
	authed.POST("/proposals/verify", h.VerifyProposal)

	authed.GET("/inbox", h.GetInbox)
	authed.POST("/agent/inbox", h.ReceiveProposal)

	authed.GET("/availability", h.QueryAvailability)

	authed.POST("/webhooks", h.RegisterWebhook)
	authed.DELETE("/webhooks", h.RemoveWebhook)
	authed.POST("/webhooks/test", h.TestWebhook)
}
