package http_api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	. "github.com/labstack/echo/v4"

	cs "github.com/meetd/meetd/agent/api/http_api/context_service"
	"github.com/meetd/meetd/agent/repositories/userrepo"
)

func contextServiceMiddleware(next HandlerFunc) HandlerFunc {
	return func(ctx Context) error {
		return next(cs.New(ctx))
	}
}

// apiKeyAuthMiddleware resolves the bearer token to a user via the
// stored bcrypt hashes and rejects everything else with 401.
func apiKeyAuthMiddleware(users userrepo.UserRepo) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx Context) error {
			stx := ctx.(*cs.ContextService)

			header := stx.Request().Header.Get(HeaderAuthorization)
			token := strings.TrimPrefix(header, "Bearer ")
			if token == "" || token == header {
				return stx.JsonError(http.StatusUnauthorized, errors.New("missing bearer token"))
			}

			user, err := users.FindByAPIKey(token)
			if err != nil {
				return stx.JsonError(http.StatusInternalServerError, err)
			}
			if user == nil {
				return stx.JsonError(http.StatusUnauthorized, errors.New("invalid api key"))
			}

			stx.Set("user", user)
			return next(stx)
		}
	}
}

// Custom error handler
func customHTTPErrorHandler(err error, c Context) {
	csError, ok := err.(*cs.CSErrorResp)
	if !ok {
		if he, ok := err.(*HTTPError); ok {
			csError = &cs.CSErrorResp{
				ErrorMessage: fmt.Sprintf("%s", he.Message),
				StatusCode:   he.Code,
			}
		} else {
			csError = &cs.CSErrorResp{
				ErrorMessage: http.StatusText(http.StatusInternalServerError),
				StatusCode:   http.StatusInternalServerError,
			}
		}
	}

	if csError.StatusCode == 0 {
		csError.StatusCode = http.StatusInternalServerError
	}

	// Send response
	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(csError.StatusCode)
		} else {
			err = c.JSON(csError.StatusCode, csError)
		}
		if err != nil {
			c.Logger().Error(err)
		}
	}
}
