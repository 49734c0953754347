package handler // handler defines the echo HTTP handlers

import (
	"context"  // request-scoped timeouts for store calls
	"errors"   // errors.Is on sentinel errors
	"net/http" // status codes
	"strconv"  // path parameter parsing
	"time"

	"github.com/labstack/echo/v4" // echo request context

	"github.com/noseryoung/course-rating/internal/logging"    // error logging for 5xx answers
	"github.com/noseryoung/course-rating/internal/middleware" // identity set by JWTAuth
	"github.com/noseryoung/course-rating/internal/repository" // sentinel errors
	"github.com/noseryoung/course-rating/internal/service"    // sentinel errors
)

// storeTimeout bounds every handler's calls into the services.
const storeTimeout = 5 * time.Second

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), storeTimeout)
}

// getUserID returns the id JWTAuth put into the context.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, errors.New("no authenticated user in context")
	}
	return id, nil
}

// pathID parses a numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// fail maps err to a status code and writes it as {"error": msg}.  Server
// side failures are logged and answered without detail.
func fail(c echo.Context, log logging.Logger, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrDuplicate):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already exists"})
	case errors.Is(err, service.ErrUnknownRole):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrBadCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "timeout"})
	}
	log.Error(c.Request().Context(), "request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
