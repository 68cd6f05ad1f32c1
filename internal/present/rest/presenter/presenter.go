package presenter

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/totegamma/trustledger/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func Created(c echo.Context, payload any) error {
	return c.JSON(http.StatusCreated, payload)
}

func BadRequestMessage(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg, Code: "bad_request"})
}

func Unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorResponse{Error: domain.ErrUnauthenticated.Error(), Code: "unauthenticated"})
}

// Error maps a domain error onto its HTTP status. Client errors keep their
// message; server errors are logged and reported generically.
func Error(c echo.Context, logger zerolog.Logger, err error) error {
	span := trace.SpanFromContext(c.Request().Context())
	span.RecordError(err)

	switch {
	case errors.Is(err, domain.ErrSelfVouch):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "self_vouch"})
	case errors.Is(err, domain.ErrInvalidArgument):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
	case errors.Is(err, domain.ErrUnauthenticated):
		return Unauthorized(c)
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, domain.ErrDuplicateVouch):
		return c.JSON(http.StatusConflict, errorResponse{Error: "already vouched", Code: "duplicate_vouch"})
	case errors.Is(err, domain.ErrEntityExists):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Code: "entity_exists"})
	case errors.Is(err, domain.ErrTransactionConflict):
		logger.Warn().Err(err).Msg("transaction conflict surfaced to client")
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "please retry", Code: "conflict"})
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, context.DeadlineExceeded):
		span.SetStatus(codes.Error, "storage unavailable")
		logger.Error().Stack().Err(err).Msg("storage unavailable")
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "service unavailable", Code: "unavailable"})
	default:
		span.SetStatus(codes.Error, "internal error")
		logger.Error().Stack().Err(err).Msg("internal error")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
}
