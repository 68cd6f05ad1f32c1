package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/trustledger/internal/domain"
)

var tracer = otel.Tracer("requester")

// IdentifyRequester copies the requester id set by the authenticating proxy
// into the request context. Requests without it pass through anonymous;
// handlers that need an identity reject them.
func IdentifyRequester(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Requester.Middleware.IdentifyRequester")
		defer span.End()

		requester := strings.TrimSpace(c.Request().Header.Get(domain.RequesterIdHeader))
		if requester != "" {
			ctx = context.WithValue(ctx, domain.RequesterIdCtxKey, requester)
			span.SetAttributes(attribute.String("RequesterId", requester))
		}

		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}
