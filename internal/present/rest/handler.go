package rest

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/totegamma/trustledger/internal/domain"
	"github.com/totegamma/trustledger/internal/present/rest/middleware"
	"github.com/totegamma/trustledger/internal/present/rest/presenter"
	"github.com/totegamma/trustledger/internal/service"
	"github.com/totegamma/trustledger/internal/usecase"
)

type Handler struct {
	vouch  *usecase.VouchUsecase
	entity *usecase.EntityUsecase
	audit  *usecase.AuditUsecase
	store  usecase.Store
	signal *service.SignalService
	logger zerolog.Logger
}

func NewHandler(
	vouch *usecase.VouchUsecase,
	entity *usecase.EntityUsecase,
	audit *usecase.AuditUsecase,
	store usecase.Store,
	signal *service.SignalService,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		vouch:  vouch,
		entity: entity,
		audit:  audit,
		store:  store,
		signal: signal,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.handleHealth)

	api := e.Group("/api/v1", middleware.IdentifyRequester)
	api.POST("/vouches", h.handleCastVouch)
	api.POST("/entities", h.handleRegisterEntity)
	api.GET("/entities/:id", h.handleGetEntity)
	api.GET("/entities/:id/vouches", h.handleListVouches)
	api.GET("/entities/:id/audit", h.handleAudit)

	if h.signal != nil {
		e.GET("/realtime", h.handleRealtime)
	}
}

func (h *Handler) handleHealth(c echo.Context) error {
	if err := h.store.Ping(c.Request().Context()); err != nil {
		h.logger.Warn().Err(err).Msg("health check failed")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type castVouchRequest struct {
	ReceiverID string `json:"receiverId"`
}

func (h *Handler) handleCastVouch(c echo.Context) error {
	ctx := c.Request().Context()

	voucherID, ok := domain.RequesterID(ctx)
	if !ok {
		return presenter.Unauthorized(c)
	}

	var req castVouchRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequestMessage(c, "invalid request body")
	}

	result, err := h.vouch.Cast(ctx, voucherID, req.ReceiverID)
	if err != nil {
		return presenter.Error(c, h.logger, err)
	}
	return presenter.Created(c, result)
}

type registerEntityRequest struct {
	ID string `json:"id"`
}

func (h *Handler) handleRegisterEntity(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := domain.RequesterID(ctx); !ok {
		return presenter.Unauthorized(c)
	}

	var req registerEntityRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequestMessage(c, "invalid request body")
	}

	entity, err := h.entity.Register(ctx, req.ID)
	if err != nil {
		return presenter.Error(c, h.logger, err)
	}
	return presenter.Created(c, entity)
}

func (h *Handler) handleGetEntity(c echo.Context) error {
	entity, err := h.entity.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return presenter.Error(c, h.logger, err)
	}
	return presenter.OK(c, entity)
}

func (h *Handler) handleListVouches(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	limit := 0
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid limit parameter")
		}
		limit = parsed
	}

	var (
		vouches []domain.Vouch
		err     error
	)
	switch c.QueryParam("direction") {
	case "", "received":
		vouches, err = h.vouch.ListReceived(ctx, id, limit)
	case "given":
		vouches, err = h.vouch.ListGiven(ctx, id, limit)
	default:
		return presenter.BadRequestMessage(c, "direction must be received or given")
	}
	if err != nil {
		return presenter.Error(c, h.logger, err)
	}
	return presenter.OK(c, vouches)
}

func (h *Handler) handleAudit(c echo.Context) error {
	report, err := h.audit.Audit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return presenter.Error(c, h.logger, err)
	}
	return presenter.OK(c, report)
}
