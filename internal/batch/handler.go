package batch

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/auctionhq/auctionhouse/internal/apperr"
	"github.com/auctionhq/auctionhouse/internal/store"
)

type Handler struct {
	Manager *Manager
}

// Current returns the batch for this week plus the phase gates, creating the
// batch on first touch.
func (h *Handler) Current(c echo.Context) error {
	ctx := c.Request().Context()
	b, err := h.Manager.ResolveCurrentBatch(ctx)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	submissionOpen, _ := h.Manager.IsSubmissionOpen(ctx)
	reviewActive, _ := h.Manager.IsReviewActive(ctx)
	auctionLive, _ := h.Manager.IsAuctionLive(ctx)
	return c.JSON(http.StatusOK, echo.Map{
		"batch":           b,
		"submission_open": submissionOpen,
		"review_active":   reviewActive,
		"auction_live":    auctionLive,
	})
}

func (h *Handler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	batches, err := h.Manager.ListBatches(c.Request().Context(), limit, offset)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"batches": batches, "limit": limit, "offset": offset})
}

func (h *Handler) Get(c echo.Context) error {
	b, err := h.Manager.GetBatch(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) GetByCode(c echo.Context) error {
	b, err := h.Manager.GetBatchByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, b)
}

type transitionRequest struct {
	Target store.BatchStatus `json:"target"`
}

// ForceTransition is the admin escape hatch around the scheduler.
func (h *Handler) ForceTransition(c echo.Context) error {
	req := new(transitionRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	b, err := h.Manager.ForceTransition(c.Request().Context(), c.Param("id"), req.Target)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CreateTest(c echo.Context) error {
	b, err := h.Manager.CreateTestBatch(c.Request().Context())
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusCreated, b)
}
