package admin

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/auctionhq/auctionhouse/internal/apperr"
	"github.com/auctionhq/auctionhouse/internal/batch"
	"github.com/auctionhq/auctionhouse/internal/item"
	"github.com/auctionhq/auctionhouse/internal/store"
)

// Handler bundles the reviewer and operations surface. All routes behind
// AdminGuard.
type Handler struct {
	Items   *item.Manager
	Batches *batch.Manager
	Store   store.Store
}

func (h *Handler) reviewer(c echo.Context) (*store.User, error) {
	userID, _ := c.Get("user_id").(string)
	return h.Store.GetUser(c.Request().Context(), userID)
}

// GET /admin/items/pending
func (h *Handler) PendingItems(c echo.Context) error {
	items, err := h.Items.PendingReview(c.Request().Context())
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

type reviewRequest struct {
	Reason string `json:"reason"`
}

// POST /admin/items/:id/approve
func (h *Handler) Approve(c echo.Context) error {
	return h.review(c, item.ReviewDecision{Approve: true})
}

// POST /admin/items/:id/reject
func (h *Handler) Reject(c echo.Context) error {
	req := new(reviewRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	return h.review(c, item.ReviewDecision{Reason: req.Reason})
}

// POST /admin/items/:id/request-changes
func (h *Handler) RequestChanges(c echo.Context) error {
	req := new(reviewRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	return h.review(c, item.ReviewDecision{RequestChanges: true, Reason: req.Reason})
}

func (h *Handler) review(c echo.Context, d item.ReviewDecision) error {
	reviewer, err := h.reviewer(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "user not found"})
	}
	it, err := h.Items.Review(c.Request().Context(), reviewer, c.Param("id"), d)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, it)
}

// GET /admin/overview
func (h *Handler) Overview(c echo.Context) error {
	counts, err := h.Store.Overview(c.Request().Context())
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, counts)
}

// GET /admin/transactions
func (h *Handler) Transactions(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	txs, err := h.Store.ListTransactions(c.Request().Context(), limit, offset)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs, "limit": limit, "offset": offset})
}
