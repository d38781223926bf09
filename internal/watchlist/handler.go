package watchlist

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/auctionhq/auctionhouse/internal/apperr"
)

type Handler struct {
	Service *Service
}

type watchRequest struct {
	NotifyOnBid bool `json:"notify_on_bid"`
}

func (h *Handler) Add(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)

	req := new(watchRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	w, err := h.Service.Add(c.Request().Context(), userID, c.Param("id"), req.NotifyOnBid)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusCreated, w)
}

func (h *Handler) Remove(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	if err := h.Service.Remove(c.Request().Context(), userID, c.Param("id")); err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "removed from watchlist"})
}

func (h *Handler) SetNotify(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)

	req := new(watchRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if err := h.Service.SetNotify(c.Request().Context(), userID, c.Param("id"), req.NotifyOnBid); err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "notification preference updated"})
}

func (h *Handler) List(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	entries, err := h.Service.List(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"watchlist": entries, "count": len(entries)})
}
