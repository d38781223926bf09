package bid

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/auctionhq/auctionhouse/internal/apperr"
	"github.com/auctionhq/auctionhouse/internal/store"
)

type Handler struct {
	Ledger *Ledger
	Store  store.Store
}

type placeBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Place accepts a bid on a live item.
func (h *Handler) Place(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	bidder, err := h.Store.GetUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "user not found"})
	}

	req := new(placeBidRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if !req.Amount.IsPositive() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must be positive"})
	}

	b, err := h.Ledger.PlaceBid(c.Request().Context(), bidder, c.Param("id"), req.Amount)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusCreated, b)
}

// History returns an item's bid book, newest first.
func (h *Handler) History(c echo.Context) error {
	bids, err := h.Ledger.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"bids": bids, "count": len(bids)})
}

func (h *Handler) Minimum(c echo.Context) error {
	min, err := h.Ledger.MinimumBid(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"minimum_bid": min})
}

func (h *Handler) Mine(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	bids, err := h.Ledger.MyBids(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"bids": bids, "count": len(bids)})
}
