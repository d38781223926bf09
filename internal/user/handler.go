package user

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/auctionhq/auctionhouse/internal/apperr"
	"github.com/auctionhq/auctionhouse/internal/store"
)

type Handler struct {
	Store store.Store
}

// PublicProfile is the public view of a user, without the email.
func (h *Handler) PublicProfile(c echo.Context) error {
	u, err := h.Store.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":        u.ID,
		"name":      u.Name,
		"role":      u.Role,
		"joined_at": u.CreatedAt,
	})
}

// MyTransactions lists settlements where the caller is buyer or seller.
func (h *Handler) MyTransactions(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	txs, err := h.Store.TransactionsByUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs, "count": len(txs)})
}
