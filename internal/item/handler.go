package item

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/auctionhq/auctionhouse/internal/apperr"
	"github.com/auctionhq/auctionhouse/internal/store"
)

type Handler struct {
	Manager *Manager
	Store   store.Store
}

func (h *Handler) currentUser(c echo.Context) (*store.User, error) {
	userID, _ := c.Get("user_id").(string)
	return h.Store.GetUser(c.Request().Context(), userID)
}

// Submit creates a new lot in the current batch.
func (h *Handler) Submit(c echo.Context) error {
	seller, err := h.currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "user not found"})
	}

	in := new(SubmitInput)
	if err := c.Bind(in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	it, err := h.Manager.Submit(c.Request().Context(), seller, *in)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusCreated, it)
}

func (h *Handler) Update(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)

	in := new(UpdateInput)
	if err := c.Bind(in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	it, err := h.Manager.Update(c.Request().Context(), userID, c.Param("id"), *in)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, it)
}

func (h *Handler) Withdraw(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)

	it, err := h.Manager.Withdraw(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, it)
}

func (h *Handler) Get(c echo.Context) error {
	it, err := h.Manager.GetItem(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, it)
}

// Live lists the auction floor, open to everyone.
func (h *Handler) Live(c echo.Context) error {
	items, err := h.Manager.LiveItems(c.Request().Context())
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

func (h *Handler) Mine(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	items, err := h.Manager.MySubmissions(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

func (h *Handler) Wins(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	items, err := h.Manager.MyWins(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

// Results lists a batch's resolved items.
func (h *Handler) Results(c echo.Context) error {
	items, err := h.Manager.BatchResults(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}
