package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/auctionhq/auctionhouse/internal/apperr"
	"github.com/auctionhq/auctionhouse/internal/store"
)

// Stats reports review progress for the current batch (GET /admin/stats).
func (h *Handler) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	b, err := h.Batches.ResolveCurrentBatch(ctx)
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
	}

	statuses := []store.ItemStatus{
		store.ItemSubmitted,
		store.ItemUnderReview,
		store.ItemChangesRequested,
		store.ItemApproved,
		store.ItemRejected,
		store.ItemWithdrawn,
	}
	counts := echo.Map{}
	for _, s := range statuses {
		n, err := h.Store.CountItemsByBatchAndStatus(ctx, b.ID, s)
		if err != nil {
			return c.JSON(apperr.HTTPStatus(err), apperr.Public(err))
		}
		counts[string(s)] = n
	}

	return c.JSON(http.StatusOK, echo.Map{
		"batch":  b.Code,
		"status": b.Status,
		"items":  counts,
	})
}
