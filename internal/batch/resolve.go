package batch

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/auctionhq/auctionhouse/internal/alerts"
	"github.com/auctionhq/auctionhouse/internal/store"
)

// Platform commission taken from every sale.
var feeRate = decimal.NewFromFloat(0.05)

// Summary is the outcome of resolving one batch.
type Summary struct {
	Sold    int
	Unsold  int
	Revenue decimal.Decimal
	// Failed holds IDs of items whose resolution errored; they keep their
	// pre-resolution state and the rest of the batch is unaffected.
	Failed []string
}

// resolveBatch walks every LIVE item of an ended batch and settles it. Each
// item is resolved under the same per-item lock bids are placed under, so a
// bid in flight either lands before resolution reads the ledger or is
// rejected by the closed admission gate.
func (m *Manager) resolveBatch(ctx context.Context, b *store.Batch) (*Summary, error) {
	items, err := m.store.ItemsByBatchAndStatus(ctx, b.ID, store.ItemLive)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Revenue: decimal.Zero}
	for i := range items {
		it := &items[i]
		sale, err := m.resolveItem(ctx, it)
		if err != nil {
			log.Printf("[batch] resolve item %s failed: %v", it.ID, err)
			sum.Failed = append(sum.Failed, it.ID)
			continue
		}
		if sale != nil {
			sum.Sold++
			sum.Revenue = sum.Revenue.Add(*sale)
		} else {
			sum.Unsold++
		}
	}
	return sum, nil
}

// resolveItem settles one item and returns the sale price, or nil when the
// item went unsold.
func (m *Manager) resolveItem(ctx context.Context, it *store.Item) (*decimal.Decimal, error) {
	unlock := m.locks.Lock(it.ID)
	defer unlock()

	// Re-read under the lock: a bid may have landed between the batch
	// snapshot and here.
	fresh, err := m.store.GetItem(ctx, it.ID)
	if err != nil {
		return nil, err
	}
	*it = *fresh

	highest, err := m.store.HighestBid(ctx, it.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, m.markUnsold(ctx, it, nil)
	}
	if err != nil {
		return nil, err
	}

	if it.ReservePrice != nil && highest.Amount.LessThan(*it.ReservePrice) {
		return nil, m.markUnsold(ctx, it, highest)
	}
	if err := m.markSold(ctx, it, highest); err != nil {
		return nil, err
	}
	return &highest.Amount, nil
}

func (m *Manager) markUnsold(ctx context.Context, it *store.Item, highest *store.Bid) error {
	if highest != nil {
		if err := m.store.UpdateBidStatus(ctx, highest.ID, store.BidLost); err != nil {
			return err
		}
	}
	now := m.Now()
	it.Status = store.ItemUnsold
	it.AuctionEnded = &now
	if err := m.store.SaveItem(ctx, it); err != nil {
		return err
	}
	m.emitItemResult(it, nil)
	return nil
}

func (m *Manager) markSold(ctx context.Context, it *store.Item, winning *store.Bid) error {
	if err := m.store.UpdateBidStatus(ctx, winning.ID, store.BidWon); err != nil {
		return err
	}
	if err := m.store.MarkBidsLostExcept(ctx, it.ID, winning.ID); err != nil {
		return err
	}

	now := m.Now()
	it.Status = store.ItemSold
	it.WinnerID = winning.BidderID
	it.CurrentBid = &winning.Amount
	it.AuctionEnded = &now
	it.SoldAt = &now
	if err := m.store.SaveItem(ctx, it); err != nil {
		return err
	}

	fee := winning.Amount.Mul(feeRate).Round(2)
	tx := &store.Transaction{
		ID:           uuid.New().String(),
		ItemID:       it.ID,
		BuyerID:      winning.BidderID,
		SellerID:     it.SellerID,
		WinningBidID: winning.ID,
		Amount:       winning.Amount,
		PlatformFee:  fee,
		SellerPayout: winning.Amount.Sub(fee),
		Status:       store.TxPending,
		CreatedAt:    now,
	}
	if err := m.store.CreateTransaction(ctx, tx); err != nil {
		return err
	}

	m.emitItemResult(it, winning)
	return nil
}

func (m *Manager) emitItemResult(it *store.Item, winning *store.Bid) {
	m.emitter.Emit(alerts.Event{Type: alerts.EventItemStatus, Payload: alerts.ItemStatusPayload{
		ItemID:    it.ID,
		ItemTitle: it.Title,
		OldStatus: store.ItemLive,
		NewStatus: it.Status,
	}})

	data := map[string]any{"item_id": it.ID, "status": it.Status}
	if winning != nil {
		data["final_price"] = winning.Amount
		data["winner_id"] = winning.BidderID
	}
	m.broadcast.BroadcastItem(it.ID, "item_resolved", data)
}
