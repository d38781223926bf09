package batch_test

import (
	"context"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/auctionhq/auctionhouse/internal/item"
	"github.com/auctionhq/auctionhouse/internal/store"
)

// runToLive walks the rig's batch from submission to the live phase,
// approving every submitted item along the way.
func runToLive(t *testing.T, r *rig, admin *store.User) {
	t.Helper()
	ctx := context.Background()

	r.clock.Set(time.Date(2026, time.September, 3, 1, 0, 0, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(ctx))

	pending, err := r.items.PendingReview(ctx)
	assert.Nil(t, err)
	for i := range pending {
		_, err := r.items.Review(ctx, admin, pending[i].ID, item.ReviewDecision{Approve: true})
		assert.Nil(t, err)
	}

	r.clock.Set(time.Date(2026, time.September, 5, 10, 30, 0, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(ctx))
}

func endAuction(t *testing.T, r *rig) {
	t.Helper()
	r.clock.Set(time.Date(2026, time.September, 6, 20, 1, 0, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(context.Background()))
}

func TestResolutionSellsItemAboveReserve(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")
	admin := r.user(t, "ada", "admin")
	alice := r.user(t, "alice", "bidder")
	bob := r.user(t, "bob", "bidder")

	it := r.submit(t, seller, "Brass telescope", "100.00", "150.00")
	runToLive(t, r, admin)

	_, err := r.ledger.PlaceBid(ctx, alice, it.ID, decimal.RequireFromString("100.00"))
	assert.Nil(t, err)
	winning, err := r.ledger.PlaceBid(ctx, bob, it.ID, decimal.RequireFromString("200.00"))
	assert.Nil(t, err)

	endAuction(t, r)

	got, _ := r.store.GetItem(ctx, it.ID)
	check.Equal(t, store.ItemSold, got.Status)
	check.Equal(t, bob.ID, got.WinnerID)
	check.True(t, got.SoldAt != nil)

	bids, _ := r.store.BidsByItem(ctx, it.ID)
	statuses := map[string]store.BidStatus{}
	for _, b := range bids {
		statuses[b.ID] = b.Status
	}
	check.Equal(t, store.BidWon, statuses[winning.ID])
	won, lost := 0, 0
	for _, s := range statuses {
		switch s {
		case store.BidWon:
			won++
		case store.BidLost:
			lost++
		}
	}
	check.Equal(t, 1, won)
	check.Equal(t, 1, lost)

	// Settlement: 5% fee on the sale price.
	txs, _ := r.store.TransactionsByUser(ctx, seller.ID)
	assert.Equal(t, 1, len(txs))
	tx := txs[0]
	check.Equal(t, bob.ID, tx.BuyerID)
	check.Equal(t, winning.ID, tx.WinningBidID)
	check.True(t, tx.Amount.Equal(decimal.RequireFromString("200.00")))
	check.True(t, tx.PlatformFee.Equal(decimal.RequireFromString("10.00")))
	check.True(t, tx.SellerPayout.Equal(decimal.RequireFromString("190.00")))
	check.Equal(t, store.TxPending, tx.Status)

	b, _ := r.store.GetBatch(ctx, it.BatchID)
	check.Equal(t, 1, b.TotalSold)
	check.True(t, b.TotalRevenue.Equal(decimal.RequireFromString("200.00")))
}

func TestResolutionBelowReserveGoesUnsold(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")
	admin := r.user(t, "ada", "admin")
	alice := r.user(t, "alice", "bidder")

	it := r.submit(t, seller, "Oil painting", "100.00", "500.00")
	runToLive(t, r, admin)

	highest, err := r.ledger.PlaceBid(ctx, alice, it.ID, decimal.RequireFromString("120.00"))
	assert.Nil(t, err)

	endAuction(t, r)

	got, _ := r.store.GetItem(ctx, it.ID)
	check.Equal(t, store.ItemUnsold, got.Status)
	check.Equal(t, "", got.WinnerID)

	bids, _ := r.store.BidsByItem(ctx, it.ID)
	assert.Equal(t, 1, len(bids))
	check.Equal(t, highest.ID, bids[0].ID)
	check.Equal(t, store.BidLost, bids[0].Status)

	// No settlement record for an unsold item.
	txs, _ := r.store.TransactionsByUser(ctx, seller.ID)
	check.Equal(t, 0, len(txs))

	b, _ := r.store.GetBatch(ctx, it.BatchID)
	check.Equal(t, 0, b.TotalSold)
	check.True(t, b.TotalRevenue.IsZero())
}

func TestResolutionWithoutBidsGoesUnsold(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")
	admin := r.user(t, "ada", "admin")

	it := r.submit(t, seller, "Empty lot", "50.00", "")
	runToLive(t, r, admin)
	endAuction(t, r)

	got, _ := r.store.GetItem(ctx, it.ID)
	check.Equal(t, store.ItemUnsold, got.Status)
	check.True(t, got.AuctionEnded != nil)
}

func TestResolutionWithoutReserveSellsToHighest(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")
	admin := r.user(t, "ada", "admin")
	alice := r.user(t, "alice", "bidder")

	it := r.submit(t, seller, "Reading chair", "40.00", "")
	runToLive(t, r, admin)

	_, err := r.ledger.PlaceBid(ctx, alice, it.ID, decimal.RequireFromString("40.00"))
	assert.Nil(t, err)

	endAuction(t, r)

	got, _ := r.store.GetItem(ctx, it.ID)
	check.Equal(t, store.ItemSold, got.Status)
	check.Equal(t, alice.ID, got.WinnerID)
}
