package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func seedItem(t *testing.T, m *Memory, id string) *Item {
	t.Helper()
	it := &Item{
		ID:            id,
		BatchID:       "b-1",
		SellerID:      "seller-1",
		Title:         "Lot " + id,
		StartingPrice: decimal.RequireFromString("10.00"),
		BidIncrement:  DefaultBidIncrement,
		Status:        ItemLive,
	}
	assert.Nil(t, m.CreateItem(context.Background(), it))
	return it
}

func seedBid(t *testing.T, m *Memory, itemID, bidderID, amount string, status BidStatus) *Bid {
	t.Helper()
	b := &Bid{
		ID:       ulid.Make().String(),
		ItemID:   itemID,
		BidderID: bidderID,
		Amount:   decimal.RequireFromString(amount),
		Status:   status,
		PlacedAt: time.Now(),
	}
	assert.Nil(t, m.CreateBid(context.Background(), b))
	return b
}

func TestHighestBidPicksMaxAmount(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedItem(t, m, "i-1")

	_, err := m.HighestBid(ctx, "i-1")
	check.True(t, errors.Is(err, ErrNotFound))

	seedBid(t, m, "i-1", "u-1", "10.00", BidOutbid)
	top := seedBid(t, m, "i-1", "u-2", "40.00", BidWinning)
	seedBid(t, m, "i-1", "u-3", "20.00", BidOutbid)

	got, err := m.HighestBid(ctx, "i-1")
	assert.Nil(t, err)
	check.Equal(t, top.ID, got.ID)
}

func TestMarkBidsLostExcept(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedItem(t, m, "i-1")

	b1 := seedBid(t, m, "i-1", "u-1", "10.00", BidOutbid)
	b2 := seedBid(t, m, "i-1", "u-2", "20.00", BidOutbid)
	won := seedBid(t, m, "i-1", "u-3", "30.00", BidWon)

	assert.Nil(t, m.MarkBidsLostExcept(ctx, "i-1", won.ID))

	bids, _ := m.BidsByItem(ctx, "i-1")
	for _, b := range bids {
		switch b.ID {
		case won.ID:
			check.Equal(t, BidWon, b.Status)
		case b1.ID, b2.ID:
			check.Equal(t, BidLost, b.Status)
		}
	}
}

func TestBidsByItemNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedItem(t, m, "i-1")

	var ids []string
	for i := 0; i < 3; i++ {
		b := seedBid(t, m, "i-1", fmt.Sprintf("u-%d", i), fmt.Sprintf("%d0.00", i+1), BidOutbid)
		ids = append(ids, b.ID)
	}

	bids, err := m.BidsByItem(ctx, "i-1")
	assert.Nil(t, err)
	assert.Equal(t, 3, len(bids))
	// ULIDs sort by creation time, so reverse order is newest first.
	check.Equal(t, ids[2], bids[0].ID)
	check.Equal(t, ids[0], bids[2].ID)
}

func TestSupersedeBidAppliesAllOrNothing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedItem(t, m, "i-1")

	first := &Bid{ID: ulid.Make().String(), ItemID: "i-1", BidderID: "u-1",
		Amount: decimal.RequireFromString("25.00"), Status: BidWinning, PlacedAt: time.Now()}
	assert.Nil(t, m.SupersedeBid(ctx, "", first))

	second := &Bid{ID: ulid.Make().String(), ItemID: "i-1", BidderID: "u-2",
		Amount: decimal.RequireFromString("35.00"), Status: BidWinning, PlacedAt: time.Now()}
	assert.Nil(t, m.SupersedeBid(ctx, first.ID, second))

	it, _ := m.GetItem(ctx, "i-1")
	check.True(t, it.CurrentBid.Equal(decimal.RequireFromString("35.00")))
	check.Equal(t, 2, it.TotalBids)

	bids, _ := m.BidsByItem(ctx, "i-1")
	assert.Equal(t, 2, len(bids))
	for _, b := range bids {
		if b.ID == first.ID {
			check.Equal(t, BidOutbid, b.Status)
		} else {
			check.Equal(t, BidWinning, b.Status)
		}
	}

	// A failed supersede leaves the ledger and the item untouched.
	third := &Bid{ID: ulid.Make().String(), ItemID: "i-1", BidderID: "u-3",
		Amount: decimal.RequireFromString("45.00"), Status: BidWinning, PlacedAt: time.Now()}
	err := m.SupersedeBid(ctx, "no-such-bid", third)
	check.True(t, errors.Is(err, ErrNotFound))

	it, _ = m.GetItem(ctx, "i-1")
	check.True(t, it.CurrentBid.Equal(decimal.RequireFromString("35.00")))
	check.Equal(t, 2, it.TotalBids)
	bids, _ = m.BidsByItem(ctx, "i-1")
	check.Equal(t, 2, len(bids))
}

func TestSaveItemLeavesLedgerFieldsAlone(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedItem(t, m, "i-1")

	b := &Bid{ID: ulid.Make().String(), ItemID: "i-1", BidderID: "u-1",
		Amount: decimal.RequireFromString("25.00"), Status: BidWinning, PlacedAt: time.Now()}
	assert.Nil(t, m.SupersedeBid(ctx, "", b))

	// A stale caller copy must not roll back current_bid or total_bids.
	it, _ := m.GetItem(ctx, "i-1")
	it.CurrentBid = nil
	it.TotalBids = 0
	it.Title = "Renamed lot"
	assert.Nil(t, m.SaveItem(ctx, it))

	got, _ := m.GetItem(ctx, "i-1")
	check.Equal(t, "Renamed lot", got.Title)
	check.True(t, got.CurrentBid.Equal(decimal.RequireFromString("25.00")))
	check.Equal(t, 1, got.TotalBids)
}

func TestAddBatchCounters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	b := &Batch{ID: "b-1", Code: "BATCH-2026-W36", WeekNumber: 36, Year: 2026, Status: BatchSubmission}
	assert.Nil(t, m.CreateBatch(ctx, b))

	assert.Nil(t, m.AddBatchCounters(ctx, "b-1", BatchCounterDelta{Submitted: 2, Approved: 1}))
	assert.Nil(t, m.AddBatchCounters(ctx, "b-1", BatchCounterDelta{Submitted: -1, Rejected: 1}))

	got, _ := m.GetBatch(ctx, "b-1")
	check.Equal(t, 1, got.TotalSubmitted)
	check.Equal(t, 1, got.TotalApproved)
	check.Equal(t, 1, got.TotalRejected)
}

func TestDuplicateBatchCodeRejected(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	assert.Nil(t, m.CreateBatch(ctx, &Batch{ID: "b-1", Code: "BATCH-2026-W36", WeekNumber: 36, Year: 2026}))
	err := m.CreateBatch(ctx, &Batch{ID: "b-2", Code: "BATCH-2026-W36", WeekNumber: 36, Year: 2026})
	check.True(t, errors.Is(err, ErrDuplicate))

	// A test batch shares the week under a different code and becomes the
	// newest batch for that week.
	assert.Nil(t, m.CreateBatch(ctx, &Batch{ID: "b-3", Code: "TEST-BATCH-1", WeekNumber: 36, Year: 2026}))
	got, err := m.GetBatchByWeek(ctx, 36, 2026)
	assert.Nil(t, err)
	check.Equal(t, "b-3", got.ID)
}

func TestWatchlistDedupe(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedItem(t, m, "i-1")

	w := &WatchlistEntry{ID: "w-1", UserID: "u-1", ItemID: "i-1", NotifyOnBid: true, AddedAt: time.Now()}
	assert.Nil(t, m.AddWatch(ctx, w))
	err := m.AddWatch(ctx, &WatchlistEntry{ID: "w-2", UserID: "u-1", ItemID: "i-1"})
	check.True(t, errors.Is(err, ErrDuplicate))

	n, _ := m.CountWatchesByUser(ctx, "u-1")
	check.Equal(t, 1, n)
}

func TestMinimumBidDerivation(t *testing.T) {
	it := &Item{
		StartingPrice: decimal.RequireFromString("100.00"),
		BidIncrement:  decimal.RequireFromString("10.00"),
	}
	check.True(t, it.MinimumBid().Equal(decimal.RequireFromString("100.00")))

	current := decimal.RequireFromString("150.00")
	it.CurrentBid = &current
	check.True(t, it.MinimumBid().Equal(decimal.RequireFromString("160.00")))
}
