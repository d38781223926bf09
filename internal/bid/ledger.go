package bid

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/auctionhq/auctionhouse/internal/alerts"
	"github.com/auctionhq/auctionhouse/internal/apperr"
	"github.com/auctionhq/auctionhouse/internal/batch"
	"github.com/auctionhq/auctionhouse/internal/messaging"
	"github.com/auctionhq/auctionhouse/internal/store"
)

// Ledger is the append-only bid book. Bids are created, never rewritten;
// status is the only mutable field. All writes for one item are serialized
// through the shared per-item lock so at most one WINNING bid exists at any
// point.
type Ledger struct {
	store     store.Store
	emitter   alerts.Emitter
	broadcast messaging.Broadcaster
	batches   *batch.Manager
	locks     *store.ItemLocks

	Now func() time.Time
}

func NewLedger(st store.Store, emitter alerts.Emitter, broadcast messaging.Broadcaster, batches *batch.Manager, locks *store.ItemLocks) *Ledger {
	return &Ledger{
		store:     st,
		emitter:   emitter,
		broadcast: broadcast,
		batches:   batches,
		locks:     locks,
		Now:       time.Now,
	}
}

// PlaceBid runs the admission gates and, if they pass, supersedes the current
// WINNING bid with a new one. The item lock covers the read of the old
// highest through the denormalized item update, so concurrent bidders see
// each other's amounts.
func (l *Ledger) PlaceBid(ctx context.Context, bidder *store.User, itemID string, amount decimal.Decimal) (*store.Bid, error) {
	live, err := l.batches.IsAuctionLive(ctx)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, apperr.New(apperr.PhaseClosed, "the auction is not live")
	}

	unlock := l.locks.Lock(itemID)
	defer unlock()

	it, err := l.store.GetItem(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "item not found")
	}
	if err != nil {
		return nil, err
	}
	if it.Status != store.ItemLive {
		return nil, apperr.New(apperr.PhaseClosed, "item is not open for bidding")
	}
	if it.SellerID == bidder.ID {
		return nil, apperr.New(apperr.Unauthorized, "you cannot bid on your own item")
	}
	if minimum := it.MinimumBid(); amount.LessThan(minimum) {
		return nil, apperr.New(apperr.ValidationFailed,
			"bid too low: minimum is %s", minimum.StringFixed(2))
	}

	prev, err := l.store.HighestBid(ctx, itemID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	prevID := ""
	if prev != nil {
		prevID = prev.ID
	}

	b := &store.Bid{
		ID:         ulid.Make().String(),
		ItemID:     itemID,
		BidderID:   bidder.ID,
		BidderName: bidder.Name,
		Amount:     amount,
		Status:     store.BidWinning,
		PlacedAt:   l.Now(),
	}
	if err := l.store.SupersedeBid(ctx, prevID, b); err != nil {
		return nil, err
	}
	it.CurrentBid = &amount
	it.TotalBids++

	l.notify(ctx, it, b, prev)
	return b, nil
}

// MinimumBid returns the smallest acceptable next bid for an item.
func (l *Ledger) MinimumBid(ctx context.Context, itemID string) (decimal.Decimal, error) {
	it, err := l.store.GetItem(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, apperr.New(apperr.NotFound, "item not found")
	}
	if err != nil {
		return decimal.Zero, err
	}
	return it.MinimumBid(), nil
}

// History returns an item's bids, newest first.
func (l *Ledger) History(ctx context.Context, itemID string) ([]store.Bid, error) {
	return l.store.BidsByItem(ctx, itemID)
}

// MyBids returns everything a bidder has placed, across items.
func (l *Ledger) MyBids(ctx context.Context, bidderID string) ([]store.Bid, error) {
	return l.store.BidsByBidder(ctx, bidderID)
}

// notify fans out the side effects of an accepted bid: seller alert, outbid
// alert for the superseded bidder, watchlist pings, realtime broadcast.
func (l *Ledger) notify(ctx context.Context, it *store.Item, b *store.Bid, prev *store.Bid) {
	placed := alerts.BidPlacedPayload{
		ItemID:     it.ID,
		ItemTitle:  it.Title,
		BidID:      b.ID,
		BidderID:   b.BidderID,
		BidderName: b.BidderName,
		Amount:     b.Amount,
		TotalBids:  it.TotalBids,
		SellerID:   it.SellerID,
	}
	if seller, err := l.store.GetUser(ctx, it.SellerID); err == nil {
		placed.SellerEmail = seller.Email
	}
	l.emitter.Emit(alerts.Event{Type: alerts.EventBidPlaced, Payload: placed})

	if prev != nil && prev.BidderID != b.BidderID {
		outbid := alerts.OutbidPayload{
			ItemID:    it.ID,
			ItemTitle: it.Title,
			BidderID:  prev.BidderID,
			NewAmount: b.Amount,
		}
		if u, err := l.store.GetUser(ctx, prev.BidderID); err == nil {
			outbid.BidderEmail = u.Email
		}
		l.emitter.Emit(alerts.Event{Type: alerts.EventOutbid, Payload: outbid})
	}

	l.notifyWatchers(ctx, it, b)

	l.broadcast.BroadcastItem(it.ID, "new_bid", map[string]any{
		"item_id":     it.ID,
		"bidder_name": b.BidderName,
		"amount":      b.Amount,
		"total_bids":  it.TotalBids,
	})
}

func (l *Ledger) notifyWatchers(ctx context.Context, it *store.Item, b *store.Bid) {
	entries, err := l.store.WatchersOfItem(ctx, it.ID)
	if err != nil {
		log.Printf("[bid] watchers lookup for %s failed: %v", it.ID, err)
		return
	}
	var watchers []alerts.Watcher
	for _, w := range entries {
		if !w.NotifyOnBid || w.UserID == b.BidderID {
			continue
		}
		u, err := l.store.GetUser(ctx, w.UserID)
		if err != nil {
			continue
		}
		watchers = append(watchers, alerts.Watcher{UserID: u.ID, Email: u.Email})
	}
	if len(watchers) == 0 {
		return
	}
	l.emitter.Emit(alerts.Event{Type: alerts.EventWatchlistBid, Payload: alerts.WatchlistPayload{
		ItemID:    it.ID,
		ItemTitle: it.Title,
		Amount:    b.Amount,
		Watchers:  watchers,
	}})
}
