package watchlist_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/auctionhq/auctionhouse/internal/alerts"
	"github.com/auctionhq/auctionhouse/internal/apperr"
	"github.com/auctionhq/auctionhouse/internal/batch"
	"github.com/auctionhq/auctionhouse/internal/bid"
	"github.com/auctionhq/auctionhouse/internal/item"
	"github.com/auctionhq/auctionhouse/internal/messaging"
	"github.com/auctionhq/auctionhouse/internal/store"
	"github.com/auctionhq/auctionhouse/internal/watchlist"
)

var monday = time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type rig struct {
	store   *store.Memory
	events  *alerts.Collector
	clock   *clock
	batches *batch.Manager
	items   *item.Manager
	ledger  *bid.Ledger
	watches *watchlist.Service
}

func newRig(t *testing.T) *rig {
	t.Helper()
	st := store.NewMemory()
	ev := &alerts.Collector{}
	ck := &clock{now: monday}
	locks := store.NewItemLocks()

	batches := batch.NewManager(st, ev, messaging.Noop{}, nil, locks)
	items := item.NewManager(st, ev, messaging.Noop{}, batches)
	batches.SetItems(items)
	ledger := bid.NewLedger(st, ev, messaging.Noop{}, batches, locks)
	watches := watchlist.NewService(st, ev, batches)

	batches.Now = ck.Now
	items.Now = ck.Now
	ledger.Now = ck.Now
	watches.Now = ck.Now

	return &rig{store: st, events: ev, clock: ck, batches: batches, items: items, ledger: ledger, watches: watches}
}

func (r *rig) user(t *testing.T, name, role string) *store.User {
	t.Helper()
	u := &store.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     name + "@example.com",
		Role:      role,
		CreatedAt: r.clock.Now(),
	}
	assert.Nil(t, r.store.CreateUser(context.Background(), u))
	return u
}

func (r *rig) submit(t *testing.T, seller *store.User, title string) *store.Item {
	t.Helper()
	it, err := r.items.Submit(context.Background(), seller, item.SubmitInput{
		Title:         title,
		StartingPrice: decimal.RequireFromString("50.00"),
	})
	assert.Nil(t, err)
	return it
}

func (r *rig) goLive(t *testing.T, admin *store.User) {
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

func TestAddAndRemove(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")
	alice := r.user(t, "alice", "bidder")

	it := r.submit(t, seller, "Globe")

	w, err := r.watches.Add(ctx, alice.ID, it.ID, true)
	assert.Nil(t, err)
	check.Equal(t, true, w.NotifyOnBid)

	// Duplicates are refused.
	_, err = r.watches.Add(ctx, alice.ID, it.ID, false)
	check.Equal(t, apperr.InvalidState, apperr.CodeOf(err))

	// Sellers cannot watch their own lot.
	_, err = r.watches.Add(ctx, seller.ID, it.ID, true)
	check.Equal(t, apperr.ValidationFailed, apperr.CodeOf(err))

	entries, err := r.watches.List(ctx, alice.ID)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(entries))
	check.Equal(t, "Globe", entries[0].Item.Title)

	assert.Nil(t, r.watches.Remove(ctx, alice.ID, it.ID))
	err = r.watches.Remove(ctx, alice.ID, it.ID)
	check.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestBidNotifiesWatchersExceptBidder(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")
	admin := r.user(t, "ada", "admin")
	alice := r.user(t, "alice", "bidder")
	bob := r.user(t, "bob", "bidder")
	carol := r.user(t, "carol", "bidder")

	it := r.submit(t, seller, "Globe")
	_, err := r.watches.Add(ctx, alice.ID, it.ID, true)
	assert.Nil(t, err)
	_, err = r.watches.Add(ctx, bob.ID, it.ID, true)
	assert.Nil(t, err)
	_, err = r.watches.Add(ctx, carol.ID, it.ID, false) // opted out of bid alerts
	assert.Nil(t, err)

	r.goLive(t, admin)

	_, err = r.ledger.PlaceBid(ctx, alice, it.ID, decimal.RequireFromString("50.00"))
	assert.Nil(t, err)

	events := r.events.ByType(alerts.EventWatchlistBid)
	assert.Equal(t, 1, len(events))
	payload := events[0].Payload.(alerts.WatchlistPayload)
	assert.Equal(t, 1, len(payload.Watchers))
	check.Equal(t, bob.ID, payload.Watchers[0].UserID)
}

func TestGoingLiveNotifiesWatchers(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")
	admin := r.user(t, "ada", "admin")
	alice := r.user(t, "alice", "bidder")

	it := r.submit(t, seller, "Globe")
	_, err := r.watches.Add(ctx, alice.ID, it.ID, false)
	assert.Nil(t, err)

	r.goLive(t, admin)

	events := r.events.ByType(alerts.EventWatchlistGoingLive)
	assert.Equal(t, 1, len(events))
	payload := events[0].Payload.(alerts.WatchlistPayload)
	check.Equal(t, it.ID, payload.ItemID)
}

func TestEndingSoonFiresOnce(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")
	admin := r.user(t, "ada", "admin")
	alice := r.user(t, "alice", "bidder")

	it := r.submit(t, seller, "Globe")
	_, err := r.watches.Add(ctx, alice.ID, it.ID, true)
	assert.Nil(t, err)

	r.goLive(t, admin)

	// Mid-auction: too early.
	r.clock.Set(time.Date(2026, time.September, 6, 12, 0, 0, 0, time.UTC))
	assert.Nil(t, r.watches.NotifyEndingSoon(ctx))
	check.Equal(t, 0, len(r.events.ByType(alerts.EventWatchlistEndingSoon)))

	// Final hour: fires exactly once, repeated calls stay quiet.
	r.clock.Set(time.Date(2026, time.September, 6, 19, 30, 0, 0, time.UTC))
	assert.Nil(t, r.watches.NotifyEndingSoon(ctx))
	assert.Nil(t, r.watches.NotifyEndingSoon(ctx))
	events := r.events.ByType(alerts.EventWatchlistEndingSoon)
	assert.Equal(t, 1, len(events))
	payload := events[0].Payload.(alerts.WatchlistPayload)
	check.Equal(t, 1, payload.HoursRemaining)
}
