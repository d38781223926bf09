package batch_test

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
)

// monday anchors every test in ISO week 36 of 2026.
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

	batches.Now = ck.Now
	items.Now = ck.Now
	ledger.Now = ck.Now

	return &rig{store: st, events: ev, clock: ck, batches: batches, items: items, ledger: ledger}
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

func (r *rig) submit(t *testing.T, seller *store.User, title string, starting string, reserve string) *store.Item {
	t.Helper()
	in := item.SubmitInput{
		Title:         title,
		StartingPrice: decimal.RequireFromString(starting),
	}
	if reserve != "" {
		rp := decimal.RequireFromString(reserve)
		in.ReservePrice = &rp
	}
	it, err := r.items.Submit(context.Background(), seller, in)
	assert.Nil(t, err)
	return it
}

func TestResolveCurrentBatchCreatesWeekWindows(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	b, err := r.batches.ResolveCurrentBatch(ctx)
	assert.Nil(t, err)

	check.Equal(t, "BATCH-2026-W36", b.Code)
	check.Equal(t, store.BatchSubmission, b.Status)
	check.Equal(t, time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC), b.SubmissionStart)
	check.Equal(t, time.Date(2026, time.September, 2, 23, 59, 59, 0, time.UTC), b.SubmissionEnd)
	check.Equal(t, time.Date(2026, time.September, 3, 0, 0, 0, 0, time.UTC), b.ReviewStart)
	check.Equal(t, time.Date(2026, time.September, 4, 23, 59, 59, 0, time.UTC), b.ReviewEnd)
	check.Equal(t, time.Date(2026, time.September, 5, 10, 0, 0, 0, time.UTC), b.AuctionStart)
	check.Equal(t, time.Date(2026, time.September, 6, 20, 0, 0, 0, time.UTC), b.AuctionEnd)

	// Second resolve returns the same batch, no duplicate.
	again, err := r.batches.ResolveCurrentBatch(ctx)
	assert.Nil(t, err)
	check.Equal(t, b.ID, again.ID)
}

func TestAdvanceWalksThePhases(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")
	admin := r.user(t, "ada", "admin")

	it := r.submit(t, seller, "Walnut desk", "100.00", "")

	// Nothing happens mid-submission.
	b, _ := r.batches.ResolveCurrentBatch(ctx)
	moved, err := r.batches.Advance(ctx, b, r.clock.Now())
	assert.Nil(t, err)
	check.False(t, moved)

	// Thursday: submission has ended.
	r.clock.Set(time.Date(2026, time.September, 3, 0, 30, 0, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(ctx))
	b, _ = r.batches.ResolveCurrentBatch(ctx)
	check.Equal(t, store.BatchReview, b.Status)

	got, _ := r.store.GetItem(ctx, it.ID)
	check.Equal(t, store.ItemUnderReview, got.Status)

	// A second tick at the same instant is a no-op.
	assert.Nil(t, r.batches.Tick(ctx))
	b, _ = r.batches.ResolveCurrentBatch(ctx)
	check.Equal(t, store.BatchReview, b.Status)

	_, err = r.items.Review(ctx, admin, it.ID, item.ReviewDecision{Approve: true})
	assert.Nil(t, err)

	// Saturday 00:10: past review end but more than a minute before the
	// auction opens, so the batch holds in REVIEW.
	r.clock.Set(time.Date(2026, time.September, 5, 0, 10, 0, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(ctx))
	b, _ = r.batches.ResolveCurrentBatch(ctx)
	check.Equal(t, store.BatchReview, b.Status)

	// 09:59:30: inside the one-minute lead.
	r.clock.Set(time.Date(2026, time.September, 5, 9, 59, 30, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(ctx))
	b, _ = r.batches.ResolveCurrentBatch(ctx)
	check.Equal(t, store.BatchLive, b.Status)

	got, _ = r.store.GetItem(ctx, it.ID)
	check.Equal(t, store.ItemLive, got.Status)
	check.True(t, got.AuctionStarted != nil)

	// Sunday 20:01: auction over.
	r.clock.Set(time.Date(2026, time.September, 6, 20, 1, 0, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(ctx))
	b, _ = r.batches.ResolveCurrentBatch(ctx)
	check.Equal(t, store.BatchEnded, b.Status)

	// One status announcement per transition.
	check.Equal(t, 3, len(r.events.ByType(alerts.EventBatchStatus)))
	check.Equal(t, 1, len(r.events.ByType(alerts.EventAuctionEnded)))
}

func TestManualOverridesBlockedWhileSchedulerRuns(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	b, err := r.batches.ResolveCurrentBatch(ctx)
	assert.Nil(t, err)

	r.batches.SchedulerEnabled.Store(true)
	_, err = r.batches.ForceTransition(ctx, b.ID, store.BatchReview)
	check.Equal(t, apperr.InvalidState, apperr.CodeOf(err))
	_, err = r.batches.CreateTestBatch(ctx)
	check.Equal(t, apperr.InvalidState, apperr.CodeOf(err))

	r.batches.SchedulerEnabled.Store(false)
	got, err := r.batches.ForceTransition(ctx, b.ID, store.BatchReview)
	assert.Nil(t, err)
	check.Equal(t, store.BatchReview, got.Status)

	// Skipping a phase is refused.
	_, err = r.batches.ForceTransition(ctx, b.ID, store.BatchEnded)
	check.Equal(t, apperr.InvalidState, apperr.CodeOf(err))
}

func TestForceTransitionSettlesEndedBatch(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	b, err := r.batches.ResolveCurrentBatch(ctx)
	assert.Nil(t, err)
	for _, target := range []store.BatchStatus{store.BatchReview, store.BatchLive, store.BatchEnded, store.BatchSettled} {
		b, err = r.batches.ForceTransition(ctx, b.ID, target)
		assert.Nil(t, err)
		check.Equal(t, target, b.Status)
	}
}
