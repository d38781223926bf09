package item_test

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
	"github.com/auctionhq/auctionhouse/internal/item"
	"github.com/auctionhq/auctionhouse/internal/messaging"
	"github.com/auctionhq/auctionhouse/internal/store"
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
	batches.Now = ck.Now
	items.Now = ck.Now

	return &rig{store: st, events: ev, clock: ck, batches: batches, items: items}
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

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSubmitValidatesAndCounts(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")

	_, err := r.items.Submit(ctx, seller, item.SubmitInput{StartingPrice: price("10.00")})
	check.Equal(t, apperr.ValidationFailed, apperr.CodeOf(err))

	_, err = r.items.Submit(ctx, seller, item.SubmitInput{Title: "Clock", StartingPrice: price("0")})
	check.Equal(t, apperr.ValidationFailed, apperr.CodeOf(err))

	rp := price("5.00")
	_, err = r.items.Submit(ctx, seller, item.SubmitInput{Title: "Clock", StartingPrice: price("10.00"), ReservePrice: &rp})
	check.Equal(t, apperr.ValidationFailed, apperr.CodeOf(err))

	it, err := r.items.Submit(ctx, seller, item.SubmitInput{Title: "  Clock  ", StartingPrice: price("10.00")})
	assert.Nil(t, err)
	check.Equal(t, "Clock", it.Title)
	check.Equal(t, store.ItemSubmitted, it.Status)
	check.True(t, it.BidIncrement.Equal(store.DefaultBidIncrement))
	check.True(t, it.SubmittedAt != nil)

	b, _ := r.batches.ResolveCurrentBatch(ctx)
	check.Equal(t, 1, b.TotalSubmitted)
	check.Equal(t, 1, len(r.events.ByType(alerts.EventItemSubmitted)))
}

func TestSubmitClosedOutsideWindow(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")

	r.clock.Set(time.Date(2026, time.September, 3, 8, 0, 0, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(ctx))

	_, err := r.items.Submit(ctx, seller, item.SubmitInput{Title: "Late lot", StartingPrice: price("10.00")})
	check.Equal(t, apperr.PhaseClosed, apperr.CodeOf(err))
}

func TestReviewDecisions(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")
	admin := r.user(t, "ada", "admin")

	approve, _ := r.items.Submit(ctx, seller, item.SubmitInput{Title: "Approve me", StartingPrice: price("10.00")})
	reject, _ := r.items.Submit(ctx, seller, item.SubmitInput{Title: "Reject me", StartingPrice: price("10.00")})
	rework, _ := r.items.Submit(ctx, seller, item.SubmitInput{Title: "Fix me", StartingPrice: price("10.00")})

	// Reviewers can work ahead of the review window: an item still in
	// SUBMITTED is reviewable.
	got, err := r.items.Review(ctx, admin, approve.ID, item.ReviewDecision{Approve: true})
	assert.Nil(t, err)
	check.Equal(t, store.ItemApproved, got.Status)
	check.Equal(t, admin.ID, got.ReviewedBy)
	check.True(t, got.ApprovedAt != nil)

	r.clock.Set(time.Date(2026, time.September, 3, 8, 0, 0, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(ctx))

	// Rejection without a reason is refused.
	_, err = r.items.Review(ctx, admin, reject.ID, item.ReviewDecision{})
	check.Equal(t, apperr.ValidationFailed, apperr.CodeOf(err))

	got, err = r.items.Review(ctx, admin, reject.ID, item.ReviewDecision{Reason: "fake listing"})
	assert.Nil(t, err)
	check.Equal(t, store.ItemRejected, got.Status)
	check.Equal(t, "fake listing", got.RejectionReason)

	got, err = r.items.Review(ctx, admin, rework.ID, item.ReviewDecision{RequestChanges: true, Reason: "add photos"})
	assert.Nil(t, err)
	check.Equal(t, store.ItemChangesRequested, got.Status)
	check.Equal(t, "add photos", got.AdminNote)

	// A decided item cannot be re-reviewed.
	_, err = r.items.Review(ctx, admin, approve.ID, item.ReviewDecision{Approve: true})
	check.Equal(t, apperr.InvalidState, apperr.CodeOf(err))

	b, _ := r.batches.ResolveCurrentBatch(ctx)
	check.Equal(t, 1, b.TotalApproved)
	check.Equal(t, 1, b.TotalRejected)

	check.Equal(t, 1, len(r.events.ByType(alerts.EventItemApproved)))
	check.Equal(t, 1, len(r.events.ByType(alerts.EventItemRejected)))
	check.Equal(t, 1, len(r.events.ByType(alerts.EventItemChangesRequested)))
}

func TestPendingReviewIncludesSubmitted(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")
	admin := r.user(t, "ada", "admin")

	first, _ := r.items.Submit(ctx, seller, item.SubmitInput{Title: "First", StartingPrice: price("10.00")})
	second, _ := r.items.Submit(ctx, seller, item.SubmitInput{Title: "Second", StartingPrice: price("10.00")})

	// Both sit in the queue before the review phase starts.
	pending, err := r.items.PendingReview(ctx)
	assert.Nil(t, err)
	check.Equal(t, 2, len(pending))

	_, err = r.items.Review(ctx, admin, first.ID, item.ReviewDecision{Approve: true})
	assert.Nil(t, err)

	r.clock.Set(time.Date(2026, time.September, 3, 8, 0, 0, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(ctx))

	pending, err = r.items.PendingReview(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(pending))
	check.Equal(t, second.ID, pending[0].ID)
}

func TestResubmitAfterChangesRequested(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")
	admin := r.user(t, "ada", "admin")

	it, _ := r.items.Submit(ctx, seller, item.SubmitInput{Title: "Fix me", StartingPrice: price("10.00")})

	r.clock.Set(time.Date(2026, time.September, 3, 8, 0, 0, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(ctx))
	_, err := r.items.Review(ctx, admin, it.ID, item.ReviewDecision{RequestChanges: true, Reason: "add photos"})
	assert.Nil(t, err)

	title := "Fixed lot"
	got, err := r.items.Update(ctx, seller.ID, it.ID, item.UpdateInput{Title: &title, ImageURLs: []string{"a.jpg", "b.jpg"}})
	assert.Nil(t, err)
	check.Equal(t, store.ItemUnderReview, got.Status)
	check.Equal(t, "Fixed lot", got.Title)
	check.Equal(t, "a.jpg,b.jpg", got.ImageURLs)
	check.Equal(t, "", got.AdminNote)

	// Back in the reviewer queue.
	got, err = r.items.Review(ctx, admin, it.ID, item.ReviewDecision{Approve: true})
	assert.Nil(t, err)
	check.Equal(t, store.ItemApproved, got.Status)
}

func TestBulkTransitionsEmitItemStatus(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")
	admin := r.user(t, "ada", "admin")

	first, _ := r.items.Submit(ctx, seller, item.SubmitInput{Title: "First", StartingPrice: price("10.00")})
	second, _ := r.items.Submit(ctx, seller, item.SubmitInput{Title: "Second", StartingPrice: price("10.00")})

	r.clock.Set(time.Date(2026, time.September, 3, 8, 0, 0, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(ctx))

	// One status event per item entering review.
	events := r.events.ByType(alerts.EventItemStatus)
	assert.Equal(t, 2, len(events))
	for _, e := range events {
		p := e.Payload.(alerts.ItemStatusPayload)
		check.Equal(t, store.ItemSubmitted, p.OldStatus)
		check.Equal(t, store.ItemUnderReview, p.NewStatus)
	}

	_, err := r.items.Review(ctx, admin, first.ID, item.ReviewDecision{Approve: true})
	assert.Nil(t, err)
	_, err = r.items.Review(ctx, admin, second.ID, item.ReviewDecision{Approve: true})
	assert.Nil(t, err)

	r.clock.Set(time.Date(2026, time.September, 5, 10, 30, 0, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(ctx))

	live := 0
	for _, e := range r.events.ByType(alerts.EventItemStatus) {
		if e.Payload.(alerts.ItemStatusPayload).NewStatus == store.ItemLive {
			live++
		}
	}
	check.Equal(t, 2, live)
}

func TestReviewerCannotReviewOwnItem(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	admin := r.user(t, "ada", "admin")

	it, err := r.items.Submit(ctx, admin, item.SubmitInput{Title: "My own lot", StartingPrice: price("10.00")})
	assert.Nil(t, err)

	r.clock.Set(time.Date(2026, time.September, 3, 8, 0, 0, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(ctx))

	_, err = r.items.Review(ctx, admin, it.ID, item.ReviewDecision{Approve: true})
	check.Equal(t, apperr.Unauthorized, apperr.CodeOf(err))
}

func TestWithdrawOnlyWhileSubmitted(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	seller := r.user(t, "sally", "seller")
	other := r.user(t, "olga", "seller")

	it, _ := r.items.Submit(ctx, seller, item.SubmitInput{Title: "Second thoughts", StartingPrice: price("10.00")})

	_, err := r.items.Withdraw(ctx, other.ID, it.ID)
	check.Equal(t, apperr.Unauthorized, apperr.CodeOf(err))

	got, err := r.items.Withdraw(ctx, seller.ID, it.ID)
	assert.Nil(t, err)
	check.Equal(t, store.ItemWithdrawn, got.Status)
	check.True(t, got.WithdrawnAt != nil)

	b, _ := r.batches.ResolveCurrentBatch(ctx)
	check.Equal(t, 0, b.TotalSubmitted)

	// Once under review, withdrawal is off the table.
	it2, _ := r.items.Submit(ctx, seller, item.SubmitInput{Title: "Committed", StartingPrice: price("10.00")})
	r.clock.Set(time.Date(2026, time.September, 3, 8, 0, 0, 0, time.UTC))
	assert.Nil(t, r.batches.Tick(ctx))
	_, err = r.items.Withdraw(ctx, seller.ID, it2.ID)
	check.Equal(t, apperr.InvalidState, apperr.CodeOf(err))
}
