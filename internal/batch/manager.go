package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/auctionhq/auctionhouse/internal/alerts"
	"github.com/auctionhq/auctionhouse/internal/apperr"
	"github.com/auctionhq/auctionhouse/internal/messaging"
	"github.com/auctionhq/auctionhouse/internal/store"
)

// ItemTransitioner is the slice of the item lifecycle manager the batch
// manager drives at phase boundaries. Bulk transitions go through it so item
// status stays owned by one component.
type ItemTransitioner interface {
	TransitionBatch(ctx context.Context, batchID string, from, to store.ItemStatus, startedAt *time.Time) ([]store.Item, error)
}

// Manager owns the batch state machine SUBMISSION -> REVIEW -> LIVE -> ENDED
// -> SETTLED. Transitions are guarded by current status plus boundary time,
// so reapplying a tick after a transition already fired is a no-op.
type Manager struct {
	store     store.Store
	emitter   alerts.Emitter
	broadcast messaging.Broadcaster
	items     ItemTransitioner
	locks     *store.ItemLocks

	// SchedulerEnabled blocks the manual override path while the automatic
	// ticker is active, so phases cannot be double-advanced. Atomic: the
	// scheduler goroutine writes it while request handlers read it.
	SchedulerEnabled atomic.Bool

	// Now is swappable in tests.
	Now func() time.Time
}

func NewManager(st store.Store, emitter alerts.Emitter, broadcast messaging.Broadcaster, items ItemTransitioner, locks *store.ItemLocks) *Manager {
	return &Manager{
		store:     st,
		emitter:   emitter,
		broadcast: broadcast,
		items:     items,
		locks:     locks,
		Now:       time.Now,
	}
}

// SetItems wires the item manager in after construction; the item manager
// needs the batch manager first, so the dependency closes here.
func (m *Manager) SetItems(items ItemTransitioner) {
	m.items = items
}

// BatchCode formats the human-readable weekly code, e.g. BATCH-2026-W36.
func BatchCode(year, week int) string {
	return fmt.Sprintf("BATCH-%d-W%02d", year, week)
}

// ResolveCurrentBatch returns the batch for the current ISO week, creating it
// if this is the first touch of the week. Always a query against persisted
// state, never a cached singleton.
func (m *Manager) ResolveCurrentBatch(ctx context.Context) (*store.Batch, error) {
	now := m.Now()
	year, week := now.ISOWeek()

	b, err := m.store.GetBatchByWeek(ctx, week, year)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return m.createWeekBatch(ctx, now, week, year)
}

func (m *Manager) createWeekBatch(ctx context.Context, now time.Time, week, year int) (*store.Batch, error) {
	monday := weekMonday(now)

	b := &store.Batch{
		ID:         uuid.New().String(),
		Code:       BatchCode(year, week),
		WeekNumber: week,
		Year:       year,
		Status:     store.BatchSubmission,

		// Submission Mon-Wed, review Thu-Fri, auction Sat 10:00 - Sun 20:00.
		SubmissionStart: monday,
		SubmissionEnd:   monday.AddDate(0, 0, 2).Add(23*time.Hour + 59*time.Minute + 59*time.Second),
		ReviewStart:     monday.AddDate(0, 0, 3),
		ReviewEnd:       monday.AddDate(0, 0, 4).Add(23*time.Hour + 59*time.Minute + 59*time.Second),
		AuctionStart:    monday.AddDate(0, 0, 5).Add(10 * time.Hour),
		AuctionEnd:      monday.AddDate(0, 0, 6).Add(20 * time.Hour),

		TotalRevenue: decimal.Zero,
	}

	if err := m.store.CreateBatch(ctx, b); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// A concurrent caller created it first; fall back to the read.
			return m.store.GetBatchByWeek(ctx, week, year)
		}
		return nil, err
	}
	log.Printf("[batch] created %s (submission until %s)", b.Code, b.SubmissionEnd.Format(time.RFC3339))
	return b, nil
}

func weekMonday(now time.Time) time.Time {
	day := now
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, -1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
}

// Tick advances the current batch if a boundary has passed. Safe to call more
// often than necessary; at most one transition fires per call.
func (m *Manager) Tick(ctx context.Context) error {
	b, err := m.ResolveCurrentBatch(ctx)
	if err != nil {
		return err
	}
	_, err = m.Advance(ctx, b, m.Now())
	return err
}

// Advance evaluates the guarded transitions in order and performs at most one.
// Returns whether a transition happened.
func (m *Manager) Advance(ctx context.Context, b *store.Batch, now time.Time) (bool, error) {
	switch b.Status {
	case store.BatchSubmission:
		if now.After(b.SubmissionEnd) {
			return true, m.transitionToReview(ctx, b)
		}
	case store.BatchReview:
		if now.After(b.ReviewEnd) && now.After(b.AuctionStart.Add(-time.Minute)) {
			return true, m.startAuction(ctx, b)
		}
	case store.BatchLive:
		if now.After(b.AuctionEnd) {
			return true, m.endAuction(ctx, b)
		}
	}
	return false, nil
}

// ForceTransition applies one transition without the time gate. Admin-only
// recovery/testing path, refused while the automatic scheduler runs.
func (m *Manager) ForceTransition(ctx context.Context, batchID string, target store.BatchStatus) (*store.Batch, error) {
	if m.SchedulerEnabled.Load() {
		return nil, apperr.New(apperr.InvalidState, "manual transitions are disabled while the scheduler is enabled")
	}

	b, err := m.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	switch {
	case b.Status == store.BatchSubmission && target == store.BatchReview:
		err = m.transitionToReview(ctx, b)
	case b.Status == store.BatchReview && target == store.BatchLive:
		err = m.startAuction(ctx, b)
	case b.Status == store.BatchLive && target == store.BatchEnded:
		err = m.endAuction(ctx, b)
	case b.Status == store.BatchEnded && target == store.BatchSettled:
		err = m.settle(ctx, b)
	default:
		return nil, apperr.New(apperr.InvalidState,
			"cannot transition batch from %s to %s", b.Status, target)
	}
	if err != nil {
		return nil, err
	}
	return m.GetBatch(ctx, batchID)
}

// CreateTestBatch makes a batch with compressed phase windows for operator
// testing. Like ForceTransition it is refused while the scheduler is on.
func (m *Manager) CreateTestBatch(ctx context.Context) (*store.Batch, error) {
	if m.SchedulerEnabled.Load() {
		return nil, apperr.New(apperr.InvalidState, "test batches are disabled while the scheduler is enabled")
	}

	now := m.Now()
	year, week := now.ISOWeek()
	b := &store.Batch{
		ID:         uuid.New().String(),
		Code:       fmt.Sprintf("TEST-BATCH-%d", now.UnixMilli()),
		WeekNumber: week,
		Year:       year,
		Status:     store.BatchSubmission,

		SubmissionStart: now.Add(-10 * time.Minute),
		SubmissionEnd:   now.Add(5 * time.Minute),
		ReviewStart:     now.Add(6 * time.Minute),
		ReviewEnd:       now.Add(10 * time.Minute),
		AuctionStart:    now.Add(11 * time.Minute),
		AuctionEnd:      now.Add(15 * time.Minute),

		TotalRevenue: decimal.Zero,
	}
	if err := m.store.CreateBatch(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (m *Manager) GetBatch(ctx context.Context, id string) (*store.Batch, error) {
	b, err := m.store.GetBatch(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "batch not found")
	}
	return b, err
}

func (m *Manager) GetBatchByCode(ctx context.Context, code string) (*store.Batch, error) {
	b, err := m.store.GetBatchByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "batch not found")
	}
	return b, err
}

func (m *Manager) ListBatches(ctx context.Context, limit, offset int) ([]store.Batch, error) {
	return m.store.ListBatches(ctx, limit, offset)
}

// ---- Admission gates ----

// IsSubmissionOpen reports whether sellers can submit right now.
func (m *Manager) IsSubmissionOpen(ctx context.Context) (bool, error) {
	b, err := m.ResolveCurrentBatch(ctx)
	if err != nil {
		return false, err
	}
	now := m.Now()
	return b.Status == store.BatchSubmission &&
		now.After(b.SubmissionStart) && now.Before(b.SubmissionEnd), nil
}

// IsReviewActive reports whether admins are inside the review window.
func (m *Manager) IsReviewActive(ctx context.Context) (bool, error) {
	b, err := m.ResolveCurrentBatch(ctx)
	if err != nil {
		return false, err
	}
	now := m.Now()
	return b.Status == store.BatchReview &&
		now.After(b.ReviewStart) && now.Before(b.ReviewEnd), nil
}

// IsAuctionLive reports whether bidding is open.
func (m *Manager) IsAuctionLive(ctx context.Context) (bool, error) {
	b, err := m.ResolveCurrentBatch(ctx)
	if err != nil {
		return false, err
	}
	return b.Status == store.BatchLive, nil
}

// ---- Transitions ----

func (m *Manager) transitionToReview(ctx context.Context, b *store.Batch) error {
	if err := m.store.UpdateBatchStatus(ctx, b.ID, store.BatchReview); err != nil {
		return err
	}
	b.Status = store.BatchReview

	items, err := m.items.TransitionBatch(ctx, b.ID, store.ItemSubmitted, store.ItemUnderReview, nil)
	if err != nil {
		return err
	}

	m.announce(b, "Submission phase ended. Items are now under review.")
	log.Printf("[batch] %s -> REVIEW, %d items under review", b.Code, len(items))
	return nil
}

func (m *Manager) startAuction(ctx context.Context, b *store.Batch) error {
	if err := m.store.UpdateBatchStatus(ctx, b.ID, store.BatchLive); err != nil {
		return err
	}
	b.Status = store.BatchLive

	startedAt := m.Now()
	items, err := m.items.TransitionBatch(ctx, b.ID, store.ItemApproved, store.ItemLive, &startedAt)
	if err != nil {
		return err
	}

	m.announce(b, "Auction is now live. Start bidding!")
	log.Printf("[batch] %s -> LIVE, %d items live", b.Code, len(items))
	return nil
}

func (m *Manager) endAuction(ctx context.Context, b *store.Batch) error {
	if err := m.store.UpdateBatchStatus(ctx, b.ID, store.BatchEnded); err != nil {
		return err
	}
	b.Status = store.BatchEnded

	summary, err := m.resolveBatch(ctx, b)
	if err != nil {
		return err
	}

	if err := m.store.SetBatchResults(ctx, b.ID, summary.Sold, summary.Revenue); err != nil {
		return err
	}

	m.announce(b, fmt.Sprintf("Auction ended. %d items sold.", summary.Sold))
	m.emitter.Emit(alerts.Event{Type: alerts.EventAuctionEnded, Payload: alerts.AuctionEndedPayload{
		BatchID:   b.ID,
		BatchCode: b.Code,
		Sold:      summary.Sold,
		Unsold:    summary.Unsold,
		Revenue:   summary.Revenue,
		Failed:    len(summary.Failed),
	}})

	log.Printf("[batch] %s -> ENDED, sold=%d unsold=%d failed=%d revenue=%s",
		b.Code, summary.Sold, summary.Unsold, len(summary.Failed), summary.Revenue.StringFixed(2))
	return nil
}

func (m *Manager) settle(ctx context.Context, b *store.Batch) error {
	if err := m.store.UpdateBatchStatus(ctx, b.ID, store.BatchSettled); err != nil {
		return err
	}
	b.Status = store.BatchSettled
	m.announce(b, "Batch settled.")
	log.Printf("[batch] %s -> SETTLED", b.Code)
	return nil
}

// announce emits exactly one batch-status side effect and mirrors it to the
// realtime channel.
func (m *Manager) announce(b *store.Batch, message string) {
	payload := alerts.BatchStatusPayload{
		BatchID:   b.ID,
		BatchCode: b.Code,
		Status:    b.Status,
		Message:   message,
	}
	if b.Status == store.BatchLive {
		mins := int64(b.AuctionEnd.Sub(m.Now()).Minutes())
		payload.MinutesRemaining = &mins
	}
	m.emitter.Emit(alerts.Event{Type: alerts.EventBatchStatus, Payload: payload})
	m.broadcast.BroadcastAuction("auction_status", payload)
}
