package item

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/auctionhq/auctionhouse/internal/alerts"
	"github.com/auctionhq/auctionhouse/internal/apperr"
	"github.com/auctionhq/auctionhouse/internal/batch"
	"github.com/auctionhq/auctionhouse/internal/messaging"
	"github.com/auctionhq/auctionhouse/internal/store"
)

// Manager owns the item state machine from submission through review to the
// auction floor. Status moves only through here or through batch resolution.
type Manager struct {
	store     store.Store
	emitter   alerts.Emitter
	broadcast messaging.Broadcaster
	batches   *batch.Manager

	Now func() time.Time
}

func NewManager(st store.Store, emitter alerts.Emitter, broadcast messaging.Broadcaster, batches *batch.Manager) *Manager {
	return &Manager{
		store:     st,
		emitter:   emitter,
		broadcast: broadcast,
		batches:   batches,
		Now:       time.Now,
	}
}

// SubmitInput is everything a seller provides for a new lot.
type SubmitInput struct {
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Category      string           `json:"category"`
	ImageURLs     []string         `json:"image_urls"`
	StartingPrice decimal.Decimal  `json:"starting_price"`
	ReservePrice  *decimal.Decimal `json:"reserve_price"`
	BidIncrement  *decimal.Decimal `json:"bid_increment"`
}

func (in *SubmitInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return apperr.New(apperr.ValidationFailed, "title is required")
	}
	if !in.StartingPrice.IsPositive() {
		return apperr.New(apperr.ValidationFailed, "starting price must be positive")
	}
	if in.ReservePrice != nil && in.ReservePrice.LessThan(in.StartingPrice) {
		return apperr.New(apperr.ValidationFailed, "reserve price cannot be below the starting price")
	}
	if in.BidIncrement != nil && !in.BidIncrement.IsPositive() {
		return apperr.New(apperr.ValidationFailed, "bid increment must be positive")
	}
	return nil
}

// Submit creates a SUBMITTED item in the current batch. Only possible while
// the submission window is open.
func (m *Manager) Submit(ctx context.Context, seller *store.User, in SubmitInput) (*store.Item, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	open, err := m.batches.IsSubmissionOpen(ctx)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, apperr.New(apperr.PhaseClosed, "the submission window is closed")
	}

	b, err := m.batches.ResolveCurrentBatch(ctx)
	if err != nil {
		return nil, err
	}

	now := m.Now()
	increment := store.DefaultBidIncrement
	if in.BidIncrement != nil {
		increment = *in.BidIncrement
	}
	it := &store.Item{
		ID:            uuid.New().String(),
		BatchID:       b.ID,
		SellerID:      seller.ID,
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		Category:      in.Category,
		ImageURLs:     strings.Join(in.ImageURLs, ","),
		StartingPrice: in.StartingPrice,
		ReservePrice:  in.ReservePrice,
		BidIncrement:  increment,
		Status:        store.ItemSubmitted,
		SubmittedAt:   &now,
	}
	if err := m.store.CreateItem(ctx, it); err != nil {
		return nil, err
	}
	if err := m.store.AddBatchCounters(ctx, b.ID, store.BatchCounterDelta{Submitted: 1}); err != nil {
		log.Printf("[item] counter update for batch %s failed: %v", b.ID, err)
	}

	m.emitter.Emit(alerts.Event{Type: alerts.EventItemSubmitted, Payload: alerts.ItemEventPayload{
		ItemID:      it.ID,
		ItemTitle:   it.Title,
		SellerID:    seller.ID,
		SellerName:  seller.Name,
		SellerEmail: seller.Email,
		BatchCode:   b.Code,
	}})
	return it, nil
}

// UpdateInput carries the seller-editable fields; nil means leave unchanged.
type UpdateInput struct {
	Title         *string          `json:"title"`
	Description   *string          `json:"description"`
	Category      *string          `json:"category"`
	ImageURLs     []string         `json:"image_urls"`
	StartingPrice *decimal.Decimal `json:"starting_price"`
	ReservePrice  *decimal.Decimal `json:"reserve_price"`
	BidIncrement  *decimal.Decimal `json:"bid_increment"`
}

// Update edits an item that has not entered review, or resubmits one the
// reviewer sent back. Resubmission moves CHANGES_REQUESTED back to
// UNDER_REVIEW.
func (m *Manager) Update(ctx context.Context, sellerID, itemID string, in UpdateInput) (*store.Item, error) {
	it, err := m.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.SellerID != sellerID {
		return nil, apperr.New(apperr.Unauthorized, "you can only edit your own items")
	}
	if it.Status != store.ItemSubmitted && it.Status != store.ItemChangesRequested {
		return nil, apperr.New(apperr.InvalidState, "item in status %s cannot be edited", it.Status)
	}

	if in.Title != nil {
		it.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		it.Description = *in.Description
	}
	if in.Category != nil {
		it.Category = *in.Category
	}
	if in.ImageURLs != nil {
		it.ImageURLs = strings.Join(in.ImageURLs, ",")
	}
	if in.StartingPrice != nil {
		it.StartingPrice = *in.StartingPrice
	}
	if in.ReservePrice != nil {
		it.ReservePrice = in.ReservePrice
	}
	if in.BidIncrement != nil {
		it.BidIncrement = *in.BidIncrement
	}

	check := SubmitInput{Title: it.Title, StartingPrice: it.StartingPrice, ReservePrice: it.ReservePrice}
	if err := check.validate(); err != nil {
		return nil, err
	}

	if it.Status == store.ItemChangesRequested {
		it.Status = store.ItemUnderReview
		it.AdminNote = ""
	}
	if err := m.store.SaveItem(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

// Withdraw pulls a seller's own item before review starts. A withdrawn item
// leaves the batch counters as if it were never submitted.
func (m *Manager) Withdraw(ctx context.Context, sellerID, itemID string) (*store.Item, error) {
	it, err := m.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.SellerID != sellerID {
		return nil, apperr.New(apperr.Unauthorized, "you can only withdraw your own items")
	}
	if it.Status != store.ItemSubmitted {
		return nil, apperr.New(apperr.InvalidState, "item in status %s cannot be withdrawn", it.Status)
	}

	now := m.Now()
	it.Status = store.ItemWithdrawn
	it.WithdrawnAt = &now
	if err := m.store.SaveItem(ctx, it); err != nil {
		return nil, err
	}
	if err := m.store.AddBatchCounters(ctx, it.BatchID, store.BatchCounterDelta{Submitted: -1}); err != nil {
		log.Printf("[item] counter update for batch %s failed: %v", it.BatchID, err)
	}
	return it, nil
}

// ReviewDecision is an admin's verdict on one item under review.
type ReviewDecision struct {
	Approve        bool   `json:"approve"`
	RequestChanges bool   `json:"request_changes"`
	Reason         string `json:"reason"` // rejection reason or change feedback
}

// Review applies one reviewer decision to a SUBMITTED or UNDER_REVIEW item.
// Reviewers may work ahead of the review window, so there is no phase gate
// here. Approve and reject are terminal for the review round; request-changes
// hands the item back to the seller.
func (m *Manager) Review(ctx context.Context, reviewer *store.User, itemID string, d ReviewDecision) (*store.Item, error) {
	it, err := m.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.Status != store.ItemSubmitted && it.Status != store.ItemUnderReview {
		return nil, apperr.New(apperr.InvalidState, "item in status %s cannot be reviewed", it.Status)
	}
	if it.SellerID == reviewer.ID {
		return nil, apperr.New(apperr.Unauthorized, "reviewers cannot review their own items")
	}

	now := m.Now()
	it.ReviewedBy = reviewer.ID
	it.ReviewedAt = &now

	var evtType alerts.EventType
	var delta store.BatchCounterDelta
	switch {
	case d.Approve:
		it.Status = store.ItemApproved
		it.ApprovedAt = &now
		evtType = alerts.EventItemApproved
		delta = store.BatchCounterDelta{Approved: 1}
	case d.RequestChanges:
		if strings.TrimSpace(d.Reason) == "" {
			return nil, apperr.New(apperr.ValidationFailed, "feedback is required when requesting changes")
		}
		it.Status = store.ItemChangesRequested
		it.AdminNote = d.Reason
		evtType = alerts.EventItemChangesRequested
	default:
		if strings.TrimSpace(d.Reason) == "" {
			return nil, apperr.New(apperr.ValidationFailed, "a rejection reason is required")
		}
		it.Status = store.ItemRejected
		it.RejectionReason = d.Reason
		evtType = alerts.EventItemRejected
		delta = store.BatchCounterDelta{Rejected: 1}
	}

	if err := m.store.SaveItem(ctx, it); err != nil {
		return nil, err
	}
	if delta != (store.BatchCounterDelta{}) {
		if err := m.store.AddBatchCounters(ctx, it.BatchID, delta); err != nil {
			log.Printf("[item] counter update for batch %s failed: %v", it.BatchID, err)
		}
	}

	payload := alerts.ItemEventPayload{
		ItemID:    it.ID,
		ItemTitle: it.Title,
		SellerID:  it.SellerID,
		Reason:    d.Reason,
	}
	if seller, err := m.store.GetUser(ctx, it.SellerID); err == nil {
		payload.SellerName = seller.Name
		payload.SellerEmail = seller.Email
	}
	m.emitter.Emit(alerts.Event{Type: evtType, Payload: payload})
	return it, nil
}

// TransitionBatch bulk-moves every item of a batch in status from to status
// to. Called by the batch manager at phase boundaries. When items go LIVE
// their auction start is stamped and watchers are alerted.
func (m *Manager) TransitionBatch(ctx context.Context, batchID string, from, to store.ItemStatus, startedAt *time.Time) ([]store.Item, error) {
	items, err := m.store.ItemsByBatchAndStatus(ctx, batchID, from)
	if err != nil {
		return nil, err
	}
	for i := range items {
		it := &items[i]
		it.Status = to
		if startedAt != nil {
			it.AuctionStarted = startedAt
		}
		if err := m.store.SaveItem(ctx, it); err != nil {
			return nil, err
		}
		m.emitter.Emit(alerts.Event{Type: alerts.EventItemStatus, Payload: alerts.ItemStatusPayload{
			ItemID:    it.ID,
			ItemTitle: it.Title,
			OldStatus: from,
			NewStatus: to,
		}})
		m.broadcast.BroadcastItem(it.ID, "item_status", map[string]any{"item_id": it.ID, "status": to})
		if to == store.ItemLive {
			m.notifyWatchersGoingLive(ctx, it)
		}
	}
	return items, nil
}

func (m *Manager) notifyWatchersGoingLive(ctx context.Context, it *store.Item) {
	watchers := m.watchersOf(ctx, it.ID)
	if len(watchers) == 0 {
		return
	}
	m.emitter.Emit(alerts.Event{Type: alerts.EventWatchlistGoingLive, Payload: alerts.WatchlistPayload{
		ItemID:    it.ID,
		ItemTitle: it.Title,
		Watchers:  watchers,
	}})
}

func (m *Manager) watchersOf(ctx context.Context, itemID string) []alerts.Watcher {
	entries, err := m.store.WatchersOfItem(ctx, itemID)
	if err != nil {
		log.Printf("[item] watchers lookup for %s failed: %v", itemID, err)
		return nil
	}
	var out []alerts.Watcher
	for _, w := range entries {
		u, err := m.store.GetUser(ctx, w.UserID)
		if err != nil {
			continue
		}
		out = append(out, alerts.Watcher{UserID: u.ID, Email: u.Email})
	}
	return out
}

// ---- Read surfaces ----

func (m *Manager) GetItem(ctx context.Context, id string) (*store.Item, error) {
	it, err := m.store.GetItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "item not found")
	}
	return it, err
}

func (m *Manager) MySubmissions(ctx context.Context, sellerID string) ([]store.Item, error) {
	return m.store.ItemsBySeller(ctx, sellerID)
}

func (m *Manager) MyWins(ctx context.Context, winnerID string) ([]store.Item, error) {
	return m.store.ItemsByWinner(ctx, winnerID)
}

// LiveItems lists the auction floor.
func (m *Manager) LiveItems(ctx context.Context) ([]store.Item, error) {
	return m.store.ItemsByStatus(ctx, store.ItemLive)
}

// BatchResults lists the resolved items of a batch, sold and unsold.
func (m *Manager) BatchResults(ctx context.Context, batchID string) ([]store.Item, error) {
	return m.store.ItemsByBatchAndStatus(ctx, batchID, store.ItemSold, store.ItemUnsold)
}

// PendingReview lists the reviewer queue for the current batch. Items still
// SUBMITTED count as pending so reviewers can work ahead of the window.
func (m *Manager) PendingReview(ctx context.Context) ([]store.Item, error) {
	b, err := m.batches.ResolveCurrentBatch(ctx)
	if err != nil {
		return nil, err
	}
	return m.store.ItemsByBatchAndStatus(ctx, b.ID, store.ItemSubmitted, store.ItemUnderReview)
}
