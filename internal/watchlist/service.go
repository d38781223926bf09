package watchlist

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auctionhq/auctionhouse/internal/alerts"
	"github.com/auctionhq/auctionhouse/internal/apperr"
	"github.com/auctionhq/auctionhouse/internal/batch"
	"github.com/auctionhq/auctionhouse/internal/store"
)

// Caps how many items one user can watch.
const maxWatchesPerUser = 50

// EndingSoonWindow is how close to auction end the one-shot reminder fires.
const EndingSoonWindow = time.Hour

// Service manages per-user watchlists and the reminders derived from them.
type Service struct {
	store   store.Store
	emitter alerts.Emitter
	batches *batch.Manager

	mu         sync.Mutex
	remindedAt map[string]bool // batch IDs whose ending-soon reminder already fired

	Now func() time.Time
}

func NewService(st store.Store, emitter alerts.Emitter, batches *batch.Manager) *Service {
	return &Service{
		store:      st,
		emitter:    emitter,
		batches:    batches,
		remindedAt: make(map[string]bool),
		Now:        time.Now,
	}
}

// Entry is a watchlist row joined with its item for list responses.
type Entry struct {
	store.WatchlistEntry
	Item *store.Item `json:"item"`
}

// Add puts an item on a user's watchlist. Watching your own item or a
// resolved one is pointless and refused.
func (s *Service) Add(ctx context.Context, userID, itemID string, notifyOnBid bool) (*store.WatchlistEntry, error) {
	it, err := s.store.GetItem(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "item not found")
	}
	if err != nil {
		return nil, err
	}
	if it.SellerID == userID {
		return nil, apperr.New(apperr.ValidationFailed, "you cannot watch your own item")
	}
	switch it.Status {
	case store.ItemSold, store.ItemUnsold, store.ItemRejected, store.ItemWithdrawn:
		return nil, apperr.New(apperr.InvalidState, "item in status %s cannot be watched", it.Status)
	}

	count, err := s.store.CountWatchesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count >= maxWatchesPerUser {
		return nil, apperr.New(apperr.ValidationFailed, "watchlist limit of %d items reached", maxWatchesPerUser)
	}

	w := &store.WatchlistEntry{
		ID:          uuid.New().String(),
		UserID:      userID,
		ItemID:      itemID,
		NotifyOnBid: notifyOnBid,
		AddedAt:     s.Now(),
	}
	if err := s.store.AddWatch(ctx, w); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.New(apperr.InvalidState, "item is already on your watchlist")
		}
		return nil, err
	}
	return w, nil
}

func (s *Service) Remove(ctx context.Context, userID, itemID string) error {
	err := s.store.RemoveWatch(ctx, userID, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.NotFound, "item is not on your watchlist")
	}
	return err
}

func (s *Service) SetNotify(ctx context.Context, userID, itemID string, notifyOnBid bool) error {
	err := s.store.UpdateWatchNotify(ctx, userID, itemID, notifyOnBid)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.NotFound, "item is not on your watchlist")
	}
	return err
}

// List returns a user's watchlist with current item state attached.
func (s *Service) List(ctx context.Context, userID string) ([]Entry, error) {
	entries, err := s.store.WatchesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, w := range entries {
		e := Entry{WatchlistEntry: w}
		if it, err := s.store.GetItem(ctx, w.ItemID); err == nil {
			e.Item = it
		}
		out = append(out, e)
	}
	return out, nil
}

// NotifyEndingSoon fires the one-shot ending-soon reminder for every watched
// live item once the batch enters the final hour. Called from the scheduler
// tick; safe to call repeatedly.
func (s *Service) NotifyEndingSoon(ctx context.Context) error {
	b, err := s.batches.ResolveCurrentBatch(ctx)
	if err != nil {
		return err
	}
	if b.Status != store.BatchLive {
		return nil
	}
	remaining := b.AuctionEnd.Sub(s.Now())
	if remaining > EndingSoonWindow || remaining <= 0 {
		return nil
	}

	s.mu.Lock()
	done := s.remindedAt[b.ID]
	s.remindedAt[b.ID] = true
	s.mu.Unlock()
	if done {
		return nil
	}

	items, err := s.store.ItemsByBatchAndStatus(ctx, b.ID, store.ItemLive)
	if err != nil {
		return err
	}
	hours := int(remaining.Hours()) + 1
	for i := range items {
		it := &items[i]
		watchers := s.watchersOf(ctx, it.ID)
		if len(watchers) == 0 {
			continue
		}
		s.emitter.Emit(alerts.Event{Type: alerts.EventWatchlistEndingSoon, Payload: alerts.WatchlistPayload{
			ItemID:         it.ID,
			ItemTitle:      it.Title,
			HoursRemaining: hours,
			Watchers:       watchers,
		}})
	}
	log.Printf("[watchlist] ending-soon reminders sent for batch %s", b.Code)
	return nil
}

func (s *Service) watchersOf(ctx context.Context, itemID string) []alerts.Watcher {
	entries, err := s.store.WatchersOfItem(ctx, itemID)
	if err != nil {
		log.Printf("[watchlist] watchers lookup for %s failed: %v", itemID, err)
		return nil
	}
	var out []alerts.Watcher
	for _, w := range entries {
		u, err := s.store.GetUser(ctx, w.UserID)
		if err != nil {
			continue
		}
		out = append(out, alerts.Watcher{UserID: u.ID, Email: u.Email})
	}
	return out
}
