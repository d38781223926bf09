package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Memory is an in-process Store used by the test suite and by the server's
// -memory demo mode. All methods copy on the way in and out so callers never
// share mutable state with the store.
type Memory struct {
	mu           sync.RWMutex
	batches      map[string]*Batch
	items        map[string]*Item
	bids         map[string]*Bid
	transactions map[string]*Transaction
	users        map[string]*User
	watches      map[string]*WatchlistEntry // key userID+"/"+itemID
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		batches:      make(map[string]*Batch),
		items:        make(map[string]*Item),
		bids:         make(map[string]*Bid),
		transactions: make(map[string]*Transaction),
		users:        make(map[string]*User),
		watches:      make(map[string]*WatchlistEntry),
	}
}

func copyBatch(b *Batch) *Batch { c := *b; return &c }

func copyItem(it *Item) *Item {
	c := *it
	if it.ReservePrice != nil {
		v := *it.ReservePrice
		c.ReservePrice = &v
	}
	if it.CurrentBid != nil {
		v := *it.CurrentBid
		c.CurrentBid = &v
	}
	copyTime := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		v := *t
		return &v
	}
	c.SubmittedAt = copyTime(it.SubmittedAt)
	c.ReviewedAt = copyTime(it.ReviewedAt)
	c.ApprovedAt = copyTime(it.ApprovedAt)
	c.AuctionStarted = copyTime(it.AuctionStarted)
	c.AuctionEnded = copyTime(it.AuctionEnded)
	c.SoldAt = copyTime(it.SoldAt)
	c.WithdrawnAt = copyTime(it.WithdrawnAt)
	return &c
}

func copyBid(b *Bid) *Bid { c := *b; return &c }

// ---- Batches ----

func (m *Memory) CreateBatch(_ context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.batches {
		if other.Code == b.Code {
			return ErrDuplicate
		}
	}
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	m.batches[b.ID] = copyBatch(b)
	return nil
}

func (m *Memory) GetBatch(_ context.Context, id string) (*Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBatch(b), nil
}

func (m *Memory) GetBatchByCode(_ context.Context, code string) (*Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.batches {
		if b.Code == code {
			return copyBatch(b), nil
		}
	}
	return nil, ErrNotFound
}

// GetBatchByWeek returns the newest batch for a week; a freshly created test
// batch takes over as the current one.
func (m *Memory) GetBatchByWeek(_ context.Context, week, year int) (*Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest *Batch
	for _, b := range m.batches {
		if b.WeekNumber == week && b.Year == year {
			if newest == nil || b.CreatedAt.After(newest.CreatedAt) {
				newest = b
			}
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return copyBatch(newest), nil
}

func (m *Memory) ListBatches(_ context.Context, limit, offset int) ([]Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]Batch, 0, len(m.batches))
	for _, b := range m.batches {
		all = append(all, *copyBatch(b))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, limit, offset), nil
}

func (m *Memory) UpdateBatchStatus(_ context.Context, id string, status BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) AddBatchCounters(_ context.Context, id string, d BatchCounterDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return ErrNotFound
	}
	b.TotalSubmitted += d.Submitted
	b.TotalApproved += d.Approved
	b.TotalRejected += d.Rejected
	b.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) SetBatchResults(_ context.Context, id string, sold int, revenue decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return ErrNotFound
	}
	b.TotalSold = sold
	b.TotalRevenue = revenue
	b.UpdatedAt = time.Now()
	return nil
}

// ---- Items ----

func (m *Memory) CreateItem(_ context.Context, it *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it.CreatedAt = time.Now()
	it.UpdatedAt = it.CreatedAt
	m.items[it.ID] = copyItem(it)
	return nil
}

func (m *Memory) GetItem(_ context.Context, id string) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyItem(it), nil
}

// SaveItem persists everything except current_bid and total_bids, which are
// ledger-owned and advance only through SupersedeBid.
func (m *Memory) SaveItem(_ context.Context, it *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[it.ID]
	if !ok {
		return ErrNotFound
	}
	it.UpdatedAt = time.Now()
	c := copyItem(it)
	c.CurrentBid = stored.CurrentBid
	c.TotalBids = stored.TotalBids
	m.items[it.ID] = c
	return nil
}

func (m *Memory) ItemsByBatchAndStatus(_ context.Context, batchID string, statuses ...ItemStatus) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Item
	for _, it := range m.items {
		if it.BatchID != batchID {
			continue
		}
		for _, s := range statuses {
			if it.Status == s {
				out = append(out, *copyItem(it))
				break
			}
		}
	}
	sortItemsByCreated(out)
	return out, nil
}

func (m *Memory) ItemsBySeller(_ context.Context, sellerID string) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Item
	for _, it := range m.items {
		if it.SellerID == sellerID {
			out = append(out, *copyItem(it))
		}
	}
	sortItemsByCreated(out)
	return out, nil
}

func (m *Memory) ItemsByWinner(_ context.Context, winnerID string) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Item
	for _, it := range m.items {
		if it.WinnerID == winnerID && it.Status == ItemSold {
			out = append(out, *copyItem(it))
		}
	}
	sortItemsByCreated(out)
	return out, nil
}

func (m *Memory) ItemsByStatus(_ context.Context, status ItemStatus) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Item
	for _, it := range m.items {
		if it.Status == status {
			out = append(out, *copyItem(it))
		}
	}
	sortItemsByCreated(out)
	return out, nil
}

func (m *Memory) CountItemsByBatchAndStatus(_ context.Context, batchID string, status ItemStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, it := range m.items {
		if it.BatchID == batchID && it.Status == status {
			n++
		}
	}
	return n, nil
}

// ---- Bids ----

func (m *Memory) CreateBid(_ context.Context, b *Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bids[b.ID] = copyBid(b)
	return nil
}

func (m *Memory) SupersedeBid(_ context.Context, prevBidID string, b *Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[b.ItemID]
	if !ok {
		return ErrNotFound
	}
	var prev *Bid
	if prevBidID != "" {
		prev, ok = m.bids[prevBidID]
		if !ok {
			return ErrNotFound
		}
	}
	// All checks passed; now mutate.
	if prev != nil {
		prev.Status = BidOutbid
	}
	m.bids[b.ID] = copyBid(b)
	v := b.Amount
	it.CurrentBid = &v
	it.TotalBids++
	it.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) HighestBid(_ context.Context, itemID string) (*Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var top *Bid
	for _, b := range m.bids {
		if b.ItemID != itemID {
			continue
		}
		if top == nil || b.Amount.GreaterThan(top.Amount) {
			top = b
		}
	}
	if top == nil {
		return nil, ErrNotFound
	}
	return copyBid(top), nil
}

func (m *Memory) UpdateBidStatus(_ context.Context, bidID string, status BidStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[bidID]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	return nil
}

func (m *Memory) MarkBidsLostExcept(_ context.Context, itemID, wonBidID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bids {
		if b.ItemID == itemID && b.ID != wonBidID {
			b.Status = BidLost
		}
	}
	return nil
}

func (m *Memory) BidsByItem(_ context.Context, itemID string) ([]Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Bid
	for _, b := range m.bids {
		if b.ItemID == itemID {
			out = append(out, *copyBid(b))
		}
	}
	// ULIDs sort by placement time; newest first for history views.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Memory) BidsByBidder(_ context.Context, bidderID string) ([]Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Bid
	for _, b := range m.bids {
		if b.BidderID == bidderID {
			out = append(out, *copyBid(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// ---- Transactions ----

func (m *Memory) CreateTransaction(_ context.Context, t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.CreatedAt = time.Now()
	c := *t
	m.transactions[t.ID] = &c
	return nil
}

func (m *Memory) TransactionsByUser(_ context.Context, userID string) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Transaction
	for _, t := range m.transactions {
		if t.BuyerID == userID || t.SellerID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListTransactions(_ context.Context, limit, offset int) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Transaction, 0, len(m.transactions))
	for _, t := range m.transactions {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, offset), nil
}

// ---- Users ----

func (m *Memory) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicate
		}
	}
	u.CreatedAt = time.Now()
	c := *u
	m.users[u.ID] = &c
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) SetUserRole(_ context.Context, email, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			u.Role = role
			return nil
		}
	}
	return ErrNotFound
}

// ---- Watchlist ----

func watchKey(userID, itemID string) string { return userID + "/" + itemID }

func (m *Memory) AddWatch(_ context.Context, w *WatchlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := watchKey(w.UserID, w.ItemID)
	if _, ok := m.watches[key]; ok {
		return ErrDuplicate
	}
	w.AddedAt = time.Now()
	c := *w
	m.watches[key] = &c
	return nil
}

func (m *Memory) RemoveWatch(_ context.Context, userID, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := watchKey(userID, itemID)
	if _, ok := m.watches[key]; !ok {
		return ErrNotFound
	}
	delete(m.watches, key)
	return nil
}

func (m *Memory) GetWatch(_ context.Context, userID, itemID string) (*WatchlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.watches[watchKey(userID, itemID)]
	if !ok {
		return nil, ErrNotFound
	}
	c := *w
	return &c, nil
}

func (m *Memory) WatchesByUser(_ context.Context, userID string) ([]WatchlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []WatchlistEntry
	for _, w := range m.watches {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.After(out[j].AddedAt) })
	return out, nil
}

func (m *Memory) WatchersOfItem(_ context.Context, itemID string) ([]WatchlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []WatchlistEntry
	for _, w := range m.watches {
		if w.ItemID == itemID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *Memory) CountWatchesByUser(_ context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, w := range m.watches {
		if w.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) UpdateWatchNotify(_ context.Context, userID, itemID string, notifyOnBid bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watches[watchKey(userID, itemID)]
	if !ok {
		return ErrNotFound
	}
	w.NotifyOnBid = notifyOnBid
	return nil
}

// ---- Dashboard ----

func (m *Memory) Overview(_ context.Context) (*OverviewCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &OverviewCounts{
		Users:        len(m.users),
		Items:        len(m.items),
		Bids:         len(m.bids),
		Transactions: len(m.transactions),
		Batches:      len(m.batches),
	}, nil
}

func sortItemsByCreated(items []Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
}

func paginate[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}
