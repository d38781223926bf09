package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by lookups that miss. Callers translate it into
// their own error taxonomy; the store stays persistence-flavored.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate signals a uniqueness violation (email, watchlist entry).
var ErrDuplicate = errors.New("store: duplicate")

// BatchCounterDelta is applied as an atomic read-modify-write against the
// persisted batch row, never computed from an in-memory copy.
type BatchCounterDelta struct {
	Submitted int
	Approved  int
	Rejected  int
}

// OverviewCounts backs the admin dashboard.
type OverviewCounts struct {
	Users        int `json:"users"`
	Items        int `json:"items"`
	Bids         int `json:"bids"`
	Transactions int `json:"transactions"`
	Batches      int `json:"batches"`
}

// Store is the persistence boundary for the auction core. Two implementations
// exist: Postgres (production) and Memory (tests, demo mode).
type Store interface {
	// Batches
	CreateBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, id string) (*Batch, error)
	GetBatchByCode(ctx context.Context, code string) (*Batch, error)
	GetBatchByWeek(ctx context.Context, week, year int) (*Batch, error)
	ListBatches(ctx context.Context, limit, offset int) ([]Batch, error)
	UpdateBatchStatus(ctx context.Context, id string, status BatchStatus) error
	AddBatchCounters(ctx context.Context, id string, d BatchCounterDelta) error
	SetBatchResults(ctx context.Context, id string, sold int, revenue decimal.Decimal) error

	// Items
	CreateItem(ctx context.Context, it *Item) error
	GetItem(ctx context.Context, id string) (*Item, error)
	SaveItem(ctx context.Context, it *Item) error
	ItemsByBatchAndStatus(ctx context.Context, batchID string, statuses ...ItemStatus) ([]Item, error)
	ItemsBySeller(ctx context.Context, sellerID string) ([]Item, error)
	ItemsByWinner(ctx context.Context, winnerID string) ([]Item, error)
	ItemsByStatus(ctx context.Context, status ItemStatus) ([]Item, error)
	CountItemsByBatchAndStatus(ctx context.Context, batchID string, status ItemStatus) (int, error)

	// Bids
	CreateBid(ctx context.Context, b *Bid) error
	// SupersedeBid applies one accepted bid as a unit: the previous bid (if
	// any) goes OUTBID, the new bid is inserted WINNING, and the item's
	// denormalized current_bid/total_bids advance. Either all three land or
	// none do.
	SupersedeBid(ctx context.Context, prevBidID string, b *Bid) error
	HighestBid(ctx context.Context, itemID string) (*Bid, error)
	UpdateBidStatus(ctx context.Context, bidID string, status BidStatus) error
	MarkBidsLostExcept(ctx context.Context, itemID, wonBidID string) error
	BidsByItem(ctx context.Context, itemID string) ([]Bid, error)
	BidsByBidder(ctx context.Context, bidderID string) ([]Bid, error)

	// Transactions
	CreateTransaction(ctx context.Context, t *Transaction) error
	TransactionsByUser(ctx context.Context, userID string) ([]Transaction, error)
	ListTransactions(ctx context.Context, limit, offset int) ([]Transaction, error)

	// Users
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	SetUserRole(ctx context.Context, email, role string) error

	// Watchlist
	AddWatch(ctx context.Context, w *WatchlistEntry) error
	RemoveWatch(ctx context.Context, userID, itemID string) error
	GetWatch(ctx context.Context, userID, itemID string) (*WatchlistEntry, error)
	WatchesByUser(ctx context.Context, userID string) ([]WatchlistEntry, error)
	WatchersOfItem(ctx context.Context, itemID string) ([]WatchlistEntry, error)
	CountWatchesByUser(ctx context.Context, userID string) (int, error)
	UpdateWatchNotify(ctx context.Context, userID, itemID string, notifyOnBid bool) error

	// Dashboard
	Overview(ctx context.Context) (*OverviewCounts, error)
}
