package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Batch statuses. A batch walks SUBMISSION -> REVIEW -> LIVE -> ENDED -> SETTLED
// and never moves backwards.
type BatchStatus string

const (
	BatchSubmission BatchStatus = "SUBMISSION"
	BatchReview     BatchStatus = "REVIEW"
	BatchLive       BatchStatus = "LIVE"
	BatchEnded      BatchStatus = "ENDED"
	BatchSettled    BatchStatus = "SETTLED"
)

type ItemStatus string

const (
	ItemSubmitted        ItemStatus = "SUBMITTED"
	ItemUnderReview      ItemStatus = "UNDER_REVIEW"
	ItemChangesRequested ItemStatus = "CHANGES_REQUESTED"
	ItemApproved         ItemStatus = "APPROVED"
	ItemRejected         ItemStatus = "REJECTED"
	ItemLive             ItemStatus = "LIVE"
	ItemSold             ItemStatus = "SOLD"
	ItemUnsold           ItemStatus = "UNSOLD"
	ItemWithdrawn        ItemStatus = "WITHDRAWN"
)

// Bid statuses. For a live item exactly one bid is WINNING; after resolution
// exactly one is WON (if the item sold) and the rest are LOST.
type BidStatus string

const (
	BidActive  BidStatus = "ACTIVE"
	BidOutbid  BidStatus = "OUTBID"
	BidWinning BidStatus = "WINNING"
	BidWon     BidStatus = "WON"
	BidLost    BidStatus = "LOST"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxFailed    TransactionStatus = "FAILED"
	TxRefunded  TransactionStatus = "REFUNDED"
)

// DefaultBidIncrement applies when an item is submitted without one.
var DefaultBidIncrement = decimal.RequireFromString("10.00")

// Batch is one week's auction cycle.
type Batch struct {
	ID              string          `json:"id"`
	Code            string          `json:"code"`
	WeekNumber      int             `json:"week_number"`
	Year            int             `json:"year"`
	Status          BatchStatus     `json:"status"`
	SubmissionStart time.Time       `json:"submission_start"`
	SubmissionEnd   time.Time       `json:"submission_end"`
	ReviewStart     time.Time       `json:"review_start"`
	ReviewEnd       time.Time       `json:"review_end"`
	AuctionStart    time.Time       `json:"auction_start"`
	AuctionEnd      time.Time       `json:"auction_end"`
	TotalSubmitted  int             `json:"total_items_submitted"`
	TotalApproved   int             `json:"total_items_approved"`
	TotalRejected   int             `json:"total_items_rejected"`
	TotalSold       int             `json:"total_items_sold"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Item is a single lot inside a batch. CurrentBid and TotalBids are
// denormalized from the bid ledger and only written through the item manager.
type Item struct {
	ID              string           `json:"id"`
	BatchID         string           `json:"batch_id"`
	SellerID        string           `json:"seller_id"`
	ReviewedBy      string           `json:"reviewed_by,omitempty"`
	WinnerID        string           `json:"winner_id,omitempty"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Category        string           `json:"category"`
	ImageURLs       string           `json:"image_urls,omitempty"` // comma-joined filenames, opaque to the core
	StartingPrice   decimal.Decimal  `json:"starting_price"`
	ReservePrice    *decimal.Decimal `json:"reserve_price,omitempty"`
	CurrentBid      *decimal.Decimal `json:"current_bid,omitempty"`
	BidIncrement    decimal.Decimal  `json:"bid_increment"`
	Status          ItemStatus       `json:"status"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	AdminNote       string           `json:"admin_note,omitempty"`
	TotalBids       int              `json:"total_bids"`
	SubmittedAt     *time.Time       `json:"submitted_at,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	ApprovedAt      *time.Time       `json:"approved_at,omitempty"`
	AuctionStarted  *time.Time       `json:"auction_started_at,omitempty"`
	AuctionEnded    *time.Time       `json:"auction_ended_at,omitempty"`
	SoldAt          *time.Time       `json:"sold_at,omitempty"`
	WithdrawnAt     *time.Time       `json:"withdrawn_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Bid is an immutable ledger entry; only Status changes after creation.
// IDs are ULIDs so lexical order matches placement order.
type Bid struct {
	ID         string          `json:"id"`
	ItemID     string          `json:"item_id"`
	BidderID   string          `json:"bidder_id"`
	BidderName string          `json:"bidder_name"`
	Amount     decimal.Decimal `json:"amount"`
	Status     BidStatus       `json:"status"`
	PlacedAt   time.Time       `json:"placed_at"`
}

// Transaction is the settlement record created once per sold item.
type Transaction struct {
	ID           string            `json:"id"`
	ItemID       string            `json:"item_id"`
	BuyerID      string            `json:"buyer_id"`
	SellerID     string            `json:"seller_id"`
	WinningBidID string            `json:"winning_bid_id"`
	Amount       decimal.Decimal   `json:"amount"`
	PlatformFee  decimal.Decimal   `json:"platform_fee"`
	SellerPayout decimal.Decimal   `json:"seller_payout"`
	Status       TransactionStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"` // bidder | seller | admin
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// WatchlistEntry marks a user watching an item, with a per-entry preference
// for bid notifications.
type WatchlistEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ItemID      string    `json:"item_id"`
	NotifyOnBid bool      `json:"notify_on_bid"`
	AddedAt     time.Time `json:"added_at"`
}

// MinimumBid is the smallest acceptable next bid for an item: current highest
// plus the increment, or the starting price when nobody has bid yet.
func (it *Item) MinimumBid() decimal.Decimal {
	if it.CurrentBid != nil {
		return it.CurrentBid.Add(it.BidIncrement)
	}
	return it.StartingPrice
}
