package alerts

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/auctionhq/auctionhouse/internal/store"
)

// EventType tags a lifecycle event. The values double as asynq task types so
// the processor's mux is the single dispatch registry for side effects.
type EventType string

const (
	EventItemSubmitted        EventType = "auction:item_submitted"
	EventItemApproved         EventType = "auction:item_approved"
	EventItemRejected         EventType = "auction:item_rejected"
	EventItemChangesRequested EventType = "auction:item_changes_requested"
	EventBidPlaced            EventType = "auction:bid_placed"
	EventOutbid               EventType = "auction:outbid"
	EventBatchStatus          EventType = "auction:batch_status"
	EventItemStatus           EventType = "auction:item_status"
	EventAuctionEnded         EventType = "auction:ended"
	EventWatchlistBid         EventType = "auction:watchlist_bid"
	EventWatchlistGoingLive   EventType = "auction:watchlist_going_live"
	EventWatchlistEndingSoon  EventType = "auction:watchlist_ending_soon"
)

// Event is a tagged union: Type selects which payload struct rides in
// Payload. Emission is fire and forget; a failed emit never rolls back the
// state change that produced it.
type Event struct {
	Type    EventType `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Payloads carry enough denormalized data (titles, names, emails, amounts)
// that handlers never query the core synchronously.

type ItemEventPayload struct {
	ItemID      string `json:"item_id"`
	ItemTitle   string `json:"item_title"`
	SellerID    string `json:"seller_id"`
	SellerName  string `json:"seller_name"`
	SellerEmail string `json:"seller_email"`
	BatchCode   string `json:"batch_code"`
	Reason      string `json:"reason,omitempty"` // rejection reason or change-request feedback
}

type BidPlacedPayload struct {
	ItemID      string          `json:"item_id"`
	ItemTitle   string          `json:"item_title"`
	BidID       string          `json:"bid_id"`
	BidderID    string          `json:"bidder_id"`
	BidderName  string          `json:"bidder_name"`
	Amount      decimal.Decimal `json:"amount"`
	TotalBids   int             `json:"total_bids"`
	SellerID    string          `json:"seller_id"`
	SellerEmail string          `json:"seller_email"`
}

type OutbidPayload struct {
	ItemID      string          `json:"item_id"`
	ItemTitle   string          `json:"item_title"`
	BidderID    string          `json:"bidder_id"` // the superseded bidder
	BidderEmail string          `json:"bidder_email"`
	NewAmount   decimal.Decimal `json:"new_amount"`
}

type BatchStatusPayload struct {
	BatchID          string            `json:"batch_id"`
	BatchCode        string            `json:"batch_code"`
	Status           store.BatchStatus `json:"status"`
	Message          string            `json:"message"`
	MinutesRemaining *int64            `json:"minutes_remaining,omitempty"` // set while LIVE
}

type ItemStatusPayload struct {
	ItemID    string           `json:"item_id"`
	ItemTitle string           `json:"item_title"`
	OldStatus store.ItemStatus `json:"old_status"`
	NewStatus store.ItemStatus `json:"new_status"`
}

type AuctionEndedPayload struct {
	BatchID   string          `json:"batch_id"`
	BatchCode string          `json:"batch_code"`
	Sold      int             `json:"sold"`
	Unsold    int             `json:"unsold"`
	Revenue   decimal.Decimal `json:"revenue"`
	Failed    int             `json:"failed,omitempty"` // items whose resolution errored
}

// Watcher identifies one watchlist recipient.
type Watcher struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type WatchlistPayload struct {
	ItemID         string          `json:"item_id"`
	ItemTitle      string          `json:"item_title"`
	Amount         decimal.Decimal `json:"amount,omitempty"`
	HoursRemaining int             `json:"hours_remaining,omitempty"`
	Watchers       []Watcher       `json:"watchers"`
}
