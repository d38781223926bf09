package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"
)

// AsynqEmitter pushes events onto a Redis-backed queue. Delivery happens in
// the processor below, off the request path.
type AsynqEmitter struct {
	client *asynq.Client
}

func NewAsynqEmitter(redisAddr string) *AsynqEmitter {
	return &AsynqEmitter{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
	}
}

func (e *AsynqEmitter) Emit(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[alerts] marshal %s failed: %v", evt.Type, err)
		return
	}
	task := asynq.NewTask(string(evt.Type), b)
	if _, err := e.client.Enqueue(task, asynq.Queue("notifications")); err != nil {
		log.Printf("[alerts] enqueue %s failed: %v", evt.Type, err)
	}
}

func (e *AsynqEmitter) Close() error {
	return e.client.Close()
}

// Processor consumes the queue and turns events into emails and admin log
// lines. One handler per event type, registered on a single mux.
type Processor struct {
	server *asynq.Server
}

func NewProcessor(redisAddr string) *Processor {
	return &Processor{
		server: asynq.NewServer(
			asynq.RedisClientOpt{Addr: redisAddr},
			asynq.Config{
				Concurrency: 5,
				Queues:      map[string]int{"notifications": 10},
			},
		),
	}
}

// Run starts the worker loop in a goroutine.
func (p *Processor) Run() {
	mux := asynq.NewServeMux()
	mux.HandleFunc(string(EventItemSubmitted), handleItemSubmitted)
	mux.HandleFunc(string(EventItemApproved), handleItemApproved)
	mux.HandleFunc(string(EventItemRejected), handleItemRejected)
	mux.HandleFunc(string(EventItemChangesRequested), handleItemChangesRequested)
	mux.HandleFunc(string(EventBidPlaced), handleBidPlaced)
	mux.HandleFunc(string(EventOutbid), handleOutbid)
	mux.HandleFunc(string(EventBatchStatus), handleLogOnly)
	mux.HandleFunc(string(EventItemStatus), handleLogOnly)
	mux.HandleFunc(string(EventAuctionEnded), handleAuctionEnded)
	mux.HandleFunc(string(EventWatchlistBid), handleWatchlist)
	mux.HandleFunc(string(EventWatchlistGoingLive), handleWatchlist)
	mux.HandleFunc(string(EventWatchlistEndingSoon), handleWatchlist)

	go func() {
		if err := p.server.Run(mux); err != nil {
			log.Printf("[alerts] processor stopped: %v", err)
		}
	}()
	log.Printf("[alerts] processor started")
}

func (p *Processor) Shutdown() {
	p.server.Shutdown()
}

func decodePayload[T any](t *asynq.Task) (*Event, *T, error) {
	var evt struct {
		Type    EventType       `json:"type"`
		At      time.Time       `json:"at"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return nil, nil, err
	}
	var p T
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return nil, nil, err
	}
	return &Event{Type: evt.Type, At: evt.At}, &p, nil
}

func appURL() string {
	if u := os.Getenv("APP_URL"); u != "" {
		return u
	}
	return "http://localhost:3000"
}

func handleItemSubmitted(_ context.Context, t *asynq.Task) error {
	_, p, err := decodePayload[ItemEventPayload](t)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Hi %s,\n\nYour item %q was received for batch %s and is awaiting review.\n\n%s",
		p.SellerName, p.ItemTitle, p.BatchCode, appURL())
	return sendTo(p.SellerEmail, "Item received", body, t.Type())
}

func handleItemApproved(_ context.Context, t *asynq.Task) error {
	_, p, err := decodePayload[ItemEventPayload](t)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Hi %s,\n\nYour item %q was approved and will go live with batch %s.",
		p.SellerName, p.ItemTitle, p.BatchCode)
	return sendTo(p.SellerEmail, "Item approved", body, t.Type())
}

func handleItemRejected(_ context.Context, t *asynq.Task) error {
	_, p, err := decodePayload[ItemEventPayload](t)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Hi %s,\n\nYour item %q was not accepted for batch %s.\nReason: %s",
		p.SellerName, p.ItemTitle, p.BatchCode, p.Reason)
	return sendTo(p.SellerEmail, "Item rejected", body, t.Type())
}

func handleItemChangesRequested(_ context.Context, t *asynq.Task) error {
	_, p, err := decodePayload[ItemEventPayload](t)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Hi %s,\n\nThe review team requested changes on %q:\n%s\n\nUpdate the listing before review closes.",
		p.SellerName, p.ItemTitle, p.Reason)
	return sendTo(p.SellerEmail, "Changes requested", body, t.Type())
}

func handleBidPlaced(_ context.Context, t *asynq.Task) error {
	_, p, err := decodePayload[BidPlacedPayload](t)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("%s bid %s on your item %q (%d bids so far).",
		p.BidderName, p.Amount.StringFixed(2), p.ItemTitle, p.TotalBids)
	return sendTo(p.SellerEmail, "New bid on your item", body, t.Type())
}

func handleOutbid(_ context.Context, t *asynq.Task) error {
	_, p, err := decodePayload[OutbidPayload](t)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("You have been outbid on %q. The price is now %s.\nBid again: %s",
		p.ItemTitle, p.NewAmount.StringFixed(2), appURL())
	return sendTo(p.BidderEmail, "You have been outbid", body, t.Type())
}

func handleAuctionEnded(_ context.Context, t *asynq.Task) error {
	_, p, err := decodePayload[AuctionEndedPayload](t)
	if err != nil {
		return err
	}
	log.Printf("[notify] auction ended batch=%s sold=%d unsold=%d revenue=%s",
		p.BatchCode, p.Sold, p.Unsold, p.Revenue.StringFixed(2))
	return nil
}

func handleWatchlist(_ context.Context, t *asynq.Task) error {
	_, p, err := decodePayload[WatchlistPayload](t)
	if err != nil {
		return err
	}
	var subject, body string
	switch EventType(t.Type()) {
	case EventWatchlistBid:
		subject = "New bid on a watched item"
		body = fmt.Sprintf("A new bid of %s was placed on %q.", p.Amount.StringFixed(2), p.ItemTitle)
	case EventWatchlistGoingLive:
		subject = "A watched item is live"
		body = fmt.Sprintf("%q is now open for bidding: %s", p.ItemTitle, appURL())
	case EventWatchlistEndingSoon:
		subject = "A watched item ends soon"
		body = fmt.Sprintf("%q closes in about %d hour(s).", p.ItemTitle, p.HoursRemaining)
	}
	for _, w := range p.Watchers {
		if err := sendTo(w.Email, subject, body, t.Type()); err != nil {
			log.Printf("[notify][ERROR] watchlist send to %s failed: %v", w.Email, err)
		}
	}
	return nil
}

// handleLogOnly covers broadcast-style events that have no email recipient;
// the websocket hub already delivered them in-process.
func handleLogOnly(_ context.Context, t *asynq.Task) error {
	log.Printf("[notify] %s %s", t.Type(), string(t.Payload()))
	return nil
}

func sendTo(to, subject, body, taskType string) error {
	if to == "" {
		return nil
	}
	if err := SendEmail(to, subject, body); err != nil {
		log.Printf("[notify][ERROR] %s send failed: %v", taskType, err)
		return err
	}
	log.Printf("[notify] %s sent -> %s", taskType, to)
	return nil
}
