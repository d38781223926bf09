package messaging

// Broadcaster pushes realtime updates to connected clients. The core treats
// it as fire and forget, same as the alerts emitter.
type Broadcaster interface {
	// BroadcastItem reaches clients subscribed to one item.
	BroadcastItem(itemID, eventType string, data any)
	// BroadcastAuction reaches everyone following the auction.
	BroadcastAuction(eventType string, data any)
}

// Noop satisfies Broadcaster for tests and headless runs.
type Noop struct{}

func (Noop) BroadcastItem(string, string, any) {}
func (Noop) BroadcastAuction(string, any)      {}

// Fanout replicates every broadcast to multiple sinks (websocket hub plus
// the Redis mirror, typically).
type Fanout []Broadcaster

func (f Fanout) BroadcastItem(itemID, eventType string, data any) {
	for _, b := range f {
		b.BroadcastItem(itemID, eventType, data)
	}
}

func (f Fanout) BroadcastAuction(eventType string, data any) {
	for _, b := range f {
		b.BroadcastAuction(eventType, data)
	}
}
