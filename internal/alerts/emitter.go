package alerts

import (
	"log"
	"sync"
	"time"
)

// Emitter is the boundary the auction core talks to. Implementations must be
// fire and forget: log failures, never surface them to the caller.
type Emitter interface {
	Emit(evt Event)
}

// LogEmitter just logs events. Used when no Redis is configured (memory mode).
type LogEmitter struct{}

func (LogEmitter) Emit(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	log.Printf("[alerts] %s payload=%+v", evt.Type, evt.Payload)
}

// Collector records events for assertions in tests.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Emit(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *Collector) ByType(t EventType) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (c *Collector) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}
