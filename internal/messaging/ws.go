package messaging

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type wsEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type hub struct {
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]bool)}
}

func (h *hub) broadcast(evt wsEvent) {
	payload, _ := json.Marshal(evt)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		_ = c.WriteMessage(websocket.TextMessage, payload)
	}
}

func (h *hub) register(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *hub) unregister(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans realtime updates out to websocket clients: one channel per item
// plus an auction-wide channel for batch status changes.
type Hub struct {
	auction  *hub
	itemsMu  sync.RWMutex
	items    map[string]*hub
}

var _ Broadcaster = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		auction: newHub(),
		items:   make(map[string]*hub),
	}
}

func (h *Hub) itemHub(itemID string) *hub {
	h.itemsMu.Lock()
	defer h.itemsMu.Unlock()
	ih, ok := h.items[itemID]
	if !ok {
		ih = newHub()
		h.items[itemID] = ih
	}
	return ih
}

func (h *Hub) BroadcastItem(itemID, eventType string, data any) {
	h.itemHub(itemID).broadcast(wsEvent{Type: eventType, Data: data})
}

func (h *Hub) BroadcastAuction(eventType string, data any) {
	h.auction.broadcast(wsEvent{Type: eventType, Data: data})
}

// ItemWS subscribes the caller to one item's bid and status stream.
// GET /ws/items/:id
func (h *Hub) ItemWS(c echo.Context) error {
	itemID := c.Param("id")
	if itemID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing item id"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	ih := h.itemHub(itemID)
	ih.register(ws)

	// Server-push protocol; client messages are discarded.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			ih.unregister(ws)
			_ = ws.Close()
			break
		}
	}
	return nil
}

// AuctionWS subscribes the caller to batch-wide status updates.
// GET /ws/auction
func (h *Hub) AuctionWS(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	h.auction.register(ws)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.auction.unregister(ws)
			_ = ws.Close()
			break
		}
	}
	return nil
}
