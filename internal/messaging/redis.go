package messaging

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher mirrors broadcasts onto Redis Pub/Sub channels so external
// broadcast consumers (a separate websocket tier, dashboards) can follow the
// auction without touching the core.
type RedisPublisher struct {
	client *redis.Client
}

var _ Broadcaster = (*RedisPublisher)(nil)

func NewRedisPublisher(addr string) *RedisPublisher {
	return &RedisPublisher{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

type redisMessage struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

func (p *RedisPublisher) publish(channel, eventType string, data any) {
	b, err := json.Marshal(redisMessage{Type: eventType, At: time.Now(), Data: data})
	if err != nil {
		log.Printf("[messaging] marshal %s failed: %v", eventType, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.Publish(ctx, channel, b).Err(); err != nil {
		log.Printf("[messaging] publish %s to %s failed: %v", eventType, channel, err)
	}
}

func (p *RedisPublisher) BroadcastItem(itemID, eventType string, data any) {
	p.publish("auction.item."+itemID, eventType, data)
}

func (p *RedisPublisher) BroadcastAuction(eventType string, data any) {
	p.publish("auction.status", eventType, data)
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
