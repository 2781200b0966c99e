// Package stream fans live recording state out to websocket clients, and
// across server instances through redis pub/sub when a client is configured.
package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jengzang/trails-backend-go/internal/models"
)

// publishTimeout bounds one redis publish so a dead connection cannot stall the queue
const publishTimeout = 2 * time.Second

// Hub fans recording states out to local websocket clients and, when a redis
// client is configured, to the hubs of other server instances.
type Hub struct {
	redis    *redis.Client
	deviceID string
	origin   string
	clients  map[*Client]struct{}
	last     []byte
	mu       sync.RWMutex
	outbox   chan []byte
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Client is one websocket subscriber; Send is closed on Unregister.
type Client struct {
	Send chan []byte
}

type envelope struct {
	Origin string          `json:"origin"`
	State  json.RawMessage `json:"state"`
}

// NewHub creates a hub for one device. redisClient may be nil.
func NewHub(redisClient *redis.Client, deviceID string) *Hub {
	h := &Hub{
		redis:    redisClient,
		deviceID: deviceID,
		origin:   uuid.NewString(),
		clients:  map[*Client]struct{}{},
	}

	if redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		h.outbox = make(chan []byte, 64)
		ready := make(chan struct{})
		h.wg.Add(2)
		go h.subscribeRedis(ctx, ready)
		go h.publishRedis(ctx)
		<-ready
	}
	return h
}

// Register adds a client and queues the latest known state for it
func (h *Hub) Register() *Client {
	client := &Client{Send: make(chan []byte, 64)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	if h.last != nil {
		client.Send <- h.last
	}
	return client
}

// Unregister removes a client and closes its Send channel
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

// Broadcast publishes a recording state. It never blocks: slow clients miss
// updates and the redis publish is queued, dropped when the queue is full.
func (h *Hub) Broadcast(state models.RecordingSnapshot) {
	payload, err := json.Marshal(state)
	if err != nil {
		log.Printf("Failed to encode recording state: %v", err)
		return
	}
	h.deliver(payload)

	if h.outbox == nil {
		return
	}
	msg, err := json.Marshal(envelope{Origin: h.origin, State: payload})
	if err != nil {
		log.Printf("Failed to encode redis envelope: %v", err)
		return
	}
	select {
	case h.outbox <- msg:
	default:
		log.Printf("redis publish queue full, dropping state update")
	}
}

func (h *Hub) deliver(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = payload
	for client := range h.clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

// ClientCount returns the number of connected local clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the redis subscription and publisher
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
}

func (h *Hub) publishRedis(ctx context.Context) {
	defer h.wg.Done()

	channel := redisChannel(h.deviceID)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.outbox:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := h.redis.Publish(pubCtx, channel, msg).Err()
			cancel()
			if err != nil && ctx.Err() == nil {
				log.Printf("redis publish error: %v", err)
			}
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, ready chan<- struct{}) {
	defer h.wg.Done()

	pubsub := h.redis.Subscribe(ctx, redisChannel(h.deviceID))
	defer pubsub.Close()

	// wait for the subscription so publishes right after NewHub are not lost
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("redis subscribe error: %v", err)
	}
	close(ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("Ignoring malformed redis state message: %v", err)
				continue
			}
			if env.Origin == h.origin {
				continue
			}
			h.deliver(env.State)
		}
	}
}

func redisChannel(deviceID string) string {
	return "trails:" + deviceID + ":state"
}
