package realtime

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/echoworld-backend/internal/observability"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

// ClientBuffer bounds each client's outbound queue; envelopes beyond it are dropped.
const ClientBuffer = 16

type Client struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Topics   map[string]bool
	Outbound chan Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// Done is closed once the client has been removed from the hub.
func (c *Client) Done() <-chan struct{} { return c.done }

type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[string]map[*Client]bool
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:           log.With("component", "RealtimeHub"),
		subscriptions: make(map[string]map[*Client]bool),
	}
}

func (hub *Hub) NewClient(userID uuid.UUID) *Client {
	return &Client{
		ID:       uuid.New(),
		UserID:   userID,
		Topics:   make(map[string]bool),
		Outbound: make(chan Envelope, ClientBuffer),
		done:     make(chan struct{}),
	}
}

func (hub *Hub) Subscribe(client *Client, topic string) {
	topic = strings.TrimSpace(topic)
	if client == nil || topic == "" {
		return
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()

	select {
	case <-client.done:
		return
	default:
	}

	client.Topics[topic] = true
	clients, exists := hub.subscriptions[topic]
	if !exists {
		clients = make(map[*Client]bool)
		hub.subscriptions[topic] = clients
	}
	clients[client] = true

	hub.log.Debug("realtime client subscribed", "client_id", client.ID, "topic", topic)
}

func (hub *Hub) Unsubscribe(client *Client, topic string) {
	topic = strings.TrimSpace(topic)
	if client == nil || topic == "" {
		return
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()

	delete(client.Topics, topic)
	hub.detachLocked(client, topic)
}

func (hub *Hub) detachLocked(client *Client, topic string) {
	if subMap, ok := hub.subscriptions[topic]; ok {
		delete(subMap, client)
		if len(subMap) == 0 {
			delete(hub.subscriptions, topic)
		}
	}
}

// Broadcast fans env out to every subscriber of env.Channel without blocking.
func (hub *Hub) Broadcast(env Envelope) {
	if env.Channel == "" {
		return
	}
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for c := range hub.subscriptions[env.Channel] {
		select {
		case c.Outbound <- env:
		default:
			observability.Current().IncRealtimeDropped("buffer_full")
			hub.log.Warn("Dropping realtime envelope; outbound buffer full", "client_id", c.ID, "topic", env.Channel)
		}
	}
}

// Subscribers reports how many clients listen on topic.
func (hub *Hub) Subscribers(topic string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.subscriptions[topic])
}

// CloseClient detaches the client from every topic and closes its queue. Safe to call twice.
func (hub *Hub) CloseClient(client *Client) {
	if client == nil {
		return
	}
	client.closeOnce.Do(func() {
		hub.mu.Lock()
		close(client.done)
		for topic := range client.Topics {
			hub.detachLocked(client, topic)
		}
		client.Topics = make(map[string]bool)
		hub.mu.Unlock()
		close(client.Outbound)
	})
}
