package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gatewarden/internal/domain"
)

// Message types
const (
	MessageTypeXPUpdate      = "xp_update"
	MessageTypeRankPromotion = "rank_promotion"
	MessageTypeSubscribe     = "subscribe"
	MessageTypeUnsubscribe   = "unsubscribe"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeError         = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	PlayerKey string      `json:"player_key,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// XPUpdate notifies subscribers of an awarded XP event
type XPUpdate struct {
	PlayerKey string `json:"player_key"`
	XP        int64  `json:"xp"`
	TotalXP   int64  `json:"total_xp"`
	Source    string `json:"source,omitempty"`
}

// RankPromotion notifies subscribers of a ladder promotion
type RankPromotion struct {
	PlayerKey string              `json:"player_key"`
	From      domain.RankPosition `json:"from"`
	To        domain.RankPosition `json:"to"`
	Title     string              `json:"title"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by player key
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Inbound messages from clients
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client    *Client
	playerKey string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				// Remove from all player subscriptions
				for playerKey, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, playerKey)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.playerKey]; !ok {
				h.clients[req.playerKey] = make(map[*Client]bool)
			}
			h.clients[req.playerKey][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "player_key", req.playerKey)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.playerKey]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.playerKey)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "player_key", req.playerKey)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to all subscribed clients
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	// If message has a player key, only send to subscribed clients
	if message.PlayerKey != "" {
		if clients, ok := h.clients[message.PlayerKey]; ok {
			for client := range clients {
				select {
				case client.send <- data:
				default:
					// Client's buffer is full, skip
					h.logger.Warn("client buffer full, skipping", "client_id", client.id)
				}
			}
		}
	} else {
		// Broadcast to all clients
		for client := range h.allClients {
			select {
			case client.send <- data:
			default:
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

// BroadcastXPUpdate sends an XP award notification to the player's subscribers
func (h *Hub) BroadcastXPUpdate(playerKey string, xp, totalXP int64, source string) {
	message := &Message{
		Type:      MessageTypeXPUpdate,
		PlayerKey: playerKey,
		Data: XPUpdate{
			PlayerKey: playerKey,
			XP:        xp,
			TotalXP:   totalXP,
			Source:    source,
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastRankPromotion sends a promotion notification to all clients
func (h *Hub) BroadcastRankPromotion(playerKey string, from, to domain.RankPosition, title string) {
	message := &Message{
		Type: MessageTypeRankPromotion,
		Data: RankPromotion{
			PlayerKey: playerKey,
			From:      from,
			To:        to,
			Title:     title,
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a player subscription
func (h *Hub) Subscribe(client *Client, playerKey string) {
	h.subscribe <- &subscriptionRequest{
		client:    client,
		playerKey: playerKey,
	}
}

// Unsubscribe removes a client from a player subscription
func (h *Hub) Unsubscribe(client *Client, playerKey string) {
	h.unsubscribe <- &subscriptionRequest{
		client:    client,
		playerKey: playerKey,
	}
}

// GetTotalConnections returns the number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
