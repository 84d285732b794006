package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"poll-service/internal/pollsync"
	"poll-service/internal/services"

	"github.com/redis/go-redis/v9"
)

var (
	ErrClientDisconnected = fmt.Errorf("client disconnected")
	ErrChannelNotFound    = fmt.Errorf("channel not found")
)

type ClientMessage struct {
	Client  *Client
	Message *Message
}

// Hub routes poll traffic between connected clients, the poll engine and the
// redis fan-out. Delivery to clients always goes through redis pubsub so
// every instance, including this one, serves its local subscribers from the
// same stream.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Client lookup by user ID
	userClients map[string]map[*Client]bool

	// Channel subscriptions
	channelClients map[string]map[*Client]bool

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Handle messages from clients
	handleMessage chan *ClientMessage

	// Redis-backed cache and pubsub service
	cache *services.PollCacheService

	// Redis PubSub connection
	pubsub *redis.PubSub

	// Inbound poll event handlers registered through the transport adapter
	eventHandlers map[string]pollsync.Handler
	handlersMu    sync.RWMutex

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc

	running bool

	// Mutex for thread safety
	mu sync.RWMutex
}

func NewHub(cache *services.PollCacheService) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:        make(map[*Client]bool),
		userClients:    make(map[string]map[*Client]bool),
		channelClients: make(map[string]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		handleMessage:  make(chan *ClientMessage),
		eventHandlers:  make(map[string]pollsync.Handler),
		cache:          cache,
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (h *Hub) Run() {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	h.subscribeToRedis()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case clientMsg := <-h.handleMessage:
			h.handleClientMessage(clientMsg)

		case <-h.ctx.Done():
			slog.Info("WebSocket hub shutting down")
			return
		}
	}
}

func (h *Hub) Stop() {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()

	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}

// IsRunning reports whether the hub loop is serving.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if h.userClients[client.userID] == nil {
		h.userClients[client.userID] = make(map[*Client]bool)
	}
	h.userClients[client.userID][client] = true

	slog.Info("Client registered", "clientID", client.id, "userID", client.userID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)

	if clients, ok := h.userClients[client.userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.userClients, client.userID)
		}
	}
	for channelID, clients := range h.channelClients {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channelClients, channelID)
		}
	}
	client.closeSendChannel()

	slog.Info("Client unregistered", "clientID", client.id, "userID", client.userID)
}

func (h *Hub) handleClientMessage(clientMsg *ClientMessage) {
	msg := clientMsg.Message
	client := clientMsg.Client

	if err := msg.Validate(); err != nil {
		slog.Warn("Invalid client message", "clientID", client.id, "error", err)
		client.sendError("INVALID_MESSAGE", err.Error())
		return
	}

	switch msg.Type {
	case MessageTypeJoinChannel:
		h.joinChannel(client, msg)

	case MessageTypeLeaveChannel:
		h.leaveChannel(client, msg)

	case MessageTypePollVoted, MessageTypePollUpdated:
		// Poll events flow into the sync layer; accepted updates come back
		// through redis pubsub for delivery.
		h.dispatchEvent(msg.Type.String(), msg.Data)

	default:
		slog.Debug("Unhandled message type", "type", msg.Type, "clientID", client.id)
	}
}

func (h *Hub) joinChannel(client *Client, msg *Message) {
	var data ChannelJoinLeaveData
	if err := decodeData(msg.Data, &data); err != nil || data.ChannelID == "" {
		client.sendError("INVALID_CHANNEL", "channel_id is required")
		return
	}

	h.mu.Lock()
	if h.channelClients[data.ChannelID] == nil {
		h.channelClients[data.ChannelID] = make(map[*Client]bool)
	}
	h.channelClients[data.ChannelID][client] = true
	h.mu.Unlock()

	client.AddChannel(data.ChannelID)
	slog.Debug("Client joined channel", "clientID", client.id, "channelID", data.ChannelID)
}

func (h *Hub) leaveChannel(client *Client, msg *Message) {
	var data ChannelJoinLeaveData
	if err := decodeData(msg.Data, &data); err != nil || data.ChannelID == "" {
		client.sendError("INVALID_CHANNEL", "channel_id is required")
		return
	}

	h.mu.Lock()
	if clients, ok := h.channelClients[data.ChannelID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channelClients, data.ChannelID)
		}
	}
	h.mu.Unlock()

	client.RemoveChannel(data.ChannelID)
	slog.Debug("Client left channel", "clientID", client.id, "channelID", data.ChannelID)
}

func (h *Hub) dispatchEvent(event string, payload []byte) {
	h.handlersMu.RLock()
	handler, ok := h.eventHandlers[event]
	h.handlersMu.RUnlock()

	if !ok {
		slog.Debug("No handler registered for event", "event", event)
		return
	}
	handler(payload)
}

// BroadcastToChannel delivers raw message bytes to every client subscribed
// to the channel on this instance.
func (h *Hub) BroadcastToChannel(channelID string, data []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.channelClients[channelID]))
	for client := range h.channelClients[channelID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.SendRaw(data); err != nil {
			slog.Debug("Dropping message for client", "clientID", client.id, "error", err)
		}
	}
}

// subscribeToRedis feeds redis pubsub traffic to local channel subscribers.
func (h *Hub) subscribeToRedis() {
	if h.cache == nil {
		slog.Warn("Hub running without redis fan-out")
		return
	}

	h.pubsub = h.cache.SubscribeChannels(h.ctx)

	go func() {
		for {
			select {
			case msg, ok := <-h.pubsub.Channel():
				if !ok {
					return
				}
				channelID := channelFromTopic(msg.Channel)
				if channelID == "" {
					slog.Warn("Unroutable pubsub topic", "topic", msg.Channel)
					continue
				}
				h.BroadcastToChannel(channelID, []byte(msg.Payload))

			case <-h.ctx.Done():
				return
			}
		}
	}()
}

// channelFromTopic extracts the chat channel id from a "poll:channel:<id>"
// pubsub topic.
func channelFromTopic(topic string) string {
	parts := strings.SplitN(topic, ":", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}
