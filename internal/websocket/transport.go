package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"poll-service/internal/pollsync"

	"github.com/google/uuid"
)

// HubTransport satisfies pollsync.Transport on top of the hub and its redis
// fan-out. Outbound events are published to the payload's channel topic;
// every instance, this one included, delivers them to its local subscribers
// from the pubsub stream. Inbound events are the poll messages clients send
// over their sockets, dispatched by the hub.
type HubTransport struct {
	id  string
	hub *Hub
}

func NewHubTransport(hub *Hub) *HubTransport {
	return &HubTransport{
		id:  uuid.New().String(),
		hub: hub,
	}
}

// Emit wraps the payload in a wire message and publishes it to the payload's
// channel topic. Payloads that are not channel-addressed cannot be routed.
func (t *HubTransport) Emit(event string, payload interface{}) error {
	addressed, ok := payload.(pollsync.ChannelAddressed)
	if !ok {
		return fmt.Errorf("payload for event %q is not channel-addressed", event)
	}

	msg, err := NewMessage(uuid.New().String(), MessageType(event), "", payload)
	if err != nil {
		return fmt.Errorf("failed to build wire message: %w", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := t.hub.cache.PublishPollEvent(ctx, addressed.Channel(), data); err != nil {
		return err
	}
	slog.Debug("Poll event published", "event", event, "channelID", addressed.Channel())
	return nil
}

// On registers the handler the hub invokes for inbound client poll events.
func (t *HubTransport) On(event string, handler pollsync.Handler) {
	t.hub.handlersMu.Lock()
	defer t.hub.handlersMu.Unlock()
	t.hub.eventHandlers[event] = handler
}

// Off removes the inbound handler for an event.
func (t *HubTransport) Off(event string) {
	t.hub.handlersMu.Lock()
	defer t.hub.handlersMu.Unlock()
	delete(t.hub.eventHandlers, event)
}

// Connected reports whether the hub is serving and the fan-out is available.
func (t *HubTransport) Connected() bool {
	return t.hub.IsRunning() && t.hub.cache != nil
}

// Info returns a status snapshot for diagnostics.
func (t *HubTransport) Info() pollsync.TransportInfo {
	return pollsync.TransportInfo{
		ID:        t.id,
		Connected: t.Connected(),
	}
}
