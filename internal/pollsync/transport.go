package pollsync

import (
	"poll-service/internal/models"
)

// Event names carried on the wire.
const (
	EventPollVoted   = "pollVoted"
	EventPollUpdated = "pollUpdated"
)

// Handler consumes a raw inbound event payload.
type Handler func(payload []byte)

// Transport is the narrow contract the sync manager needs from a
// bidirectional event channel. Any transport can satisfy it: a websocket
// hub, a redis pubsub bridge, or an in-memory double in tests.
type Transport interface {
	// Emit sends one event with a JSON-serializable payload. Fire-and-forget;
	// no acknowledgment is awaited.
	Emit(event string, payload interface{}) error

	// On registers the handler for an inbound event, replacing any previous
	// handler for that event.
	On(event string, handler Handler)

	// Off removes the handler for an event.
	Off(event string)

	// Connected reports whether the transport can currently deliver events.
	Connected() bool

	// Info returns status details for diagnostics.
	Info() TransportInfo
}

// TransportInfo is a passthrough status snapshot of the transport.
type TransportInfo struct {
	ID        string `json:"id"`
	Connected bool   `json:"connected"`
}

// VoteNotification announces a single vote to other participants. It carries
// display data only; the authoritative state travels in PollUpdate.
type VoteNotification struct {
	ChannelID    string       `json:"channelId"`
	PollID       string       `json:"pollId"`
	Voter        *models.User `json:"voter"`
	OptionText   string       `json:"optionText"`
	PollQuestion string       `json:"pollQuestion"`
	Action       string       `json:"action"`
	Timestamp    int64        `json:"timestamp"`
}

// PollUpdate carries a full poll snapshot to other participants. Voter,
// Action and OptionText are present when the update was caused by a vote.
type PollUpdate struct {
	ChannelID   string       `json:"channelId"`
	MessageID   string       `json:"messageId"`
	UpdatedPoll *models.Poll `json:"updatedPoll"`
	Voter       *models.User `json:"voter,omitempty"`
	Action      string       `json:"action,omitempty"`
	OptionText  string       `json:"optionText,omitempty"`
	Timestamp   int64        `json:"timestamp"`
}

// Channel returns the channel the update is addressed to.
func (u PollUpdate) Channel() string { return u.ChannelID }

// Channel returns the channel the notification is addressed to.
func (n VoteNotification) Channel() string { return n.ChannelID }

// ChannelAddressed is implemented by payloads routed to one chat channel.
// Channel-aware transports use it to scope delivery.
type ChannelAddressed interface {
	Channel() string
}
