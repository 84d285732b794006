package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"poll-service/internal/pollsync"
)

// MessageType represents the type of WebSocket message using a custom enum type for better type safety
type MessageType string

// WebSocket message types - poll synchronization traffic
const (
	// Connection events
	MessageTypeConnect    MessageType = "connection.connect"
	MessageTypeDisconnect MessageType = "connection.disconnect"

	// Channel events
	MessageTypeJoinChannel  MessageType = "channel.join"
	MessageTypeLeaveChannel MessageType = "channel.leave"

	// Poll events, named to match the wire contract of the web client
	MessageTypePollVoted   MessageType = MessageType(pollsync.EventPollVoted)
	MessageTypePollUpdated MessageType = MessageType(pollsync.EventPollUpdated)

	// Error events
	MessageTypeError MessageType = "error"
)

// String returns the string representation of the MessageType
func (mt MessageType) String() string {
	return string(mt)
}

// IsValid checks if the MessageType is a valid enum value
func (mt MessageType) IsValid() bool {
	switch mt {
	case MessageTypeConnect, MessageTypeDisconnect, MessageTypeJoinChannel,
		MessageTypeLeaveChannel, MessageTypePollVoted, MessageTypePollUpdated,
		MessageTypeError:
		return true
	default:
		return false
	}
}

// Base message structure with typed MessageType for better type safety
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	UserID    string          `json:"user_id,omitempty"`
}

// Validate validates the message structure and type
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message ID is required")
	}
	if !m.Type.IsValid() {
		return fmt.Errorf("invalid message type: %s", m.Type)
	}
	return nil
}

type ChannelJoinLeaveData struct {
	ChannelID string `json:"channel_id" binding:"required" validate:"required"`
}

type ErrorData struct {
	Code    string `json:"code" validate:"required"`
	Message string `json:"message" validate:"required"`
}

type ConnectData struct {
	ClientID string `json:"client_id"`
	Status   string `json:"status"`
}

// NewMessage creates a new message with the specified type and payload
func NewMessage(id string, msgType MessageType, userID string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().Unix(),
		UserID:    userID,
	}, nil
}

// NewConnectMessage creates a connection success message
func NewConnectMessage(id, clientID, userID string) *Message {
	msg, _ := NewMessage(id, MessageTypeConnect, userID, ConnectData{ClientID: clientID, Status: "connected"})
	return msg
}

// NewErrorMessage creates an error message
func NewErrorMessage(id, userID, code, message string) *Message {
	msg, _ := NewMessage(id, MessageTypeError, userID, ErrorData{Code: code, Message: message})
	return msg
}

func decodeData(data json.RawMessage, dest interface{}) error {
	return json.Unmarshal(data, dest)
}
