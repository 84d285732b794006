package pollsync

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Manager bridges one event transport to the poll subsystem. It validates
// and deduplicates inbound poll events before invoking the given handlers,
// and publishes outbound updates produced by local votes.
type Manager struct {
	transport Transport

	onPollUpdated      func(PollUpdate)
	onVoteNotification func(VoteNotification)

	mu            sync.RWMutex
	currentUserID string
}

// NewManager wires the handlers to the transport and registers both inbound
// listeners. Call Cleanup to deregister them.
func NewManager(transport Transport, onPollUpdated func(PollUpdate), onVoteNotification func(VoteNotification)) *Manager {
	m := &Manager{
		transport:          transport,
		onPollUpdated:      onPollUpdated,
		onVoteNotification: onVoteNotification,
	}
	transport.On(EventPollVoted, m.handleVoteNotification)
	transport.On(EventPollUpdated, m.handlePollUpdated)
	return m
}

// SetCurrentUserID records the local user so that inbound events reflecting
// the user's own actions are dropped. The local actor already applied the
// change optimistically.
func (m *Manager) SetCurrentUserID(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentUserID = userID
}

func (m *Manager) isSelfEcho(voterID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentUserID != "" && voterID == m.currentUserID
}

func (m *Manager) handleVoteNotification(payload []byte) {
	var n VoteNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		slog.Error("Failed to decode vote notification", "error", err)
		return
	}
	if n.Voter != nil && m.isSelfEcho(n.Voter.ID) {
		slog.Debug("Vote notification self-echo suppressed", "pollID", n.PollID, "userID", n.Voter.ID)
		return
	}
	if m.onVoteNotification != nil {
		m.onVoteNotification(n)
	}
}

func (m *Manager) handlePollUpdated(payload []byte) {
	var u PollUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		slog.Error("Failed to decode poll update", "error", err)
		return
	}
	if u.Voter != nil && m.isSelfEcho(u.Voter.ID) {
		slog.Debug("Poll update self-echo suppressed", "userID", u.Voter.ID)
		return
	}
	if u.ChannelID == "" || u.MessageID == "" || u.UpdatedPoll == nil || u.UpdatedPoll.ID == "" {
		slog.Warn("Invalid poll update payload dropped",
			"channelID", u.ChannelID, "messageID", u.MessageID, "hasPoll", u.UpdatedPoll != nil)
		return
	}
	if m.onPollUpdated != nil {
		m.onPollUpdated(u)
	}
}

// SendPollUpdate publishes a poll update to other participants. When the
// update was caused by a vote, a vote notification goes out first; the full
// snapshot always follows with a freshly stamped timestamp. Returns false
// when the snapshot is missing, the transport is not connected, or an
// emission fails. Fire-and-forget either way: no acknowledgment is awaited.
func (m *Manager) SendPollUpdate(update PollUpdate) bool {
	if update.UpdatedPoll == nil || update.UpdatedPoll.ID == "" {
		slog.Warn("Poll update without snapshot not sent", "channelID", update.ChannelID)
		return false
	}
	if !m.transport.Connected() {
		slog.Warn("Poll update not sent, transport disconnected", "channelID", update.ChannelID)
		return false
	}

	if update.Voter != nil && update.Action != "" && update.OptionText != "" {
		notification := VoteNotification{
			ChannelID:    update.ChannelID,
			PollID:       update.UpdatedPoll.ID,
			Voter:        update.Voter,
			OptionText:   update.OptionText,
			PollQuestion: update.UpdatedPoll.Question,
			Action:       update.Action,
			Timestamp:    time.Now().UnixMilli(),
		}
		if err := m.transport.Emit(EventPollVoted, notification); err != nil {
			slog.Error("Failed to emit vote notification", "pollID", notification.PollID, "error", err)
			return false
		}
	}

	update.Timestamp = time.Now().UnixMilli()
	if err := m.transport.Emit(EventPollUpdated, update); err != nil {
		slog.Error("Failed to emit poll update", "channelID", update.ChannelID, "error", err)
		return false
	}
	return true
}

// IsConnected reports the transport's connection status.
func (m *Manager) IsConnected() bool {
	return m.transport.Connected()
}

// SocketInfo passes through the transport's status snapshot.
func (m *Manager) SocketInfo() TransportInfo {
	return m.transport.Info()
}

// Cleanup deregisters both inbound listeners.
func (m *Manager) Cleanup() {
	m.transport.Off(EventPollVoted)
	m.transport.Off(EventPollUpdated)
}
