package pollsync

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"poll-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory double for the event channel.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	handlers  map[string]Handler
	emitted   []emittedEvent
	emitErr   error
}

type emittedEvent struct {
	event   string
	payload interface{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connected: true,
		handlers:  make(map[string]Handler),
	}
}

func (f *fakeTransport) Emit(event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, emittedEvent{event: event, payload: payload})
	return nil
}

func (f *fakeTransport) On(event string, handler Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = handler
}

func (f *fakeTransport) Off(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, event)
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Info() TransportInfo {
	return TransportInfo{ID: "fake", Connected: f.Connected()}
}

// deliver simulates an inbound event from the network.
func (f *fakeTransport) deliver(t *testing.T, event string, payload interface{}) {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	f.mu.Lock()
	handler, ok := f.handlers[event]
	f.mu.Unlock()
	require.True(t, ok, "no handler for %s", event)
	handler(data)
}

func (f *fakeTransport) events() []emittedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]emittedEvent, len(f.emitted))
	copy(out, f.emitted)
	return out
}

func testUpdatePayload() PollUpdate {
	return PollUpdate{
		ChannelID: "c1",
		MessageID: "m1",
		UpdatedPoll: &models.Poll{
			ID:       "p1",
			Question: "Lunch?",
			Options:  []models.PollOption{{ID: "pizza", Text: "Pizza"}},
		},
	}
}

func TestNewManagerRegistersListeners(t *testing.T) {
	transport := newFakeTransport()
	NewManager(transport, nil, nil)

	assert.Contains(t, transport.handlers, EventPollVoted)
	assert.Contains(t, transport.handlers, EventPollUpdated)
}

func TestCleanupDeregistersListeners(t *testing.T) {
	transport := newFakeTransport()
	m := NewManager(transport, nil, nil)

	m.Cleanup()

	assert.NotContains(t, transport.handlers, EventPollVoted)
	assert.NotContains(t, transport.handlers, EventPollUpdated)
}

func TestSelfEchoSuppressed(t *testing.T) {
	transport := newFakeTransport()

	var updates []PollUpdate
	var notifications []VoteNotification
	m := NewManager(transport,
		func(u PollUpdate) { updates = append(updates, u) },
		func(n VoteNotification) { notifications = append(notifications, n) },
	)
	m.SetCurrentUserID("u1")

	own := testUpdatePayload()
	own.Voter = &models.User{ID: "u1", Name: "Alice"}
	transport.deliver(t, EventPollUpdated, own)
	transport.deliver(t, EventPollVoted, VoteNotification{
		ChannelID: "c1", PollID: "p1", Voter: &models.User{ID: "u1"}, Action: "added",
	})

	assert.Empty(t, updates)
	assert.Empty(t, notifications)

	other := testUpdatePayload()
	other.Voter = &models.User{ID: "u2", Name: "Bob"}
	transport.deliver(t, EventPollUpdated, other)
	transport.deliver(t, EventPollVoted, VoteNotification{
		ChannelID: "c1", PollID: "p1", Voter: &models.User{ID: "u2"}, Action: "added",
	})

	require.Len(t, updates, 1)
	require.Len(t, notifications, 1)
	assert.Equal(t, "u2", updates[0].Voter.ID)
	assert.Equal(t, "u2", notifications[0].Voter.ID)
}

func TestNoSuppressionWithoutCurrentUser(t *testing.T) {
	transport := newFakeTransport()

	var updates []PollUpdate
	m := NewManager(transport, func(u PollUpdate) { updates = append(updates, u) }, nil)
	_ = m

	own := testUpdatePayload()
	own.Voter = &models.User{ID: "u1"}
	transport.deliver(t, EventPollUpdated, own)

	assert.Len(t, updates, 1)
}

func TestInvalidPollUpdateDropped(t *testing.T) {
	transport := newFakeTransport()

	var updates []PollUpdate
	NewManager(transport, func(u PollUpdate) { updates = append(updates, u) }, nil)

	missingChannel := testUpdatePayload()
	missingChannel.ChannelID = ""
	transport.deliver(t, EventPollUpdated, missingChannel)

	missingMessage := testUpdatePayload()
	missingMessage.MessageID = ""
	transport.deliver(t, EventPollUpdated, missingMessage)

	missingPoll := testUpdatePayload()
	missingPoll.UpdatedPoll = nil
	transport.deliver(t, EventPollUpdated, missingPoll)

	emptyPollID := testUpdatePayload()
	emptyPollID.UpdatedPoll.ID = ""
	transport.deliver(t, EventPollUpdated, emptyPollID)

	assert.Empty(t, updates)

	transport.deliver(t, EventPollUpdated, testUpdatePayload())
	assert.Len(t, updates, 1)
}

func TestSendPollUpdateMissingSnapshot(t *testing.T) {
	transport := newFakeTransport()
	m := NewManager(transport, nil, nil)

	noPoll := testUpdatePayload()
	noPoll.UpdatedPoll = nil
	noPoll.Voter = &models.User{ID: "u1", Name: "Alice"}
	noPoll.Action = "added"
	noPoll.OptionText = "Pizza"
	assert.False(t, m.SendPollUpdate(noPoll))

	noID := testUpdatePayload()
	noID.UpdatedPoll.ID = ""
	assert.False(t, m.SendPollUpdate(noID))

	assert.Empty(t, transport.events())
}

func TestSendPollUpdateDisconnected(t *testing.T) {
	transport := newFakeTransport()
	transport.connected = false
	m := NewManager(transport, nil, nil)

	assert.False(t, m.SendPollUpdate(testUpdatePayload()))
	assert.Empty(t, transport.events())
}

func TestSendPollUpdateEmitsNotificationFirst(t *testing.T) {
	transport := newFakeTransport()
	m := NewManager(transport, nil, nil)

	update := testUpdatePayload()
	update.Voter = &models.User{ID: "u1", Name: "Alice"}
	update.Action = "added"
	update.OptionText = "Pizza"

	require.True(t, m.SendPollUpdate(update))

	events := transport.events()
	require.Len(t, events, 2)
	assert.Equal(t, EventPollVoted, events[0].event)
	assert.Equal(t, EventPollUpdated, events[1].event)

	notification, ok := events[0].payload.(VoteNotification)
	require.True(t, ok)
	assert.Equal(t, "p1", notification.PollID)
	assert.Equal(t, "Lunch?", notification.PollQuestion)
	assert.Equal(t, "Pizza", notification.OptionText)
	assert.NotZero(t, notification.Timestamp)

	sent, ok := events[1].payload.(PollUpdate)
	require.True(t, ok)
	assert.NotZero(t, sent.Timestamp)
}

func TestSendPollUpdateWithoutVoterSkipsNotification(t *testing.T) {
	transport := newFakeTransport()
	m := NewManager(transport, nil, nil)

	require.True(t, m.SendPollUpdate(testUpdatePayload()))

	events := transport.events()
	require.Len(t, events, 1)
	assert.Equal(t, EventPollUpdated, events[0].event)
}

func TestSendPollUpdateEmitFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.emitErr = errors.New("broken pipe")
	m := NewManager(transport, nil, nil)

	assert.False(t, m.SendPollUpdate(testUpdatePayload()))
}

func TestSocketInfoPassthrough(t *testing.T) {
	transport := newFakeTransport()
	m := NewManager(transport, nil, nil)

	assert.True(t, m.IsConnected())
	info := m.SocketInfo()
	assert.Equal(t, "fake", info.ID)
	assert.True(t, info.Connected)

	transport.mu.Lock()
	transport.connected = false
	transport.mu.Unlock()
	assert.False(t, m.IsConnected())
}

func TestMalformedPayloadIgnored(t *testing.T) {
	transport := newFakeTransport()

	var updates []PollUpdate
	NewManager(transport, func(u PollUpdate) { updates = append(updates, u) }, nil)

	transport.mu.Lock()
	handler := transport.handlers[EventPollUpdated]
	transport.mu.Unlock()
	handler([]byte("{not json"))

	assert.Empty(t, updates)
}
