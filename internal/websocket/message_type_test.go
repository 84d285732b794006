package websocket

import (
	"testing"

	"poll-service/internal/pollsync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageTypeIsValid(t *testing.T) {
	valid := []MessageType{
		MessageTypeConnect, MessageTypeDisconnect,
		MessageTypeJoinChannel, MessageTypeLeaveChannel,
		MessageTypePollVoted, MessageTypePollUpdated,
		MessageTypeError,
	}
	for _, mt := range valid {
		assert.True(t, mt.IsValid(), "expected %s to be valid", mt)
	}

	assert.False(t, MessageType("bogus").IsValid())
	assert.False(t, MessageType("").IsValid())
}

func TestPollEventTypesMatchWireContract(t *testing.T) {
	assert.Equal(t, pollsync.EventPollVoted, MessageTypePollVoted.String())
	assert.Equal(t, pollsync.EventPollUpdated, MessageTypePollUpdated.String())
}

func TestMessageValidate(t *testing.T) {
	msg, err := NewMessage("m1", MessageTypeJoinChannel, "u1", ChannelJoinLeaveData{ChannelID: "c1"})
	require.NoError(t, err)
	assert.NoError(t, msg.Validate())
	assert.NotZero(t, msg.Timestamp)

	missingID := &Message{Type: MessageTypeConnect}
	assert.Error(t, missingID.Validate())

	badType := &Message{ID: "m1", Type: "nope"}
	assert.Error(t, badType.Validate())
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("m1", "u1", "INVALID_CHANNEL", "channel_id is required")

	require.NotNil(t, msg)
	assert.Equal(t, MessageTypeError, msg.Type)

	var data ErrorData
	require.NoError(t, decodeData(msg.Data, &data))
	assert.Equal(t, "INVALID_CHANNEL", data.Code)
}

func TestChannelFromTopic(t *testing.T) {
	assert.Equal(t, "c1", channelFromTopic("poll:channel:c1"))
	assert.Equal(t, "c:1", channelFromTopic("poll:channel:c:1"))
	assert.Empty(t, channelFromTopic("poll:channel"))
	assert.Empty(t, channelFromTopic("garbage"))
}
