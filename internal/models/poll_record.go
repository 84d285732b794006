package models

import (
	"encoding/json"
	"time"
)

// PollRecord is the durable row backing a poll. The full snapshot is stored
// as JSONB; the indexed columns exist for channel-scoped lookups.
type PollRecord struct {
	ID        string `gorm:"column:id;primaryKey" json:"id"`
	ChannelID string `gorm:"column:channel_id;index" json:"channelId"`
	MessageID string `gorm:"column:message_id;index" json:"messageId"`
	Question  string `gorm:"column:question" json:"question"`
	CreatedBy string `gorm:"column:created_by;index" json:"createdBy"`
	IsActive  bool   `gorm:"column:is_active" json:"isActive"`
	Snapshot  []byte `gorm:"column:snapshot;type:jsonb" json:"snapshot"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name for PollRecord
func (PollRecord) TableName() string {
	return "polls"
}

// NewPollRecord builds a record from a poll snapshot.
func NewPollRecord(poll *Poll, channelID, messageID string) (*PollRecord, error) {
	data, err := json.Marshal(poll)
	if err != nil {
		return nil, err
	}
	return &PollRecord{
		ID:        poll.ID,
		ChannelID: channelID,
		MessageID: messageID,
		Question:  poll.Question,
		CreatedBy: poll.CreatedBy,
		IsActive:  poll.IsActive,
		Snapshot:  data,
	}, nil
}

// Poll decodes the stored snapshot.
func (r *PollRecord) Poll() (*Poll, error) {
	var poll Poll
	if err := json.Unmarshal(r.Snapshot, &poll); err != nil {
		return nil, err
	}
	return &poll, nil
}
