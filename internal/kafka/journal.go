package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"poll-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// VoteEvent is one entry in the vote audit stream.
type VoteEvent struct {
	PollID    string      `json:"pollId"`
	ChannelID string      `json:"channelId"`
	OptionID  string      `json:"optionId"`
	Voter     models.User `json:"voter"`
	Action    string      `json:"action"`
	Timestamp int64       `json:"timestamp"`
}

// Journal writes accepted votes to a Kafka topic keyed by poll id, so all
// events for one poll land on the same partition in order.
type Journal struct {
	writer *kafka.Writer
}

func NewJournal(brokers []string, topic string) *Journal {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.Hash{},
	})
	return &Journal{writer: writer}
}

// Record appends one vote event. Journal failures are logged, not surfaced:
// the audit stream must never block a vote.
func (j *Journal) Record(ctx context.Context, event VoteEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = j.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.PollID),
		Value: value,
	})
	if err != nil {
		slog.Error("Failed to journal vote event", "pollID", event.PollID, "error", err)
		return err
	}

	slog.Debug("Vote event journaled", "pollID", event.PollID, "action", event.Action)
	return nil
}

func (j *Journal) Close() error {
	return j.writer.Close()
}
