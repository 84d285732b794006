package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"poll-service/internal/database"
	"poll-service/internal/models"

	"log/slog"

	"github.com/redis/go-redis/v9"
)

const pollChannelTopicPattern = "poll:channel:*"

// PollCacheService caches poll snapshots in redis and fans accepted poll
// events out across instances over pubsub.
type PollCacheService struct {
	client *database.RedisClient
	ttl    time.Duration
}

func NewPollCacheService(client *database.RedisClient, ttl time.Duration) *PollCacheService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PollCacheService{
		client: client,
		ttl:    ttl,
	}
}

// =============================================================================
// Snapshot Cache
// =============================================================================

func (s *PollCacheService) CachePoll(ctx context.Context, poll *models.Poll) error {
	data, err := json.Marshal(poll)
	if err != nil {
		return fmt.Errorf("failed to marshal poll: %w", err)
	}

	if err := s.client.GetClient().Set(ctx, pollKey(poll.ID), data, s.ttl).Err(); err != nil {
		slog.Error("Failed to cache poll", "pollID", poll.ID, "error", err)
		return err
	}

	slog.Debug("Poll cached", "pollID", poll.ID)
	return nil
}

func (s *PollCacheService) GetCachedPoll(ctx context.Context, pollID string) (*models.Poll, error) {
	data, err := s.client.GetClient().Get(ctx, pollKey(pollID)).Result()
	if err != nil {
		return nil, err
	}

	var poll models.Poll
	if err := json.Unmarshal([]byte(data), &poll); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached poll: %w", err)
	}
	return &poll, nil
}

func (s *PollCacheService) DeletePoll(ctx context.Context, pollID string) error {
	return s.client.GetClient().Del(ctx, pollKey(pollID)).Err()
}

// =============================================================================
// Voter Bookkeeping
// =============================================================================

// TrackVoter keeps a per-poll set of voter ids for quick distinct-voter
// lookups without decoding the snapshot.
func (s *PollCacheService) TrackVoter(ctx context.Context, pollID, userID string) error {
	pipe := s.client.GetClient().Pipeline()
	pipe.SAdd(ctx, voterKey(pollID), userID)
	pipe.Expire(ctx, voterKey(pollID), s.ttl)
	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("Failed to track voter", "pollID", pollID, "userID", userID, "error", err)
	}
	return err
}

func (s *PollCacheService) UntrackVoter(ctx context.Context, pollID, userID string) error {
	return s.client.GetClient().SRem(ctx, voterKey(pollID), userID).Err()
}

func (s *PollCacheService) HasVoterVoted(ctx context.Context, pollID, userID string) (bool, error) {
	return s.client.GetClient().SIsMember(ctx, voterKey(pollID), userID).Result()
}

// =============================================================================
// PubSub Fan-Out
// =============================================================================

// PublishPollEvent publishes pre-marshaled wire bytes to the channel's poll
// topic. Every hub instance delivers them to its local subscribers.
func (s *PollCacheService) PublishPollEvent(ctx context.Context, channelID string, data []byte) error {
	err := s.client.GetClient().Publish(ctx, channelTopic(channelID), data).Err()
	if err != nil {
		slog.Error("Failed to publish poll event", "channelID", channelID, "error", err)
		return err
	}

	slog.Debug("Published poll event", "channelID", channelID)
	return nil
}

// SubscribeChannels opens a pattern subscription covering every channel's
// poll topic.
func (s *PollCacheService) SubscribeChannels(ctx context.Context) *redis.PubSub {
	pubsub := s.client.GetClient().PSubscribe(ctx, pollChannelTopicPattern)
	slog.Debug("Pattern subscribed to poll topics", "pattern", pollChannelTopicPattern)
	return pubsub
}

func pollKey(pollID string) string {
	return fmt.Sprintf("poll:%s:snapshot", pollID)
}

func voterKey(pollID string) string {
	return fmt.Sprintf("poll:%s:voters", pollID)
}

func channelTopic(channelID string) string {
	return fmt.Sprintf("poll:channel:%s", channelID)
}
