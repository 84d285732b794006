package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"poll-service/internal/kafka"
	"poll-service/internal/models"
	"poll-service/internal/poll"
	"poll-service/internal/pollstate"
	"poll-service/internal/pollsync"
	"poll-service/internal/repositories/postgres"

	"gorm.io/gorm"
)

var (
	ErrPollNotFound   = errors.New("poll not found")
	ErrPollInvalid    = errors.New("poll is missing id, question or options")
	ErrVotingClosed   = errors.New("poll is closed for voting")
	ErrSingleChoice   = errors.New("poll does not allow multiple votes")
	ErrNotInitialized = errors.New("poll state not initialized")
)

// PollCache is the snapshot cache and voter bookkeeping the service needs.
// *PollCacheService is the redis-backed implementation.
type PollCache interface {
	CachePoll(ctx context.Context, poll *models.Poll) error
	GetCachedPoll(ctx context.Context, pollID string) (*models.Poll, error)
	DeletePoll(ctx context.Context, pollID string) error
	TrackVoter(ctx context.Context, pollID, userID string) error
	UntrackVoter(ctx context.Context, pollID, userID string) error
}

// PollSyncService owns the server-side poll lifecycle: it applies votes
// through the state manager's optimistic path, persists and caches accepted
// snapshots, journals vote events, and bridges remote updates arriving over
// the transport back into local state.
type PollSyncService struct {
	state   *pollstate.Manager
	repo    postgres.PollRepository
	cache   PollCache
	journal *kafka.Journal
	sync    *pollsync.Manager
}

func NewPollSyncService(state *pollstate.Manager, repo postgres.PollRepository, cache PollCache, journal *kafka.Journal) *PollSyncService {
	return &PollSyncService{
		state:   state,
		repo:    repo,
		cache:   cache,
		journal: journal,
	}
}

// Attach wires the service to an event transport. Call once at startup.
func (s *PollSyncService) Attach(transport pollsync.Transport) {
	s.sync = pollsync.NewManager(transport, s.onPollUpdated, s.onVoteNotification)
}

// Detach deregisters the transport listeners.
func (s *PollSyncService) Detach() {
	if s.sync != nil {
		s.sync.Cleanup()
	}
}

// onPollUpdated reconciles a remote snapshot into local state. The state
// manager's recency guard decides acceptance; accepted snapshots are
// persisted and re-cached.
func (s *PollSyncService) onPollUpdated(update pollsync.PollUpdate) {
	var excludeUserID string
	if update.Voter != nil {
		excludeUserID = update.Voter.ID
	}
	if !s.state.HandleRemoteUpdate(update.UpdatedPoll, excludeUserID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record, err := models.NewPollRecord(update.UpdatedPoll, update.ChannelID, update.MessageID)
	if err != nil {
		slog.Error("Failed to encode poll record", "pollID", update.UpdatedPoll.ID, "error", err)
		return
	}
	if err := s.repo.Save(ctx, record); err != nil {
		slog.Error("Failed to persist remote poll update", "pollID", update.UpdatedPoll.ID, "error", err)
	}
	if err := s.cache.CachePoll(ctx, update.UpdatedPoll); err != nil {
		slog.Error("Failed to cache remote poll update", "pollID", update.UpdatedPoll.ID, "error", err)
	}
}

// onVoteNotification keeps the lightweight voter set in step with remote
// votes. Display-only; the authoritative state travels in the full update.
func (s *PollSyncService) onVoteNotification(n pollsync.VoteNotification) {
	if n.Voter == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if n.Action == string(poll.VoteRemoved) {
		err = s.cache.UntrackVoter(ctx, n.PollID, n.Voter.ID)
	} else {
		err = s.cache.TrackVoter(ctx, n.PollID, n.Voter.ID)
	}
	if err != nil {
		slog.Debug("Voter tracking failed", "pollID", n.PollID, "error", err)
	}
}

// CreatePoll stamps and stores a new poll, initializes in-process state for
// the creator, and returns the snapshot.
func (s *PollSyncService) CreatePoll(ctx context.Context, data *models.Poll, creator models.User, channelID, messageID string) (*models.Poll, error) {
	created := poll.CreatePoll(data, creator)
	if !poll.ValidatePoll(created) {
		return nil, ErrPollInvalid
	}

	record, err := models.NewPollRecord(created, channelID, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	if err := s.cache.CachePoll(ctx, created); err != nil {
		slog.Warn("Poll created but not cached", "pollID", created.ID, "error", err)
	}

	s.state.InitializePoll(created, creator.ID)
	slog.Info("Poll created", "pollID", created.ID, "channelID", channelID, "createdBy", creator.ID)
	return created, nil
}

// CastVote toggles the voter's vote on an option through the optimistic
// local path, then persists, journals and propagates the new snapshot.
// The poll must be active and unexpired; single-choice polls reject a second
// option while the first vote stands.
func (s *PollSyncService) CastVote(ctx context.Context, pollID, optionID string, voter models.User) (*poll.VoteResult, error) {
	snapshot, record, err := s.loadPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	if !snapshot.IsActive || snapshot.IsExpired() {
		return nil, ErrVotingClosed
	}
	if !poll.ValidatePollOption(snapshot, optionID) {
		return nil, poll.ErrOptionNotFound
	}

	s.state.InitializePoll(snapshot, voter.ID)

	// Direction and single-choice enforcement happen inside the state
	// manager's critical section, so concurrent votes by one user cannot
	// both pass a stale check.
	updated, action, err := s.state.ToggleVote(pollID, optionID, voter.ID, snapshot.AllowMultiple)
	if errors.Is(err, pollstate.ErrVoteConflict) {
		return nil, ErrSingleChoice
	}
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrNotInitialized
	}

	result := poll.VoteAdded
	if action == pollstate.ActionUnvote {
		result = poll.VoteRemoved
	}
	optionText := updated.Option(optionID).Text

	updatedRecord, err := models.NewPollRecord(updated, record.ChannelID, record.MessageID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, updatedRecord); err != nil {
		return nil, err
	}
	if err := s.cache.CachePoll(ctx, updated); err != nil {
		slog.Warn("Vote applied but snapshot not cached", "pollID", pollID, "error", err)
	}

	if s.journal != nil {
		s.journal.Record(ctx, kafka.VoteEvent{
			PollID:    pollID,
			ChannelID: record.ChannelID,
			OptionID:  optionID,
			Voter:     voter,
			Action:    string(result),
			Timestamp: time.Now().UnixMilli(),
		})
	}

	if s.sync != nil {
		sent := s.sync.SendPollUpdate(pollsync.PollUpdate{
			ChannelID:   record.ChannelID,
			MessageID:   record.MessageID,
			UpdatedPoll: updated,
			Voter:       &voter,
			Action:      string(result),
			OptionText:  optionText,
		})
		if !sent {
			// The actor's state is already updated; remote participants catch
			// up on the next refresh.
			slog.Warn("Vote not propagated to participants", "pollID", pollID)
		}
	}

	return &poll.VoteResult{UpdatedPoll: updated, Action: result, OptionText: optionText}, nil
}

// GetPoll returns the freshest snapshot available: in-process state first,
// then the redis cache, then the durable store.
func (s *PollSyncService) GetPoll(ctx context.Context, pollID string) (*models.Poll, error) {
	if snapshot := s.state.GetPollState(pollID); snapshot != nil {
		return snapshot, nil
	}

	if cached, err := s.cache.GetCachedPoll(ctx, pollID); err == nil {
		return cached, nil
	}

	snapshot, _, err := s.loadPoll(ctx, pollID)
	return snapshot, err
}

// GetChannelPolls lists the channel's polls from the durable store.
func (s *PollSyncService) GetChannelPolls(ctx context.Context, channelID string) ([]*models.Poll, error) {
	records, err := s.repo.FindByChannelID(ctx, channelID)
	if err != nil {
		return nil, err
	}

	polls := make([]*models.Poll, 0, len(records))
	for _, record := range records {
		snapshot, err := record.Poll()
		if err != nil {
			slog.Error("Skipping undecodable poll record", "pollID", record.ID, "error", err)
			continue
		}
		polls = append(polls, snapshot)
	}
	return polls, nil
}

// Deactivate ends voting on a poll and propagates the final snapshot.
func (s *PollSyncService) Deactivate(ctx context.Context, pollID string, actor models.User) (*models.Poll, error) {
	snapshot, record, err := s.loadPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	updated := snapshot.Clone()
	updated.IsActive = false

	updatedRecord, err := models.NewPollRecord(updated, record.ChannelID, record.MessageID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, updatedRecord); err != nil {
		return nil, err
	}
	if err := s.cache.CachePoll(ctx, updated); err != nil {
		slog.Warn("Deactivated poll not cached", "pollID", pollID, "error", err)
	}

	// Local state must see the deactivated snapshot too; loadPoll prefers it
	// over the stored record, so leaving it stale would let votes through.
	s.state.ApplyLocalUpdate(updated)

	if s.sync != nil {
		s.sync.SendPollUpdate(pollsync.PollUpdate{
			ChannelID:   record.ChannelID,
			MessageID:   record.MessageID,
			UpdatedPoll: updated,
		})
	}

	slog.Info("Poll deactivated", "pollID", pollID, "actor", actor.ID)
	return updated, nil
}

// Delete removes a poll everywhere: durable store, cache and local state.
func (s *PollSyncService) Delete(ctx context.Context, pollID string) error {
	if err := s.repo.Delete(ctx, pollID); err != nil {
		return err
	}
	if err := s.cache.DeletePoll(ctx, pollID); err != nil {
		slog.Warn("Poll deleted but cache not cleared", "pollID", pollID, "error", err)
	}
	s.state.Cleanup(pollID)
	slog.Info("Poll deleted", "pollID", pollID)
	return nil
}

// State exposes the underlying state manager for read-side queries.
func (s *PollSyncService) State() *pollstate.Manager {
	return s.state
}

func (s *PollSyncService) loadPoll(ctx context.Context, pollID string) (*models.Poll, *models.PollRecord, error) {
	record, err := s.repo.FindByID(ctx, pollID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrPollNotFound
		}
		return nil, nil, err
	}

	// In-process state wins over the stored snapshot when present; it may
	// hold optimistic votes not yet persisted by another writer.
	if snapshot := s.state.GetPollState(pollID); snapshot != nil {
		return snapshot, record, nil
	}

	snapshot, err := record.Poll()
	if err != nil {
		return nil, nil, err
	}
	return snapshot, record, nil
}
