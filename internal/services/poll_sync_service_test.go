package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"poll-service/internal/models"
	"poll-service/internal/poll"
	"poll-service/internal/pollstate"
	"poll-service/internal/pollsync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// opLog records cross-component operations so ordering can be asserted.
type opLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, op)
}

func (l *opLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// memoryRepo is an in-memory PollRepository.
type memoryRepo struct {
	mu      sync.Mutex
	records map[string]*models.PollRecord
	ops     *opLog
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[string]*models.PollRecord)}
}

func (r *memoryRepo) Create(ctx context.Context, record *models.PollRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ID] = record
	return nil
}

func (r *memoryRepo) FindByID(ctx context.Context, id string) (*models.PollRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return record, nil
}

func (r *memoryRepo) FindByChannelID(ctx context.Context, channelID string) ([]*models.PollRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PollRecord
	for _, record := range r.records {
		if record.ChannelID == channelID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *memoryRepo) Save(ctx context.Context, record *models.PollRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ops != nil {
		r.ops.add("repo.save")
	}
	r.records[record.ID] = record
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

func (r *memoryRepo) stored(t *testing.T, pollID string) *models.Poll {
	t.Helper()
	r.mu.Lock()
	record, ok := r.records[pollID]
	r.mu.Unlock()
	require.True(t, ok, "no record for %s", pollID)

	var snapshot models.Poll
	require.NoError(t, json.Unmarshal(record.Snapshot, &snapshot))
	return &snapshot
}

// memoryCache is an in-memory PollCache.
type memoryCache struct {
	mu     sync.Mutex
	polls  map[string]*models.Poll
	voters map[string]map[string]bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		polls:  make(map[string]*models.Poll),
		voters: make(map[string]map[string]bool),
	}
}

func (c *memoryCache) CachePoll(ctx context.Context, p *models.Poll) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls[p.ID] = p.Clone()
	return nil
}

func (c *memoryCache) GetCachedPoll(ctx context.Context, pollID string) (*models.Poll, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.polls[pollID]; ok {
		return p.Clone(), nil
	}
	return nil, errors.New("cache miss")
}

func (c *memoryCache) DeletePoll(ctx context.Context, pollID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.polls, pollID)
	return nil
}

func (c *memoryCache) TrackVoter(ctx context.Context, pollID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.voters[pollID] == nil {
		c.voters[pollID] = make(map[string]bool)
	}
	c.voters[pollID][userID] = true
	return nil
}

func (c *memoryCache) UntrackVoter(ctx context.Context, pollID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.voters[pollID], userID)
	return nil
}

// stubTransport is an in-memory pollsync.Transport.
type stubTransport struct {
	mu       sync.Mutex
	handlers map[string]pollsync.Handler
	ops      *opLog
}

func newStubTransport(ops *opLog) *stubTransport {
	return &stubTransport{handlers: make(map[string]pollsync.Handler), ops: ops}
}

func (s *stubTransport) Emit(event string, payload interface{}) error {
	if s.ops != nil {
		s.ops.add("emit:" + event)
	}
	return nil
}

func (s *stubTransport) On(event string, handler pollsync.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = handler
}

func (s *stubTransport) Off(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

func (s *stubTransport) Connected() bool { return true }

func (s *stubTransport) Info() pollsync.TransportInfo {
	return pollsync.TransportInfo{ID: "stub", Connected: true}
}

func (s *stubTransport) deliver(t *testing.T, event string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	s.mu.Lock()
	handler, ok := s.handlers[event]
	s.mu.Unlock()
	require.True(t, ok, "no handler for %s", event)
	handler(data)
}

func newTestService() (*PollSyncService, *memoryRepo, *memoryCache) {
	repo := newMemoryRepo()
	cache := newMemoryCache()
	svc := NewPollSyncService(pollstate.NewManager(pollstate.DefaultConfig()), repo, cache, nil)
	return svc, repo, cache
}

func lunchData() *models.Poll {
	return &models.Poll{
		Question: "Lunch?",
		Options: []models.PollOption{
			{Text: "Pizza"},
			{Text: "Sushi"},
		},
	}
}

var alice = models.User{ID: "u1", Name: "Alice"}

func TestCreatePollPersistsAndInitializesState(t *testing.T) {
	svc, repo, cache := newTestService()

	created, err := svc.CreatePoll(context.Background(), lunchData(), alice, "c1", "m1")
	require.NoError(t, err)

	assert.Equal(t, "u1", created.CreatedBy)
	assert.True(t, created.IsActive)

	stored := repo.stored(t, created.ID)
	assert.Equal(t, created.ID, stored.ID)

	_, err = cache.GetCachedPoll(context.Background(), created.ID)
	assert.NoError(t, err)

	assert.NotNil(t, svc.State().GetPollState(created.ID))
}

func TestCreatePollInvalid(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreatePoll(context.Background(), &models.Poll{Question: "Q"}, alice, "c1", "m1")
	assert.ErrorIs(t, err, ErrPollInvalid)
}

func TestCastVoteToggle(t *testing.T) {
	svc, repo, _ := newTestService()
	created, err := svc.CreatePoll(context.Background(), lunchData(), alice, "c1", "m1")
	require.NoError(t, err)
	pizza := created.Options[0].ID

	first, err := svc.CastVote(context.Background(), created.ID, pizza, alice)
	require.NoError(t, err)
	assert.Equal(t, poll.VoteAdded, first.Action)
	assert.Equal(t, "Pizza", first.OptionText)
	assert.Equal(t, 1, first.UpdatedPoll.TotalVoters)

	stored := repo.stored(t, created.ID)
	require.Len(t, stored.Options[0].Votes, 1)

	second, err := svc.CastVote(context.Background(), created.ID, pizza, alice)
	require.NoError(t, err)
	assert.Equal(t, poll.VoteRemoved, second.Action)
	assert.Equal(t, 0, second.UpdatedPoll.TotalVoters)
	assert.Empty(t, repo.stored(t, created.ID).Options[0].Votes)
}

func TestCastVoteSingleChoiceConflict(t *testing.T) {
	svc, _, _ := newTestService()
	created, err := svc.CreatePoll(context.Background(), lunchData(), alice, "c1", "m1")
	require.NoError(t, err)
	pizza, sushi := created.Options[0].ID, created.Options[1].ID

	_, err = svc.CastVote(context.Background(), created.ID, pizza, alice)
	require.NoError(t, err)

	_, err = svc.CastVote(context.Background(), created.ID, sushi, alice)
	assert.ErrorIs(t, err, ErrSingleChoice)

	// toggling off frees the user to choose the other option
	_, err = svc.CastVote(context.Background(), created.ID, pizza, alice)
	require.NoError(t, err)
	result, err := svc.CastVote(context.Background(), created.ID, sushi, alice)
	require.NoError(t, err)
	assert.Equal(t, poll.VoteAdded, result.Action)
}

func TestCastVoteAllowMultiple(t *testing.T) {
	svc, _, _ := newTestService()
	data := lunchData()
	data.AllowMultiple = true
	created, err := svc.CreatePoll(context.Background(), data, alice, "c1", "m1")
	require.NoError(t, err)

	_, err = svc.CastVote(context.Background(), created.ID, created.Options[0].ID, alice)
	require.NoError(t, err)
	result, err := svc.CastVote(context.Background(), created.ID, created.Options[1].ID, alice)
	require.NoError(t, err)

	assert.Equal(t, 1, result.UpdatedPoll.TotalVoters)
}

func TestCastVoteRejectedAfterDeactivate(t *testing.T) {
	svc, repo, _ := newTestService()
	created, err := svc.CreatePoll(context.Background(), lunchData(), alice, "c1", "m1")
	require.NoError(t, err)

	_, err = svc.Deactivate(context.Background(), created.ID, alice)
	require.NoError(t, err)

	_, err = svc.CastVote(context.Background(), created.ID, created.Options[0].ID, alice)
	assert.ErrorIs(t, err, ErrVotingClosed)

	// the stored record stays deactivated with no vote
	stored := repo.stored(t, created.ID)
	assert.False(t, stored.IsActive)
	assert.Equal(t, 0, stored.TotalVoters)
	assert.Empty(t, stored.Options[0].Votes)

	// local state agrees with the store
	assert.False(t, svc.State().GetPollState(created.ID).IsActive)
}

func TestCastVoteRejectedAfterExpiry(t *testing.T) {
	svc, _, _ := newTestService()
	past := time.Now().Add(-time.Minute)
	data := lunchData()
	data.EndTime = &past
	created, err := svc.CreatePoll(context.Background(), data, alice, "c1", "m1")
	require.NoError(t, err)

	_, err = svc.CastVote(context.Background(), created.ID, created.Options[0].ID, alice)
	assert.ErrorIs(t, err, ErrVotingClosed)
}

func TestCastVoteUnknownPoll(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CastVote(context.Background(), "ghost", "opt", alice)
	assert.ErrorIs(t, err, ErrPollNotFound)
}

func TestCastVoteUnknownOption(t *testing.T) {
	svc, _, _ := newTestService()
	created, err := svc.CreatePoll(context.Background(), lunchData(), alice, "c1", "m1")
	require.NoError(t, err)

	_, err = svc.CastVote(context.Background(), created.ID, "no-such-option", alice)
	assert.ErrorIs(t, err, poll.ErrOptionNotFound)
}

func TestCastVotePersistsBeforePropagating(t *testing.T) {
	ops := &opLog{}
	repo := newMemoryRepo()
	repo.ops = ops
	svc := NewPollSyncService(pollstate.NewManager(pollstate.DefaultConfig()), repo, newMemoryCache(), nil)
	svc.Attach(newStubTransport(ops))
	defer svc.Detach()

	created, err := svc.CreatePoll(context.Background(), lunchData(), alice, "c1", "m1")
	require.NoError(t, err)

	_, err = svc.CastVote(context.Background(), created.ID, created.Options[0].ID, alice)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"repo.save",
		"emit:" + pollsync.EventPollVoted,
		"emit:" + pollsync.EventPollUpdated,
	}, ops.list())
}

func TestRemoteUpdatePersisted(t *testing.T) {
	repo := newMemoryRepo()
	cache := newMemoryCache()
	state := pollstate.NewManager(pollstate.Config{RecencyWindow: time.Nanosecond})
	svc := NewPollSyncService(state, repo, cache, nil)
	transport := newStubTransport(nil)
	svc.Attach(transport)
	defer svc.Detach()

	created, err := svc.CreatePoll(context.Background(), lunchData(), alice, "c1", "m1")
	require.NoError(t, err)

	remote := created.Clone()
	remote.Options[0].Votes = []models.PollVote{{UserID: "u2", UserName: "Bob", VotedAt: time.Now()}}
	remote.TotalVoters = 1

	transport.deliver(t, pollsync.EventPollUpdated, pollsync.PollUpdate{
		ChannelID:   "c1",
		MessageID:   "m1",
		UpdatedPoll: remote,
		Voter:       &models.User{ID: "u2", Name: "Bob"},
	})

	assert.Equal(t, 1, state.GetPollState(created.ID).TotalVoters)
	assert.Equal(t, 1, repo.stored(t, created.ID).TotalVoters)
}

func TestDeletePollClearsEverywhere(t *testing.T) {
	svc, _, cache := newTestService()
	created, err := svc.CreatePoll(context.Background(), lunchData(), alice, "c1", "m1")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))

	assert.Nil(t, svc.State().GetPollState(created.ID))
	_, err = cache.GetCachedPoll(context.Background(), created.ID)
	assert.Error(t, err)
	_, err = svc.GetPoll(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrPollNotFound)
}

func TestGetPollFallsBackThroughLayers(t *testing.T) {
	svc, _, cache := newTestService()
	created, err := svc.CreatePoll(context.Background(), lunchData(), alice, "c1", "m1")
	require.NoError(t, err)

	// in-process state first
	fromState, err := svc.GetPoll(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fromState.ID)

	// then the cache
	svc.State().Cleanup(created.ID)
	fromCache, err := svc.GetPoll(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fromCache.ID)

	// then the durable store
	require.NoError(t, cache.DeletePoll(context.Background(), created.ID))
	fromRepo, err := svc.GetPoll(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fromRepo.ID)
}

func TestGetChannelPolls(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreatePoll(context.Background(), lunchData(), alice, "c1", "m1")
	require.NoError(t, err)
	_, err = svc.CreatePoll(context.Background(), lunchData(), alice, "c2", "m2")
	require.NoError(t, err)

	polls, err := svc.GetChannelPolls(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, polls, 1)
}
