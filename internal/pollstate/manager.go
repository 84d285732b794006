package pollstate

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"poll-service/internal/models"
	"poll-service/internal/poll"
)

// Action is the direction of a local vote operation.
type Action string

const (
	ActionVote   Action = "vote"
	ActionUnvote Action = "unvote"
)

// ErrVoteConflict is returned by ToggleVote when a single-choice poll
// already holds the user's vote on a different option.
var ErrVoteConflict = errors.New("vote conflicts with an existing choice")

// fallbackVoterName labels votes cast by users we have no display data for.
const fallbackVoterName = "Unknown"

// Subscriber receives the latest poll snapshot whenever a remote update is
// accepted. Local votes do not fan out; the acting caller gets the new
// snapshot as a direct return value instead.
type Subscriber func(*models.Poll)

// LocalAction records the most recent optimistic vote a user performed,
// so callers can avoid flicker when reconciling against remote updates.
type LocalAction struct {
	OptionID string
	Action   Action
	At       time.Time
}

// Config tunes the manager's reconciliation and eviction behavior.
type Config struct {
	// RecencyWindow is how long after a local update incoming remote updates
	// are discarded, protecting an in-flight optimistic change from being
	// clobbered by a slightly-stale network echo of that same change.
	RecencyWindow time.Duration

	// StaleAge is how long untouched poll state is kept before the sweep
	// evicts it. This is a process-local cache, not durable storage.
	StaleAge time.Duration

	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		RecencyWindow: time.Second,
		StaleAge:      time.Hour,
		SweepInterval: 10 * time.Minute,
	}
}

type pollState struct {
	poll        *models.Poll
	userVotes   map[string][]string // user id -> option ids the user voted for
	lastActions map[string]LocalAction
	lastUpdate  time.Time
}

// Manager holds authoritative per-poll state for this process and a
// per-poll subscriber registry. Construct one at startup and pass it by
// reference; lifetime and test isolation stay explicit that way.
type Manager struct {
	mu        sync.RWMutex
	polls     map[string]*pollState
	subs      map[string]map[uint64]Subscriber
	nextSubID uint64
	cfg       Config

	stopSweep    chan struct{}
	sweepRunning bool

	// injectable clock for tests
	now func() time.Time
}

// NewManager creates a poll state manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = DefaultConfig().RecencyWindow
	}
	if cfg.StaleAge <= 0 {
		cfg.StaleAge = DefaultConfig().StaleAge
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	return &Manager{
		polls:     make(map[string]*pollState),
		subs:      make(map[string]map[uint64]Subscriber),
		cfg:       cfg,
		stopSweep: make(chan struct{}),
		now:       time.Now,
	}
}

// Subscribe registers a callback for accepted remote updates on the given
// poll. The returned function deregisters exactly that callback; calling it
// more than once is a no-op.
func (m *Manager) Subscribe(pollID string, fn Subscriber) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subs[pollID] == nil {
		m.subs[pollID] = make(map[uint64]Subscriber)
	}
	id := m.nextSubID
	m.nextSubID++
	m.subs[pollID][id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if subs, ok := m.subs[pollID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(m.subs, pollID)
			}
		}
	}
}

// InitializePoll registers a poll snapshot on first render and computes the
// given user's voted-option list by scanning the snapshot. Idempotent:
// re-initializing a known poll/user pair resets nothing.
func (m *Manager) InitializePoll(p *models.Poll, userID string) {
	if p == nil || p.ID == "" {
		slog.Warn("Ignoring poll initialization with empty snapshot")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.polls[p.ID]
	if !ok {
		st = &pollState{
			poll:        p.Clone(),
			userVotes:   make(map[string][]string),
			lastActions: make(map[string]LocalAction),
			lastUpdate:  m.now(),
		}
		m.polls[p.ID] = st
		slog.Debug("Poll state initialized", "pollID", p.ID)
	}

	if _, ok := st.userVotes[userID]; !ok {
		voted := []string{}
		for _, opt := range st.poll.Options {
			if opt.HasVoteFrom(userID) {
				voted = append(voted, opt.ID)
			}
		}
		st.userVotes[userID] = voted
		slog.Debug("User voting state recorded", "pollID", p.ID, "userID", userID, "votedOptions", len(voted))
	}
}

// HandleLocalVote applies an optimistic vote or unvote for userID on the
// given option and returns the new snapshot synchronously. Subscribers are
// NOT notified; this path feeds the actor's own UI only. Returns nil when
// the poll or the user's state was never initialized.
func (m *Manager) HandleLocalVote(pollID, optionID, userID string, action Action) *models.Poll {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.polls[pollID]
	if !ok {
		slog.Error("Local vote on unknown poll", "pollID", pollID, "userID", userID)
		return nil
	}
	if _, ok := st.userVotes[userID]; !ok {
		slog.Error("Local vote by uninitialized user", "pollID", pollID, "userID", userID)
		return nil
	}

	return m.applyVoteLocked(st, pollID, optionID, userID, action)
}

// ToggleVote decides the vote direction from current state and applies it in
// the same critical section, so concurrent votes by one user cannot pass
// stale checks. Voting an option the user already holds toggles it off; on a
// single-choice poll, voting a second option fails with ErrVoteConflict.
// Returns a nil snapshot when the poll or user state was never initialized.
func (m *Manager) ToggleVote(pollID, optionID, userID string, allowMultiple bool) (*models.Poll, Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.polls[pollID]
	if !ok {
		slog.Error("Vote on unknown poll", "pollID", pollID, "userID", userID)
		return nil, "", nil
	}
	voted, ok := st.userVotes[userID]
	if !ok {
		slog.Error("Vote by uninitialized user", "pollID", pollID, "userID", userID)
		return nil, "", nil
	}
	opt := st.poll.Option(optionID)
	if opt == nil {
		slog.Error("Vote on unknown option", "pollID", pollID, "optionID", optionID)
		return nil, "", nil
	}

	action := ActionVote
	if opt.HasVoteFrom(userID) {
		action = ActionUnvote
	}
	if action == ActionVote && !allowMultiple {
		for _, other := range voted {
			if other != optionID {
				return nil, "", ErrVoteConflict
			}
		}
	}

	return m.applyVoteLocked(st, pollID, optionID, userID, action), action, nil
}

// applyVoteLocked performs the clone-and-toggle. The caller holds m.mu and
// has verified the poll and the user's state exist.
func (m *Manager) applyVoteLocked(st *pollState, pollID, optionID, userID string, action Action) *models.Poll {
	voted := st.userVotes[userID]

	updated := st.poll.Clone()
	opt := updated.Option(optionID)
	if opt == nil {
		slog.Error("Local vote on unknown option", "pollID", pollID, "optionID", optionID)
		return nil
	}

	switch action {
	case ActionVote:
		if !opt.HasVoteFrom(userID) {
			name, avatar := displayFieldsFor(updated, userID)
			opt.Votes = append(opt.Votes, models.PollVote{
				UserID:     userID,
				UserName:   name,
				UserAvatar: avatar,
				VotedAt:    m.now(),
			})
			voted = append(voted, optionID)
		}
	case ActionUnvote:
		votes := opt.Votes[:0]
		for _, v := range opt.Votes {
			if v.UserID != userID {
				votes = append(votes, v)
			}
		}
		opt.Votes = votes
		voted = removeString(voted, optionID)
	default:
		slog.Error("Unknown local vote action", "pollID", pollID, "action", string(action))
		return nil
	}

	updated.TotalVoters = poll.CountVoters(updated.Options)

	st.poll = updated
	st.userVotes[userID] = voted
	st.lastActions[userID] = LocalAction{OptionID: optionID, Action: action, At: m.now()}
	st.lastUpdate = m.now()

	return updated
}

// ApplyLocalUpdate replaces the stored snapshot after a local authoritative
// change, such as deactivation. Like HandleLocalVote it does not notify
// subscribers; the caller already holds the result and remote instances get
// theirs over the transport. Dropped when the poll was never initialized.
func (m *Manager) ApplyLocalUpdate(updated *models.Poll) {
	if updated == nil || updated.ID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.polls[updated.ID]
	if !ok {
		return
	}

	snapshot := updated.Clone()
	st.poll = snapshot
	st.lastUpdate = m.now()
	for userID := range st.userVotes {
		voted := []string{}
		for _, opt := range snapshot.Options {
			if opt.HasVoteFrom(userID) {
				voted = append(voted, opt.ID)
			}
		}
		st.userVotes[userID] = voted
	}
	slog.Debug("Local update applied", "pollID", updated.ID)
}

// HandleRemoteUpdate replaces the stored snapshot with one that arrived over
// the network and fans it out to the poll's subscribers. Updates for polls
// never initialized locally are dropped. Updates arriving within the recency
// window of the last local change are discarded so an in-flight optimistic
// update is not clobbered by its own echo.
//
// excludeUserID is accepted for wire compatibility but does not filter
// subscriber notification; self-echo suppression happens in the sync layer.
func (m *Manager) HandleRemoteUpdate(updated *models.Poll, excludeUserID string) bool {
	if updated == nil || updated.ID == "" {
		slog.Warn("Ignoring remote update with empty snapshot")
		return false
	}

	m.mu.Lock()
	st, ok := m.polls[updated.ID]
	if !ok {
		m.mu.Unlock()
		slog.Warn("Remote update for unknown poll dropped", "pollID", updated.ID)
		return false
	}

	if elapsed := m.now().Sub(st.lastUpdate); elapsed < m.cfg.RecencyWindow {
		m.mu.Unlock()
		slog.Debug("Remote update discarded by recency guard",
			"pollID", updated.ID, "elapsed", elapsed, "window", m.cfg.RecencyWindow)
		return false
	}

	snapshot := updated.Clone()
	st.poll = snapshot
	st.lastUpdate = m.now()
	for userID := range st.userVotes {
		voted := []string{}
		for _, opt := range snapshot.Options {
			if opt.HasVoteFrom(userID) {
				voted = append(voted, opt.ID)
			}
		}
		st.userVotes[userID] = voted
	}

	// Snapshot the subscriber list so callbacks run outside the lock.
	var fns []Subscriber
	for _, fn := range m.subs[updated.ID] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
	slog.Debug("Remote update applied", "pollID", updated.ID, "subscribers", len(fns))
	return true
}

// GetPollState returns the current snapshot for the poll, or nil.
func (m *Manager) GetPollState(pollID string) *models.Poll {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if st, ok := m.polls[pollID]; ok {
		return st.poll
	}
	return nil
}

// GetUserVotingState returns the option ids the user has voted for.
func (m *Manager) GetUserVotingState(pollID, userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.polls[pollID]
	if !ok {
		return []string{}
	}
	voted := st.userVotes[userID]
	out := make([]string, len(voted))
	copy(out, voted)
	return out
}

// HasUserVoted reports whether the user holds at least one vote in the poll.
func (m *Manager) HasUserVoted(pollID, userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if st, ok := m.polls[pollID]; ok {
		return len(st.userVotes[userID]) > 0
	}
	return false
}

// GetLastLocalAction returns the user's most recent optimistic vote, if any.
func (m *Manager) GetLastLocalAction(pollID, userID string) (LocalAction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if st, ok := m.polls[pollID]; ok {
		action, ok := st.lastActions[userID]
		return action, ok
	}
	return LocalAction{}, false
}

// GetOptionsUserCanSee returns the option ids visible to the user under
// partial-results policies: options they voted for, plus any option holding
// at least one vote from someone else.
func (m *Manager) GetOptionsUserCanSee(pollID, userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.polls[pollID]
	if !ok {
		return []string{}
	}

	visible := []string{}
	for _, opt := range st.poll.Options {
		if opt.HasVoteFrom(userID) {
			visible = append(visible, opt.ID)
			continue
		}
		for _, v := range opt.Votes {
			if v.UserID != userID {
				visible = append(visible, opt.ID)
				break
			}
		}
	}
	return visible
}

// Cleanup evicts one poll's state and subscriber list immediately.
func (m *Manager) Cleanup(pollID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.polls, pollID)
	delete(m.subs, pollID)
	slog.Debug("Poll state evicted", "pollID", pollID)
}

// CleanupStale evicts every poll whose last update is older than StaleAge.
// Returns the number of polls evicted.
func (m *Manager) CleanupStale() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.cfg.StaleAge)
	evicted := 0
	for pollID, st := range m.polls {
		if st.lastUpdate.Before(cutoff) {
			delete(m.polls, pollID)
			delete(m.subs, pollID)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Info("Stale poll state swept", "evicted", evicted)
	}
	return evicted
}

// StartSweep runs the stale-state sweep on a background ticker.
func (m *Manager) StartSweep() {
	m.mu.Lock()
	if m.sweepRunning {
		m.mu.Unlock()
		return
	}
	m.sweepRunning = true
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.CleanupStale()
			case <-m.stopSweep:
				slog.Debug("Poll state sweep stopped")
				return
			}
		}
	}()
}

// StopSweep stops the background sweep.
func (m *Manager) StopSweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sweepRunning {
		return
	}
	close(m.stopSweep)
	m.stopSweep = make(chan struct{})
	m.sweepRunning = false
}

// displayFieldsFor backfills voter display fields from any other vote the
// user holds elsewhere in the poll.
func displayFieldsFor(p *models.Poll, userID string) (name, avatar string) {
	for _, opt := range p.Options {
		for _, v := range opt.Votes {
			if v.UserID == userID {
				return v.UserName, v.UserAvatar
			}
		}
	}
	return fallbackVoterName, ""
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, s := range list {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
