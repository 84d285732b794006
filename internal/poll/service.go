package poll

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"poll-service/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrOptionNotFound is returned when a vote references an option id that
	// does not exist in the poll. ProcessVote is a pure computation with no
	// sensible sentinel value, so this is the one error the core returns.
	ErrOptionNotFound = errors.New("poll option not found")
)

// VoteAction is the outcome of processing a vote against an option.
type VoteAction string

const (
	VoteAdded   VoteAction = "added"
	VoteRemoved VoteAction = "removed"
)

// VoteResult carries the new snapshot produced by ProcessVote along with the
// action taken and the option's display text for notification purposes.
type VoteResult struct {
	UpdatedPoll *models.Poll
	Action      VoteAction
	OptionText  string
}

// GeneratePollID combines the creator id, current time and a short random
// token. Unique with overwhelming probability; collisions are not checked.
func GeneratePollID(userID string) string {
	token := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("poll_%s_%d_%s", userID, time.Now().UnixMilli(), token)
}

// GenerateOptionID mints a creation-time random token for a poll option.
func GenerateOptionID() string {
	return fmt.Sprintf("opt_%s", strings.Split(uuid.New().String(), "-")[0])
}

// CreatePoll stamps identity and creation metadata onto the given poll data
// and returns a fresh snapshot. The creator fields in data are not trusted;
// they are overwritten from currentUser. Options with empty ids get one
// minted. Callers wanting validation use ValidatePoll.
func CreatePoll(data *models.Poll, currentUser models.User) *models.Poll {
	poll := data.Clone()
	poll.ID = GeneratePollID(currentUser.ID)
	poll.CreatedBy = currentUser.ID
	poll.CreatedByName = currentUser.Name
	poll.CreatedAt = time.Now()
	poll.IsActive = true
	poll.TotalVoters = 0

	if poll.ShowResults == "" {
		poll.ShowResults = models.ShowResultsAlways
	}
	for i := range poll.Options {
		if poll.Options[i].ID == "" {
			poll.Options[i].ID = GenerateOptionID()
		}
		if poll.Options[i].Votes == nil {
			poll.Options[i].Votes = []models.PollVote{}
		}
	}
	return poll
}

// ProcessVote applies toggle semantics for voter on the given option and
// returns a new snapshot: an existing vote by the voter is removed, otherwise
// a new vote stamped with the current time is appended. TotalVoters is
// recomputed over the whole option set.
func ProcessVote(p *models.Poll, optionID string, voter models.User) (*VoteResult, error) {
	if p.Option(optionID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrOptionNotFound, optionID)
	}

	updated := p.Clone()
	opt := updated.Option(optionID)

	action := VoteAdded
	if opt.HasVoteFrom(voter.ID) {
		action = VoteRemoved
		votes := opt.Votes[:0]
		for _, v := range opt.Votes {
			if v.UserID != voter.ID {
				votes = append(votes, v)
			}
		}
		opt.Votes = votes
	} else {
		opt.Votes = append(opt.Votes, models.PollVote{
			UserID:     voter.ID,
			UserName:   voter.Name,
			UserAvatar: voter.Avatar,
			VotedAt:    time.Now(),
		})
	}

	updated.TotalVoters = CountVoters(updated.Options)

	return &VoteResult{
		UpdatedPoll: updated,
		Action:      action,
		OptionText:  opt.Text,
	}, nil
}

// CountVoters returns the number of distinct user ids holding at least one
// vote across the given options.
func CountVoters(options []models.PollOption) int {
	voters := make(map[string]struct{})
	for _, opt := range options {
		for _, v := range opt.Votes {
			voters[v.UserID] = struct{}{}
		}
	}
	return len(voters)
}

// ValidatePoll reports whether the poll has the minimum shape required to be
// handled: an id, a question and at least one option.
func ValidatePoll(p *models.Poll) bool {
	return p != nil && p.ID != "" && p.Question != "" && len(p.Options) > 0
}

// ValidatePollOption reports whether an option with the given id exists.
func ValidatePollOption(p *models.Poll, optionID string) bool {
	return p != nil && p.Option(optionID) != nil
}
