package models

import "time"

// ShowResultsPolicy controls when aggregate poll results are visible to a user.
type ShowResultsPolicy string

const (
	ShowResultsAlways    ShowResultsPolicy = "always"
	ShowResultsAfterVote ShowResultsPolicy = "after_vote"
	ShowResultsAfterEnd  ShowResultsPolicy = "after_end"
)

// IsValid checks if the ShowResultsPolicy is a valid enum value
func (p ShowResultsPolicy) IsValid() bool {
	switch p {
	case ShowResultsAlways, ShowResultsAfterVote, ShowResultsAfterEnd:
		return true
	default:
		return false
	}
}

// User is the identity snapshot attached to votes and poll creation.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// PollVote records a single user's selection of one option.
type PollVote struct {
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	UserAvatar string    `json:"userAvatar,omitempty"`
	VotedAt    time.Time `json:"votedAt"`
}

// PollOption is one selectable choice within a poll. A given user appears at
// most once in Votes; voting the same option again removes the prior vote.
type PollOption struct {
	ID    string     `json:"id"`
	Text  string     `json:"text"`
	Votes []PollVote `json:"votes"`
}

// HasVoteFrom reports whether userID already holds a vote on this option.
func (o *PollOption) HasVoteFrom(userID string) bool {
	for _, v := range o.Votes {
		if v.UserID == userID {
			return true
		}
	}
	return false
}

// Poll is the full in-memory snapshot of a poll at a point in time.
// Option order is display order and never changes after creation.
type Poll struct {
	ID            string            `json:"id"`
	Question      string            `json:"question"`
	Description   string            `json:"description,omitempty"`
	Options       []PollOption      `json:"options"`
	AllowMultiple bool              `json:"allowMultiple"`
	IsAnonymous   bool              `json:"isAnonymous"`
	ShowResults   ShowResultsPolicy `json:"showResults"`
	CreatedBy     string            `json:"createdBy"`
	CreatedByName string            `json:"createdByName"`
	CreatedAt     time.Time         `json:"createdAt"`
	EndTime       *time.Time        `json:"endTime,omitempty"`
	IsActive      bool              `json:"isActive"`

	// TotalVoters is the number of distinct users with at least one vote
	// across all options. Derived; recomputed after every mutation.
	TotalVoters int `json:"totalVoters"`
}

// IsExpired reports whether the poll's deadline has passed. Polls without an
// end time never expire.
func (p *Poll) IsExpired() bool {
	return p.EndTime != nil && time.Now().After(*p.EndTime)
}

// Option returns the option with the given id, or nil.
func (p *Poll) Option(optionID string) *PollOption {
	for i := range p.Options {
		if p.Options[i].ID == optionID {
			return &p.Options[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the poll. Snapshots handed to subscribers and
// callers are treated as immutable, so mutations always go through a clone.
func (p *Poll) Clone() *Poll {
	cp := *p
	if p.EndTime != nil {
		t := *p.EndTime
		cp.EndTime = &t
	}
	cp.Options = make([]PollOption, len(p.Options))
	for i, opt := range p.Options {
		cp.Options[i] = opt
		cp.Options[i].Votes = make([]PollVote, len(opt.Votes))
		copy(cp.Options[i].Votes, opt.Votes)
	}
	return &cp
}
