package poll

import (
	"testing"
	"time"

	"poll-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func votesFrom(userIDs ...string) []models.PollVote {
	votes := make([]models.PollVote, 0, len(userIDs))
	for _, id := range userIDs {
		votes = append(votes, models.PollVote{UserID: id, UserName: id, VotedAt: time.Now()})
	}
	return votes
}

func TestStatsPercentages(t *testing.T) {
	p := &models.Poll{
		ID:       "p1",
		Question: "Q",
		Options: []models.PollOption{
			{ID: "a", Text: "A", Votes: votesFrom("u1", "u2", "u3")},
			{ID: "b", Text: "B", Votes: votesFrom("u4")},
		},
	}

	stats := Stats(p)

	assert.Equal(t, 4, stats.TotalVotes)
	assert.Equal(t, 4, stats.TotalVoters)
	require.Len(t, stats.Options, 2)
	assert.Equal(t, 3, stats.Options[0].Votes)
	assert.InDelta(t, 75.0, stats.Options[0].Percentage, 0.001)
	assert.Equal(t, 1, stats.Options[1].Votes)
	assert.InDelta(t, 25.0, stats.Options[1].Percentage, 0.001)
}

func TestStatsEmptyPoll(t *testing.T) {
	p := &models.Poll{
		ID:       "p1",
		Question: "Q",
		Options: []models.PollOption{
			{ID: "a", Text: "A"},
			{ID: "b", Text: "B"},
		},
	}

	stats := Stats(p)

	assert.Equal(t, 0, stats.TotalVotes)
	assert.Equal(t, 0, stats.TotalVoters)
	for _, opt := range stats.Options {
		assert.Zero(t, opt.Percentage)
	}
}

func TestStatsTotalVotesCanExceedTotalVoters(t *testing.T) {
	// one user voting across options counts once per option in TotalVotes
	p := &models.Poll{
		ID:            "p1",
		Question:      "Q",
		AllowMultiple: true,
		Options: []models.PollOption{
			{ID: "a", Text: "A", Votes: votesFrom("u1")},
			{ID: "b", Text: "B", Votes: votesFrom("u1")},
		},
	}

	stats := Stats(p)

	assert.Equal(t, 2, stats.TotalVotes)
	assert.Equal(t, 1, stats.TotalVoters)
}
