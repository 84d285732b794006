package poll

import "poll-service/internal/models"

// OptionStats is the per-option slice of a poll's aggregate results.
type OptionStats struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Votes      int     `json:"votes"`
	Percentage float64 `json:"percentage"`
}

// PollStats aggregates results across a poll. TotalVotes sums per-option vote
// counts, so with multiple-choice polls it can exceed TotalVoters.
type PollStats struct {
	TotalVotes  int           `json:"totalVotes"`
	TotalVoters int           `json:"totalVoters"`
	Options     []OptionStats `json:"options"`
}

// Stats computes aggregate statistics for the poll. Percentages are defined
// as 0 when no votes have been cast anywhere.
func Stats(p *models.Poll) PollStats {
	totalVotes := 0
	for _, opt := range p.Options {
		totalVotes += len(opt.Votes)
	}

	stats := PollStats{
		TotalVotes:  totalVotes,
		TotalVoters: CountVoters(p.Options),
		Options:     make([]OptionStats, 0, len(p.Options)),
	}
	for _, opt := range p.Options {
		pct := 0.0
		if totalVotes > 0 {
			pct = float64(len(opt.Votes)) / float64(totalVotes) * 100
		}
		stats.Options = append(stats.Options, OptionStats{
			ID:         opt.ID,
			Text:       opt.Text,
			Votes:      len(opt.Votes),
			Percentage: pct,
		})
	}
	return stats
}
