package pollview

import (
	"poll-service/internal/models"
)

// VisualState is the rendering treatment an option gets for a given viewer.
type VisualState string

const (
	// StateSelected marks an option the viewer has voted for.
	StateSelected VisualState = "selected"

	// StateHasVotes marks an option with votes from others while the viewer
	// is still undecided, so live standings stay visible.
	StateHasVotes VisualState = "hasVotes"

	// StateStable marks an option with votes from others after the viewer
	// committed elsewhere. Shown at reduced emphasis to cut decision-reversal
	// pressure; a product decision, not a technical constraint.
	StateStable VisualState = "stable"

	// StateDefault shows no progress at all.
	StateDefault VisualState = "default"
)

// OptionView is the per-option presentation state derived from a snapshot.
type OptionView struct {
	OptionID           string      `json:"optionId"`
	Text               string      `json:"text"`
	VoteCount          int         `json:"voteCount"`
	Percentage         float64     `json:"percentage"`
	IsUserSelected     bool        `json:"isUserSelected"`
	ShouldShowProgress bool        `json:"shouldShowProgress"`
	VisualState        VisualState `json:"visualState"`
}

// ResultsVisible applies the poll's ShowResults policy for a viewer who has
// (or has not) voted anywhere in the poll.
func ResultsVisible(p *models.Poll, viewerHasVoted bool) bool {
	switch p.ShowResults {
	case models.ShowResultsAfterVote:
		return viewerHasVoted
	case models.ShowResultsAfterEnd:
		return p.IsExpired() || !p.IsActive
	default:
		return true
	}
}

// BuildOptionViews derives presentation state for every option, in display
// order, for the given viewer. Tie-break policy in priority order:
//
//  1. viewer selected this option: always show progress, selected.
//  2. option has votes from others and the viewer has not voted anywhere:
//     show progress, hasVotes.
//  3. option has votes from others and the viewer voted elsewhere: show
//     progress at reduced emphasis, stable.
//  4. otherwise no progress, default.
//
// Rules 2 and 3 additionally respect the poll's results-visibility policy;
// a viewer's own selection is always visible to them.
func BuildOptionViews(p *models.Poll, userID string) []OptionView {
	totalVotes := 0
	viewerVoted := false
	for _, opt := range p.Options {
		totalVotes += len(opt.Votes)
		if opt.HasVoteFrom(userID) {
			viewerVoted = true
		}
	}
	resultsVisible := ResultsVisible(p, viewerVoted)

	views := make([]OptionView, 0, len(p.Options))
	for _, opt := range p.Options {
		view := OptionView{
			OptionID:    opt.ID,
			Text:        opt.Text,
			VoteCount:   len(opt.Votes),
			VisualState: StateDefault,
		}
		if totalVotes > 0 {
			view.Percentage = float64(len(opt.Votes)) / float64(totalVotes) * 100
		}

		selected := opt.HasVoteFrom(userID)
		othersVoted := hasVotesFromOthers(&opt, userID)

		switch {
		case selected:
			view.IsUserSelected = true
			view.ShouldShowProgress = true
			view.VisualState = StateSelected
		case othersVoted && !viewerVoted && resultsVisible:
			view.ShouldShowProgress = true
			view.VisualState = StateHasVotes
		case othersVoted && viewerVoted && resultsVisible:
			view.ShouldShowProgress = true
			view.VisualState = StateStable
		}

		views = append(views, view)
	}
	return views
}

func hasVotesFromOthers(opt *models.PollOption, userID string) bool {
	for _, v := range opt.Votes {
		if v.UserID != userID {
			return true
		}
	}
	return false
}
