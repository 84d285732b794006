package response

const (
	ErrCodeSuccess      = 4001 // Success
	ErrCodeParamInvalid = 4003 // Request body or parameter invalid

	ErrCodePollNotFound   = 4101 // Poll does not exist
	ErrCodeOptionNotFound = 4102 // Option does not exist in the poll
	ErrCodeVotingClosed   = 4103 // Poll inactive or expired
	ErrCodeVoteConflict   = 4104 // Second option on a single-choice poll
	ErrCodePollInvalid    = 4105 // Poll missing id, question or options
)

// message
var msg = map[int]string{
	ErrCodeSuccess:      "success",
	ErrCodeParamInvalid: "invalid request",

	ErrCodePollNotFound:   "poll not found",
	ErrCodeOptionNotFound: "poll option not found",
	ErrCodeVotingClosed:   "poll is closed for voting",
	ErrCodeVoteConflict:   "poll does not allow multiple votes",
	ErrCodePollInvalid:    "poll is invalid",
}

// Message returns the display text for a response code.
func Message(code int) string {
	if m, ok := msg[code]; ok {
		return m
	}
	return "unknown error"
}
