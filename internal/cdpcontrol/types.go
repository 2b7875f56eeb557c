package cdpcontrol

import "github.com/dgnsrekt/rewardrunner/internal/types"

// Error codes and CodedError live in internal/types so packages outside the
// drivers can report them without importing a transport.
const (
	CodeValidation      = types.CodeValidation
	CodeTabNotFound     = types.CodeTabNotFound
	CodeElementNotFound = types.CodeElementNotFound
	CodeNavigation      = types.CodeNavigation
	CodeEvalFailure     = types.CodeEvalFailure
	CodeEvalTimeout     = types.CodeEvalTimeout
	CodeCDPUnavailable  = types.CodeCDPUnavailable
)

type CodedError = types.CodedError

func newError(code, msg string, cause error) error {
	return types.NewError(code, msg, cause)
}

// NewError builds a CodedError for callers outside this package.
func NewError(code, msg string, cause error) error {
	return types.NewError(code, msg, cause)
}

// SearchInput is the result of the fill step of a search.
type SearchInput struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
}

// SearchSubmit reports which submit strategy a page accepted.
type SearchSubmit struct {
	Method   string `json:"method"`
	Selector string `json:"selector,omitempty"`
}

// RewardLinks is the result of collecting activity links on the rewards page.
type RewardLinks struct {
	Count int      `json:"count"`
	Hrefs []string `json:"hrefs,omitempty"`
}
