package runner

import (
	"errors"
	"time"

	"github.com/dgnsrekt/rewardrunner/internal/metrics"
)

// ErrBusy is returned when a run is requested while another holds the gate.
var ErrBusy = errors.New("searches already in progress")

// RunState is the observable state of the current or most recent run.
// CompletedCount keeps its final value after the run ends.
type RunState struct {
	IsRunning      bool
	CompletedCount int
	TargetCount    int
	ActiveTabID    string
	RunID          string
	StartedAt      time.Time
	Trigger        string
}

// RunResult summarizes a finished run. It is never persisted.
type RunResult struct {
	RunID        string
	Trigger      string
	StartedAt    time.Time
	Duration     time.Duration
	TabID        string
	Attempted    int
	Submitted    int
	Failed       int
	LinksFound   int
	LinksClicked int
	Err          error
}

// Outcome reports "completed" or "failed" for metrics and events.
func (r RunResult) Outcome() string {
	if r.Err != nil {
		return metrics.OutcomeFailed
	}
	return metrics.OutcomeCompleted
}
