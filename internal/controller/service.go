// Package controller adapts the run orchestrator and trigger dispatcher to
// the status and trigger surfaces exposed over HTTP.
package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/rewardrunner/internal/catalog"
	"github.com/dgnsrekt/rewardrunner/internal/runner"
	"github.com/dgnsrekt/rewardrunner/internal/types"
)

// Message actions understood by HandleMessage.
const (
	ActionStartSearches = "startSearches"
	ActionGetStatus     = "getStatus"
)

// Start results.
const (
	StartStarted = "started"
	StartBusy    = "busy"
)

// StateSource reports the current run state. *runner.Orchestrator satisfies it.
type StateSource interface {
	Status() runner.RunState
}

// Starter fires a run for a trigger source. *trigger.Dispatcher satisfies it.
type Starter interface {
	Fire(source string) bool
}

// StatusReply is the status triple of the message protocol.
type StatusReply struct {
	IsSearching        bool `json:"isSearching"`
	CurrentSearchCount int  `json:"currentSearchCount"`
	TotalSearches      int  `json:"totalSearches"`
}

// Status is StatusReply plus details of the current or most recent run.
type Status struct {
	StatusReply
	RunID       string     `json:"runId,omitempty"`
	ActiveTabID string     `json:"activeTabId,omitempty"`
	Trigger     string     `json:"trigger,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
}

// StartResult reports whether a start request was admitted.
type StartResult struct {
	Status string `json:"status" enum:"started,busy"`
}

// Message is a request in the extension message protocol.
type Message struct {
	Action string `json:"action"`
}

// CatalogInfo describes the loaded term catalog.
type CatalogInfo struct {
	Count int      `json:"count"`
	Terms []string `json:"terms"`
}

// Service wraps the run-facing operations of the daemon.
type Service struct {
	state   StateSource
	starter Starter
	source  string
	catalog *catalog.Catalog
}

// NewService builds a Service. Runs it starts are attributed to source.
func NewService(state StateSource, starter Starter, source string, cat *catalog.Catalog) *Service {
	return &Service{state: state, starter: starter, source: source, catalog: cat}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &types.CodedError{Code: types.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	st := s.state.Status()
	out := Status{
		StatusReply: StatusReply{
			IsSearching:        st.IsRunning,
			CurrentSearchCount: st.CompletedCount,
			TotalSearches:      st.TargetCount,
		},
		RunID:       st.RunID,
		ActiveTabID: st.ActiveTabID,
		Trigger:     st.Trigger,
	}
	if !st.StartedAt.IsZero() {
		started := st.StartedAt
		out.StartedAt = &started
	}
	return out, nil
}

// StartSearches asks for a run. A busy gate is reported, not returned as an
// error.
func (s *Service) StartSearches(ctx context.Context) (StartResult, error) {
	if s.starter.Fire(s.source) {
		return StartResult{Status: StartStarted}, nil
	}
	return StartResult{Status: StartBusy}, nil
}

// HandleMessage dispatches a message-protocol request.
func (s *Service) HandleMessage(ctx context.Context, msg Message) (any, error) {
	if err := s.requireNonEmpty(msg.Action, "action"); err != nil {
		return nil, err
	}
	switch strings.TrimSpace(msg.Action) {
	case ActionStartSearches:
		return s.StartSearches(ctx)
	case ActionGetStatus:
		st, err := s.Status(ctx)
		if err != nil {
			return nil, err
		}
		return st.StatusReply, nil
	default:
		return nil, &types.CodedError{Code: types.CodeValidation, Message: fmt.Sprintf("unknown action %q", msg.Action)}
	}
}

func (s *Service) Catalog(ctx context.Context) (CatalogInfo, error) {
	terms := s.catalog.Terms()
	return CatalogInfo{Count: len(terms), Terms: terms}, nil
}
