package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/rewardrunner/internal/catalog"
	"github.com/dgnsrekt/rewardrunner/internal/cdpcontrol"
	"github.com/dgnsrekt/rewardrunner/internal/events"
	"github.com/dgnsrekt/rewardrunner/internal/metrics"
	"github.com/dgnsrekt/rewardrunner/internal/notify"
	"github.com/google/uuid"
)

const notifyTimeout = 10 * time.Second

// RunNotifier receives a summary of every finished run.
type RunNotifier interface {
	SendRunSummary(ctx context.Context, s notify.Summary) error
}

// Settings are the tunables of a run.
type Settings struct {
	SearchCount int
	Search      SearchOptions
	Rewards     RewardOptions
}

// Deps are the collaborators of an Orchestrator. Broker, Notifier and Rand
// may be nil.
type Deps struct {
	Catalog  *catalog.Catalog
	Browser  Browser
	Broker   *events.Broker
	Notifier RunNotifier
	Sleep    SleepFunc
	Rand     *rand.Rand
}

// Orchestrator admits one run at a time and owns the RunState.
type Orchestrator struct {
	settings Settings
	catalog  *catalog.Catalog
	browser  Browser
	search   *SearchRunner
	rewards  *RewardClicker
	broker   *events.Broker
	notifier RunNotifier
	sleep    SleepFunc
	rng      *rand.Rand

	busy atomic.Bool

	mu    sync.Mutex
	state RunState
}

func NewOrchestrator(settings Settings, deps Deps) *Orchestrator {
	sleep := deps.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	return &Orchestrator{
		settings: settings,
		catalog:  deps.Catalog,
		browser:  deps.Browser,
		search:   NewSearchRunner(deps.Browser, settings.Search, sleep),
		rewards:  NewRewardClicker(deps.Browser, settings.Rewards, sleep),
		broker:   deps.Broker,
		notifier: deps.Notifier,
		sleep:    sleep,
		rng:      deps.Rand,
		state:    RunState{TargetCount: settings.SearchCount},
	}
}

// Status returns a snapshot of the run state.
func (o *Orchestrator) Status() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Run is an admitted run. Execute must be called exactly once.
type Run struct {
	o         *Orchestrator
	id        string
	trigger   string
	startedAt time.Time
}

// Begin claims the busy flag and resets the run state. It returns ErrBusy
// when another run holds the flag.
func (o *Orchestrator) Begin(trigger string) (*Run, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	run := &Run{o: o, id: uuid.NewString(), trigger: trigger, startedAt: time.Now()}
	o.mu.Lock()
	o.state = RunState{
		IsRunning:   true,
		TargetCount: o.settings.SearchCount,
		RunID:       run.id,
		StartedAt:   run.startedAt,
		Trigger:     trigger,
	}
	o.mu.Unlock()

	metrics.RunInProgress.Set(1)
	slog.Info("starting automatic searches",
		"run_id", run.id, "trigger", trigger,
		"searches", o.settings.SearchCount, "interval", o.settings.Search.SearchInterval)
	o.publish(events.TypeRunStarted, run.id, map[string]any{
		"trigger": trigger,
		"total":   o.settings.SearchCount,
	})
	return run, nil
}

// Run admits and executes a run synchronously.
func (o *Orchestrator) Run(ctx context.Context, trigger string) (RunResult, error) {
	run, err := o.Begin(trigger)
	if err != nil {
		return RunResult{}, err
	}
	return run.Execute(ctx), nil
}

// Execute performs the searches and the rewards pass, then releases the busy
// flag whatever happened.
func (r *Run) Execute(ctx context.Context) (res RunResult) {
	o := r.o
	res = RunResult{RunID: r.id, Trigger: r.trigger, StartedAt: r.startedAt}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("run panicked", "run_id", r.id, "panic", p)
			res.Err = fmt.Errorf("run panicked: %v", p)
		}
		o.finish(ctx, &res)
	}()

	terms, err := o.catalog.Sample(o.rng, o.settings.SearchCount)
	if err != nil {
		res.Err = err
		return res
	}

	tab, err := o.browser.CreateTab(ctx, o.settings.Search.SearchURL)
	if err != nil {
		res.Err = err
		return res
	}
	res.TabID = tab.TargetID
	o.mu.Lock()
	o.state.ActiveTabID = tab.TargetID
	o.mu.Unlock()

	if err := o.sleep(ctx, o.settings.Search.SettleDelay); err != nil {
		res.Err = err
		return res
	}

	report, err := o.search.Run(ctx, tab.TargetID, terms, SearchHooks{
		OnStart: func(index int, _ string) {
			o.mu.Lock()
			o.state.CompletedCount = index
			o.mu.Unlock()
		},
		OnDone: func(index int, term string, submit cdpcontrol.SearchSubmit, err error) {
			if err != nil {
				o.publish(events.TypeSearchFailed, r.id, map[string]any{"index": index, "term": term, "error": err.Error()})
				return
			}
			o.publish(events.TypeSearchSubmitted, r.id, map[string]any{"index": index, "term": term, "method": submit.Method})
		},
	})
	res.Attempted = report.Attempted
	res.Submitted = report.Submitted
	res.Failed = report.Failed
	if err != nil {
		res.Err = err
		return res
	}
	slog.Info("all searches completed", "run_id", r.id, "submitted", report.Submitted, "failed", report.Failed)

	rewards := o.rewards.Run(ctx, tab.TargetID)
	res.LinksFound = rewards.Found
	res.LinksClicked = rewards.Clicked
	o.publish(events.TypeRewardsCompleted, r.id, map[string]any{"found": rewards.Found, "clicked": rewards.Clicked})
	return res
}

func (o *Orchestrator) finish(ctx context.Context, res *RunResult) {
	res.Duration = time.Since(res.StartedAt)

	o.mu.Lock()
	o.state.IsRunning = false
	o.mu.Unlock()
	metrics.RunInProgress.Set(0)
	o.busy.Store(false)

	outcome := res.Outcome()
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	metrics.RunDuration.WithLabelValues(outcome).Observe(res.Duration.Seconds())

	data := map[string]any{
		"outcome":       outcome,
		"trigger":       res.Trigger,
		"attempted":     res.Attempted,
		"submitted":     res.Submitted,
		"failed":        res.Failed,
		"links_found":   res.LinksFound,
		"links_clicked": res.LinksClicked,
		"duration_ms":   res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		data["error"] = res.Err.Error()
		slog.Error("error during automatic searches", "run_id", res.RunID, "error", res.Err)
	} else {
		slog.Info("run finished", "run_id", res.RunID, "duration", res.Duration.Round(time.Millisecond),
			"submitted", res.Submitted, "clicked", res.LinksClicked)
	}
	o.publish(events.TypeRunFinished, res.RunID, data)

	if o.notifier == nil {
		return
	}
	summary := notify.Summary{
		RunID:        res.RunID,
		Trigger:      res.Trigger,
		Attempted:    res.Attempted,
		Submitted:    res.Submitted,
		LinksFound:   res.LinksFound,
		LinksClicked: res.LinksClicked,
		Duration:     res.Duration,
	}
	if res.Err != nil {
		summary.Err = res.Err.Error()
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := o.notifier.SendRunSummary(notifyCtx, summary); err != nil {
		slog.Warn("run notification failed", "run_id", res.RunID, "error", err)
	}
}

func (o *Orchestrator) publish(typ, runID string, data any) {
	if o.broker == nil {
		return
	}
	o.broker.Publish(events.New(typ, runID, data))
}
