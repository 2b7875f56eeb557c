// Package trigger maps browser lifecycle, new-tab, request and schedule
// events onto runs.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dgnsrekt/rewardrunner/internal/events"
	"github.com/dgnsrekt/rewardrunner/internal/metrics"
	"github.com/dgnsrekt/rewardrunner/internal/runner"
	"github.com/dgnsrekt/rewardrunner/internal/types"
	cronlib "github.com/robfig/cron/v3"
)

// Trigger sources.
const (
	SourceStartup  = "startup"
	SourceEnable   = "enable"
	SourceNewTab   = "new_tab"
	SourceRequest  = "request"
	SourceSchedule = "schedule"
)

// Starter admits runs and reports their state. *runner.Orchestrator
// satisfies it.
type Starter interface {
	Begin(trigger string) (*runner.Run, error)
	Status() runner.RunState
}

// Options configures trigger delays.
type Options struct {
	StartupDelay time.Duration
	NewTabDelay  time.Duration
}

// Dispatcher starts runs on behalf of every trigger source. Runs execute on
// the dispatcher's root context, not the context of whatever fired them.
type Dispatcher struct {
	ctx    context.Context
	orch   Starter
	opts   Options
	sleep  runner.SleepFunc
	broker *events.Broker

	wg      sync.WaitGroup
	mu      sync.Mutex
	cron    *cronlib.Cron
	stopped bool
}

func NewDispatcher(ctx context.Context, orch Starter, opts Options, sleep runner.SleepFunc, broker *events.Broker) *Dispatcher {
	if sleep == nil {
		sleep = runner.Sleep
	}
	return &Dispatcher{ctx: ctx, orch: orch, opts: opts, sleep: sleep, broker: broker}
}

// Fire tries to start a run now. It reports whether the run was admitted;
// the run itself continues in the background.
func (d *Dispatcher) Fire(source string) bool {
	if !d.track() {
		slog.Info("dispatcher stopping, trigger ignored", "trigger", source)
		metrics.TriggersTotal.WithLabelValues(source, "false").Inc()
		return false
	}
	run, err := d.orch.Begin(source)
	if err != nil {
		d.wg.Done()
		metrics.TriggersTotal.WithLabelValues(source, "false").Inc()
		if errors.Is(err, runner.ErrBusy) {
			slog.Info("searches already in progress, skipping", "trigger", source)
		} else {
			slog.Warn("trigger rejected", "trigger", source, "error", err)
		}
		if d.broker != nil {
			d.broker.Publish(events.New(events.TypeTriggerRejected, "", map[string]any{"trigger": source}))
		}
		return false
	}
	metrics.TriggersTotal.WithLabelValues(source, "true").Inc()

	go func() {
		defer d.wg.Done()
		run.Execute(d.ctx)
	}()
	return true
}

// FireAfter waits delay in the background, then fires.
func (d *Dispatcher) FireAfter(source string, delay time.Duration) {
	if !d.track() {
		return
	}
	slog.Info("trigger scheduled", "trigger", source, "delay", delay)
	go func() {
		defer d.wg.Done()
		if err := d.sleep(d.ctx, delay); err != nil {
			return
		}
		d.Fire(source)
	}()
}

// BrowserStarted fires the startup trigger after StartupDelay.
func (d *Dispatcher) BrowserStarted() {
	d.FireAfter(SourceStartup, d.opts.StartupDelay)
}

// Attached fires the enable trigger after StartupDelay.
func (d *Dispatcher) Attached() {
	d.FireAfter(SourceEnable, d.opts.StartupDelay)
}

// TabCreated starts a run only if none is running and none has started since
// launch, checking again after NewTabDelay.
func (d *Dispatcher) TabCreated(tab types.TabInfo) {
	if !d.freshIdle() {
		return
	}
	if !d.track() {
		return
	}
	slog.Info("new tab created, checking if we should start searches", "tab_id", tab.TargetID)
	go func() {
		defer d.wg.Done()
		if err := d.sleep(d.ctx, d.opts.NewTabDelay); err != nil {
			return
		}
		if !d.freshIdle() {
			return
		}
		d.Fire(SourceNewTab)
	}()
}

// track counts a background goroutine against Stop. It refuses once Stop has
// begun so wg.Add never races wg.Wait.
func (d *Dispatcher) track() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	d.wg.Add(1)
	return true
}

func (d *Dispatcher) freshIdle() bool {
	st := d.orch.Status()
	return !st.IsRunning && st.CompletedCount == 0
}

// WatchTabs subscribes TabCreated to the browser's new-tab events.
func (d *Dispatcher) WatchTabs(ctx context.Context, w types.TabWatcher) (func(), error) {
	stop, err := w.WatchTabs(ctx, d.TabCreated)
	if err != nil {
		return nil, fmt.Errorf("watch tabs: %w", err)
	}
	return stop, nil
}

// StartSchedule fires a run on every activation of the standard 5-field
// cron expression. An empty spec is a no-op.
func (d *Dispatcher) StartSchedule(spec string) error {
	if spec == "" {
		return nil
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cron != nil {
		return errors.New("schedule already started")
	}
	c := cronlib.New()
	c.Schedule(sched, cronlib.FuncJob(func() { d.Fire(SourceSchedule) }))
	c.Start()
	d.cron = c

	slog.Info("schedule trigger enabled", "schedule", spec, "next_run", sched.Next(time.Now()).Format(time.RFC3339))
	return nil
}

// ParseSchedule validates a standard 5-field cron expression.
func ParseSchedule(spec string) (cronlib.Schedule, error) {
	sched, err := cronlib.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %s: %w", strconv.Quote(spec), err)
	}
	return sched, nil
}

// Stop halts the schedule, refuses further triggers and waits for in-flight
// triggers and runs to return. Cancel the root context first to cut runs
// short.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	c := d.cron
	d.cron = nil
	d.stopped = true
	d.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
	d.wg.Wait()
}
