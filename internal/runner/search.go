package runner

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dgnsrekt/rewardrunner/internal/cdpcontrol"
	"github.com/dgnsrekt/rewardrunner/internal/metrics"
)

// SearchOptions configures the Search Runner.
type SearchOptions struct {
	SearchURL        string
	SearchHost       string
	InputSelectors   []string
	SubmitStrategies []cdpcontrol.SubmitStrategy
	SearchInterval   time.Duration
	SettleDelay      time.Duration
	TypingDelay      time.Duration
}

// SearchHooks observe per-term progress. Index is 1-based.
type SearchHooks struct {
	OnStart func(index int, term string)
	OnDone  func(index int, term string, submit cdpcontrol.SearchSubmit, err error)
}

// SearchReport counts the outcome of a search sequence.
type SearchReport struct {
	Attempted int
	Submitted int
	Failed    int
}

// SearchRunner types each term into the search page and submits it.
type SearchRunner struct {
	browser Browser
	opts    SearchOptions
	sleep   SleepFunc
}

func NewSearchRunner(browser Browser, opts SearchOptions, sleep SleepFunc) *SearchRunner {
	if sleep == nil {
		sleep = Sleep
	}
	if len(opts.InputSelectors) == 0 {
		opts.InputSelectors = cdpcontrol.DefaultInputSelectors
	}
	if len(opts.SubmitStrategies) == 0 {
		opts.SubmitStrategies = cdpcontrol.DefaultSubmitStrategies
	}
	return &SearchRunner{browser: browser, opts: opts, sleep: sleep}
}

// Run performs one search per term in order, waiting SearchInterval between
// terms. A failed term is logged and the sequence continues; only ctx
// cancellation stops it early.
func (r *SearchRunner) Run(ctx context.Context, tabID string, terms []string, hooks SearchHooks) (SearchReport, error) {
	var report SearchReport
	total := len(terms)

	for i, term := range terms {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		index := i + 1
		if hooks.OnStart != nil {
			hooks.OnStart(index, term)
		}
		slog.Info("performing search", "index", index, "total", total, "term", term, "tab_id", tabID)

		report.Attempted++
		submit, err := r.searchOnce(ctx, tabID, term)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			metrics.SearchesTotal.WithLabelValues(metrics.ResultFailed).Inc()
			slog.Warn("search failed", "index", index, "term", term, "tab_id", tabID, "error", err)
		} else {
			report.Submitted++
			metrics.SearchesTotal.WithLabelValues(metrics.ResultSubmitted).Inc()
			slog.Info("search submitted", "index", index, "term", term, "method", submit.Method)
		}
		if hooks.OnDone != nil {
			hooks.OnDone(index, term, submit, err)
		}

		if index < total {
			slog.Debug("waiting before next search", "delay", r.opts.SearchInterval)
			if err := r.sleep(ctx, r.opts.SearchInterval); err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

func (r *SearchRunner) searchOnce(ctx context.Context, tabID, term string) (cdpcontrol.SearchSubmit, error) {
	var submit cdpcontrol.SearchSubmit

	tab, err := r.browser.GetTab(ctx, tabID)
	if err != nil {
		return submit, err
	}
	if !strings.Contains(tab.URL, r.opts.SearchHost) {
		slog.Info("tab left search page, navigating back", "tab_id", tabID, "url", tab.URL)
		if err := r.browser.Navigate(ctx, tabID, r.opts.SearchURL); err != nil {
			return submit, err
		}
		if err := r.sleep(ctx, r.opts.SettleDelay); err != nil {
			return submit, err
		}
	}

	var input cdpcontrol.SearchInput
	if err := r.browser.Evaluate(ctx, tabID, cdpcontrol.JSFillSearch(term, r.opts.InputSelectors), &input); err != nil {
		return submit, err
	}
	if err := r.sleep(ctx, r.opts.TypingDelay); err != nil {
		return submit, err
	}

	err = r.browser.Evaluate(ctx, tabID, cdpcontrol.JSSubmitSearch(input.Selector, r.opts.SubmitStrategies), &submit)
	return submit, err
}
