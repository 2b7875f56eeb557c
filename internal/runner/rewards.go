package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/rewardrunner/internal/cdpcontrol"
	"github.com/dgnsrekt/rewardrunner/internal/metrics"
)

// RewardOptions configures the Reward Clicker.
type RewardOptions struct {
	RewardsURL       string
	RewardSelector   string
	RewardsLoadDelay time.Duration
	ClickDelay       time.Duration
}

// RewardReport counts activity links found and clicked.
type RewardReport struct {
	Found   int
	Clicked int
}

// RewardClicker opens the rewards page and clicks each activity link once.
type RewardClicker struct {
	browser Browser
	opts    RewardOptions
	sleep   SleepFunc
}

func NewRewardClicker(browser Browser, opts RewardOptions, sleep SleepFunc) *RewardClicker {
	if sleep == nil {
		sleep = Sleep
	}
	if opts.RewardSelector == "" {
		opts.RewardSelector = cdpcontrol.DefaultRewardSelector
	}
	return &RewardClicker{browser: browser, opts: opts, sleep: sleep}
}

// Run never returns an error: failures are logged and the partial count is
// returned.
func (c *RewardClicker) Run(ctx context.Context, tabID string) RewardReport {
	var report RewardReport

	if err := c.browser.Navigate(ctx, tabID, c.opts.RewardsURL); err != nil {
		slog.Error("rewards navigation failed", "tab_id", tabID, "url", c.opts.RewardsURL, "error", err)
		return report
	}
	if err := c.sleep(ctx, c.opts.RewardsLoadDelay); err != nil {
		return report
	}

	var links cdpcontrol.RewardLinks
	if err := c.browser.Evaluate(ctx, tabID, cdpcontrol.JSCollectRewardLinks(c.opts.RewardSelector), &links); err != nil {
		slog.Error("reward link collection failed", "tab_id", tabID, "error", err)
		return report
	}
	report.Found = links.Count
	metrics.RewardLinksFound.Add(float64(links.Count))
	slog.Info("found reward activities", "count", links.Count)

	if links.Count == 0 {
		slog.Info("no reward activities found")
		return report
	}

	for i := 0; i < links.Count; i++ {
		slog.Info("clicking reward activity", "index", i+1, "total", links.Count)
		if err := c.browser.Evaluate(ctx, tabID, cdpcontrol.JSClickRewardLink(i), nil); err != nil {
			if ctx.Err() != nil {
				return report
			}
			metrics.RewardClicksTotal.WithLabelValues(metrics.ResultFailed).Inc()
			slog.Warn("reward click failed", "index", i+1, "error", err)
		} else {
			report.Clicked++
			metrics.RewardClicksTotal.WithLabelValues(metrics.ResultClicked).Inc()
		}
		if err := c.sleep(ctx, c.opts.ClickDelay); err != nil {
			return report
		}
	}

	slog.Info("all reward activities completed", "found", report.Found, "clicked", report.Clicked)
	return report
}
