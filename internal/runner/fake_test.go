package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/rewardrunner/internal/cdpcontrol"
	"github.com/dgnsrekt/rewardrunner/internal/types"
)

const testTabID = "tab-1"

// fakeBrowser answers page scripts with canned envelopes and records calls.
type fakeBrowser struct {
	mu sync.Mutex

	url         string
	createErr   error
	navErr      error
	getTabErrOn map[int]bool // 1-based GetTab call numbers that fail
	noInputOn   map[int]bool // 1-based fill call numbers with no search box
	rewardCount int
	failClickOn map[int]bool // 0-based link index

	created       []string
	navigations   []string
	getTabCalls   int
	fillScripts   []string
	submitScripts []string
	clickScripts  []string
	collects      int
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{url: "https://www.bing.com/"}
}

func (f *fakeBrowser) CreateTab(_ context.Context, url string) (types.TabInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, url)
	if f.createErr != nil {
		return types.TabInfo{}, f.createErr
	}
	f.url = url
	return types.TabInfo{TargetID: testTabID, URL: url, Type: "page"}, nil
}

func (f *fakeBrowser) GetTab(_ context.Context, tabID string) (types.TabInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getTabCalls++
	if f.getTabErrOn[f.getTabCalls] {
		return types.TabInfo{}, cdpcontrol.NewError(cdpcontrol.CodeTabNotFound, "tab not found: "+tabID, nil)
	}
	return types.TabInfo{TargetID: tabID, URL: f.url, Type: "page"}, nil
}

func (f *fakeBrowser) Navigate(_ context.Context, _ string, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	if f.navErr != nil {
		return f.navErr
	}
	f.url = url
	return nil
}

func (f *fakeBrowser) Evaluate(_ context.Context, _ string, js string, out any) error {
	f.mu.Lock()
	raw := f.respond(js)
	f.mu.Unlock()
	return cdpcontrol.DecodeEnvelope(raw, out)
}

func (f *fakeBrowser) respond(js string) string {
	switch {
	case strings.Contains(js, "could not find search input field"):
		f.fillScripts = append(f.fillScripts, js)
		if f.noInputOn[len(f.fillScripts)] {
			return `{"ok":false,"error_code":"ELEMENT_NOT_FOUND","error_message":"could not find search input field"}`
		}
		return `{"ok":true,"data":{"selector":"#sb_form_q","value":"x"}}`
	case strings.Contains(js, "no submit control available"):
		f.submitScripts = append(f.submitScripts, js)
		return `{"ok":true,"data":{"method":"click","selector":"#search_icon"}}`
	case strings.Contains(js, "Array.prototype.slice.call(nodes)"):
		f.collects++
		return fmt.Sprintf(`{"ok":true,"data":{"count":%d}}`, f.rewardCount)
	case strings.Contains(js, "is no longer available"):
		idx := len(f.clickScripts)
		f.clickScripts = append(f.clickScripts, js)
		if f.failClickOn[idx] {
			return fmt.Sprintf(`{"ok":false,"error_code":"ELEMENT_NOT_FOUND","error_message":"reward link %d is no longer available"}`, idx)
		}
		return fmt.Sprintf(`{"ok":true,"data":{"index":%d}}`, idx)
	}
	return `{"ok":false,"error_code":"EVAL_FAILURE","error_message":"unexpected script"}`
}

// sleepRecorder is an instant SleepFunc that remembers requested delays.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	failOn int // 1-based call that returns context.Canceled; 0 never
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	if s.failOn > 0 && len(s.delays) == s.failOn {
		return context.Canceled
	}
	return ctx.Err()
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

var testSearchOptions = SearchOptions{
	SearchURL:      "https://www.bing.com/",
	SearchHost:     "bing.com",
	SearchInterval: 9000 * time.Millisecond,
	SettleDelay:    3000 * time.Millisecond,
	TypingDelay:    500 * time.Millisecond,
}

var testRewardOptions = RewardOptions{
	RewardsURL:       "https://rewards.bing.com/",
	RewardsLoadDelay: 5000 * time.Millisecond,
	ClickDelay:       4000 * time.Millisecond,
}
