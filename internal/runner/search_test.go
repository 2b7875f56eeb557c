package runner

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/rewardrunner/internal/cdpcontrol"
)

const ms = time.Millisecond

func TestSearchRunnerAttemptsEveryTermDespiteFailures(t *testing.T) {
	fb := newFakeBrowser()
	fb.noInputOn = map[int]bool{2: true}
	fb.getTabErrOn = map[int]bool{4: true}
	sleeper := &sleepRecorder{}
	r := NewSearchRunner(fb, testSearchOptions, sleeper.Sleep)

	terms := []string{"yoga poses", "wine tasting", "cheese making", "bread baking", "tea ceremonies"}
	var started []int
	var failed []int
	report, err := r.Run(context.Background(), testTabID, terms, SearchHooks{
		OnStart: func(index int, _ string) { started = append(started, index) },
		OnDone: func(index int, _ string, _ cdpcontrol.SearchSubmit, err error) {
			if err != nil {
				failed = append(failed, index)
			}
		},
	})
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if report.Attempted != 5 || report.Submitted != 3 || report.Failed != 2 {
		t.Fatalf("report = %+v; want 5 attempted, 3 submitted, 2 failed", report)
	}
	if !slices.Equal(started, []int{1, 2, 3, 4, 5}) {
		t.Fatalf("OnStart indexes = %v", started)
	}
	if !slices.Equal(failed, []int{2, 4}) {
		t.Fatalf("failed indexes = %v", failed)
	}

	want := []time.Duration{500 * ms, 9000 * ms, 9000 * ms, 500 * ms, 9000 * ms, 9000 * ms, 500 * ms}
	if got := sleeper.Delays(); !slices.Equal(got, want) {
		t.Fatalf("delays = %v; want %v", got, want)
	}
	if len(fb.navigations) != 0 {
		t.Fatalf("unexpected navigations: %v", fb.navigations)
	}
	if len(fb.submitScripts) != 3 {
		t.Fatalf("submit scripts = %d; want 3", len(fb.submitScripts))
	}
}

func TestSearchRunnerFillsTermsInOrder(t *testing.T) {
	fb := newFakeBrowser()
	r := NewSearchRunner(fb, testSearchOptions, (&sleepRecorder{}).Sleep)

	terms := []string{"craft beer", "coffee brewing", "fermentation"}
	if _, err := r.Run(context.Background(), testTabID, terms, SearchHooks{}); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(fb.fillScripts) != len(terms) {
		t.Fatalf("fill scripts = %d; want %d", len(fb.fillScripts), len(terms))
	}
	for i, term := range terms {
		if !strings.Contains(fb.fillScripts[i], `"`+term+`"`) {
			t.Fatalf("fill %d does not carry %q", i+1, term)
		}
	}
	for _, js := range fb.submitScripts {
		if !strings.Contains(js, `document.querySelector("#sb_form_q")`) {
			t.Fatalf("submit script not bound to matched input: %s", js)
		}
	}
}

func TestSearchRunnerReturnsToSearchPage(t *testing.T) {
	fb := newFakeBrowser()
	fb.url = "https://rewards.example.com/dashboard"
	sleeper := &sleepRecorder{}
	r := NewSearchRunner(fb, testSearchOptions, sleeper.Sleep)

	report, err := r.Run(context.Background(), testTabID, []string{"nail art", "puzzle solutions"}, SearchHooks{})
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if report.Submitted != 2 {
		t.Fatalf("report = %+v", report)
	}
	if !slices.Equal(fb.navigations, []string{"https://www.bing.com/"}) {
		t.Fatalf("navigations = %v; want one return to search page", fb.navigations)
	}
	want := []time.Duration{3000 * ms, 500 * ms, 9000 * ms, 500 * ms}
	if got := sleeper.Delays(); !slices.Equal(got, want) {
		t.Fatalf("delays = %v; want %v", got, want)
	}
}

func TestSearchRunnerNavigationFailureCountsAsFailedTerm(t *testing.T) {
	fb := newFakeBrowser()
	fb.url = "about:blank"
	fb.navErr = cdpcontrol.NewError(cdpcontrol.CodeNavigation, "navigate failed", nil)
	r := NewSearchRunner(fb, testSearchOptions, (&sleepRecorder{}).Sleep)

	report, err := r.Run(context.Background(), testTabID, []string{"a", "b"}, SearchHooks{})
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if report.Attempted != 2 || report.Failed != 2 || len(fb.fillScripts) != 0 {
		t.Fatalf("report = %+v fills = %d", report, len(fb.fillScripts))
	}
}

func TestSearchRunnerStopsOnCancellation(t *testing.T) {
	fb := newFakeBrowser()
	sleeper := &sleepRecorder{failOn: 2} // typing delay, then the interval is cancelled
	r := NewSearchRunner(fb, testSearchOptions, sleeper.Sleep)

	report, err := r.Run(context.Background(), testTabID, []string{"a", "b", "c"}, SearchHooks{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v; want context.Canceled", err)
	}
	if report.Attempted != 1 || report.Submitted != 1 {
		t.Fatalf("report = %+v; want a single submitted search", report)
	}
}

func TestSearchRunnerEmptyTerms(t *testing.T) {
	fb := newFakeBrowser()
	sleeper := &sleepRecorder{}
	r := NewSearchRunner(fb, testSearchOptions, sleeper.Sleep)

	report, err := r.Run(context.Background(), testTabID, nil, SearchHooks{})
	if err != nil || report.Attempted != 0 {
		t.Fatalf("Run(nil) = %+v, %v", report, err)
	}
	if len(sleeper.Delays()) != 0 || fb.getTabCalls != 0 {
		t.Fatal("expected no browser activity for an empty run")
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep(cancelled) = %v", err)
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep(1ms) = %v", err)
	}
	if err := Sleep(context.Background(), 0); err != nil {
		t.Fatalf("Sleep(0) = %v", err)
	}
}
