package cdp

import (
	"context"
	"errors"
	"testing"
	"time"

	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/rewardrunner/internal/cdpcontrol"
	"github.com/dgnsrekt/rewardrunner/internal/types"
)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var coded *cdpcontrol.CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("expected *CodedError, got %T (%v)", err, err)
	}
	if coded.Code != code {
		t.Fatalf("code = %s; want %s", coded.Code, code)
	}
}

func TestDisconnectedClientErrors(t *testing.T) {
	c := NewClient("http://127.0.0.1:9222", time.Second, NewTabRegistry())
	ctx := context.Background()

	_, err := c.CreateTab(ctx, "https://www.bing.com/")
	requireCode(t, err, cdpcontrol.CodeCDPUnavailable)

	_, err = c.GetTab(ctx, "tab-1")
	requireCode(t, err, cdpcontrol.CodeCDPUnavailable)

	requireCode(t, c.Evaluate(ctx, "tab-1", "1", nil), cdpcontrol.CodeCDPUnavailable)

	_, err = c.WatchTabs(ctx, func(types.TabInfo) {})
	requireCode(t, err, cdpcontrol.CodeCDPUnavailable)
}

func TestValidation(t *testing.T) {
	c := NewClient("http://127.0.0.1:9222", time.Second, NewTabRegistry())

	requireCode(t, c.Navigate(context.Background(), "tab-1", ""), cdpcontrol.CodeValidation)
	_, err := c.WatchTabs(context.Background(), nil)
	requireCode(t, err, cdpcontrol.CodeValidation)

	requireCode(t, NewClient("", time.Second, NewTabRegistry()).Connect(context.Background()), cdpcontrol.CodeCDPUnavailable)
}

func TestEventHandlerTracksMainFrameURL(t *testing.T) {
	reg := NewTabRegistry()
	c := NewClient("http://127.0.0.1:9222", time.Second, reg)
	handler := c.createEventHandler("tab-1")

	handler(&page.EventFrameNavigated{Frame: &cdpproto.Frame{URL: "https://www.bing.com/search?q=tides"}})
	handler(&page.EventFrameNavigated{Frame: &cdpproto.Frame{ParentID: "parent", URL: "https://ads.example/"}})

	info, ok := reg.Get("tab-1")
	if !ok || info.URL != "https://www.bing.com/search?q=tides" {
		t.Fatalf("registry = %+v, %v", info, ok)
	}

	handler(&page.EventNavigatedWithinDocument{URL: "https://www.bing.com/search?q=tides&first=11"})
	info, _ = reg.Get("tab-1")
	if info.URL != "https://www.bing.com/search?q=tides&first=11" {
		t.Fatalf("url after SPA nav = %q", info.URL)
	}
}

func TestOnBrowserEventReportsUnknownPages(t *testing.T) {
	reg := NewTabRegistry()
	reg.Register("known", "https://www.bing.com/", "")
	c := NewClient("http://127.0.0.1:9222", time.Second, reg)

	var got []types.TabInfo
	c.watchers[1] = func(info types.TabInfo) { got = append(got, info) }

	c.onBrowserEvent(&target.EventTargetCreated{TargetInfo: &target.Info{TargetID: "known", Type: "page"}})
	c.onBrowserEvent(&target.EventTargetCreated{TargetInfo: &target.Info{TargetID: "worker", Type: "service_worker"}})
	c.onBrowserEvent(&target.EventTargetCreated{TargetInfo: &target.Info{TargetID: "fresh", Type: "page", URL: "chrome://newtab/"}})
	c.onBrowserEvent(&target.EventTargetCreated{TargetInfo: &target.Info{TargetID: "fresh", Type: "page", URL: "chrome://newtab/"}})
	c.onBrowserEvent(&page.EventLoadEventFired{})

	if len(got) != 1 || got[0].TargetID != "fresh" {
		t.Fatalf("reported = %+v; want only fresh", got)
	}
}

func TestEvalErrorClassifiesTimeout(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-expired.Done()
	requireCode(t, evalError(expired, context.DeadlineExceeded), cdpcontrol.CodeEvalTimeout)

	requireCode(t, evalError(context.Background(), errors.New("exception")), cdpcontrol.CodeEvalFailure)
}
