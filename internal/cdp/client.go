package cdp

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/rewardrunner/internal/cdpcontrol"
	"github.com/dgnsrekt/rewardrunner/internal/types"
)

// navigateTimeout bounds a single chromedp.Navigate, which waits for load.
const navigateTimeout = 30 * time.Second

// Client drives browser tabs through chromedp. chromedp opens one control
// tab when it connects; the first CreateTab reuses it.
type Client struct {
	cdpURL      string
	evalTimeout time.Duration
	tabRegistry *TabRegistry

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	spareTab      target.ID

	tabs   map[target.ID]*TabContext
	tabsMu sync.RWMutex

	watchOnce sync.Once
	watchErr  error
	watchMu   sync.Mutex
	watchSeq  int64
	watchers  map[int64]func(types.TabInfo)
}

type TabContext struct {
	ID     target.ID
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(cdpURL string, evalTimeout time.Duration, tabRegistry *TabRegistry) *Client {
	return &Client{
		cdpURL:      cdpURL,
		evalTimeout: evalTimeout,
		tabRegistry: tabRegistry,
		tabs:        make(map[target.ID]*TabContext),
		watchers:    make(map[int64]func(types.TabInfo)),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	if c.cdpURL == "" {
		return cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "missing CDP URL", nil)
	}
	slog.Info("Connecting to Chromium", "url", c.cdpURL)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), c.cdpURL)
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx)

	// The first Run binds the browser connection to browserCtx, so it must
	// not be a derived timeout context.
	if err := chromedp.Run(c.browserCtx); err != nil {
		c.browserCancel()
		c.allocCancel()
		return cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "failed to connect to browser", err)
	}

	listCtx, cancel := context.WithTimeout(c.browserCtx, navigateTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	targets, err := chromedp.Targets(listCtx)
	if err != nil {
		c.browserCancel()
		c.allocCancel()
		return cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "failed to enumerate targets", err)
	}

	c.spareTab = chromedp.FromContext(c.browserCtx).Target.TargetID
	c.tabsMu.Lock()
	c.tabs[c.spareTab] = &TabContext{ID: c.spareTab, ctx: c.browserCtx, cancel: c.browserCancel}
	c.tabsMu.Unlock()

	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		c.tabRegistry.Register(t.TargetID, t.URL, t.Title)
	}
	c.tabRegistry.Register(c.spareTab, "about:blank", "")
	chromedp.ListenTarget(c.browserCtx, c.createEventHandler(string(c.spareTab)))

	slog.Info("Found browser targets", "count", len(targets), "control_tab", c.spareTab)
	return nil
}

func (c *Client) attachToTab(targetID target.ID) (*TabContext, error) {
	c.tabsMu.RLock()
	tab, ok := c.tabs[targetID]
	c.tabsMu.RUnlock()
	if ok {
		return tab, nil
	}
	if c.browserCtx == nil {
		return nil, cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "CDP client not connected", nil)
	}

	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(targetID))
	if err := chromedp.Run(tabCtx, page.Enable()); err != nil {
		tabCancel()
		return nil, cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "failed to attach to tab", err)
	}
	tab = &TabContext{ID: targetID, ctx: tabCtx, cancel: tabCancel}

	c.tabsMu.Lock()
	c.tabs[targetID] = tab
	c.tabsMu.Unlock()

	chromedp.ListenTarget(tabCtx, c.createEventHandler(string(targetID)))
	slog.Info("Attached to tab", "target_id", targetID)
	return tab, nil
}

func (c *Client) createEventHandler(tabID string) func(ev interface{}) {
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				c.tabRegistry.Register(target.ID(tabID), e.Frame.URL, "")
				slog.Debug("Tab navigated (full)", "tab_id", tabID, "url", truncateURL(e.Frame.URL))
			}
		case *page.EventNavigatedWithinDocument:
			c.tabRegistry.Register(target.ID(tabID), e.URL, "")
			slog.Debug("Tab navigated (SPA)", "tab_id", tabID, "url", truncateURL(e.URL))
		}
	}
}

func (c *Client) Close() error {
	c.tabsMu.Lock()
	c.tabs = make(map[target.ID]*TabContext)
	c.tabsMu.Unlock()

	if c.allocCancel != nil {
		c.allocCancel()
	}

	slog.Info("CDP client closed")
	return nil
}

// CreateTab opens a page at url and waits for it to load.
func (c *Client) CreateTab(ctx context.Context, url string) (types.TabInfo, error) {
	if strings.TrimSpace(url) == "" {
		return types.TabInfo{}, cdpcontrol.NewError(cdpcontrol.CodeValidation, "url is required", nil)
	}
	if c.browserCtx == nil {
		return types.TabInfo{}, cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "CDP client not connected", nil)
	}

	c.tabsMu.Lock()
	spare := c.spareTab
	c.spareTab = ""
	c.tabsMu.Unlock()

	if spare != "" {
		if err := c.Navigate(ctx, string(spare), url); err != nil {
			return types.TabInfo{}, err
		}
		slog.Info("Reused control tab", "target_id", spare, "url", truncateURL(url))
		return types.TabInfo{TargetID: string(spare), URL: url, Type: "page"}, nil
	}

	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return types.TabInfo{}, cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "create tab failed", err)
	}
	id := chromedp.FromContext(tabCtx).Target.TargetID
	c.tabRegistry.Register(id, "about:blank", "")

	runCtx, cancel := context.WithTimeout(tabCtx, navigateTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		tabCancel()
		return types.TabInfo{}, cdpcontrol.NewError(cdpcontrol.CodeNavigation, "create tab at "+url+" failed", err)
	}

	c.tabsMu.Lock()
	c.tabs[id] = &TabContext{ID: id, ctx: tabCtx, cancel: tabCancel}
	c.tabsMu.Unlock()
	c.tabRegistry.Register(id, url, "")
	chromedp.ListenTarget(tabCtx, c.createEventHandler(string(id)))

	slog.Info("Created tab", "target_id", id, "url", truncateURL(url))
	return types.TabInfo{TargetID: string(id), URL: url, Type: "page"}, nil
}

// GetTab reads the tab's current URL and title from the browser.
func (c *Client) GetTab(ctx context.Context, tabID string) (types.TabInfo, error) {
	if c.browserCtx == nil {
		return types.TabInfo{}, cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "CDP client not connected", nil)
	}
	listCtx, cancel := context.WithTimeout(c.browserCtx, c.evalTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	targets, err := chromedp.Targets(listCtx)
	if err != nil {
		return types.TabInfo{}, cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "failed to enumerate targets", err)
	}
	for _, t := range targets {
		if string(t.TargetID) != tabID || t.Type != "page" {
			continue
		}
		info := c.tabRegistry.Register(t.TargetID, t.URL, t.Title)
		return info, nil
	}
	c.tabRegistry.Remove(target.ID(tabID))
	return types.TabInfo{}, cdpcontrol.NewError(cdpcontrol.CodeTabNotFound, "tab not found: "+tabID, nil)
}

// Navigate loads url in the tab and waits for the load event.
func (c *Client) Navigate(ctx context.Context, tabID, url string) error {
	if strings.TrimSpace(url) == "" {
		return cdpcontrol.NewError(cdpcontrol.CodeValidation, "url is required", nil)
	}
	tab, err := c.attachToTab(target.ID(tabID))
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(tab.ctx, navigateTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return cdpcontrol.NewError(cdpcontrol.CodeNavigation, "navigate to "+url+" failed", err)
	}
	c.tabRegistry.Register(target.ID(tabID), url, "")
	return nil
}

// Evaluate runs a page script and decodes its envelope into out.
func (c *Client) Evaluate(ctx context.Context, tabID, js string, out any) error {
	tab, err := c.attachToTab(target.ID(tabID))
	if err != nil {
		return err
	}

	evalCtx, cancel := context.WithTimeout(tab.ctx, c.evalTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var raw string
	err = chromedp.Run(evalCtx, chromedp.Evaluate(js, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return evalError(evalCtx, err)
	}
	return cdpcontrol.DecodeEnvelope(raw, out)
}

func evalError(evalCtx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
		return cdpcontrol.NewError(cdpcontrol.CodeEvalTimeout, "evaluation timed out", err)
	}
	return cdpcontrol.NewError(cdpcontrol.CodeEvalFailure, "evaluation failed", err)
}

// WatchTabs calls fn for every page target created after the call. fn runs
// on the browser event loop and must not block.
func (c *Client) WatchTabs(ctx context.Context, fn func(types.TabInfo)) (func(), error) {
	if fn == nil {
		return nil, cdpcontrol.NewError(cdpcontrol.CodeValidation, "watch callback is required", nil)
	}
	if c.browserCtx == nil {
		return nil, cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "CDP client not connected", nil)
	}

	c.watchOnce.Do(func() {
		chromedp.ListenBrowser(c.browserCtx, c.onBrowserEvent)
		runCtx, cancel := context.WithTimeout(c.browserCtx, c.evalTimeout)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		c.watchErr = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			return target.SetDiscoverTargets(true).Do(cdpproto.WithExecutor(ctx, chromedp.FromContext(ctx).Browser))
		}))
	})
	if c.watchErr != nil {
		return nil, cdpcontrol.NewError(cdpcontrol.CodeCDPUnavailable, "enable target discovery failed", c.watchErr)
	}

	c.watchMu.Lock()
	c.watchSeq++
	id := c.watchSeq
	c.watchers[id] = fn
	c.watchMu.Unlock()

	var removed atomic.Bool
	return func() {
		if removed.Swap(true) {
			return
		}
		c.watchMu.Lock()
		delete(c.watchers, id)
		c.watchMu.Unlock()
	}, nil
}

func (c *Client) onBrowserEvent(ev interface{}) {
	e, ok := ev.(*target.EventTargetCreated)
	if !ok || e.TargetInfo == nil || e.TargetInfo.Type != "page" {
		return
	}
	if _, known := c.tabRegistry.Get(e.TargetInfo.TargetID); known {
		return
	}
	info := c.tabRegistry.Register(e.TargetInfo.TargetID, e.TargetInfo.URL, e.TargetInfo.Title)

	c.watchMu.Lock()
	fns := make([]func(types.TabInfo), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.watchMu.Unlock()

	slog.Debug("Tab created", "target_id", info.TargetID, "url", truncateURL(info.URL))
	for _, fn := range fns {
		fn(info)
	}
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
