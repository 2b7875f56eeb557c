package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/rewardrunner/internal/types"
)

type tabSession struct {
	info      types.TabInfo
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
}

// Client drives browser tabs over a raw CDP connection.
type Client struct {
	cdpURL      string
	evalTimeout time.Duration

	mu   sync.Mutex
	cdp  *rawCDP
	tabs map[target.ID]*tabSession

	watchMu   sync.Mutex
	watchSeq  int64
	watchers  map[int64]func(types.TabInfo)
	seenTabs  map[string]struct{}
	unwatchFn func()
}

func NewClient(cdpURL string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:      cdpURL,
		evalTimeout: evalTimeout,
		tabs:        make(map[target.ID]*tabSession),
		watchers:    make(map[int64]func(types.TabInfo)),
		seenTabs:    make(map[string]struct{}),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	if err := c.syncTabsLocked(ctx); err != nil {
		slog.Error("cdpcontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	c.markSeen(c.tabIDsLocked())
	c.watchMu.Lock()
	c.unwatchFn = c.cdp.registerEventHandler("Target.targetCreated", c.onTargetCreated)
	watching := len(c.watchers) > 0
	c.watchMu.Unlock()
	if watching {
		if err := c.cdp.setDiscoverTargets(ctx, true); err != nil {
			slog.Warn("cdpcontrol target discovery re-enable failed", "error", err)
		}
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "tabs", len(c.tabs))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	// Detach from any active sessions without closing targets.
	if c.cdp != nil {
		for _, session := range c.tabs {
			if session == nil {
				continue
			}
			session.mu.Lock()
			if session.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := c.cdp.detachFromTarget(ctx, session.sessionID); err != nil {
					slog.Debug("cdpcontrol detach cleanup failed", "session_id", session.sessionID, "error", err)
				}
				cancel()
				session.sessionID = ""
			}
			session.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.watchMu.Lock()
	if c.unwatchFn != nil {
		c.unwatchFn()
		c.unwatchFn = nil
	}
	c.watchMu.Unlock()
	c.tabs = make(map[target.ID]*tabSession)
}

// CreateTab opens a new page target at url.
func (c *Client) CreateTab(ctx context.Context, url string) (types.TabInfo, error) {
	if strings.TrimSpace(url) == "" {
		return types.TabInfo{}, newError(CodeValidation, "url is required", nil)
	}
	if err := c.ensureConnected(ctx); err != nil {
		return types.TabInfo{}, err
	}

	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return types.TabInfo{}, newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targetID, err := cdp.createTarget(ctx, url)
	if err != nil {
		return types.TabInfo{}, newError(CodeCDPUnavailable, "create tab failed", err)
	}

	info := types.TabInfo{TargetID: targetID, URL: url, Type: "page"}
	c.mu.Lock()
	c.tabs[target.ID(targetID)] = &tabSession{info: info}
	c.mu.Unlock()
	c.markSeen([]string{targetID})

	slog.Info("cdpcontrol tab created", "target_id", targetID, "url", url)
	return info, nil
}

// GetTab returns the current state of a tab, refreshed from the browser.
func (c *Client) GetTab(ctx context.Context, tabID string) (types.TabInfo, error) {
	if err := c.refreshTabs(ctx); err != nil {
		return types.TabInfo{}, err
	}
	session, ok := c.lookupTab(tabID)
	if !ok {
		return types.TabInfo{}, newError(CodeTabNotFound, "tab not found: "+tabID, nil)
	}
	return session.info, nil
}

// Navigate points the tab's main frame at url. It returns once the browser
// accepts the navigation; it does not wait for the page to load.
func (c *Client) Navigate(ctx context.Context, tabID, url string) error {
	if strings.TrimSpace(url) == "" {
		return newError(CodeValidation, "url is required", nil)
	}
	session, err := c.resolveTab(ctx, tabID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, cdp, session, tabID)
	if err != nil {
		return err
	}
	if err := cdp.navigate(ctx, sessionID, url); err != nil {
		session.mu.Lock()
		session.sessionID = ""
		session.mu.Unlock()
		return newError(CodeNavigation, "navigate to "+url+" failed", err)
	}

	c.mu.Lock()
	session.info.URL = url
	c.mu.Unlock()
	slog.Debug("cdpcontrol navigated", "target_id", tabID, "url", url)
	return nil
}

// Evaluate runs a page script on the tab and decodes its envelope into out.
// Scripts click and submit, so one is written to the socket at most once.
// The transport is recovered only when the failure came before the send.
func (c *Client) Evaluate(ctx context.Context, tabID, js string, out any) error {
	session, err := c.resolveTab(ctx, tabID)
	if err != nil {
		slog.Warn("cdpcontrol tab resolve failed", "target_id", tabID, "error", err)
	} else {
		err = c.evalOnSession(ctx, session, tabID, js, out)
	}
	if err == nil {
		return nil
	}
	if !notSent(err) {
		return err
	}

	slog.Warn("cdpcontrol reconnecting before eval", "target_id", tabID, "error", err)
	if recErr := c.reconnect(ctx); recErr != nil {
		slog.Error("cdpcontrol reconnect failed", "target_id", tabID, "error", recErr)
		return recErr
	}
	session, err = c.resolveTab(ctx, tabID)
	if err != nil {
		return err
	}
	return c.evalOnSession(ctx, session, tabID, js, out)
}

// WatchTabs calls fn for each page target created after the call. Tabs that
// existed when discovery started are not reported.
func (c *Client) WatchTabs(ctx context.Context, fn func(types.TabInfo)) (func(), error) {
	if fn == nil {
		return nil, newError(CodeValidation, "watch callback is required", nil)
	}
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	c.watchMu.Lock()
	c.watchSeq++
	id := c.watchSeq
	first := len(c.watchers) == 0
	c.watchers[id] = fn
	c.watchMu.Unlock()

	if first {
		c.mu.Lock()
		cdp := c.cdp
		c.mu.Unlock()
		if cdp == nil {
			c.removeWatcher(id)
			return nil, newError(CodeCDPUnavailable, "CDP client not connected", nil)
		}
		if err := cdp.setDiscoverTargets(ctx, true); err != nil {
			c.removeWatcher(id)
			return nil, newError(CodeCDPUnavailable, "enable target discovery failed", err)
		}
	}

	slog.Debug("cdpcontrol tab watcher registered", "watcher_id", id)
	return func() { c.removeWatcher(id) }, nil
}

func (c *Client) removeWatcher(id int64) {
	c.watchMu.Lock()
	delete(c.watchers, id)
	c.watchMu.Unlock()
}

// onTargetCreated runs on the read loop goroutine; it must not take c.mu.
func (c *Client) onTargetCreated(_ string, params json.RawMessage) {
	var evt struct {
		TargetInfo struct {
			TargetID string `json:"targetId"`
			Type     string `json:"type"`
			Title    string `json:"title"`
			URL      string `json:"url"`
		} `json:"targetInfo"`
	}
	if err := json.Unmarshal(params, &evt); err != nil {
		slog.Debug("cdpcontrol targetCreated decode failed", "error", err)
		return
	}
	if evt.TargetInfo.Type != "page" {
		return
	}

	c.watchMu.Lock()
	if _, seen := c.seenTabs[evt.TargetInfo.TargetID]; seen {
		c.watchMu.Unlock()
		return
	}
	c.seenTabs[evt.TargetInfo.TargetID] = struct{}{}
	fns := make([]func(types.TabInfo), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.watchMu.Unlock()

	info := types.TabInfo{
		TargetID: evt.TargetInfo.TargetID,
		URL:      evt.TargetInfo.URL,
		Title:    evt.TargetInfo.Title,
		Type:     evt.TargetInfo.Type,
	}
	slog.Debug("cdpcontrol tab created event", "target_id", info.TargetID, "url", info.URL)
	for _, fn := range fns {
		fn(info)
	}
}

func (c *Client) markSeen(ids []string) {
	c.watchMu.Lock()
	for _, id := range ids {
		c.seenTabs[id] = struct{}{}
	}
	c.watchMu.Unlock()
}

func (c *Client) tabIDsLocked() []string {
	ids := make([]string, 0, len(c.tabs))
	for id := range c.tabs {
		ids = append(ids, string(id))
	}
	return ids
}

func (c *Client) evalOnSession(ctx context.Context, session *tabSession, targetID, js string, out any) error {
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, cdp, session, targetID)
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "target_id", targetID, "error", err)
		// Reset session so the next call attaches afresh.
		session.mu.Lock()
		session.sessionID = ""
		session.mu.Unlock()

		if errors.Is(err, errNotConnected) {
			return newError(CodeCDPUnavailable, "CDP client not connected", err)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}
	return DecodeEnvelope(raw, out)
}

// ensureSession returns a CDP session ID for the target, attaching if needed.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession, targetID string) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" {
		return session.sessionID, nil
	}

	sid, err := cdp.attachToTarget(ctx, targetID)
	if err != nil {
		return "", newError(CodeCDPUnavailable, "attach to target failed", err)
	}
	session.sessionID = sid
	slog.Debug("cdpcontrol session attached", "target_id", targetID, "session_id", sid)
	return sid, nil
}

func (c *Client) resolveTab(ctx context.Context, tabID string) (*tabSession, error) {
	if strings.TrimSpace(tabID) == "" {
		return nil, newError(CodeValidation, "tab id is required", nil)
	}
	if session, found := c.lookupTab(tabID); found {
		return session, nil
	}
	if err := c.refreshTabs(ctx); err != nil {
		return nil, err
	}
	if session, found := c.lookupTab(tabID); found {
		return session, nil
	}
	return nil, newError(CodeTabNotFound, "tab not found: "+tabID, nil)
}

func (c *Client) lookupTab(tabID string) (*tabSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session := c.tabs[target.ID(tabID)]
	return session, session != nil
}

func (c *Client) refreshTabs(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.syncTabsLocked(ctx)
	c.mu.Unlock()
	if err == nil {
		return nil
	}

	return newError(CodeCDPUnavailable, "failed to list targets", err)
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) syncTabsLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return newError(CodeCDPUnavailable, "failed to list targets", err)
	}

	expected := make(map[target.ID]types.TabInfo)
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		expected[t.TargetID] = types.TabInfo{
			TargetID: string(t.TargetID),
			URL:      t.URL,
			Title:    t.Title,
			Type:     t.Type,
		}
	}

	for targetID := range c.tabs {
		if _, ok := expected[targetID]; ok {
			continue
		}
		delete(c.tabs, targetID)
	}

	for targetID, info := range expected {
		if session := c.tabs[targetID]; session != nil {
			session.info = info
			continue
		}
		c.tabs[targetID] = &tabSession{info: info}
	}

	slog.Debug("cdpcontrol tab sync", "targets", len(targets), "pages", len(c.tabs))
	return nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil && c.cdp.connected()
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

// notSent reports whether err was raised before Runtime.evaluate was written
// to the socket. Only CDP_UNAVAILABLE errors qualify; once a command is sent
// its failure is EVAL_FAILURE or EVAL_TIMEOUT.
func notSent(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == CodeCDPUnavailable
}
