package cdp

import (
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/rewardrunner/internal/types"
)

// TabRegistry maps CDP target IDs to the last known tab metadata.
type TabRegistry struct {
	tabs map[target.ID]types.TabInfo
	mu   sync.RWMutex
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[target.ID]types.TabInfo)}
}

// Register records url for the tab. An empty title keeps the previous one.
func (r *TabRegistry) Register(targetID target.ID, url, title string) types.TabInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := r.tabs[targetID]
	info.TargetID = string(targetID)
	info.URL = url
	info.Type = "page"
	if title != "" {
		info.Title = title
	}
	r.tabs[targetID] = info
	return info
}

func (r *TabRegistry) Get(targetID target.ID) (types.TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tabs[targetID]
	return info, ok
}

func (r *TabRegistry) Remove(targetID target.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, targetID)
}
