package types

import "context"

// TabInfo describes a browser page target as seen by a CDP driver.
type TabInfo struct {
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Type     string `json:"type,omitempty"`
}

// TabWatcher is implemented by drivers that can report newly created page
// targets. The returned function stops delivery.
type TabWatcher interface {
	WatchTabs(ctx context.Context, fn func(TabInfo)) (func(), error)
}
