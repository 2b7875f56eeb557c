// Package runner drives one rewards run: randomized searches in a single tab
// followed by a pass over the rewards page activities.
package runner

import (
	"context"

	"github.com/dgnsrekt/rewardrunner/internal/types"
)

// Browser is the tab control surface a run needs. Both CDP drivers satisfy it.
type Browser interface {
	CreateTab(ctx context.Context, url string) (types.TabInfo, error)
	GetTab(ctx context.Context, tabID string) (types.TabInfo, error)
	Navigate(ctx context.Context, tabID, url string) error
	// Evaluate runs a page script and decodes its result envelope into out.
	Evaluate(ctx context.Context, tabID, js string, out any) error
}
