package cdp

import (
	"testing"

	"github.com/chromedp/cdproto/target"
)

func TestTabRegistryRegisterKeepsTitle(t *testing.T) {
	r := NewTabRegistry()
	r.Register("tab-1", "https://www.bing.com/", "Bing")
	info := r.Register("tab-1", "https://www.bing.com/search?q=weather", "")

	if info.Title != "Bing" {
		t.Fatalf("title = %q; want Bing", info.Title)
	}
	if info.URL != "https://www.bing.com/search?q=weather" {
		t.Fatalf("url = %q", info.URL)
	}
	if got, ok := r.Get("tab-1"); !ok || got.TargetID != "tab-1" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
}

func TestTabRegistryRemove(t *testing.T) {
	r := NewTabRegistry()
	r.Register("tab-1", "about:blank", "")
	r.Register("tab-2", "about:blank", "")
	r.Remove(target.ID("tab-1"))

	if _, ok := r.Get("tab-2"); !ok {
		t.Fatal("expected tab-2 to remain")
	}
	if _, ok := r.Get("tab-1"); ok {
		t.Fatal("expected tab-1 to be removed")
	}
}
