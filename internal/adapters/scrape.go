package adapters

import (
	"context"
	"strings"
	"time"
)

const (
	// Page navigation budget for scrape targets.
	navigateTimeout = 60 * time.Second

	// Individual selector queries get a short wait; a missing element
	// degrades the field, it never fails the record.
	selectorWait = 3 * time.Second
)

// Page is one borrowed browser tab. Implementations must be safe to abandon
// via Close on every exit path.
type Page interface {
	Navigate(url string, timeout time.Duration) error
	Title() (string, error)
	Location() (string, error)
	BlockRequests(patterns ...string) error
	Text(sel string, wait time.Duration) (string, bool)
	Attr(sel, attr string, wait time.Duration) (string, bool)
	Close()
}

// PageOpener lends out pages of the shared headless browser.
type PageOpener interface {
	AcquirePage(ctx context.Context) (Page, error)
}

// blockedPatterns trims scrape page weight: stylesheets, fonts, images and
// third-party tracking are never needed to read the DOM. Avatar URLs are
// read from img src attributes, which survive request blocking.
var blockedPatterns = []string{
	"*.css",
	"*.png",
	"*.jpg",
	"*.jpeg",
	"*.gif",
	"*.webp",
	"*.svg",
	"*.woff",
	"*.woff2",
	"*.ttf",
	"*.otf",
	"*fonts.googleapis.com*",
	"*fonts.gstatic.com*",
	"*google-analytics.com*",
	"*googletagmanager.com*",
	"*doubleclick.net*",
}

// notFoundPage detects a deterministic 404 before any selector work:
// either the document title says so or the site redirected away.
func notFoundPage(p Page, wantURLFragment string) bool {
	if title, err := p.Title(); err == nil {
		lower := strings.ToLower(title)
		if strings.Contains(lower, "404") || strings.Contains(lower, "not found") {
			return true
		}
	}
	if loc, err := p.Location(); err == nil && wantURLFragment != "" {
		if !strings.Contains(strings.ToLower(loc), strings.ToLower(wantURLFragment)) {
			return true
		}
	}
	return false
}
