// Package browser owns the process-wide headless Chrome instance. The
// browser starts lazily on the first page acquisition and is shared by the
// scrape adapters and the stream-URL resolver; each operation borrows a
// fresh page (tab) and must close it on every exit path.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Options configures the shared browser.
type Options struct {
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
	// UserAgent is applied to every page.
	UserAgent string
}

// Browser is the single shared headless Chrome owner.
type Browser struct {
	opts Options

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	pages         int
	closed        bool
}

func New(opts Options) *Browser {
	return &Browser{opts: opts}
}

// ensureStarted launches Chrome on first use.
// Callers must hold b.mu.
func (b *Browser) ensureStarted() error {
	if b.closed {
		return fmt.Errorf("browser is shut down")
	}
	if b.browserCtx != nil {
		return nil
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-gpu", true),
	)
	if b.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(b.opts.UserAgent))
	}
	if b.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Force the browser process up now so acquisition failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("launch chrome: %w", err)
	}

	b.allocCancel = allocCancel
	b.browserCtx = browserCtx
	b.browserCancel = browserCancel
	slog.Info("headless browser started")
	return nil
}

// AcquirePage opens a new tab. The returned page must be closed by the
// caller; ctx cancellation also tears the tab down.
func (b *Browser) AcquirePage(ctx context.Context) (*Page, error) {
	b.mu.Lock()
	if err := b.ensureStarted(); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	b.pages++
	b.mu.Unlock()

	// Tie tab lifetime to the caller's context.
	stop := context.AfterFunc(ctx, tabCancel)

	page := &Page{
		ctx: tabCtx,
		close: func() {
			stop()
			tabCancel()
			b.mu.Lock()
			b.pages--
			b.mu.Unlock()
		},
	}
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		page.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return page, nil
}

// Close shuts the browser down. In-flight pages are cancelled.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	slog.Info("headless browser stopped")
}

// Page is one borrowed tab.
type Page struct {
	ctx       context.Context
	close     func()
	closeOnce sync.Once
}

// Context exposes the tab context for advanced chromedp usage.
func (p *Page) Context() context.Context { return p.ctx }

// Close releases the tab. Safe to call multiple times.
func (p *Page) Close() {
	p.closeOnce.Do(p.close)
}

// Navigate loads a URL and waits for the document body, bounded by timeout.
func (p *Page) Navigate(url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Title returns the current document title.
func (p *Page) Title() (string, error) {
	var title string
	err := chromedp.Run(p.ctx, chromedp.Title(&title))
	return title, err
}

// Location returns the current page URL (after redirects).
func (p *Page) Location() (string, error) {
	var loc string
	err := chromedp.Run(p.ctx, chromedp.Location(&loc))
	return loc, err
}

// BlockRequests installs URL patterns that the tab will refuse to fetch.
func (p *Page) BlockRequests(patterns ...string) error {
	return chromedp.Run(p.ctx, network.SetBlockedURLs(patterns))
}

// Text queries one element's text, waiting up to wait for it to appear.
// A missing element yields ok=false, never an error.
func (p *Page) Text(sel string, wait time.Duration) (string, bool) {
	ctx, cancel := context.WithTimeout(p.ctx, wait)
	defer cancel()
	var out string
	if err := chromedp.Run(ctx, chromedp.Text(sel, &out, chromedp.ByQuery)); err != nil {
		return "", false
	}
	return out, true
}

// Attr queries one element attribute with the same wait semantics as Text.
func (p *Page) Attr(sel, attr string, wait time.Duration) (string, bool) {
	ctx, cancel := context.WithTimeout(p.ctx, wait)
	defer cancel()
	var out string
	var ok bool
	if err := chromedp.Run(ctx, chromedp.AttributeValue(sel, attr, &out, &ok, chromedp.ByQuery)); err != nil {
		return "", false
	}
	return out, ok
}

// Evaluate runs a JavaScript expression in the page. out may be nil.
func (p *Page) Evaluate(js string, out any) error {
	return chromedp.Run(p.ctx, chromedp.Evaluate(js, out))
}

// ListenResponses subscribes to the tab's network responses. It returns an
// await function that yields the first URL match accepts within the budget,
// and a stop function that removes the subscription; callers must defer
// stop so the listener never outlives the operation.
func (p *Page) ListenResponses(match func(url string) bool) (await func(budget time.Duration) (string, error), stop func()) {
	lctx, lcancel := context.WithCancel(p.ctx)
	found := make(chan string, 1)

	chromedp.ListenTarget(lctx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Response == nil {
			return
		}
		if match(resp.Response.URL) {
			select {
			case found <- resp.Response.URL:
			default:
			}
		}
	})

	await = func(budget time.Duration) (string, error) {
		ctx, cancel := context.WithTimeout(lctx, budget)
		defer cancel()
		select {
		case url := <-found:
			return url, nil
		case <-ctx.Done():
			return "", fmt.Errorf("no matching response within %s: %w", budget, ctx.Err())
		}
	}
	return await, lcancel
}
