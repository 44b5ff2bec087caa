package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

const disposeTimeout = 5 * time.Second

// Page is one isolated rendering surface: a dedicated browser context
// (independent cookie/storage state) plus a single tab. It lives for exactly
// one capture and must be closed on every exit path.
type Page struct {
	ctx              context.Context
	cancel           context.CancelFunc
	browserContextID cdp.BrowserContextID
	manager          *Manager
	closeOnce        sync.Once
}

// newIsolatedPage creates a fresh browser context and a blank target inside
// it, then binds a chromedp context to that target.
func newIsolatedPage(ctx context.Context, browserCtx context.Context, m *Manager) (*Page, error) {
	c := chromedp.FromContext(browserCtx)
	if c == nil || c.Browser == nil {
		return nil, fmt.Errorf("browser context not initialized")
	}
	exec := cdp.WithExecutor(ctx, c.Browser)

	bcID, err := target.CreateBrowserContext().WithDisposeOnDetach(true).Do(exec)
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	tid, err := target.CreateTarget("about:blank").WithBrowserContextID(bcID).Do(exec)
	if err != nil {
		_ = target.DisposeBrowserContext(bcID).Do(exec)
		return nil, fmt.Errorf("create target: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(tid))
	return &Page{
		ctx:              tabCtx,
		cancel:           tabCancel,
		browserContextID: bcID,
		manager:          m,
	}, nil
}

// Ctx returns the chromedp context bound to this page's tab.
func (p *Page) Ctx() context.Context { return p.ctx }

// Close tears down the tab and disposes its browser context. Safe to call
// more than once; only the first call releases resources.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		p.cancel()

		p.manager.mu.Lock()
		browserCtx := p.manager.browserCtx
		p.manager.mu.Unlock()

		if browserCtx != nil {
			if c := chromedp.FromContext(browserCtx); c != nil && c.Browser != nil {
				ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
				_ = target.DisposeBrowserContext(p.browserContextID).Do(cdp.WithExecutor(ctx, c.Browser))
				cancel()
			}
		}
		p.manager.inflight.Done()
	})
}
