package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/singleflight"

	"github.com/66mmakid99/puppeteer-screenshot-api/internal/config"
)

const launchTimeout = 60 * time.Second

// ErrShutdown is returned once Shutdown has been called.
var ErrShutdown = errors.New("session manager is shut down")

// Manager owns the single shared browser process. The browser is launched
// lazily on first use; concurrent first callers coalesce onto one launch.
type Manager struct {
	cfg    *config.Config
	launch singleflight.Group

	// launchFn performs the actual browser launch, swappable in tests.
	launchFn func() error

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closed        bool

	inflight sync.WaitGroup
}

// NewManager creates a manager. No browser is started until the first
// Acquire or NewPage call.
func NewManager(cfg *config.Config) *Manager {
	m := &Manager{cfg: cfg}
	m.launchFn = m.launchBrowser
	return m
}

// Acquire ensures a live browser session exists, launching one if needed.
// N concurrent callers during the launch window share a single launch.
func (m *Manager) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrShutdown
	}
	ready := m.browserCtx != nil
	m.mu.Unlock()
	if ready {
		return nil
	}

	_, err, _ := m.launch.Do("launch", func() (any, error) {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrShutdown
		}
		if m.browserCtx != nil {
			m.mu.Unlock()
			return nil, nil
		}
		m.mu.Unlock()
		return nil, m.launchFn()
	})
	return err
}

// launchBrowser starts the shared browser process. The launch is shared by
// every coalesced caller, so it is bounded by launchTimeout rather than any
// single caller's context. A failed launch leaves no cached state, so the
// next Acquire retries from scratch.
func (m *Manager) launchBrowser() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if !m.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if path, err := resolveBrowserPath(m.cfg.ChromePath); err == nil {
		opts = append(opts, chromedp.ExecPath(path))
		slog.Info("detected browser", "path", path)
	} else {
		slog.Debug("no browser binary found, relying on allocator lookup", "error", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	launchCtx, cancel := context.WithTimeout(browserCtx, launchTimeout)
	defer cancel()
	if err := chromedp.Run(launchCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("launch browser: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		browserCancel()
		allocCancel()
		return ErrShutdown
	}
	m.allocCancel = allocCancel
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel
	m.mu.Unlock()

	slog.Info("browser session launched", "headless", m.cfg.Headless)
	return nil
}

// NewPage creates an isolated page (own cookie/storage state and one tab)
// scoped to a single capture. The caller must Close it on every exit path.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	if err := m.Acquire(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShutdown
	}
	browserCtx := m.browserCtx
	if browserCtx == nil {
		// Invalidated between Acquire and here; the next request relaunches.
		m.mu.Unlock()
		return nil, errors.New("browser session was invalidated")
	}
	m.inflight.Add(1)
	m.mu.Unlock()

	page, err := newIsolatedPage(ctx, browserCtx, m)
	if err != nil {
		m.inflight.Done()
		// Page creation failing against a cached session means the browser
		// behind it is gone; drop it so the next request relaunches. A
		// caller-side cancellation says nothing about browser health.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("page creation failed against cached session", "error", err)
			m.Invalidate()
		}
		return nil, err
	}
	return page, nil
}

// Launched reports whether a browser session is currently cached.
func (m *Manager) Launched() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browserCtx != nil
}

// Invalidate drops the cached browser session so the next Acquire relaunches.
// Called after failures that indicate a dead browser process.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browserCtx == nil {
		return
	}
	slog.Warn("invalidating browser session")
	m.browserCancel()
	m.allocCancel()
	m.browserCtx = nil
	m.browserCancel = nil
	m.allocCancel = nil
}

// Healthy performs a cheap CDP round-trip against the live session. An
// unlaunched session reports unhealthy without triggering a launch.
func (m *Manager) Healthy(ctx context.Context) error {
	m.mu.Lock()
	browserCtx := m.browserCtx
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return ErrShutdown
	}
	if browserCtx == nil {
		return errors.New("browser not launched")
	}
	c := chromedp.FromContext(browserCtx)
	if c == nil || c.Browser == nil {
		return errors.New("browser context not initialized")
	}
	_, err := target.GetTargets().Do(cdp.WithExecutor(ctx, c.Browser))
	return err
}

// Shutdown refuses new acquisitions, waits for in-flight pages bounded by
// ctx, then tears down the browser process. In-flight captures are never
// silently raced; they either finish or are force-cancelled here.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	browserCancel := m.browserCancel
	allocCancel := m.allocCancel
	m.browserCtx = nil
	m.browserCancel = nil
	m.allocCancel = nil
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("all pages closed gracefully")
	case <-ctx.Done():
		slog.Warn("timeout waiting for pages to close, forcing shutdown", "error", ctx.Err())
	}

	if browserCancel != nil {
		browserCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
	slog.Info("browser session shut down")
	return nil
}

// resolveBrowserPath locates a Chrome/Chromium binary. An explicit path wins
// when it exists; otherwise well-known names and locations are tried.
func resolveBrowserPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("configured browser path not found: %s", explicit)
	}

	candidates := []string{"google-chrome", "google-chrome-stable", "chromium-browser", "chromium"}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", errors.New("no supported browser found (tried google-chrome, google-chrome-stable, chromium-browser, chromium)")
}
