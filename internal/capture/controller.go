package capture

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/66mmakid99/puppeteer-screenshot-api/internal/config"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/session"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/suppress"
)

const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	acceptLanguage = "en-US,en;q=0.9"

	// rasterOverhead bounds context setup plus screenshot encoding beyond
	// the navigation timeout and the two settle delays.
	rasterOverhead = 15 * time.Second
)

// transientHints are substrings in error causes that indicate a dead browser
// connection; such failures invalidate the shared session so the next
// request relaunches it.
var transientHints = []string{
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
}

// Request describes one capture invocation.
type Request struct {
	URL      string
	Width    int
	Height   int
	FullPage bool
	Timeout  time.Duration
}

// Result is the capture artifact. Limited marks a capture where the
// suppression script failed and the raw, unsuppressed page was rasterized.
type Result struct {
	Bytes       []byte
	ContentType string
	Limited     bool
}

// capturePage is the slice of session.Page the pipeline needs.
type capturePage interface {
	Ctx() context.Context
	Close()
}

// Controller orchestrates a single capture: isolated page context,
// navigation, overlay suppression, rasterization, teardown.
type Controller struct {
	settle         time.Duration
	postSuppress   time.Duration
	quality        int
	suppressScript string

	// Session hooks and the CDP runner, swappable in tests.
	newPage    func(ctx context.Context) (capturePage, error)
	invalidate func()
	run        func(ctx context.Context, actions ...chromedp.Action) error
}

func NewController(sessions *session.Manager, cfg *config.Config) *Controller {
	return &Controller{
		settle:         time.Duration(cfg.SettleMS) * time.Millisecond,
		postSuppress:   time.Duration(cfg.PostSuppressMS) * time.Millisecond,
		quality:        cfg.JPEGQuality,
		suppressScript: suppress.Script(),
		newPage: func(ctx context.Context) (capturePage, error) {
			p, err := sessions.NewPage(ctx)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		invalidate: sessions.Invalidate,
		run:        chromedp.Run,
	}
}

// Capture runs the full pipeline. The page context is destroyed on every
// exit path, and every page operation runs under one overall deadline: the
// navigation timeout plus the fixed pipeline overhead.
func (c *Controller) Capture(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	overall := req.Timeout + c.settle + c.postSuppress + rasterOverhead
	ctx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	page, err := c.newPage(ctx)
	if err != nil {
		return nil, NewError(CodeSessionUnavailable, "browser session unavailable", err)
	}
	defer page.Close()

	// The page context chains to the browser, not to the request, so the
	// overall deadline must be re-applied here. A wedged browser then fails
	// the pipeline instead of hanging it.
	runCtx, runCancel := context.WithTimeout(page.Ctx(), overall)
	defer runCancel()

	if err := c.run(runCtx,
		emulation.SetDeviceMetricsOverride(int64(req.Width), int64(req.Height), 1, false),
		emulation.SetUserAgentOverride(userAgent).WithAcceptLanguage(acceptLanguage),
		cdppage.SetBypassCSP(true),
	); err != nil {
		c.maybeInvalidate(err)
		return nil, NewError(CodeCaptureFault, "configure page context", err)
	}

	navCtx, navCancel := context.WithTimeout(runCtx, req.Timeout)
	err = c.run(navCtx,
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	navCancel()
	if err != nil {
		c.maybeInvalidate(err)
		return nil, NewError(CodeNavigationFailed, "navigate to "+req.URL, err)
	}

	// Let asynchronously injected content (consent dialogs, banners) finish
	// mounting before suppression runs.
	if err := c.run(runCtx, chromedp.Sleep(c.settle)); err != nil {
		c.maybeInvalidate(err)
		return nil, NewError(CodeNavigationFailed, "post-navigation settle", err)
	}

	limited := c.suppressOverlays(runCtx, req.URL)

	// Short settle so suppression DOM mutations apply before rasterizing.
	if err := c.run(runCtx, chromedp.Sleep(c.postSuppress)); err != nil {
		c.maybeInvalidate(err)
		return nil, NewError(CodeCaptureFault, "post-suppression settle", err)
	}

	buf, err := c.rasterize(runCtx, req.FullPage)
	if err != nil {
		c.maybeInvalidate(err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewError(CodeEvalTimeout, "capture deadline exceeded", err)
		}
		return nil, NewError(CodeCaptureFault, "rasterize page", err)
	}

	return &Result{Bytes: buf, ContentType: "image/jpeg", Limited: limited}, nil
}

// suppressOverlays evaluates the suppression script. Script failures are
// non-fatal: the raw page is still worth capturing, so the fault is reported
// as a limitation flag rather than an error. A failure that looks like a
// dead browser still drops the session for relaunch.
func (c *Controller) suppressOverlays(runCtx context.Context, pageURL string) bool {
	var raw string
	if err := c.run(runCtx, chromedp.Evaluate(c.suppressScript, &raw)); err != nil {
		c.maybeInvalidate(err)
		slog.Warn("suppression script evaluation failed", "url", pageURL, "error", err)
		return true
	}
	rep, err := suppress.ParseReport(raw)
	if err != nil {
		slog.Warn("suppression script reported failure", "url", pageURL, "error", err)
		return true
	}
	slog.Debug("overlays suppressed", "url", pageURL, "hidden", rep.Hidden, "dismissed", rep.Dismissed)
	return false
}

func (c *Controller) rasterize(runCtx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	if fullPage {
		if err := c.run(runCtx, chromedp.FullScreenshot(&buf, c.quality)); err != nil {
			return nil, err
		}
		return buf, nil
	}
	err := c.run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, err := cdppage.CaptureScreenshot().
			WithFormat(cdppage.CaptureScreenshotFormatJpeg).
			WithQuality(int64(c.quality)).
			Do(ctx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// maybeInvalidate drops the shared session when the failure looks like a
// dead browser rather than a bad target page.
func (c *Controller) maybeInvalidate(err error) {
	if err == nil {
		return
	}
	cause := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(cause, hint) {
			c.invalidate()
			return
		}
	}
}

func validate(req Request) error {
	trimmed := strings.TrimSpace(req.URL)
	if trimmed == "" {
		return NewError(CodeValidation, "url is required", nil)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return NewError(CodeValidation, "url is not parseable", err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return NewError(CodeValidation, "url must be absolute http or https", nil)
	}
	if u.Host == "" {
		return NewError(CodeValidation, "url is missing a host", nil)
	}
	if req.Width <= 0 || req.Height <= 0 {
		return NewError(CodeValidation, "width and height must be positive", nil)
	}
	if req.Timeout <= 0 {
		return NewError(CodeValidation, "timeout must be positive", nil)
	}
	return nil
}
