package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/66mmakid99/puppeteer-screenshot-api/internal/config"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/session"
)

func testConfig() *config.Config {
	return &config.Config{
		NavTimeoutMS:   30000,
		SettleMS:       1500,
		PostSuppressMS: 400,
		JPEGQuality:    80,
	}
}

type fakePage struct {
	ctx    context.Context
	closed bool
}

func (p *fakePage) Ctx() context.Context { return p.ctx }
func (p *fakePage) Close()               { p.closed = true }

// runRecorder stands in for chromedp.Run: it records the context of every
// pipeline stage and fails the stages the test asks it to.
type runRecorder struct {
	ctxs []context.Context
	errs map[int]error
}

func (r *runRecorder) run(ctx context.Context, actions ...chromedp.Action) error {
	call := len(r.ctxs)
	r.ctxs = append(r.ctxs, ctx)
	return r.errs[call]
}

// Pipeline stage order as issued by Capture.
const (
	stageConfigure = iota
	stageNavigate
	stageSettle
	stageSuppress
	stagePostSettle
	stageRasterize
)

func stubController(t *testing.T) (*Controller, *fakePage, *runRecorder, *bool) {
	t.Helper()
	c := NewController(session.NewManager(testConfig()), testConfig())
	page := &fakePage{ctx: context.Background()}
	rec := &runRecorder{errs: map[int]error{}}
	invalidated := false

	c.newPage = func(ctx context.Context) (capturePage, error) { return page, nil }
	c.invalidate = func() { invalidated = true }
	c.run = rec.run
	return c, page, rec, &invalidated
}

func testRequest() Request {
	return Request{URL: "https://example.com", Width: 1280, Height: 900, Timeout: 30 * time.Second}
}

func TestValidateRejectsBadRequests(t *testing.T) {
	base := testRequest()

	cases := []struct {
		name   string
		mutate func(*Request)
	}{
		{"empty url", func(r *Request) { r.URL = "" }},
		{"whitespace url", func(r *Request) { r.URL = "   " }},
		{"relative url", func(r *Request) { r.URL = "/path/only" }},
		{"non-http scheme", func(r *Request) { r.URL = "ftp://example.com" }},
		{"missing host", func(r *Request) { r.URL = "https://" }},
		{"zero width", func(r *Request) { r.Width = 0 }},
		{"negative height", func(r *Request) { r.Height = -1 }},
		{"zero timeout", func(r *Request) { r.Timeout = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			err := validate(req)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var coded *CodedError
			if !errors.As(err, &coded) {
				t.Fatalf("error %T is not a CodedError", err)
			}
			if coded.Code != CodeValidation {
				t.Fatalf("code = %q; want %q", coded.Code, CodeValidation)
			}
		})
	}
}

func TestValidateAcceptsWellFormedRequest(t *testing.T) {
	req := Request{URL: "http://example.com/page?q=1", Width: 800, Height: 600, Timeout: 10 * time.Second}
	if err := validate(req); err != nil {
		t.Fatalf("validate() error = %v", err)
	}
}

func TestCaptureValidationFailsBeforePageCreation(t *testing.T) {
	c, _, rec, _ := stubController(t)
	pageRequested := false
	c.newPage = func(ctx context.Context) (capturePage, error) {
		pageRequested = true
		return nil, errors.New("must not be reached")
	}

	_, err := c.Capture(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeValidation {
		t.Fatalf("error = %v; want %s", err, CodeValidation)
	}
	if pageRequested {
		t.Fatal("invalid request still created a page")
	}
	if len(rec.ctxs) != 0 {
		t.Fatalf("invalid request issued %d page operations; want 0", len(rec.ctxs))
	}
}

func TestCaptureDeadlineBoundsEveryStage(t *testing.T) {
	c, _, rec, _ := stubController(t)
	req := testRequest()

	before := time.Now()
	if _, err := c.Capture(context.Background(), req); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	if len(rec.ctxs) != 6 {
		t.Fatalf("pipeline issued %d stages; want 6", len(rec.ctxs))
	}

	// The fake page context carries no deadline, so any deadline seen by a
	// stage was applied by Capture itself.
	overall := req.Timeout + c.settle + c.postSuppress + rasterOverhead
	latest := before.Add(overall + time.Second)
	for stage, ctx := range rec.ctxs {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Fatalf("stage %d runs without a deadline", stage)
		}
		if deadline.After(latest) {
			t.Fatalf("stage %d deadline %v exceeds the overall bound %v", stage, deadline, latest)
		}
	}

	navDeadline, _ := rec.ctxs[stageNavigate].Deadline()
	if navDeadline.After(before.Add(req.Timeout + time.Second)) {
		t.Fatalf("navigation deadline %v exceeds the navigation timeout", navDeadline)
	}
}

func TestCapturePageClosedOnEveryExit(t *testing.T) {
	// Success path.
	c, page, _, _ := stubController(t)
	if _, err := c.Capture(context.Background(), testRequest()); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if !page.closed {
		t.Fatal("page not closed after successful capture")
	}

	// Failure at the first stage.
	c, page, rec, _ := stubController(t)
	rec.errs[stageConfigure] = errors.New("no session with given id")
	_, err := c.Capture(context.Background(), testRequest())
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeCaptureFault {
		t.Fatalf("error = %v; want %s", err, CodeCaptureFault)
	}
	if !page.closed {
		t.Fatal("page not closed after configure failure")
	}

	// Failure at the last stage.
	c, page, rec, _ = stubController(t)
	rec.errs[stageRasterize] = errors.New("encoding failed")
	if _, err := c.Capture(context.Background(), testRequest()); err == nil {
		t.Fatal("expected rasterize failure")
	}
	if !page.closed {
		t.Fatal("page not closed after rasterize failure")
	}
}

func TestCaptureNavigationFailure(t *testing.T) {
	c, _, rec, invalidated := stubController(t)
	rec.errs[stageNavigate] = errors.New("net::ERR_NAME_NOT_RESOLVED")

	_, err := c.Capture(context.Background(), testRequest())
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeNavigationFailed {
		t.Fatalf("error = %v; want %s", err, CodeNavigationFailed)
	}
	if *invalidated {
		t.Fatal("an unreachable target invalidated the shared session")
	}
}

func TestSuppressionFailureIsNonFatal(t *testing.T) {
	c, _, rec, invalidated := stubController(t)
	rec.errs[stageSuppress] = errors.New("ReferenceError: document is not defined")

	res, err := c.Capture(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Capture() error = %v; suppression faults must not fail the capture", err)
	}
	if !res.Limited {
		t.Fatal("Limited = false after a suppression fault")
	}
	if *invalidated {
		t.Fatal("a script-side fault invalidated the shared session")
	}
}

func TestSuppressionTransientFailureInvalidatesSession(t *testing.T) {
	c, _, rec, invalidated := stubController(t)
	rec.errs[stageSuppress] = errors.New("websocket: close 1006 (abnormal closure)")

	res, err := c.Capture(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Capture() error = %v; suppression faults must not fail the capture", err)
	}
	if !res.Limited {
		t.Fatal("Limited = false after a suppression fault")
	}
	if !*invalidated {
		t.Fatal("a dead-browser failure during suppression did not invalidate the session")
	}
}

func TestCaptureRasterizeTimeoutCode(t *testing.T) {
	c, _, rec, _ := stubController(t)
	rec.errs[stageRasterize] = fmt.Errorf("screenshot: %w", context.DeadlineExceeded)

	_, err := c.Capture(context.Background(), testRequest())
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeEvalTimeout {
		t.Fatalf("error = %v; want %s", err, CodeEvalTimeout)
	}
}

func TestCaptureSessionUnavailable(t *testing.T) {
	c, _, _, _ := stubController(t)
	c.newPage = func(ctx context.Context) (capturePage, error) {
		return nil, errors.New("launch browser: executable not found")
	}

	_, err := c.Capture(context.Background(), testRequest())
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeSessionUnavailable {
		t.Fatalf("error = %v; want %s", err, CodeSessionUnavailable)
	}
}

func TestMaybeInvalidateClassification(t *testing.T) {
	cases := []struct {
		cause string
		drop  bool
	}{
		{"websocket url timeout reached", true},
		{"read tcp: Connection Reset by peer", true},
		{"context deadline exceeded: target closed", true},
		{"unexpected EOF", true},
		{"net::ERR_NAME_NOT_RESOLVED", false},
		{"page load aborted", false},
	}

	for _, tc := range cases {
		c, _, _, invalidated := stubController(t)
		c.maybeInvalidate(errors.New(tc.cause))
		if *invalidated != tc.drop {
			t.Fatalf("maybeInvalidate(%q) invalidated=%v; want %v", tc.cause, *invalidated, tc.drop)
		}
	}
}

func TestTransientHintsAreLowercase(t *testing.T) {
	for _, hint := range transientHints {
		if hint != strings.ToLower(hint) {
			t.Fatalf("hint %q is not lowercase; causes are lowered before matching", hint)
		}
	}
}

func TestCodedErrorFormatting(t *testing.T) {
	plain := NewError(CodeNavigationFailed, "navigate to https://example.com", nil)
	if got, want := plain.Error(), "NAVIGATION_FAILED: navigate to https://example.com"; got != want {
		t.Fatalf("Error() = %q; want %q", got, want)
	}

	cause := errors.New("net::ERR_NAME_NOT_RESOLVED")
	wrapped := NewError(CodeNavigationFailed, "navigate to https://example.com", cause)
	if !strings.Contains(wrapped.Error(), cause.Error()) {
		t.Fatalf("Error() = %q; want cause included", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("Unwrap() does not expose the cause")
	}
}
