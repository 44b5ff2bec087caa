package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SendSessionFault posts a plain-text alert about a failed browser session
// launch. Best effort; callers log and ignore the returned error.
func SendSessionFault(ctx context.Context, client *http.Client, endpoint string, cause error) error {
	msg := "screenshot-api: browser session launch failed"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return Send(ctx, client, endpoint, msg)
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
