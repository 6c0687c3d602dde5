// internal/browser/client.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStaleElement is returned when an action targets an element resolved from a
// snapshot that has since been replaced. Callers must re-resolve from the latest Page.
var ErrStaleElement = errors.New("element belongs to a replaced page snapshot")

// ErrClosed is returned by any Client operation after Close.
var ErrClosed = errors.New("browser client is closed")

// ScriptError reports an uncaught script exception raised while a page loaded.
type ScriptError struct {
	URL     string
	Message string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script error while loading %s: %s", e.URL, e.Message)
}

// Client is the headless browser contract the session drives. Every method that
// can change the document returns a fresh Page; a Client is owned by exactly one
// session and is not safe for concurrent use.
type Client interface {
	// Fetch navigates to url, lets its scripts run, and returns the rendered page.
	// An uncaught script exception during load is reported as *ScriptError.
	Fetch(ctx context.Context, url string) (*Page, error)
	// Snapshot re-reads the live document without acting on it.
	Snapshot(ctx context.Context) (*Page, error)
	// Click activates el and returns the resulting page.
	Click(ctx context.Context, el Element) (*Page, error)
	// Fill sets the value of an input and returns the resulting page.
	Fill(ctx context.Context, el Element, value string) (*Page, error)
	// WaitForBackgroundScripts blocks until no timers or requests are pending, or
	// timeout elapses, and returns the number still pending.
	WaitForBackgroundScripts(ctx context.Context, timeout time.Duration) (int, error)
	// Close releases the browser.
	Close(ctx context.Context) error
}

// Factory creates a new, independent Client. Used where work fans out across
// several sessions that must not share a browser.
type Factory func(ctx context.Context) (Client, error)
