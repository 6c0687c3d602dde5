// internal/browser/cdp.go
package browser

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

//go:embed js/snapshot.js
var snapshotScript string

//go:embed js/tracker.js
var trackerScript string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CDPOptions configures a CDPClient.
type CDPOptions struct {
	Headless   bool
	DisableGPU bool
	ExecPath   string
	Args       []string
	// RemoteURL, when set, attaches to an already running browser's DevTools
	// websocket instead of launching one.
	RemoteURL         string
	UserAgent         string
	NavigationTimeout time.Duration
}

// ExecAllocatorOptions translates CDPOptions into chromedp allocator options.
func ExecAllocatorOptions(opts CDPOptions) []chromedp.ExecAllocatorOption {
	out := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if !opts.Headless {
		out = append(out, chromedp.Flag("headless", false))
	}
	if opts.DisableGPU {
		out = append(out, chromedp.DisableGPU)
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		out = append(out, chromedp.UserAgent(opts.UserAgent))
	}
	for _, arg := range opts.Args {
		key, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !hasValue {
			out = append(out, chromedp.Flag(key, true))
			continue
		}
		out = append(out, chromedp.Flag(key, value))
	}
	return out
}

// CDPClient drives a Chromium tab over the DevTools protocol.
type CDPClient struct {
	opts   CDPOptions
	logger *zap.Logger

	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	generation uint64
	closed     bool

	exMu       sync.Mutex
	exceptions []string
}

var _ Client = (*CDPClient)(nil)

type snapshotResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	HTML    string `json:"html"`
	Pending int    `json:"pending"`
}

// NewCDPClient launches (or attaches to) a browser and opens one tab with the
// background-work tracker installed on every new document.
func NewCDPClient(ctx context.Context, opts CDPOptions, logger *zap.Logger) (*CDPClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 2 * time.Minute
	}
	c := &CDPClient{opts: opts, logger: logger.Named("cdp")}

	var allocCtx context.Context
	if opts.RemoteURL != "" {
		allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(Detach(ctx), opts.RemoteURL)
	} else {
		allocCtx, c.allocCancel = chromedp.NewExecAllocator(Detach(ctx), ExecAllocatorOptions(opts)...)
	}
	c.tabCtx, c.tabCancel = chromedp.NewContext(allocCtx,
		chromedp.WithLogf(c.logger.Sugar().Debugf),
		chromedp.WithErrorf(c.logger.Sugar().Errorf),
	)

	chromedp.ListenTarget(c.tabCtx, func(ev interface{}) {
		if e, ok := ev.(*runtime.EventExceptionThrown); ok {
			c.recordException(e)
		}
	})

	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(trackerScript).Do(ctx)
		return err
	}))
	if err != nil {
		c.shutdown()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	c.logger.Info("Browser client started.", zap.Bool("remote", opts.RemoteURL != ""), zap.Bool("headless", opts.Headless))
	return c, nil
}

func (c *CDPClient) recordException(e *runtime.EventExceptionThrown) {
	if e.ExceptionDetails == nil {
		return
	}
	text := e.ExceptionDetails.Text
	if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
		text = e.ExceptionDetails.Exception.Description
	}
	c.exMu.Lock()
	c.exceptions = append(c.exceptions, text)
	c.exMu.Unlock()
	c.logger.Debug("Page script exception.", zap.String("message", text))
}

func (c *CDPClient) takeExceptions() []string {
	c.exMu.Lock()
	defer c.exMu.Unlock()
	out := c.exceptions
	c.exceptions = nil
	return out
}

// run executes actions on the tab, bounded by both the tab's and the caller's context.
func (c *CDPClient) run(ctx context.Context, actions ...chromedp.Action) error {
	if c.closed {
		return ErrClosed
	}
	runCtx, cancel := CombineContext(c.tabCtx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (c *CDPClient) Fetch(ctx context.Context, url string) (*Page, error) {
	c.takeExceptions()
	navCtx, cancel := context.WithTimeout(ctx, c.opts.NavigationTimeout)
	defer cancel()
	if err := c.run(navCtx, chromedp.Navigate(url)); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if ex := c.takeExceptions(); len(ex) > 0 {
		return nil, &ScriptError{URL: url, Message: ex[0]}
	}
	return c.Snapshot(ctx)
}

func (c *CDPClient) Snapshot(ctx context.Context) (*Page, error) {
	var res snapshotResult
	if err := c.run(ctx, chromedp.Evaluate(snapshotScript, &res)); err != nil {
		return nil, fmt.Errorf("failed to snapshot page: %w", err)
	}
	c.generation++
	return NewPage(res.URL, c.generation, res.HTML)
}

// liveSelector checks el belongs to the current snapshot and returns a CSS
// selector for its live node.
func (c *CDPClient) liveSelector(el Element) (string, error) {
	if el.IsZero() || el.Page() == nil || el.Page().Generation() != c.generation {
		return "", ErrStaleElement
	}
	ref := el.Ref()
	if ref == "" {
		return "", fmt.Errorf("element <%s> has no snapshot reference: %w", el.Tag(), ErrStaleElement)
	}
	return fmt.Sprintf("[%s=%q]", RefAttr, ref), nil
}

func (c *CDPClient) Click(ctx context.Context, el Element) (*Page, error) {
	sel, err := c.liveSelector(el)
	if err != nil {
		return nil, err
	}
	literal, err := json.MarshalToString(sel)
	if err != nil {
		return nil, err
	}
	script := fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) { return false; } el.click(); return true; })()`, literal)

	var found bool
	if err := c.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return nil, fmt.Errorf("failed to click %s: %w", sel, err)
	}
	if !found {
		return nil, ErrStaleElement
	}
	// A click may start a navigation; wait for a body before re-reading.
	if err := c.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("page did not settle after click: %w", err)
	}
	return c.Snapshot(ctx)
}

func (c *CDPClient) Fill(ctx context.Context, el Element, value string) (*Page, error) {
	sel, err := c.liveSelector(el)
	if err != nil {
		return nil, err
	}
	if err := c.run(ctx, chromedp.SetValue(sel, value, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("failed to fill %s: %w", sel, err)
	}
	return c.Snapshot(ctx)
}

func (c *CDPClient) WaitForBackgroundScripts(ctx context.Context, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		var pending int
		if err := c.run(ctx, chromedp.Evaluate(`window.__snapPending || 0`, &pending)); err != nil {
			return 0, fmt.Errorf("failed to read pending script count: %w", err)
		}
		if pending == 0 || !time.Now().Before(deadline) {
			return pending, nil
		}
		select {
		case <-ctx.Done():
			return pending, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *CDPClient) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	closeCtx, cancel := CombineContext(c.tabCtx, ctx)
	defer cancel()
	err := chromedp.Cancel(closeCtx)
	c.shutdown()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	c.logger.Info("Browser client closed.")
	return nil
}

func (c *CDPClient) shutdown() {
	c.closed = true
	if c.tabCancel != nil {
		c.tabCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
}
