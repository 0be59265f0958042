package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

// lookupGuard bounds lookups that were asked not to wait, so that no call
// into the browser is unbounded.
const lookupGuard = 10 * time.Second

// ChromeOptions configures the launched browser.
type ChromeOptions struct {
	Headless     bool
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	ExecPath     string
}

// Chrome is a Page backed by a single chromedp tab.
type Chrome struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Launch starts a browser and opens one tab. The returned Chrome must be
// closed by the caller.
func Launch(ctx context.Context, opts ChromeOptions) (*Chrome, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-gpu", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	c := &Chrome{
		ctx:    tabCtx,
		cancel: func() { cancelTab(); cancelAlloc() },
	}

	// Run with no actions starts the browser process.
	if err := chromedp.Run(tabCtx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return c, nil
}

// ProbeUserAgent launches a throwaway headless browser and reports its user
// agent with the headless marker removed.
func ProbeUserAgent(ctx context.Context, execPath string) (string, error) {
	c, err := Launch(ctx, ChromeOptions{Headless: true, ExecPath: execPath})
	if err != nil {
		return "", err
	}
	defer c.Close()

	var ua string
	if err := c.Evaluate(ctx, "navigator.userAgent", &ua); err != nil {
		return "", fmt.Errorf("failed to read user agent: %w", err)
	}
	return strings.Replace(ua, "Headless", "", 1), nil
}

// Close shuts down the tab and the browser process.
func (c *Chrome) Close() {
	c.cancel()
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = lookupGuard
	}
	tctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(tctx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Chrome) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := c.run(ctx, timeout, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) Find(ctx context.Context, sel Selector, opts FindOptions) ([]Element, error) {
	var nodes []*cdp.Node
	queryOpts := []chromedp.QueryOption{chromedp.BySearch}
	timeout := opts.Timeout
	if opts.All && timeout <= 0 {
		queryOpts = append(queryOpts, chromedp.AtLeast(0))
	}

	err := c.run(ctx, timeout, chromedp.Nodes(sel.Expression(), &nodes, queryOpts...))
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		nodes = nil
	case err != nil:
		return nil, fmt.Errorf("find %s: %w", sel, err)
	}

	if len(nodes) == 0 {
		if opts.Required {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sel)
		}
		return nil, nil
	}
	if !opts.All {
		nodes = nodes[:1]
	}

	els := make([]Element, len(nodes))
	for i, n := range nodes {
		els[i] = &chromeElement{tab: c, node: n}
	}
	return els, nil
}

func (c *Chrome) Evaluate(ctx context.Context, script string, out any) error {
	return c.run(ctx, 0, chromedp.Evaluate(script, out))
}

func (c *Chrome) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	// Quality 100 produces a PNG.
	if err := c.run(ctx, 0, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	return os.WriteFile(path, buf, 0644)
}

func (c *Chrome) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("page source: %w", err)
	}
	return html, nil
}

type chromeElement struct {
	tab  *Chrome
	node *cdp.Node
}

func (e *chromeElement) Click(ctx context.Context) error {
	return e.tab.run(ctx, deadlineOrGuard(ctx), chromedp.MouseClickNode(e.node))
}

func (e *chromeElement) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.node.Attribute(name)
	return v, ok, nil
}

func (e *chromeElement) ScrollIntoView(ctx context.Context) error {
	return e.tab.run(ctx, deadlineOrGuard(ctx), chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.ScrollIntoViewIfNeeded().WithNodeID(e.node.NodeID).Do(ctx)
	}))
}

func (e *chromeElement) String() string {
	return e.node.FullXPath()
}

// deadlineOrGuard carries the caller's deadline over to the tab context.
func deadlineOrGuard(ctx context.Context) time.Duration {
	if d, ok := ctx.Deadline(); ok {
		if left := time.Until(d); left > 0 {
			return left
		}
		return time.Millisecond
	}
	return lookupGuard
}
