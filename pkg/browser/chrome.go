package browser

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	errs "wxrss/pkg/errors"
	"wxrss/pkg/logger"
)

const defaultActionTimeout = 10 * time.Second

// Chrome is the chromedp-backed Automator. One instance owns one browser
// process; it is not safe for concurrent use.
type Chrome struct {
	mu sync.Mutex

	headless bool
	execPath string
	timeout  time.Duration

	allocCancel context.CancelFunc
	ctx         context.Context
	ctxCancel   context.CancelFunc

	logger logger.Logger
}

// NewChrome creates an unstarted Chrome automator. execPath may be empty to
// use the default browser discovery. timeout bounds individual page actions,
// not the whole login flow.
func NewChrome(headless bool, execPath string, timeout time.Duration, log logger.Logger) *Chrome {
	if log == nil {
		log = logger.GetLogger()
	}
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	return &Chrome{
		headless: headless,
		execPath: execPath,
		timeout:  timeout,
		logger:   log,
	}
}

// Start launches the browser process and opens a blank tab.
func (c *Chrome) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx != nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("lang", "zh-CN"),
	)
	if c.execPath != "" {
		opts = append(opts, chromedp.ExecPath(c.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Force the browser process to start now so failures surface here
	// instead of on the first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return errs.Wrap(errs.KindBrowser, "failed to launch browser", err)
	}

	c.allocCancel = allocCancel
	c.ctx = browserCtx
	c.ctxCancel = browserCancel

	c.logger.InfoWithFields("browser started", map[string]interface{}{
		"headless": c.headless,
	})
	return nil
}

// Navigate loads the URL and waits for the document body.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	run, cancel, err := c.action(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	c.logger.DebugWithFields("navigating", map[string]interface{}{"url": url})
	if err := chromedp.Run(run,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return errs.Wrap(errs.KindBrowser, "navigation failed", err)
	}
	return nil
}

// WaitVisible blocks until the selector matches a visible element.
func (c *Chrome) WaitVisible(ctx context.Context, selector string) error {
	run, cancel, err := c.action(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := chromedp.Run(run, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return errs.Wrapf(errs.KindBrowser, err, "element %q did not become visible", selector)
	}
	return nil
}

// ScreenshotElement captures the matching element as PNG.
func (c *Chrome) ScreenshotElement(ctx context.Context, selector, path string) error {
	run, cancel, err := c.action(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	var buf []byte
	if err := chromedp.Run(run,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Screenshot(selector, &buf, chromedp.NodeVisible),
	); err != nil {
		return errs.Wrapf(errs.KindBrowser, err, "failed to capture %q", selector)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.Wrap(errs.KindBrowser, "failed to create screenshot directory", err)
		}
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return errs.Wrap(errs.KindBrowser, "failed to write screenshot", err)
	}

	c.logger.DebugWithFields("element captured", map[string]interface{}{
		"selector": selector,
		"path":     path,
		"bytes":    len(buf),
	})
	return nil
}

// CurrentURL reports the page's current location.
func (c *Chrome) CurrentURL(ctx context.Context) (string, error) {
	run, cancel, err := c.action(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	var url string
	if err := chromedp.Run(run, chromedp.Location(&url)); err != nil {
		return "", errs.Wrap(errs.KindBrowser, "failed to read location", err)
	}
	return url, nil
}

// BodyText returns the visible text of the page body.
func (c *Chrome) BodyText(ctx context.Context) (string, error) {
	run, cancel, err := c.action(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	var text string
	if err := chromedp.Run(run, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", errs.Wrap(errs.KindBrowser, "failed to read body text", err)
	}
	return text, nil
}

// Cookies returns all cookies of the browsing context.
func (c *Chrome) Cookies(ctx context.Context) (map[string]string, error) {
	run, cancel, err := c.action(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	cookies := make(map[string]string)
	err = chromedp.Run(run, chromedp.ActionFunc(func(ctx context.Context) error {
		all, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, cookie := range all {
			cookies[cookie.Name] = cookie.Value
		}
		return nil
	}))
	if err != nil {
		return nil, errs.Wrap(errs.KindBrowser, "failed to read cookies", err)
	}
	return cookies, nil
}

// Close tears down the browser process. Safe to call multiple times.
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctxCancel != nil {
		c.ctxCancel()
		c.ctxCancel = nil
	}
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCancel = nil
	}
	if c.ctx != nil {
		c.ctx = nil
		c.logger.Debug("browser closed")
	}
	return nil
}

// action derives a per-action context bounded by the configured timeout. The
// caller's ctx cancels the action early; the browser context carries the tab.
func (c *Chrome) action(ctx context.Context) (context.Context, context.CancelFunc, error) {
	c.mu.Lock()
	browserCtx := c.ctx
	c.mu.Unlock()

	if browserCtx == nil {
		return nil, nil, errs.New(errs.KindBrowser, "browser not started")
	}

	run, cancel := context.WithTimeout(browserCtx, c.timeout)
	stop := context.AfterFunc(ctx, cancel)
	return run, func() { stop(); cancel() }, nil
}
