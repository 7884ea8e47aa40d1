package browser

import "context"

// Automator drives a real browser for the scan login flow. Implementations
// must be safe to Close more than once; all other methods require a prior
// successful Start.
type Automator interface {
	// Start launches the browser process.
	Start(ctx context.Context) error

	// Navigate loads the given URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until the selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error

	// ScreenshotElement captures the element matching the selector and
	// writes it as PNG to path, creating parent directories as needed.
	ScreenshotElement(ctx context.Context, selector, path string) error

	// CurrentURL reports the page's current location. Polled during login
	// to detect the post-scan redirect.
	CurrentURL(ctx context.Context) (string, error)

	// BodyText returns the visible text of the page body.
	BodyText(ctx context.Context) (string, error)

	// Cookies returns all cookies of the browsing context as name-value
	// pairs.
	Cookies(ctx context.Context) (map[string]string, error)

	// Close tears down the browser process and releases its resources.
	Close() error
}
