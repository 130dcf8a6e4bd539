package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// BrowserDriver drives a real Chrome through the DevTools protocol.
type BrowserDriver struct {
	site Site
	opts BrowserDriverOptions

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

type BrowserDriverOptions struct {
	ExecPath  string // empty: look up Chrome on PATH
	Headless  bool
	NoSandbox bool
	UserAgent string

	WindowWidth  int
	WindowHeight int

	// ElementTimeout bounds every wait for an element; PageLoadTimeout
	// bounds Navigate and Refresh.
	ElementTimeout  time.Duration
	PageLoadTimeout time.Duration

	// CookieTimeout bounds the optional cookie banner during login.
	CookieTimeout time.Duration
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// NewBrowserDriver starts a browser. The session lives until Close, it is
// not tied to ctx's cancellation.
func NewBrowserDriver(ctx context.Context, site Site, opts BrowserDriverOptions) (*BrowserDriver, error) {
	if opts.WindowWidth <= 0 || opts.WindowHeight <= 0 {
		opts.WindowWidth, opts.WindowHeight = 2560, 1440
	}
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = 2 * time.Minute
	}
	if opts.PageLoadTimeout <= 0 {
		opts.PageLoadTimeout = 5 * time.Minute
	}
	if opts.CookieTimeout <= 0 {
		opts.CookieTimeout = 10 * time.Second
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}

	alloc := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	alloc = append(alloc,
		chromedp.UserAgent(ua),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
	)
	if !opts.Headless {
		alloc = append(alloc, chromedp.Flag("headless", false))
	}
	if opts.NoSandbox {
		alloc = append(alloc, chromedp.NoSandbox)
	}
	if opts.ExecPath != "" {
		alloc = append(alloc, chromedp.ExecPath(opts.ExecPath))
	}

	base := context.WithoutCancel(ctx)
	actx, allocCancel := chromedp.NewExecAllocator(base, alloc...)
	bctx, cancel := chromedp.NewContext(actx)

	// The first Run launches Chrome, which lives as long as that Run's
	// context. Startup is bounded by cancelling bctx, never a derived timeout.
	expired := time.AfterFunc(opts.PageLoadTimeout, cancel)
	err := chromedp.Run(bctx)
	if !expired.Stop() && err == nil {
		err = ErrTimeout
	}
	if err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &BrowserDriver{
		site:        site,
		opts:        opts,
		ctx:         bctx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}, nil
}

// BrowserFactory opens one browser per session.
func BrowserFactory(site Site, opts BrowserDriverOptions) Factory {
	return func(ctx context.Context, session string) (PageDriver, error) {
		return NewBrowserDriver(ctx, site, opts)
	}
}

// run executes actions on the browser context bounded by timeout and by ctx.
func (d *BrowserDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(tctx, actions...)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return ErrTimeout
	}
	return err
}

// present checks for loc without waiting.
func (d *BrowserDriver) present(ctx context.Context, loc Locator) bool {
	var nodes []*cdp.Node
	err := d.run(ctx, 5*time.Second, chromedp.Nodes(string(loc), &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	return err == nil && len(nodes) > 0
}

// classify turns a timed-out wait on loc into ErrElementNotFound when the
// element does not exist at all.
func (d *BrowserDriver) classify(ctx context.Context, loc Locator, err error) error {
	if errors.Is(err, ErrTimeout) && !d.present(ctx, loc) {
		return ErrElementNotFound
	}
	return err
}

func (d *BrowserDriver) Navigate(ctx context.Context, url string) error {
	return opError(OpNavigate, "", d.run(ctx, d.opts.PageLoadTimeout, chromedp.Navigate(url)))
}

func (d *BrowserDriver) Refresh(ctx context.Context) error {
	return opError(OpRefresh, "", d.run(ctx, d.opts.PageLoadTimeout, chromedp.Reload()))
}

// ReadText waits until loc is visible and carries non-empty text.
func (d *BrowserDriver) ReadText(ctx context.Context, loc Locator) (string, error) {
	var text string
	err := d.run(ctx, d.opts.ElementTimeout,
		chromedp.WaitVisible(string(loc), chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for {
				if err := chromedp.Text(string(loc), &text, chromedp.ByQuery, chromedp.NodeVisible).Do(ctx); err != nil {
					return err
				}
				if strings.TrimSpace(text) != "" {
					return nil
				}
				select {
				case <-time.After(500 * time.Millisecond):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}),
	)
	if err != nil {
		return "", opError(OpRead, loc, d.classify(ctx, loc, err))
	}
	return strings.TrimSpace(text), nil
}

func (d *BrowserDriver) Click(ctx context.Context, loc Locator) error {
	return d.click(ctx, loc, d.opts.ElementTimeout)
}

func (d *BrowserDriver) click(ctx context.Context, loc Locator, timeout time.Duration) error {
	err := d.run(ctx, timeout,
		chromedp.WaitVisible(string(loc), chromedp.ByQuery),
		chromedp.WaitEnabled(string(loc), chromedp.ByQuery),
		chromedp.Click(string(loc), chromedp.ByQuery, chromedp.NodeVisible),
	)
	if err != nil {
		return opError(OpClick, loc, d.classify(ctx, loc, err))
	}
	return nil
}

func (d *BrowserDriver) Authenticate(ctx context.Context, creds Credentials) error {
	if creds.Empty() {
		return opError(OpAuthenticate, "", ErrAuthentication)
	}
	if err := d.click(ctx, d.site.LoginLink, d.opts.ElementTimeout); err != nil {
		return err
	}
	// Cookie banner only shows up for fresh profiles.
	_ = d.click(ctx, d.site.CookieAccept, d.opts.CookieTimeout)

	fill := func(loc Locator, value string) error {
		var got string
		err := d.run(ctx, d.opts.ElementTimeout,
			chromedp.WaitVisible(string(loc), chromedp.ByQuery),
			chromedp.SendKeys(string(loc), value, chromedp.ByQuery),
			chromedp.Value(string(loc), &got, chromedp.ByQuery),
		)
		if err != nil {
			return opError(OpAuthenticate, loc, d.classify(ctx, loc, err))
		}
		if len(got) != len(value) {
			return opError(OpAuthenticate, loc, fmt.Errorf("field holds %d of %d characters", len(got), len(value)))
		}
		return nil
	}
	if err := fill(d.site.UsernameField, creds.Username); err != nil {
		return err
	}
	if err := fill(d.site.PasswordField, creds.Password); err != nil {
		return err
	}
	if err := d.click(ctx, d.site.SignIn, d.opts.ElementTimeout); err != nil {
		return err
	}
	if err := d.run(ctx, d.opts.ElementTimeout, chromedp.WaitVisible(string(d.site.LoggedIn), chromedp.ByQuery)); err != nil {
		return opError(OpAuthenticate, d.site.LoggedIn, fmt.Errorf("%w: %v", ErrAuthentication, err))
	}
	return nil
}

func (d *BrowserDriver) CaptureFullPageScreenshot(ctx context.Context, path string) error {
	var buf []byte
	// Quality 100 yields PNG.
	if err := d.run(ctx, d.opts.PageLoadTimeout, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return opError(OpScreenshot, "", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return opError(OpScreenshot, "", err)
	}
	return opError(OpScreenshot, "", os.WriteFile(path, buf, 0o644))
}

func (d *BrowserDriver) CurrencyMarkerPresent(ctx context.Context) (bool, error) {
	text, err := d.ReadText(ctx, d.site.PriceField)
	if err != nil {
		return false, err
	}
	return strings.Contains(text, d.site.CurrencyMarker), nil
}

func (d *BrowserDriver) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	return nil
}
