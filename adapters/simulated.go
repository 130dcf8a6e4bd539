package adapters

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Operation names used for fault injection and call accounting.
const (
	OpNavigate     = "navigate"
	OpRefresh      = "refresh"
	OpRead         = "read"
	OpClick        = "click"
	OpAuthenticate = "authenticate"
	OpScreenshot   = "screenshot"
	OpCurrency     = "currency"
)

// Fault makes the Call-th invocation (1-based) of Op fail with Err.
type Fault struct {
	Op   string
	Call int
	Err  error
}

type SimulatedDriverOptions struct {
	Site   Site
	Title  string
	Author string

	// Prices are the price field texts as the page would show them. The
	// first entry is shown until the first Refresh, each Refresh moves to the
	// next one and the last entry sticks.
	Prices []string

	// CurrencyMissing shows the price field without the site's currency
	// marker until the affiliate preference has been moved to the top and
	// saved. CurrencyUpClicks is how many "up" clicks that takes.
	CurrencyMissing  bool
	CurrencyUpClicks int

	RejectLogin bool
	Faults      []Fault

	// Latency is added to every page load.
	Latency time.Duration
}

// SimulatedDriver replays a scripted deck page without a browser.
type SimulatedDriver struct {
	mu sync.Mutex

	site    Site
	opts    SimulatedDriverOptions
	faults  map[string]map[int]error
	calls   map[string]int
	history []string

	url        string
	priceIdx   int
	currencyOK bool
	upLeft     int
	loggedIn   bool
	shots      []string
	closed     bool
}

func NewSimulatedDriver(opts SimulatedDriverOptions) *SimulatedDriver {
	site := opts.Site
	if site.Name == "" {
		site = Moxfield()
	}
	faults := make(map[string]map[int]error)
	for _, f := range opts.Faults {
		if faults[f.Op] == nil {
			faults[f.Op] = make(map[int]error)
		}
		faults[f.Op][f.Call] = f.Err
	}
	return &SimulatedDriver{
		site:       site,
		opts:       opts,
		faults:     faults,
		calls:      make(map[string]int),
		currencyOK: !opts.CurrencyMissing,
		upLeft:     opts.CurrencyUpClicks,
	}
}

// SimulatedFactory hands out a new SimulatedDriver per session, scripted by
// script(session).
func SimulatedFactory(script func(session string) SimulatedDriverOptions) Factory {
	return func(ctx context.Context, session string) (PageDriver, error) {
		return NewSimulatedDriver(script(session)), nil
	}
}

// enter counts the call and returns the injected fault for it, if any.
// Caller holds mu.
func (d *SimulatedDriver) enter(op, detail string) error {
	d.calls[op]++
	if detail != "" {
		d.history = append(d.history, op+" "+detail)
	} else {
		d.history = append(d.history, op)
	}
	if d.closed {
		return fmt.Errorf("session closed")
	}
	if m := d.faults[op]; m != nil {
		if err, ok := m[d.calls[op]]; ok {
			return err
		}
	}
	return nil
}

func (d *SimulatedDriver) wait(ctx context.Context) error {
	if d.opts.Latency <= 0 {
		return nil
	}
	t := time.NewTimer(d.opts.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

func (d *SimulatedDriver) Navigate(ctx context.Context, url string) error {
	if err := d.wait(ctx); err != nil {
		return opError(OpNavigate, "", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpNavigate, url); err != nil {
		return opError(OpNavigate, "", err)
	}
	d.url = url
	return nil
}

func (d *SimulatedDriver) Refresh(ctx context.Context) error {
	if err := d.wait(ctx); err != nil {
		return opError(OpRefresh, "", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpRefresh, ""); err != nil {
		return opError(OpRefresh, "", err)
	}
	if d.priceIdx < len(d.opts.Prices)-1 {
		d.priceIdx++
	}
	return nil
}

func (d *SimulatedDriver) ReadText(ctx context.Context, loc Locator) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpRead, string(loc)); err != nil {
		return "", opError(OpRead, loc, err)
	}
	var text string
	switch loc {
	case d.site.Title:
		text = d.opts.Title
	case d.site.Author:
		text = d.opts.Author
	case d.site.PriceField:
		text = d.priceText()
	case d.site.MoreMenu:
		text = "More"
	}
	if text == "" {
		return "", opError(OpRead, loc, ErrElementNotFound)
	}
	return text, nil
}

func (d *SimulatedDriver) Click(ctx context.Context, loc Locator) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpClick, string(loc)); err != nil {
		return opError(OpClick, loc, err)
	}
	switch loc {
	case "":
		return opError(OpClick, loc, ErrElementNotFound)
	case d.site.CurrencyUp:
		if d.upLeft <= 0 {
			return opError(OpClick, loc, ErrElementNotFound)
		}
		d.upLeft--
	case d.site.CurrencySave:
		if d.upLeft <= 0 {
			d.currencyOK = true
		}
	}
	return nil
}

func (d *SimulatedDriver) Authenticate(ctx context.Context, creds Credentials) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpAuthenticate, creds.Username); err != nil {
		return opError(OpAuthenticate, "", err)
	}
	if creds.Empty() || d.opts.RejectLogin {
		return opError(OpAuthenticate, d.site.LoggedIn, ErrAuthentication)
	}
	d.loggedIn = true
	return nil
}

func (d *SimulatedDriver) CaptureFullPageScreenshot(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpScreenshot, path); err != nil {
		return opError(OpScreenshot, "", err)
	}
	if err := writePlaceholderPNG(path); err != nil {
		return opError(OpScreenshot, "", err)
	}
	d.shots = append(d.shots, path)
	return nil
}

func (d *SimulatedDriver) CurrencyMarkerPresent(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpCurrency, ""); err != nil {
		return false, opError(OpCurrency, d.site.PriceField, err)
	}
	text := d.priceText()
	if text == "" {
		return false, opError(OpCurrency, d.site.PriceField, ErrElementNotFound)
	}
	return strings.Contains(text, d.site.CurrencyMarker), nil
}

func (d *SimulatedDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// priceText is the current price field text. Caller holds mu.
func (d *SimulatedDriver) priceText() string {
	if len(d.opts.Prices) == 0 {
		return ""
	}
	p := d.opts.Prices[d.priceIdx]
	if !d.currencyOK && d.site.CurrencyMarker != "" {
		p = strings.ReplaceAll(p, d.site.CurrencyMarker, "$")
	}
	return p
}

// Calls returns how many times op was invoked.
func (d *SimulatedDriver) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// History lists every invocation in order as "op detail".
func (d *SimulatedDriver) History() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.history...)
}

func (d *SimulatedDriver) Screenshots() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.shots...)
}

func (d *SimulatedDriver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *SimulatedDriver) LoggedIn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loggedIn
}

func writePlaceholderPNG(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 0x20, G: 0x80, B: 0x20, A: 0xff})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
