// Package adapters contains the page drivers used to operate the marketplace
// deck page.
//
// Everything that knows about the DOM lives behind PageDriver and the Site
// locator profile. The monitor in package watch only sees text, clicks and
// typed errors. The offline SimulatedDriver replays a scripted page for demos
// and tests.
package adapters

import (
	"context"
	"errors"
	"fmt"
)

// Driver failures. Callers classify with errors.Is.
var (
	ErrElementNotFound = errors.New("element not found")
	ErrTimeout         = errors.New("driver timeout")
	ErrAuthentication  = errors.New("authentication rejected")
)

// Locator identifies an element on the page (a CSS selector for BrowserDriver).
type Locator string

// Credentials are the marketplace account used for login.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether either half of the credentials is missing.
func (c Credentials) Empty() bool {
	return c.Username == "" || c.Password == ""
}

// PageDriver abstracts one browser session. A session is owned by exactly one
// monitor and must not be shared.
type PageDriver interface {
	// Navigate loads url and waits for the page to be ready.
	Navigate(ctx context.Context, url string) error

	// Refresh reloads the current page.
	Refresh(ctx context.Context) error

	// ReadText returns the visible text of the element at loc.
	ReadText(ctx context.Context, loc Locator) (string, error)

	// Click clicks the element at loc. ErrElementNotFound when it is absent.
	Click(ctx context.Context, loc Locator) error

	// Authenticate logs in from the current page. ErrAuthentication when the
	// site does not confirm the login.
	Authenticate(ctx context.Context, creds Credentials) error

	// CaptureFullPageScreenshot writes a PNG of the whole page to path.
	CaptureFullPageScreenshot(ctx context.Context, path string) error

	// CurrencyMarkerPresent reports whether the price field shows the
	// site's expected currency marker.
	CurrencyMarkerPresent(ctx context.Context) (bool, error)

	// Close releases the session. Safe to call more than once.
	Close() error
}

// Factory opens a fresh driver session. session names the item the
// session is opened for.
type Factory func(ctx context.Context, session string) (PageDriver, error)

// DriverError records which driver operation failed and on which element.
type DriverError struct {
	Op      string
	Locator Locator
	Err     error
}

func (e *DriverError) Error() string {
	if e.Locator != "" {
		return fmt.Sprintf("%s %q: %v", e.Op, string(e.Locator), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

func opError(op string, loc Locator, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{Op: op, Locator: loc, Err: err}
}
