package adapters

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
)

func chromeOnPath(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome/Chromium on PATH")
	return ""
}

func TestBrowserDriverOutlivesConstructor(t *testing.T) {
	path := chromeOnPath(t)
	ctx, cancel := context.WithCancel(context.Background())
	d, err := NewBrowserDriver(ctx, Moxfield(), BrowserDriverOptions{
		ExecPath:        path,
		Headless:        true,
		NoSandbox:       true,
		PageLoadTimeout: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Close()
	// Cancelling the caller's context must not stop the session either.
	cancel()

	var title string
	err = d.run(context.Background(), 30*time.Second,
		chromedp.Navigate("data:text/html,<title>alive</title>"),
		chromedp.Title(&title),
	)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if title != "alive" {
		t.Fatalf("title = %q", title)
	}
}
