package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate bounds page loads across every session of a run (AIMD: additive
// recovery after successes, multiplicative back-off plus a cool-off on
// timeouts).
type Gate struct {
	mu        sync.Mutex
	lim       *rate.Limiter
	curr      rate.Limit
	min, max  rate.Limit
	incStep   rate.Limit
	incOK     int
	okCount   int
	coolOff   time.Duration
	coolUntil time.Time
}

// NewGate returns nil when rps <= 0; a nil Gate never waits.
func NewGate(rps float64, coolOff time.Duration) *Gate {
	if rps <= 0 {
		return nil
	}
	if coolOff <= 0 {
		coolOff = 30 * time.Second
	}
	return &Gate{
		lim:     rate.NewLimiter(rate.Limit(rps), 1),
		curr:    rate.Limit(rps),
		min:     rate.Limit(rps / 4),
		max:     rate.Limit(rps),
		incStep: rate.Limit(rps / 10),
		incOK:   5,
		coolOff: coolOff,
	}
}

func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	cool := g.coolUntil
	lim := g.lim
	g.mu.Unlock()

	if d := time.Until(cool); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return lim.Wait(ctx)
}

// Limit is the current page-load rate.
func (g *Gate) Limit() rate.Limit {
	if g == nil {
		return rate.Inf
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.curr
}

func (g *Gate) onOK() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.okCount++
	if g.okCount < g.incOK {
		return
	}
	g.okCount = 0
	n := g.curr + g.incStep
	if n > g.max {
		n = g.max
	}
	if n != g.curr {
		g.curr = n
		g.lim.SetLimit(n)
	}
}

func (g *Gate) onTimeout() {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.curr / 2
	if n < g.min {
		n = g.min
	}
	if n != g.curr {
		g.curr = n
		g.lim.SetLimit(n)
	}
	g.okCount = 0
	g.coolUntil = time.Now().Add(g.coolOff)
}

func (g *Gate) observe(err error) {
	switch {
	case err == nil:
		g.onOK()
	case errors.Is(err, ErrTimeout):
		g.onTimeout()
	}
}

type throttled struct {
	PageDriver
	gate *Gate
}

// Throttle routes d's page loads (Navigate and Refresh) through g. A nil g
// returns d unchanged.
func Throttle(d PageDriver, g *Gate) PageDriver {
	if g == nil {
		return d
	}
	return &throttled{PageDriver: d, gate: g}
}

// ThrottleFactory wraps every session opened by f.
func ThrottleFactory(f Factory, g *Gate) Factory {
	if g == nil {
		return f
	}
	return func(ctx context.Context, session string) (PageDriver, error) {
		d, err := f(ctx, session)
		if err != nil {
			return nil, err
		}
		return Throttle(d, g), nil
	}
}

func (t *throttled) Navigate(ctx context.Context, url string) error {
	if err := t.gate.Wait(ctx); err != nil {
		return opError(OpNavigate, "", err)
	}
	err := t.PageDriver.Navigate(ctx, url)
	t.gate.observe(err)
	return err
}

func (t *throttled) Refresh(ctx context.Context) error {
	if err := t.gate.Wait(ctx); err != nil {
		return opError(OpRefresh, "", err)
	}
	err := t.PageDriver.Refresh(ctx)
	t.gate.observe(err)
	return err
}
