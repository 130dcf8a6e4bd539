package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestNewGateDisabled(t *testing.T) {
	if g := NewGate(0, 0); g != nil {
		t.Fatalf("NewGate(0) = %v, want nil", g)
	}
	var g *Gate
	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("nil gate wait: %v", err)
	}
	if g.Limit() != rate.Inf {
		t.Fatalf("nil gate limit = %v, want Inf", g.Limit())
	}
	d := NewSimulatedDriver(SimulatedDriverOptions{})
	if Throttle(d, nil) != PageDriver(d) {
		t.Fatalf("Throttle with nil gate must return the driver itself")
	}
}

func TestThrottleBacksOffOnTimeout(t *testing.T) {
	g := NewGate(100, time.Millisecond)
	d := NewSimulatedDriver(SimulatedDriverOptions{
		Prices: []string{"€1.00"},
		Faults: []Fault{{Op: OpRefresh, Call: 1, Err: ErrTimeout}},
	})
	td := Throttle(d, g)
	ctx := context.Background()

	if err := td.Refresh(ctx); !errors.Is(err, ErrTimeout) {
		t.Fatalf("refresh err = %v, want ErrTimeout", err)
	}
	if got := g.Limit(); got != 50 {
		t.Fatalf("limit after timeout = %v, want 50", got)
	}

	for i := 0; i < 5; i++ {
		if err := td.Navigate(ctx, "https://example.invalid/deck"); err != nil {
			t.Fatalf("navigate %d: %v", i, err)
		}
	}
	if got := g.Limit(); got != 60 {
		t.Fatalf("limit after recovery = %v, want 60", got)
	}
	if n := d.Calls(OpNavigate); n != 5 {
		t.Fatalf("navigate calls = %d, want 5", n)
	}
}

func TestThrottleFloor(t *testing.T) {
	g := NewGate(8, time.Millisecond)
	for i := 0; i < 10; i++ {
		g.observe(ErrTimeout)
	}
	if got := g.Limit(); got != 2 {
		t.Fatalf("limit = %v, want floor 2", got)
	}
}

func TestThrottleFactoryWrapsSessions(t *testing.T) {
	g := NewGate(1000, time.Millisecond)
	f := ThrottleFactory(SimulatedFactory(func(string) SimulatedDriverOptions {
		return SimulatedDriverOptions{}
	}), g)
	d, err := f(context.Background(), "deck")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if _, ok := d.(*throttled); !ok {
		t.Fatalf("session type = %T, want *throttled", d)
	}
}
