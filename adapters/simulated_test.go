package adapters

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSimulatedDriverAdvancesPricesOnRefresh(t *testing.T) {
	site := Moxfield()
	d := NewSimulatedDriver(SimulatedDriverOptions{
		Title:  "Atraxa Superfriends",
		Prices: []string{"Cardmarket€15.00", "Cardmarket€12.00", "Cardmarket€9.00"},
	})
	ctx := context.Background()

	want := []string{"Cardmarket€15.00", "Cardmarket€12.00", "Cardmarket€9.00", "Cardmarket€9.00"}
	for i, w := range want {
		if i > 0 {
			if err := d.Refresh(ctx); err != nil {
				t.Fatalf("refresh %d: %v", i, err)
			}
		}
		got, err := d.ReadText(ctx, site.PriceField)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if got != w {
			t.Errorf("read %d = %q, want %q", i, got, w)
		}
	}
	if n := d.Calls(OpRefresh); n != 3 {
		t.Errorf("refresh calls = %d, want 3", n)
	}
}

func TestSimulatedDriverFaultInjection(t *testing.T) {
	d := NewSimulatedDriver(SimulatedDriverOptions{
		Prices: []string{"€30.00"},
		Faults: []Fault{{Op: OpRefresh, Call: 2, Err: ErrTimeout}},
	})
	ctx := context.Background()

	if err := d.Refresh(ctx); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	err := d.Refresh(ctx)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("second refresh err = %v, want ErrTimeout", err)
	}
	var de *DriverError
	if !errors.As(err, &de) || de.Op != OpRefresh {
		t.Fatalf("err = %#v, want *DriverError for %s", err, OpRefresh)
	}
	if err := d.Refresh(ctx); err != nil {
		t.Fatalf("third refresh: %v", err)
	}
}

func TestSimulatedDriverCurrencyFix(t *testing.T) {
	site := Moxfield()
	d := NewSimulatedDriver(SimulatedDriverOptions{
		Prices:           []string{"Cardmarket€20.00"},
		CurrencyMissing:  true,
		CurrencyUpClicks: 2,
	})
	ctx := context.Background()

	ok, err := d.CurrencyMarkerPresent(ctx)
	if err != nil || ok {
		t.Fatalf("marker before fix = %v, %v; want false, nil", ok, err)
	}
	for i := 0; i < 2; i++ {
		if err := d.Click(ctx, site.CurrencyUp); err != nil {
			t.Fatalf("up click %d: %v", i, err)
		}
	}
	if err := d.Click(ctx, site.CurrencyUp); !errors.Is(err, ErrElementNotFound) {
		t.Fatalf("third up click err = %v, want ErrElementNotFound", err)
	}
	if err := d.Click(ctx, site.CurrencySave); err != nil {
		t.Fatalf("save: %v", err)
	}
	ok, err = d.CurrencyMarkerPresent(ctx)
	if err != nil || !ok {
		t.Fatalf("marker after fix = %v, %v; want true, nil", ok, err)
	}
}

func TestSimulatedDriverAuthenticate(t *testing.T) {
	ctx := context.Background()

	d := NewSimulatedDriver(SimulatedDriverOptions{})
	if err := d.Authenticate(ctx, Credentials{Username: "u", Password: "p"}); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !d.LoggedIn() {
		t.Fatalf("expected logged in")
	}

	d = NewSimulatedDriver(SimulatedDriverOptions{RejectLogin: true})
	if err := d.Authenticate(ctx, Credentials{Username: "u", Password: "p"}); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("err = %v, want ErrAuthentication", err)
	}
}

func TestSimulatedDriverScreenshotWritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Data", "deck_proof.png")
	d := NewSimulatedDriver(SimulatedDriverOptions{})
	if err := d.CaptureFullPageScreenshot(context.Background(), path); err != nil {
		t.Fatalf("screenshot: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read proof: %v", err)
	}
	if len(b) < 8 || string(b[1:4]) != "PNG" {
		t.Fatalf("proof is not a PNG: % x", b[:min(len(b), 8)])
	}
}

func TestSimulatedDriverRejectsCallsAfterClose(t *testing.T) {
	d := NewSimulatedDriver(SimulatedDriverOptions{Prices: []string{"€1.00"}})
	_ = d.Close()
	_ = d.Close()
	if !d.Closed() {
		t.Fatalf("expected closed")
	}
	if err := d.Navigate(context.Background(), "https://example.invalid"); err == nil {
		t.Fatalf("navigate after close succeeded")
	}
}
