package watch

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestItemsFromMapSorted(t *testing.T) {
	items := ItemsFromMap(map[string]string{
		"zur":     "https://www.moxfield.com/decks/z",
		"atraxa":  "https://www.moxfield.com/decks/a",
		"kenrith": "https://www.moxfield.com/decks/k",
	})
	if len(items) != 3 || items[0].Name != "atraxa" || items[2].Name != "zur" {
		t.Fatalf("items = %+v", items)
	}
	if items[1].URL != "https://www.moxfield.com/decks/k" {
		t.Fatalf("url lost: %+v", items[1])
	}
}

func TestValidateItems(t *testing.T) {
	cases := map[string][]Item{
		"empty":     nil,
		"blank":     {{Name: " ", URL: "https://x.invalid/d"}},
		"duplicate": {{Name: "a", URL: "https://x.invalid/1"}, {Name: "a", URL: "https://x.invalid/2"}},
		"bad url":   {{Name: "a", URL: "moxfield deck"}},
	}
	for name, items := range cases {
		err := validateItems(items)
		var ce *ConfigurationError
		if !errors.As(err, &ce) {
			t.Errorf("%s: err = %v, want ConfigurationError", name, err)
		}
	}
	if err := validateItems(itemsFor("a", "b")); err != nil {
		t.Fatalf("valid items rejected: %v", err)
	}
}

func TestSettingsValidate(t *testing.T) {
	s := DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults rejected: %v", err)
	}
	if s.TargetPrice.StringFixed(2) != "25.00" || s.PollInterval != DefaultPollInterval {
		t.Fatalf("defaults = %s / %s", s.TargetPrice, s.PollInterval)
	}
	s.TargetPrice = decimal.Zero
	if err := s.Validate(); err == nil {
		t.Fatalf("zero target accepted")
	}
	s = DefaultSettings()
	s.PollInterval = 0
	if err := s.Validate(); err == nil {
		t.Fatalf("zero interval accepted")
	}
}

func TestNotificationReady(t *testing.T) {
	s := testSettings()
	if !s.NotificationReady() {
		t.Fatalf("complete settings not ready")
	}
	s.SenderSecret = ""
	if s.NotificationReady() {
		t.Fatalf("missing secret reported ready")
	}
	s = testSettings()
	s.SendNotification = false
	if s.NotificationReady() {
		t.Fatalf("disabled notification reported ready")
	}
	if c := testSettings().Credentials(); c.Empty() {
		t.Fatalf("credentials empty")
	}
}
