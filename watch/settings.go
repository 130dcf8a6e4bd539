package watch

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/adapters"
	"github.com/shopspring/decimal"
)

// Item is one watched deck. Name is its identity for the whole run.
type Item struct {
	Name string
	URL  string
}

// Settings is the immutable input of a run.
type Settings struct {
	TargetPrice  decimal.Decimal
	PollInterval time.Duration

	Username string
	Password string

	SendNotification bool
	SenderAddress    string
	SenderSecret     string
	ReceiverAddress  string

	Items []Item
}

const (
	DefaultTargetPrice  = "25.00"
	DefaultPollInterval = 300 * time.Second
)

func DefaultSettings() Settings {
	return Settings{
		TargetPrice:  decimal.RequireFromString(DefaultTargetPrice),
		PollInterval: DefaultPollInterval,
	}
}

func (s Settings) Credentials() adapters.Credentials {
	return adapters.Credentials{Username: s.Username, Password: s.Password}
}

// NotificationReady reports whether an alert can be delivered: enabled and
// every address/secret present.
func (s Settings) NotificationReady() bool {
	return s.SendNotification &&
		strings.TrimSpace(s.SenderAddress) != "" &&
		s.SenderSecret != "" &&
		strings.TrimSpace(s.ReceiverAddress) != ""
}

// Validate checks everything except the item list, which Orchestrator.Run
// validates for the items it is handed.
func (s Settings) Validate() error {
	if !s.TargetPrice.IsPositive() {
		return &ConfigurationError{Field: "TARGET_PRICE", Err: fmt.Errorf("must be positive, got %s", s.TargetPrice)}
	}
	if s.PollInterval <= 0 {
		return &ConfigurationError{Field: "UPDATE_FREQUENCY", Err: fmt.Errorf("must be positive, got %s", s.PollInterval)}
	}
	return nil
}

// ItemsFromMap turns a name -> url mapping into items sorted by name.
func ItemsFromMap(m map[string]string) []Item {
	items := make([]Item, 0, len(m))
	for name, u := range m {
		items = append(items, Item{Name: name, URL: u})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

func validateItems(items []Item) error {
	if len(items) == 0 {
		return &ConfigurationError{Field: "DECK_LIST", Err: ErrNoItems}
	}
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			return &ConfigurationError{Field: "DECK_LIST", Err: errors.New("item with empty name")}
		}
		if _, dup := seen[name]; dup {
			return &ConfigurationError{Field: "DECK_LIST", Err: fmt.Errorf("duplicate item %q", name)}
		}
		seen[name] = struct{}{}
		u, err := url.Parse(it.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &ConfigurationError{Field: "DECK_LIST", Err: fmt.Errorf("item %q: invalid url %q", name, it.URL)}
		}
	}
	return nil
}
