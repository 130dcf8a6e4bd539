package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/adapters"
	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/health"
	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/ledger"
	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/notify"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	if n.err != nil {
		return &notify.NotificationError{To: msg.To, Err: n.err}
	}
	return nil
}

func (n *recordingNotifier) sent() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.msgs...)
}

type recordingSink struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (s *recordingSink) Append(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

type recordingSleep struct {
	mu  sync.Mutex
	got []time.Duration
}

func (s *recordingSleep) sleep(d time.Duration) {
	s.mu.Lock()
	s.got = append(s.got, d)
	s.mu.Unlock()
}

func (s *recordingSleep) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, x := range s.got {
		if x == d {
			n++
		}
	}
	return n
}

// harness wires an Orchestrator to simulated sessions and in-memory
// collaborators.
type harness struct {
	orch     *Orchestrator
	store    *health.MemoryStore
	notifier *recordingNotifier
	sink     *recordingSink
	sleeper  *recordingSleep

	mu       sync.Mutex
	scripts  map[string]adapters.SimulatedDriverOptions
	sessions map[string]*adapters.SimulatedDriver
}

func testSettings() Settings {
	return Settings{
		TargetPrice:      decimal.RequireFromString("10"),
		PollInterval:     time.Millisecond,
		Username:         "collector",
		Password:         "hunter2",
		SendNotification: true,
		SenderAddress:    "watcher@example.com",
		SenderSecret:     "app-password",
		ReceiverAddress:  "me@example.com",
	}
}

func newHarness(t *testing.T, scripts map[string]adapters.SimulatedDriverOptions) *harness {
	t.Helper()
	h := &harness{
		store:    health.NewMemoryStore(),
		notifier: &recordingNotifier{},
		sink:     &recordingSink{},
		sleeper:  &recordingSleep{},
		scripts:  scripts,
		sessions: make(map[string]*adapters.SimulatedDriver),
	}
	factory := func(ctx context.Context, session string) (adapters.PageDriver, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		d := adapters.NewSimulatedDriver(h.scripts[session])
		h.sessions[session] = d
		return d, nil
	}
	h.orch = &Orchestrator{
		Settings:  testSettings(),
		Site:      adapters.Moxfield(),
		NewDriver: factory,
		Store:     h.store,
		Notifier:  h.notifier,
		Ledger:    h.sink,
		Log:       zerolog.Nop(),
		DataDir:   t.TempDir(),
		Timing:    Timing{UIDelay: 7 * time.Millisecond, SettleDelay: 11 * time.Millisecond},
		Sleep:     h.sleeper.sleep,
	}
	return h
}

func (h *harness) session(name string) *adapters.SimulatedDriver {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[name]
}

func itemsFor(names ...string) []Item {
	out := make([]Item, 0, len(names))
	for _, n := range names {
		out = append(out, Item{Name: n, URL: "https://www.moxfield.com/decks/" + n})
	}
	return out
}

func statusOf(t *testing.T, s health.Store, name string) health.Status {
	t.Helper()
	m, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return m[name]
}

func samePath(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
