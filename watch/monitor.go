package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/adapters"
	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/health"
	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/ledger"
	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/notify"
)

// Notifier delivers the alert for a reached target.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) error
}

// Timing holds the fixed UI waits of the affiliate settings page.
type Timing struct {
	UIDelay     time.Duration // between "move up" clicks
	SettleDelay time.Duration // after saving
}

func DefaultTiming() Timing {
	return Timing{UIDelay: time.Second, SettleDelay: 3 * time.Second}
}

// Monitor drives one item from login to notification. It owns its page
// session for its whole life.
type Monitor struct {
	item      Item
	settings  Settings
	site      adapters.Site
	newDriver adapters.Factory
	store     health.Store
	notifier  Notifier
	ledger    ledger.Sink
	metrics   *Metrics
	log       zerolog.Logger
	dataDir   string
	timing    Timing
	sleep     func(time.Duration)
	now       func() time.Time

	mu       sync.Mutex
	state    State
	path     []State
	cycles   int
	title    string
	last     PriceReading
	proof    string
	notified bool
	err      error
}

// ItemResult is the final view of one monitor.
type ItemResult struct {
	Item      Item
	State     State
	Path      []State
	Cycles    int
	Title     string
	Price     PriceReading
	ProofPath string
	Notified  bool
	Err       error
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) Result() ItemResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ItemResult{
		Item:      m.item,
		State:     m.state,
		Path:      append([]State(nil), m.path...),
		Cycles:    m.cycles,
		Title:     m.title,
		Price:     m.last,
		ProofPath: m.proof,
		Notified:  m.notified,
		Err:       m.err,
	}
}

func (m *Monitor) transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !canTransition(m.state, to) {
		return &TransitionError{From: m.state, To: to}
	}
	if to != m.state {
		m.path = append(m.path, to)
	}
	m.state = to
	return nil
}

// checkpoint is where a monitor honours the shared cancellation.
func checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return errCancelled
	}
	return nil
}

// Run blocks until the monitor is Done, Failed or Cancelled. It returns an
// error only when the monitor Failed; that error trips the shared
// cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	m.metrics.started()
	err := m.run(ctx)

	// Terminal writes must land even when the run is being torn down.
	dctx := context.WithoutCancel(ctx)
	switch {
	case err == nil:
		m.log.Info().Str("title", m.Result().Title).Msg("monitor done")
		m.metrics.finished(StateDone)
		return nil
	case errors.Is(err, errCancelled):
		m.finish(StateCancelled, nil)
		m.log.Warn().Stringer("state", m.lastLive()).Msg("monitor cancelled")
		m.writeStatus(dctx, health.StatusFailed)
		m.metrics.finished(StateCancelled)
		return nil
	default:
		m.finish(StateFailed, err)
		m.log.Error().Err(err).Stringer("state", m.lastLive()).Msg("monitor failed")
		m.writeStatus(dctx, health.StatusFailed)
		m.metrics.finished(StateFailed)
		return fmt.Errorf("%s: %w", m.item.Name, err)
	}
}

// lastLive is the state the monitor left when it terminated.
func (m *Monitor) lastLive() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.path) - 1; i >= 0; i-- {
		if !m.path[i].Terminal() {
			return m.path[i]
		}
	}
	return StateInit
}

func (m *Monitor) finish(s State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() {
		return
	}
	m.state = s
	m.path = append(m.path, s)
	m.err = err
}

func (m *Monitor) writeStatus(ctx context.Context, s health.Status) {
	if err := m.store.SetStatus(ctx, m.item.Name, s); err != nil {
		m.log.Error().Err(err).Str("status", string(s)).Msg("status write failed")
	}
}

func (m *Monitor) run(ctx context.Context) error {
	// Driver calls and waits are detached from the shared cancellation: a
	// monitor only stops at its checkpoints, never inside a page operation.
	dctx := context.WithoutCancel(ctx)

	m.mu.Lock()
	m.path = append(m.path, StateInit)
	m.mu.Unlock()

	if err := m.store.SetStatus(dctx, m.item.Name, health.StatusRunning); err != nil {
		return err
	}
	if err := checkpoint(ctx); err != nil {
		return err
	}

	d, err := m.newDriver(dctx, m.item.Name)
	if err != nil {
		return fmt.Errorf("open page session: %w", err)
	}
	defer func() {
		if cerr := d.Close(); cerr != nil {
			m.log.Warn().Err(cerr).Msg("close page session")
		}
	}()

	// Init -> Authenticated
	if err := d.Navigate(dctx, m.item.URL); err != nil {
		return err
	}
	title, err := d.ReadText(dctx, m.site.Title)
	if err != nil {
		return fmt.Errorf("read deck title: %w", err)
	}
	m.mu.Lock()
	m.title = title
	m.mu.Unlock()
	ev := m.log.Info().Str("title", title)
	if m.site.Author != "" {
		if author, err := d.ReadText(dctx, m.site.Author); err == nil {
			ev = ev.Str("author", author)
		}
	}
	ev.Msg("deck loaded")

	creds := m.settings.Credentials()
	if creds.Empty() {
		return &ConfigurationError{Field: "MOXFIELD_USERNAME/MOXFIELD_PASSWORD", Err: errMissingCredentials}
	}
	if err := checkpoint(ctx); err != nil {
		return err
	}
	if err := d.Authenticate(dctx, creds); err != nil {
		return err
	}
	m.log.Debug().Msg("logged in")
	if err := m.transition(StateAuthenticated); err != nil {
		return err
	}

	// Authenticated -> CurrencyVerified
	if err := checkpoint(ctx); err != nil {
		return err
	}
	if err := m.verifyCurrency(dctx, d); err != nil {
		return err
	}
	if err := m.transition(StateCurrencyVerified); err != nil {
		return err
	}

	// CurrencyVerified -> Polling
	if err := d.Navigate(dctx, m.item.URL); err != nil {
		return err
	}
	price, err := m.readPrice(dctx, d)
	if err != nil {
		return err
	}
	if err := m.transition(StatePolling); err != nil {
		return err
	}
	target := m.settings.TargetPrice
	m.log.Info().Str("price", price.StringFixed(2)).Str("target", target.StringFixed(2)).Msg("polling")

	for price.GreaterThan(target) {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		if err := d.Refresh(dctx); err != nil {
			return err
		}
		if err := m.setPriceToLowest(dctx, d); err != nil {
			return err
		}
		prev := price
		if price, err = m.readPrice(dctx, d); err != nil {
			return err
		}
		m.mu.Lock()
		m.cycles++
		m.mu.Unlock()
		m.metrics.cycle(m.item.Name)
		m.log.Info().Str("before", prev.StringFixed(2)).Str("now", price.StringFixed(2)).Msg("price checked")
		if !price.GreaterThan(target) {
			break
		}
		// Not preemptible: cancellation is seen at the next checkpoint.
		m.sleep(m.settings.PollInterval)
		if err := m.transition(StatePolling); err != nil {
			return err
		}
	}
	if err := m.transition(StatePriceReached); err != nil {
		return err
	}
	m.log.Info().Str("price", price.StringFixed(2)).Msg("target price reached")

	// PriceReached -> ProofCaptured
	proof := filepath.Join(m.dataDir, proofFileName(title, m.item.Name))
	if err := d.CaptureFullPageScreenshot(dctx, proof); err != nil {
		return fmt.Errorf("capture proof: %w", err)
	}
	m.mu.Lock()
	m.proof = proof
	m.mu.Unlock()
	if err := m.transition(StateProofCaptured); err != nil {
		return err
	}

	// ProofCaptured -> Notified
	if err := checkpoint(ctx); err != nil {
		return err
	}
	sent := m.notify(dctx, title, price, proof)
	m.mu.Lock()
	m.notified = sent
	m.mu.Unlock()
	if err := m.transition(StateNotified); err != nil {
		return err
	}
	m.record(dctx, title, price, proof, sent)

	// Notified -> Done
	if err := m.store.SetStatus(dctx, m.item.Name, health.StatusCompleted); err != nil {
		return err
	}
	return m.transition(StateDone)
}

// verifyCurrency moves Cardmarket to the top of the affiliate list when the
// price is not shown in the expected currency. Only reading the price field
// can fail the monitor; the fix itself is best-effort.
func (m *Monitor) verifyCurrency(ctx context.Context, d adapters.PageDriver) error {
	ok, err := d.CurrencyMarkerPresent(ctx)
	if err != nil {
		return fmt.Errorf("check currency: %w", err)
	}
	if ok {
		m.log.Debug().Msg("currency ok")
		return nil
	}

	m.log.Info().Str("marker", m.site.CurrencyMarker).Msg("currency mismatch; moving cardmarket to the top")
	if err := d.Navigate(ctx, m.site.AffiliateSettingsURL); err != nil {
		m.log.Warn().Err(err).Msg("currency fix: open affiliate settings")
		return nil
	}
	clicks := 0
	for {
		err := d.Click(ctx, m.site.CurrencyUp)
		if err == nil {
			clicks++
			m.sleep(m.timing.UIDelay)
			continue
		}
		if !errors.Is(err, adapters.ErrElementNotFound) && !errors.Is(err, adapters.ErrTimeout) {
			m.log.Warn().Err(err).Msg("currency fix: move up")
		}
		break
	}
	m.log.Debug().Int("clicks", clicks).Msg("cardmarket at the top")
	if err := d.Click(ctx, m.site.CurrencySave); err != nil {
		m.log.Warn().Err(err).Msg("currency fix: save")
		return nil
	}
	m.sleep(m.timing.SettleDelay)
	return nil
}

func (m *Monitor) setPriceToLowest(ctx context.Context, d adapters.PageDriver) error {
	for _, loc := range []adapters.Locator{m.site.MoreMenu, m.site.SetLowest, m.site.ConfirmLowest} {
		if err := d.Click(ctx, loc); err != nil {
			return fmt.Errorf("set price to lowest: %w", err)
		}
	}
	if _, err := d.ReadText(ctx, m.site.MoreMenu); err != nil {
		return fmt.Errorf("set price to lowest: not confirmed: %w", err)
	}
	return nil
}

func (m *Monitor) readPrice(ctx context.Context, d adapters.PageDriver) (decimal.Decimal, error) {
	text, err := d.ReadText(ctx, m.site.PriceField)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("read price: %w", err)
	}
	amount, err := ParsePrice(text)
	if err != nil {
		return decimal.Decimal{}, err
	}
	m.mu.Lock()
	m.last = PriceReading{Amount: amount, CapturedAt: m.now()}
	m.mu.Unlock()
	m.metrics.price(m.item.Name, amount)
	return amount, nil
}

// notify sends the alert and reports whether it was delivered. Delivery
// problems are logged and never fail the monitor.
func (m *Monitor) notify(ctx context.Context, title string, price decimal.Decimal, proof string) bool {
	s := m.settings
	if !s.SendNotification {
		m.log.Debug().Msg("notification disabled")
		m.metrics.notification("skipped")
		return false
	}
	if !s.NotificationReady() || m.notifier == nil {
		m.log.Warn().Msg("notification enabled but sender address, sender password or receiver address is missing")
		m.metrics.notification("skipped")
		return false
	}
	cur := m.site.CurrencyMarker
	msg := notify.Message{
		To:      s.ReceiverAddress,
		Subject: fmt.Sprintf("Price target reached for %s at %s%s!", title, cur, price.StringFixed(2)),
		Body: fmt.Sprintf("%s is now %s%s, at or below your target of %s%s.\n%s",
			title, cur, price.StringFixed(2), cur, s.TargetPrice.StringFixed(2), m.item.URL),
		ImagePath: proof,
	}
	if err := m.notifier.Send(ctx, msg); err != nil {
		m.log.Error().Err(err).Msg("notification failed")
		m.metrics.notification("failed")
		return false
	}
	m.log.Info().Str("to", s.ReceiverAddress).Msg("notification sent")
	m.metrics.notification("sent")
	return true
}

func (m *Monitor) record(ctx context.Context, title string, price decimal.Decimal, proof string, sent bool) {
	if m.ledger == nil {
		return
	}
	err := m.ledger.Append(ctx, ledger.Entry{
		Item:        m.item.Name,
		Title:       title,
		URL:         m.item.URL,
		Target:      m.settings.TargetPrice,
		Price:       price,
		ProofPath:   proof,
		Notified:    sent,
		CompletedAt: m.now(),
	})
	if err != nil {
		m.log.Error().Err(err).Msg("record result")
	}
}

// proofFileName derives "<title>_proof.png" with path-hostile characters
// replaced.
func proofFileName(title, fallback string) string {
	name := strings.TrimSpace(title)
	if name == "" {
		name = fallback
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, name)
	if name == "." || name == ".." {
		name = "_"
	}
	return name + "_proof.png"
}
