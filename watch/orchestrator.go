package watch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/adapters"
	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/health"
	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/ledger"
)

// Outcome summarizes a run.
type Outcome int

const (
	OutcomeNotStarted Outcome = iota
	OutcomeAllSucceeded
	OutcomePartialFailure
	OutcomeNoItems
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllSucceeded:
		return "all-succeeded"
	case OutcomePartialFailure:
		return "partial-failure"
	case OutcomeNoItems:
		return "no-items"
	}
	return "not-started"
}

type RunResult struct {
	Outcome   Outcome
	Items     []ItemResult
	Failed    []string
	Cancelled []string

	// Cause is the failure that cancelled the run, or the parent context's
	// cause when the run was stopped from outside.
	Cause error
}

// Incomplete lists the items that did not reach Done.
func (r RunResult) Incomplete() []string {
	out := make([]string, 0, len(r.Failed)+len(r.Cancelled))
	out = append(out, r.Failed...)
	return append(out, r.Cancelled...)
}

// Orchestrator runs one Monitor per item and stops all of them as soon as
// one fails.
type Orchestrator struct {
	Settings  Settings
	Site      adapters.Site
	NewDriver adapters.Factory
	Store     health.Store
	Notifier  Notifier    // nil: alerts are skipped with a warning
	Ledger    ledger.Sink // nil: results are not recorded
	Metrics   *Metrics
	Log       zerolog.Logger
	DataDir   string
	Timing    Timing

	// Sleep implements every fixed wait. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

func (o *Orchestrator) monitor(it Item) *Monitor {
	sleep := o.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Monitor{
		item:      it,
		settings:  o.Settings,
		site:      o.Site,
		newDriver: o.NewDriver,
		store:     o.Store,
		notifier:  o.Notifier,
		ledger:    o.Ledger,
		metrics:   o.Metrics,
		log:       o.Log.With().Str("item", it.Name).Logger(),
		dataDir:   o.DataDir,
		timing:    o.Timing,
		sleep:     sleep,
		now:       time.Now,
	}
}

// Run blocks until every monitor is terminal. A run that started always
// returns a nil error; failures and cancellations are reported in the
// result. Errors are returned only when nothing was started.
func (o *Orchestrator) Run(ctx context.Context, items []Item) (RunResult, error) {
	if len(items) == 0 {
		o.Log.Error().Msg("no items to watch")
		return RunResult{Outcome: OutcomeNoItems}, &ConfigurationError{Field: "DECK_LIST", Err: ErrNoItems}
	}
	if err := validateItems(items); err != nil {
		return RunResult{}, err
	}
	if err := o.Settings.Validate(); err != nil {
		return RunResult{}, err
	}
	if o.NewDriver == nil || o.Store == nil {
		return RunResult{}, &ConfigurationError{Err: errors.New("page driver factory and status store are required")}
	}
	if err := o.Store.Initialize(ctx); err != nil {
		return RunResult{}, err
	}

	monitors := make([]*Monitor, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, it := range items {
		m := o.monitor(it)
		monitors[i] = m
		g.Go(func() error { return m.Run(gctx) })
	}
	o.Log.Info().Int("items", len(items)).Str("target", o.Settings.TargetPrice.StringFixed(2)).
		Dur("interval", o.Settings.PollInterval).Msg("monitors started")
	cause := g.Wait()

	res := RunResult{Cause: cause, Items: make([]ItemResult, 0, len(monitors))}
	for _, m := range monitors {
		r := m.Result()
		res.Items = append(res.Items, r)
		switch r.State {
		case StateFailed:
			res.Failed = append(res.Failed, r.Item.Name)
		case StateCancelled:
			res.Cancelled = append(res.Cancelled, r.Item.Name)
		}
	}
	if res.Cause == nil && ctx.Err() != nil {
		res.Cause = context.Cause(ctx)
	}
	if len(res.Failed)+len(res.Cancelled) == 0 {
		res.Outcome = OutcomeAllSucceeded
		o.Log.Info().Int("items", len(items)).Msg("all items reached the target")
	} else {
		res.Outcome = OutcomePartialFailure
		o.Log.Error().Err(res.Cause).
			Str("failed", strings.Join(res.Failed, ",")).
			Str("cancelled", strings.Join(res.Cancelled, ",")).
			Msg("run ended with incomplete items")
	}
	return res, nil
}
