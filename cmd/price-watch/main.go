// Moxfield deck price watcher
// ---------------------------
//
// Watches one or more Moxfield decks until each one's lowest total price
// (Cardmarket, EUR) is at or below a target. For every deck:
//   • open the deck page in a private browser session and log in
//   • make sure prices are shown in euros (affiliate preference)
//   • poll: refresh, switch to lowest printings, read the price
//   • on target: full-page screenshot proof, optional e-mail, ledger row
//
// Progress is kept in a status record (Data/tasks.status by default) so a
// container healthcheck can run `price-watch healthcheck`: exit 0 while at
// least one deck is still being watched, 1 otherwise.
//
// Configuration is primarily via environment variables, optionally loaded
// from .env (ENV_FILE); flags can override everything except secrets:
//   TARGET_PRICE, UPDATE_FREQUENCY, DECK_LIST, MOXFIELD_USERNAME,
//   MOXFIELD_PASSWORD, SEND_EMAIL_NOTIFICATION, SENDER_EMAIL_ADDRESS,
//   SENDER_EMAIL_PASSWORD, RECEIVER_EMAIL_ADDRESS, SMTP_HOST, SMTP_PORT,
//   DATA_DIR, LOG_DIR, DEBUG, JSON_LOGS, RESULTS_CSV, PAGE_DRIVER,
//   CHROME_PATH, HEADLESS, NO_SANDBOX, ELEMENT_TIMEOUT, PAGE_LOAD_TIMEOUT,
//   REQUEST_RPS, METRICS_ADDR, STATUS_BACKEND, LOCK_TTL, PG_DSN, PG_SCHEMA,
//   PG_MAX_CONNS, PG_VIA_BOUNCER
//
// Exit codes: 0 every deck reached its target, 1 some deck failed or was
// cancelled, 2 configuration or startup error.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/adapters"
	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/health"
	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/ledger"
	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/notify"
	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/watch"
)

const (
	exitOK      = 0
	exitPartial = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := loadEnvFile(envString("ENV_FILE", ".env")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	healthcheck := len(args) > 0 && args[0] == "healthcheck"
	if healthcheck {
		args = args[1:]
	}
	cfg, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	if healthcheck {
		return runHealthcheck(cfg)
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return exitConfig
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watchDecks(ctx, cfg, log)
}

// runHealthcheck reports whether any deck is still being watched.
func runHealthcheck(cfg config) int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var pool *pgxpool.Pool
	if cfg.statusBackend == "postgres" {
		p, closePool, err := openSharedPool(ctx, cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "healthcheck:", err)
			return 1
		}
		defer closePool()
		pool = p
	}
	store, err := buildStore(cfg, pool)
	if err != nil {
		fmt.Fprintln(os.Stderr, "healthcheck:", err)
		return 1
	}
	return health.Probe(ctx, store)
}

func watchDecks(ctx context.Context, cfg config, log zerolog.Logger) int {
	start := time.Now()
	settings, err := cfg.settings()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return exitConfig
	}
	if err := os.MkdirAll(cfg.dataDir, 0o755); err != nil {
		log.Error().Err(err).Str("dir", cfg.dataDir).Msg("create data dir")
		return exitConfig
	}

	lockPath := filepath.Join(cfg.dataDir, lockFileName)
	if err := acquireLock(lockPath, cfg.lockTTL); err != nil {
		log.Error().Err(err).Msg("lock")
		return exitConfig
	}
	defer releaseLock(lockPath)
	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	go lockHeartbeat(hbCtx, lockPath, cfg.lockTTL/3)

	reg := newRegistry()
	stopMetrics := startMetrics(cfg.metricsAddr, reg, log)
	defer stopMetrics()

	pool, closePool, err := openSharedPool(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("postgres")
		return exitConfig
	}
	defer closePool()

	store, err := buildStore(cfg, pool)
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.statusBackend).Msg("status store")
		return exitConfig
	}

	sink, err := buildLedger(ctx, cfg, pool)
	if err != nil {
		log.Error().Err(err).Msg("result ledger")
		return exitConfig
	}

	notifier, err := buildNotifier(cfg, settings, log)
	if err != nil {
		log.Error().Err(err).Msg("notifier")
		return exitConfig
	}

	site := adapters.Moxfield()
	factory, err := buildFactory(cfg, site, settings)
	if err != nil {
		log.Error().Err(err).Msg("page driver")
		return exitConfig
	}

	orch := &watch.Orchestrator{
		Settings:  settings,
		Site:      site,
		NewDriver: factory,
		Store:     store,
		Ledger:    sink,
		Metrics:   watch.NewMetrics(reg),
		Log:       log,
		DataDir:   cfg.dataDir,
		Timing:    watch.DefaultTiming(),
	}
	// A typed nil would make the orchestrator try to send.
	if notifier != nil {
		orch.Notifier = notifier
	}

	res, err := orch.Run(ctx, settings.Items)
	if err != nil {
		log.Error().Err(err).Msg("run not started")
		return exitConfig
	}
	printSummary(cfg, res, time.Since(start))
	if res.Outcome != watch.OutcomeAllSucceeded {
		return exitPartial
	}
	return exitOK
}

// openPool opens a pgx pool; viaBouncer switches to the simple protocol
// for PgBouncer in transaction pooling mode.
func openPool(ctx context.Context, dsn string, maxConns int, viaBouncer bool) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("PG_DSN parse: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	pcfg.MaxConns = int32(maxConns)
	if viaBouncer {
		pcfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("PG connect: %w", err)
	}
	return pool, nil
}

// openSharedPool opens the one pool the status store and the ledger share.
// Without PG_DSN it returns a nil pool.
func openSharedPool(ctx context.Context, cfg config) (*pgxpool.Pool, func(), error) {
	if cfg.pgDSN == "" {
		return nil, func() {}, nil
	}
	pool, err := openPool(ctx, cfg.pgDSN, cfg.pgMaxConns, cfg.pgViaBouncer)
	if err != nil {
		return nil, func() {}, err
	}
	return pool, pool.Close, nil
}

func buildStore(cfg config, pool *pgxpool.Pool) (health.Store, error) {
	switch cfg.statusBackend {
	case "", "file":
		return health.NewFileStoreIn(cfg.dataDir), nil
	case "memory":
		return health.NewMemoryStore(), nil
	case "postgres":
		if pool == nil {
			return nil, &watch.ConfigurationError{Field: "PG_DSN", Err: errors.New("required for STATUS_BACKEND=postgres")}
		}
		return health.NewPostgresStore(pool, cfg.pgSchema)
	default:
		return nil, &watch.ConfigurationError{Field: "STATUS_BACKEND", Err: fmt.Errorf("unknown backend %q", cfg.statusBackend)}
	}
}

// buildLedger returns a nil sink when neither RESULTS_CSV nor a pool is set.
func buildLedger(ctx context.Context, cfg config, pool *pgxpool.Pool) (ledger.Sink, error) {
	var sinks ledger.Multi
	if cfg.resultsCSV != "" {
		sinks = append(sinks, ledger.NewCSVSink(cfg.resultsCSV))
	}
	if pool != nil {
		ps, err := ledger.NewPostgresSink(pool, cfg.pgSchema)
		if err != nil {
			return nil, err
		}
		if err := ps.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, ps)
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	return sinks, nil
}

func buildNotifier(cfg config, s watch.Settings, log zerolog.Logger) (*notify.SMTPNotifier, error) {
	if !s.SendNotification {
		return nil, nil
	}
	if !s.NotificationReady() {
		log.Warn().Msg("e-mail notification enabled but sender or receiver is incomplete; alerts will be skipped")
		return nil, nil
	}
	return notify.NewSMTPNotifier(notify.SMTPNotifierOptions{
		Host:     cfg.smtpHost,
		Port:     cfg.smtpPort,
		Username: s.SenderAddress,
		Password: s.SenderSecret,
	})
}

func buildFactory(cfg config, site adapters.Site, s watch.Settings) (adapters.Factory, error) {
	var f adapters.Factory
	switch cfg.driver {
	case "", "browser":
		f = adapters.BrowserFactory(site, adapters.BrowserDriverOptions{
			ExecPath:        cfg.chromePath,
			Headless:        cfg.headless,
			NoSandbox:       cfg.noSandbox,
			ElementTimeout:  cfg.elementTimeout,
			PageLoadTimeout: cfg.pageLoadTimeout,
		})
	case "mock":
		f = adapters.SimulatedFactory(mockScript(site, s))
	default:
		return nil, &watch.ConfigurationError{Field: "PAGE_DRIVER", Err: fmt.Errorf("unknown driver %q", cfg.driver)}
	}
	return adapters.ThrottleFactory(f, adapters.NewGate(cfg.rps, 30*time.Second)), nil
}

var (
	decimalTwo = decimal.NewFromInt(2)
	decimalTen = decimal.NewFromInt(10)
)

// mockScript drives every deck from twice the target down past it in
// three refreshes, so an offline run exercises the whole pipeline.
func mockScript(site adapters.Site, s watch.Settings) func(session string) adapters.SimulatedDriverOptions {
	hi := s.TargetPrice.Mul(decimalTwo)
	mid := s.TargetPrice.Add(hi).Div(decimalTwo)
	lo := s.TargetPrice.Sub(s.TargetPrice.Div(decimalTen))
	return func(session string) adapters.SimulatedDriverOptions {
		return adapters.SimulatedDriverOptions{
			Site:   site,
			Title:  session,
			Author: "mock",
			Prices: []string{
				"Cardmarket€" + hi.StringFixed(2),
				"Cardmarket€" + mid.StringFixed(2),
				"Cardmarket€" + lo.StringFixed(2),
			},
			Latency: 200 * time.Millisecond,
		}
	}
}

type summaryJSON struct {
	Outcome   string   `json:"outcome"`
	Items     int      `json:"items"`
	Completed []string `json:"completed"`
	Failed    []string `json:"failed"`
	Cancelled []string `json:"cancelled"`
	Cause     string   `json:"cause,omitempty"`
	Elapsed   string   `json:"elapsed"`
}

func printSummary(cfg config, res watch.RunResult, elapsed time.Duration) {
	var done []string
	for _, r := range res.Items {
		if r.State == watch.StateDone {
			done = append(done, r.Item.Name)
		}
	}
	cause := ""
	if res.Cause != nil {
		cause = res.Cause.Error()
	}
	fmt.Printf("%s items=%d completed=%d failed=%d cancelled=%d elapsed=%s go=%s os=%s/%s driver=%s\n",
		res.Outcome, len(res.Items), len(done), len(res.Failed), len(res.Cancelled),
		elapsed.Truncate(time.Millisecond), runtime.Version(), runtime.GOOS, runtime.GOARCH, cfg.driver)
	for _, r := range res.Items {
		line := fmt.Sprintf("  %s: %s cycles=%d", r.Item.Name, r.State, r.Cycles)
		if r.State == watch.StateDone {
			line += fmt.Sprintf(" price=%s proof=%s notified=%t", r.Price.Amount.StringFixed(2), r.ProofPath, r.Notified)
		}
		if r.Err != nil {
			line += " err=" + strings.ReplaceAll(r.Err.Error(), "\n", " ")
		}
		fmt.Println(line)
	}
	if cfg.jsonLogs {
		b, _ := json.Marshal(summaryJSON{
			Outcome:   res.Outcome.String(),
			Items:     len(res.Items),
			Completed: done,
			Failed:    res.Failed,
			Cancelled: res.Cancelled,
			Cause:     cause,
			Elapsed:   elapsed.String(),
		})
		fmt.Println(string(b))
	}
}
