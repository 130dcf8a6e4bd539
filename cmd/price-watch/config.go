package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/KarmaKamikaze/Moxfield-Price-Scraper/watch"
)

type config struct {
	// Watch settings, named after the .env keys.
	targetPrice     decimal.Decimal
	updateFrequency int
	username        string
	password        string
	sendEmail       bool
	senderAddress   string
	senderSecret    string
	receiverAddress string
	deckList        string

	smtpHost string
	smtpPort int

	dataDir    string
	logDir     string
	debug      bool
	jsonLogs   bool
	resultsCSV string

	driver          string
	chromePath      string
	headless        bool
	noSandbox       bool
	elementTimeout  time.Duration
	pageLoadTimeout time.Duration
	rps             float64

	metricsAddr   string
	statusBackend string
	lockTTL       time.Duration

	pgDSN        string
	pgSchema     string
	pgMaxConns   int
	pgViaBouncer bool
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// envDecimal parses with "." as the decimal separator regardless of locale.
func envDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return d
}

// decimalFlag lets -target-price override TARGET_PRICE.
type decimalFlag struct{ d *decimal.Decimal }

func (f decimalFlag) String() string {
	if f.d == nil {
		return ""
	}
	return f.d.StringFixed(2)
}

func (f decimalFlag) Set(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*f.d = d
	return nil
}

// loadEnvFile reads KEY=VALUE pairs from path into the environment.
// Variables that are already set win; a missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// parseFlags builds the config from the environment; flags override it.
// Secrets are only read from the environment.
func parseFlags(args []string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("price-watch", flag.ContinueOnError)

	def, _ := decimal.NewFromString(watch.DefaultTargetPrice)
	cfg.targetPrice = envDecimal("TARGET_PRICE", def)
	fs.Var(decimalFlag{&cfg.targetPrice}, "target-price", "Alert when a deck costs this much or less. Env: TARGET_PRICE")
	fs.IntVar(&cfg.updateFrequency, "update-frequency", envInt("UPDATE_FREQUENCY", int(watch.DefaultPollInterval/time.Second)), "Seconds between price checks. Env: UPDATE_FREQUENCY")
	fs.StringVar(&cfg.deckList, "deck-list", envString("DECK_LIST", ""), `JSON object of deck name -> url, e.g. {"Atraxa":"https://www.moxfield.com/decks/..."}. Env: DECK_LIST`)
	fs.BoolVar(&cfg.sendEmail, "send-email", envBool("SEND_EMAIL_NOTIFICATION", false), "Send an e-mail with the proof when a target is reached. Env: SEND_EMAIL_NOTIFICATION")
	fs.StringVar(&cfg.senderAddress, "sender", envString("SENDER_EMAIL_ADDRESS", ""), "Sender (and SMTP login) address. Env: SENDER_EMAIL_ADDRESS")
	fs.StringVar(&cfg.receiverAddress, "receiver", envString("RECEIVER_EMAIL_ADDRESS", ""), "Alert recipient. Env: RECEIVER_EMAIL_ADDRESS")
	fs.StringVar(&cfg.smtpHost, "smtp-host", envString("SMTP_HOST", "smtp.gmail.com"), "SMTP relay host. Env: SMTP_HOST")
	fs.IntVar(&cfg.smtpPort, "smtp-port", envInt("SMTP_PORT", 587), "SMTP relay port (STARTTLS). Env: SMTP_PORT")
	cfg.username = envString("MOXFIELD_USERNAME", "")
	cfg.password = os.Getenv("MOXFIELD_PASSWORD")
	cfg.senderSecret = os.Getenv("SENDER_EMAIL_PASSWORD")

	fs.StringVar(&cfg.dataDir, "data-dir", envString("DATA_DIR", "Data"), "Status record, proofs and lock file. Env: DATA_DIR")
	fs.StringVar(&cfg.logDir, "log-dir", envString("LOG_DIR", "Logs"), "errors.json and the rolling all.log. Env: LOG_DIR")
	fs.BoolVar(&cfg.debug, "debug", envBool("DEBUG", false), "Debug logging. Env: DEBUG")
	fs.BoolVar(&cfg.jsonLogs, "json-logs", envBool("JSON_LOGS", false), "Emit a JSON summary line (keeps human summary too). Env: JSON_LOGS")
	fs.StringVar(&cfg.resultsCSV, "results-csv", envString("RESULTS_CSV", ""), "Append reached targets to this CSV. Env: RESULTS_CSV")

	fs.StringVar(&cfg.driver, "page-driver", envString("PAGE_DRIVER", "browser"), "Page driver: browser|mock. Env: PAGE_DRIVER")
	fs.StringVar(&cfg.chromePath, "chrome-path", envString("CHROME_PATH", ""), "Chrome/Chromium binary (default: PATH lookup). Env: CHROME_PATH")
	fs.BoolVar(&cfg.headless, "headless", envBool("HEADLESS", true), "Run the browser headless. Env: HEADLESS")
	fs.BoolVar(&cfg.noSandbox, "no-sandbox", envBool("NO_SANDBOX", false), "Disable the Chrome sandbox (containers). Env: NO_SANDBOX")
	fs.DurationVar(&cfg.elementTimeout, "element-timeout", envDuration("ELEMENT_TIMEOUT", 2*time.Minute), "Wait for an element at most this long. Env: ELEMENT_TIMEOUT")
	fs.DurationVar(&cfg.pageLoadTimeout, "page-load-timeout", envDuration("PAGE_LOAD_TIMEOUT", 5*time.Minute), "Wait for a page load at most this long. Env: PAGE_LOAD_TIMEOUT")
	fs.Float64Var(&cfg.rps, "rps", envFloat("REQUEST_RPS", 0), "Page loads per second across all decks. 0=unlimited. Env: REQUEST_RPS")

	fs.StringVar(&cfg.metricsAddr, "metrics", envString("METRICS_ADDR", ""), "Serve /metrics and /debug/pprof/* on this address, e.g. :6060. Env: METRICS_ADDR")
	fs.StringVar(&cfg.statusBackend, "status-backend", envString("STATUS_BACKEND", "file"), "Status record backend: file|postgres|memory. Env: STATUS_BACKEND")
	fs.DurationVar(&cfg.lockTTL, "lock-ttl", envDuration("LOCK_TTL", 10*time.Minute), "Treat a lock file older than this as stale. Env: LOCK_TTL")

	fs.StringVar(&cfg.pgDSN, "pg-dsn", envString("PG_DSN", ""), "Postgres DSN (enables DB sinks). Env: PG_DSN")
	fs.StringVar(&cfg.pgSchema, "pg-schema", envString("PG_SCHEMA", "public"), "Target Postgres schema. Env: PG_SCHEMA")
	fs.IntVar(&cfg.pgMaxConns, "pg-max-conns", envInt("PG_MAX_CONNS", 4), "Max pooled Postgres connections. Env: PG_MAX_CONNS")
	fs.BoolVar(&cfg.pgViaBouncer, "pg-via-bouncer", envBool("PG_VIA_BOUNCER", false), "Use the simple protocol (PgBouncer transaction pooling). Env: PG_VIA_BOUNCER")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	cfg.driver = strings.ToLower(strings.TrimSpace(cfg.driver))
	cfg.statusBackend = strings.ToLower(strings.TrimSpace(cfg.statusBackend))
	if cfg.lockTTL < time.Minute {
		cfg.lockTTL = time.Minute
	}
	return cfg, nil
}

// settings turns the config into the run's immutable settings.
func (cfg config) settings() (watch.Settings, error) {
	s := watch.Settings{
		TargetPrice:      cfg.targetPrice,
		PollInterval:     time.Duration(cfg.updateFrequency) * time.Second,
		Username:         cfg.username,
		Password:         cfg.password,
		SendNotification: cfg.sendEmail,
		SenderAddress:    cfg.senderAddress,
		SenderSecret:     cfg.senderSecret,
		ReceiverAddress:  cfg.receiverAddress,
	}
	if strings.TrimSpace(cfg.deckList) != "" {
		var decks map[string]string
		if err := json.Unmarshal([]byte(cfg.deckList), &decks); err != nil {
			return s, &watch.ConfigurationError{Field: "DECK_LIST", Err: err}
		}
		s.Items = watch.ItemsFromMap(decks)
	}
	return s, s.Validate()
}
