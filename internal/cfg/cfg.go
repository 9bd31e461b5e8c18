package cfg

import (
	"errors"
	"flag"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/linnemanlabs/cbwatch/internal/prefs"
)

// Preferences collects -pref key=value flags. A single value may hold several
// comma separated pairs so the environment can set more than one.
type Preferences map[string]string

func (p *Preferences) String() string {
	if p == nil || *p == nil {
		return ""
	}
	keys := slices.Sorted(maps.Keys(*p))
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + (*p)[k]
	}
	return strings.Join(pairs, ",")
}

func (p *Preferences) Set(s string) error {
	if *p == nil {
		*p = make(Preferences)
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("preference %q must be key=value", pair)
		}
		(*p)[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return nil
}

// Config adds cbwatch-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	DatabaseURL           string
	SQLitePath            string
	RedisURL              string
	SlackWebhookURL       string
	SpeechURL             string
	GSMEmergencyIDs       string
	CDMAEmergencyIDs      string
	ShowBrazilSettings    bool
	Preferences           Preferences
	ModemPort             string
	ModemAutodetect       string
	ModemBaudRate         uint
	SinkQueueSize         int
	SinkRetryAttempts     uint
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 10, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 30, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on /api/v1 (empty = no auth)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL")
	fs.StringVar(&c.SQLitePath, "sqlite-path", "", "SQLite database file (used when database-url is empty; empty = in-memory store)")
	fs.StringVar(&c.RedisURL, "redis-url", "", "Redis URL for shared preferences and notification ids (empty = in-process)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for notifications (empty = log only)")
	fs.StringVar(&c.SpeechURL, "speech-url", "", "text-to-speech gateway URL for alert audio (empty = log only)")
	fs.StringVar(&c.GSMEmergencyIDs, "gsm-emergency-ids", "", "operator defined GSM emergency message identifiers, e.g. 0x1112-0x1116,4400")
	fs.StringVar(&c.CDMAEmergencyIDs, "cdma-emergency-ids", "", "operator defined CDMA emergency service categories")
	fs.BoolVar(&c.ShowBrazilSettings, "show-brazil-settings", false, "offer channel 50 (Brazil) alerts")
	fs.Var(&c.Preferences, "pref", "default preference key=value, repeatable")
	fs.StringVar(&c.ModemPort, "modem-port", "", "serial port of a GSM modem receiving cell broadcasts")
	fs.StringVar(&c.ModemAutodetect, "modem-autodetect", "", "find the modem port by matching this text in the device description")
	fs.UintVar(&c.ModemBaudRate, "modem-baud", 115200, "modem serial baud rate")
	fs.IntVar(&c.SinkQueueSize, "sink-queue-size", 64, "pending work items per sink before new work is dropped (1..10000)")
	fs.UintVar(&c.SinkRetryAttempts, "sink-retry-attempts", 5, "attempts per sink call including the first (1..20)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// one persistent store at most
	if c.DatabaseURL != "" && c.SQLitePath != "" {
		errs = append(errs, errors.New("DATABASE_URL and SQLITE_PATH are mutually exclusive"))
	}

	if c.ModemPort != "" && c.ModemAutodetect != "" {
		errs = append(errs, errors.New("MODEM_PORT and MODEM_AUTODETECT are mutually exclusive"))
	}
	if (c.ModemPort != "" || c.ModemAutodetect != "") && c.ModemBaudRate == 0 {
		errs = append(errs, errors.New("MODEM_BAUD must be positive"))
	}

	if c.SinkQueueSize <= 0 || c.SinkQueueSize > 10000 {
		errs = append(errs, fmt.Errorf("invalid SINK_QUEUE_SIZE %d (must be 1..10000)", c.SinkQueueSize))
	}
	if c.SinkRetryAttempts == 0 || c.SinkRetryAttempts > 20 {
		errs = append(errs, fmt.Errorf("invalid SINK_RETRY_ATTEMPTS %d (must be 1..20)", c.SinkRetryAttempts))
	}

	for _, k := range slices.Sorted(maps.Keys(c.Preferences)) {
		if err := prefs.Validate(k, c.Preferences[k]); err != nil {
			errs = append(errs, fmt.Errorf("invalid PREF: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
