package main

import (
	"context"
	"fmt"
	"io"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/cbwatch/internal/cbapi"
	cc "github.com/linnemanlabs/cbwatch/internal/cfg"
	"github.com/linnemanlabs/cbwatch/internal/channelcfg"
	"github.com/linnemanlabs/cbwatch/internal/dispatch"
	"github.com/linnemanlabs/cbwatch/internal/modem"
	"github.com/linnemanlabs/cbwatch/internal/notify/console"
	"github.com/linnemanlabs/cbwatch/internal/notify/slack"
	"github.com/linnemanlabs/cbwatch/internal/pdu"
	"github.com/linnemanlabs/cbwatch/internal/postgres"
	"github.com/linnemanlabs/cbwatch/internal/prefs"
	"github.com/linnemanlabs/cbwatch/internal/redisstate"
	"github.com/linnemanlabs/cbwatch/internal/speech"
	"github.com/linnemanlabs/cbwatch/internal/store"
	"github.com/linnemanlabs/cbwatch/internal/store/memstore"
	"github.com/linnemanlabs/cbwatch/internal/store/pgstore"
	"github.com/linnemanlabs/cbwatch/internal/store/sqlitestore"
)

// state is the preference source and notification id sequence.
type state struct {
	prefs prefs.Source
	seq   dispatch.Sequence
	close func()
}

func openState(ctx context.Context, c cc.Config, L log.Logger) (*state, error) {
	if c.RedisURL == "" {
		L.Info(ctx, "using in-process preferences (no redis-url configured)")
		return &state{
			prefs: prefs.NewMemory(c.Preferences),
			seq:   dispatch.NewCounter(0),
			close: func() {},
		}, nil
	}

	client, err := redisstate.Connect(ctx, c.RedisURL)
	if err != nil {
		return nil, err
	}
	source := redisstate.NewPrefs(client, "")
	if err := source.Seed(ctx, c.Preferences); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("seed preferences: %w", err)
	}
	L.Info(ctx, "using redis preferences and notification ids")
	return &state{
		prefs: source,
		seq:   redisstate.NewSequence(client, ""),
		close: closer(ctx, L, "redis", client),
	}, nil
}

type storage struct {
	store store.Store
	close func()
}

func openStore(ctx context.Context, c cc.Config, L log.Logger) (*storage, error) {
	switch {
	case c.DatabaseURL != "":
		pool, err := postgres.NewPool(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
		pg, err := pgstore.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("pgstore init: %w", err)
		}
		L.Info(ctx, "using postgres store")
		return &storage{store: pg, close: pg.Close}, nil
	case c.SQLitePath != "":
		lite, err := sqlitestore.Open(ctx, c.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore init: %w", err)
		}
		L.Info(ctx, "using sqlite store", "path", c.SQLitePath)
		return &storage{store: lite, close: closer(ctx, L, "sqlite", lite)}, nil
	default:
		L.Info(ctx, "using in-memory store (no database-url or sqlite-path configured)")
		return &storage{store: memstore.New(), close: func() {}}, nil
	}
}

func newNotifier(ctx context.Context, c cc.Config, L log.Logger) dispatch.Notifier {
	if c.SlackWebhookURL != "" {
		L.Info(ctx, "notifier enabled", "type", "slack")
		return slack.New(c.SlackWebhookURL, L)
	}
	L.Info(ctx, "notifier enabled", "type", "console")
	return console.New(L)
}

func newPlayer(ctx context.Context, c cc.Config, L log.Logger) dispatch.Player {
	if c.SpeechURL != "" {
		L.Info(ctx, "audio player enabled", "type", "speech_gateway", "url", c.SpeechURL)
		return speech.NewGateway(c.SpeechURL, L)
	}
	L.Info(ctx, "audio player enabled", "type", "log")
	return speech.NewLogPlayer(L)
}

// modemLink is the optional serial modem ingest path.
type modemLink struct {
	device       io.Closer
	configurator *channelcfg.Configurator
}

func (m *modemLink) applier() cbapi.ChannelApplier {
	if m.configurator == nil {
		return nil
	}
	return m.configurator
}

func (m *modemLink) stop(context.Context) error {
	if m.device == nil {
		return nil
	}
	err := m.device.Close()
	m.device = nil
	return err
}

func (m *modemLink) close() {
	_ = m.stop(context.Background())
}

func startModem(ctx context.Context, c cc.Config, planner *channelcfg.Planner, source prefs.Source, submitter modem.Submitter, L log.Logger) (*modemLink, error) {
	port := c.ModemPort
	if port == "" && c.ModemAutodetect != "" {
		found, err := modem.FindPort(c.ModemAutodetect)
		if err != nil {
			return nil, fmt.Errorf("modem autodetect %q: %w", c.ModemAutodetect, err)
		}
		port = found
	}
	if port == "" {
		return &modemLink{}, nil
	}

	device, err := modem.OpenSerial(port, c.ModemBaudRate)
	if err != nil {
		return nil, fmt.Errorf("open modem %s: %w", port, err)
	}
	ML := L.With("modem_port", port)
	session := modem.NewSession(device, ML)
	modem.NewCollector(submitter, ML).Attach(ctx, session)

	radio := modem.NewRadio(session)
	if err := radio.Setup(ctx); err != nil {
		_ = device.Close()
		return nil, fmt.Errorf("modem setup: %w", err)
	}
	configurator := channelcfg.NewConfigurator(planner, source, radio, ML)
	if _, err := configurator.Apply(ctx, pdu.FormatGSM); err != nil {
		// reception still works for channels the modem already listens to
		ML.Warn(ctx, "initial channel configuration failed", "error", err)
	}
	ML.Info(ctx, "modem ready", "baud", c.ModemBaudRate)
	return &modemLink{device: device, configurator: configurator}, nil
}

func closer(ctx context.Context, L log.Logger, name string, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			L.Error(ctx, err, "failed to close "+name)
		}
	}
}
