package hub

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hazyhaar/chatcast/connectivity"
	"github.com/hazyhaar/chatcast/hub/internal/config"
	"github.com/hazyhaar/chatcast/hub/internal/sink"
	"github.com/hazyhaar/chatcast/hub/internal/store"
	"github.com/hazyhaar/chatcast/internal/browser"
)

// Config is the hub configuration file.
type Config = config.Config

// SinkConfig is one entry of the sinks section.
type SinkConfig = config.SinkConfig

// LoadConfig reads a YAML configuration file. An empty path yields the
// defaults: the three default chat sites, a local database and a SQLite
// attempt sink.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

// BrowserConfig maps the browser section of cfg to a Manager configuration.
func BrowserConfig(cfg *Config, logger *slog.Logger) browser.Config {
	b := cfg.Browser
	return browser.Config{
		RemoteURL:        b.Remote,
		UserDataDir:      b.UserDataDir,
		Bin:              b.Bin,
		Mode:             browser.ParseMode(b.Mode),
		MemoryLimit:      b.MemoryLimit,
		RecycleInterval:  b.RecycleInterval,
		NavigateTimeout:  b.NavigateTimeout,
		OpTimeout:        b.OpTimeout,
		ResourceBlocking: b.ResourceBlocking,
		XvfbDisplay:      b.XvfbDisplay,
		Logger:           logger,
	}
}

// routeWatchInterval is how often the routes table is checked for edits.
const routeWatchInterval = 2 * time.Second

// Build opens the database, wires the sinks and the service router named
// by cfg and returns the hub. The routes table is watched until ctx ends.
// The returned close function shuts the hub down and closes the database.
func Build(ctx context.Context, cfg *Config, opener Opener, logger *slog.Logger) (*Hub, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("hub: open store: %w", err)
	}
	if err := connectivity.Init(st.DB); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("hub: routes schema: %w", err)
	}

	router := connectivity.New(
		connectivity.WithLogger(logger),
		connectivity.WithMiddleware(connectivity.Chain(
			connectivity.Recovery(logger),
			connectivity.Logging(logger),
			connectivity.Timeout(cfg.SendTimeout),
		)),
	)
	router.RegisterTransport("http", connectivity.HTTPFactory())
	go router.Watch(ctx, st.DB, routeWatchInterval)

	sinks, err := buildSinks(cfg, st, logger)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	h, err := New(ctx, cfg,
		WithOpener(opener),
		WithStore(st),
		WithSinks(sinks...),
		WithRouter(router),
		WithLogger(logger),
	)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	closeFn := func() error {
		err := h.Shutdown()
		if cerr := st.Close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	}
	return h, closeFn, nil
}

func buildSinks(cfg *Config, st *store.Store, logger *slog.Logger) ([]sink.Sink, error) {
	var out []sink.Sink
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			out = append(out, sink.NewStdout(os.Stdout))
		case "sqlite":
			out = append(out, sink.NewSQLite(st))
		case "webhook":
			out = append(out, sink.NewWebhook(sc.URL,
				sink.WithWebhookTimeout(sc.Timeout),
				sink.WithWebhookRetries(sc.Retries),
				sink.WithWebhookLogger(logger),
			))
		default:
			return nil, fmt.Errorf("hub: unknown sink type %q", sc.Type)
		}
	}
	return out, nil
}
