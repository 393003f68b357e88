package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/catalogtools/apt/pkg/app"
	"github.com/catalogtools/apt/pkg/settings"
	"github.com/catalogtools/apt/pkg/stores"
	"github.com/catalogtools/apt/pkg/telemetry"
)

// runtime bundles what a command needs: telemetry, the cache store and a
// session bound to the settings file.
type runtime struct {
	settingsPath string
	tel          *telemetry.Telemetry
	store        *stores.SQLiteStore
	session      *app.Session
}

func resolveSettingsPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return settings.DefaultPath()
}

// newRuntime wires a session. Logs go to logOut when it is set, otherwise
// to the output named in the telemetry settings.
func newRuntime(ctx context.Context, logOut io.Writer) (*runtime, error) {
	path, err := resolveSettingsPath()
	if err != nil {
		return nil, err
	}

	// Missing or broken settings are reported by Initialize; until then
	// the defaults drive telemetry and the cache location.
	cfg, err := settings.Load(path)
	if err != nil {
		cfg = settings.Default()
	}

	telCfg := *cfg.TelemetryConfig()
	telCfg.ServiceVersion = buildVersion
	if verbose {
		telCfg.Logging.Level = "debug"
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	var tel *telemetry.Telemetry
	if logOut != nil {
		tel, err = telemetry.NewTelemetryWithLogger(&telCfg, telemetry.NewLoggerWithWriter(telCfg.Logging, logOut))
	} else {
		tel, err = telemetry.NewTelemetry(&telCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := tel.Logger
	if err := tel.StartMetricsServer(); err != nil {
		logger.WithError(err).Warn("Failed to start metrics server")
	}

	rt := &runtime{settingsPath: path, tel: tel}
	rt.store = openStore(ctx, cfg, logger.NewComponentLogger("stores"))

	opts := app.Options{SettingsPath: path, Telemetry: tel}
	if rt.store != nil {
		opts.Store = rt.store
	}
	if rt.session, err = app.NewSession(opts); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// openStore opens the cache database. The application works without it,
// so failures are logged and nil is returned.
func openStore(ctx context.Context, cfg *settings.Settings, logger *telemetry.Logger) *stores.SQLiteStore {
	path := cfg.CachePath
	if path == "" {
		var err error
		if path, err = settings.DefaultCachePath(); err != nil {
			logger.WithError(err).Warn("No cache location available")
			return nil
		}
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		logger.WithError(err).Warn("Failed to create cache store")
		return nil
	}
	if err := store.Init(ctx); err != nil {
		logger.WithError(err).WithField("path", path).Warn("Failed to open cache store")
		return nil
	}
	if err := store.Migrate(ctx); err != nil {
		logger.WithError(err).WithField("path", path).Warn("Failed to migrate cache store")
		_ = store.Close()
		return nil
	}
	logger.WithField("path", path).Debug("Cache store opened")
	return store
}

// Close flushes telemetry and releases the store. Buffered events are
// still written to the activity log, so the store closes last.
func (rt *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.tel.Shutdown(ctx); err != nil {
		rt.tel.Logger.WithError(err).Warn("Failed to shut down telemetry")
	}

	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.tel.Logger.WithError(err).Warn("Failed to close cache store")
		}
	}
}

// initialize runs the startup workflow and requires a usable cache.
func (rt *runtime) initialize(ctx context.Context) error {
	if err := rt.session.Initialize(ctx); err != nil {
		return rt.explain(err)
	}
	if !rt.session.Controls().HubEnabled {
		return errors.New(`no catalog cache is available; check "apt auth validate" and run "apt cache refetch"`)
	}
	return nil
}

// configure applies the settings and refreshes the access token.
func (rt *runtime) configure(ctx context.Context) error {
	if _, err := rt.session.Configure(); err != nil {
		return rt.explain(err)
	}
	if !rt.session.RefreshToken(ctx) {
		return errors.New("could not refresh the API access token; check the refresh token and user id")
	}
	return nil
}

func (rt *runtime) explain(err error) error {
	if errors.Is(err, app.ErrNeedsSettings) {
		return fmt.Errorf("%w (configure %s with \"apt settings set\")", err, rt.settingsPath)
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
