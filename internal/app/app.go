package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	server "lorule-online/server"
	"lorule-online/server/catalog"
	"lorule-online/server/internal/auth"
	servernet "lorule-online/server/internal/net"
	"lorule-online/server/internal/net/ws"
	"lorule-online/server/internal/storage"
	"lorule-online/server/internal/telemetry"
	"lorule-online/server/logging"
	loggingSinks "lorule-online/server/logging/sinks"
	worldlog "lorule-online/server/logging/world"
)

type envConfig struct {
	Addr            string        `env:"LORULE_ADDR" envDefault:":8080"`
	DataDir         string        `env:"LORULE_DATA_DIR" envDefault:"data"`
	SaveMinInterval time.Duration `env:"LORULE_SAVE_MIN_INTERVAL" envDefault:"5s"`
	LogSinks        []string      `env:"LORULE_LOG_SINKS" envDefault:"console"`
	EventLogPath    string        `env:"LORULE_EVENT_LOG"`
	FieldCatalog    string        `env:"LORULE_FIELD_CATALOG"`
}

// Run wires the whole server together and blocks until the context is
// cancelled or the listener fails. Corrupt persisted state aborts startup.
func Run(ctx context.Context) error {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	stdLogger := log.Default()
	logger := telemetry.WrapLogger(stdLogger)

	router, err := buildRouter(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	serverCfg, err := storage.LoadServerConfig(filepath.Join(cfg.DataDir, "server.json"))
	if err != nil {
		return fmt.Errorf("load server config: %w", err)
	}

	accountStore, err := auth.LoadStore(filepath.Join(cfg.DataDir, "accounts.json"), serverCfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	tokens := auth.NewTokens(serverCfg.Secret, serverCfg.TokenTTL(), nil)
	accounts := auth.NewService(accountStore, tokens)

	hadronStore := storage.NewHadronStore(filepath.Join(cfg.DataDir, "hadrons.json"))
	persisted, err := hadronStore.Load()
	if err != nil {
		return fmt.Errorf("load hadrons: %w", err)
	}

	catalogPath := cfg.FieldCatalog
	if catalogPath == "" {
		catalogPath = filepath.Join(cfg.DataDir, "fields.json")
	}
	resolver, err := catalog.Load(catalogPath)
	if err != nil {
		return fmt.Errorf("load field catalog: %w", err)
	}

	registry := server.NewRegistry(persisted)
	registry.ReserveIdentityIDs(accounts.AccountExists)
	swept := registry.SweepOrphans(accounts.AccountExists)
	if swept > 0 {
		worldlog.OrphansSwept(ctx, router, worldlog.SweptPayload{Removed: swept})
	}

	var saver *storage.Saver
	hub := server.NewHub(registry, server.HubConfig{
		Logger:    logger,
		Publisher: router,
		Validator: resolver,
		Persist: func() {
			if saver != nil {
				saver.Schedule()
			}
		},
	})
	saver = storage.NewSaver(hadronStore, hub.CombinedState, storage.SaverConfig{
		MinInterval: cfg.SaveMinInterval,
		Logger:      logger,
		Publisher:   router,
	})
	defer saver.Close()

	if swept > 0 {
		if err := saver.Flush(); err != nil {
			return fmt.Errorf("flush swept state: %w", err)
		}
	}

	stop := make(chan struct{})
	go hub.RunHeartbeatSweeper(stop)
	defer close(stop)

	wsHandler := ws.NewHandler(hub, accounts, ws.HandlerConfig{
		Logger:    stdLogger,
		Publisher: router,
	})
	handler := servernet.NewHTTPHandler(hub, accounts, wsHandler, servernet.HTTPHandlerConfig{
		Logger:      stdLogger,
		RouterStats: router.Stats,
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}
	logger.Printf("server listening on %s", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown: %v", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	// The one save that must not be skipped.
	if err := saver.Flush(); err != nil {
		return fmt.Errorf("final state flush: %w", err)
	}
	return nil
}

func buildRouter(cfg envConfig) (*logging.Router, error) {
	logConfig := logging.DefaultConfig()
	logConfig.EnabledSinks = cfg.LogSinks

	sinks := make([]logging.NamedSink, 0, len(cfg.LogSinks))
	for _, name := range cfg.LogSinks {
		switch name {
		case "console":
			sinks = append(sinks, logging.NamedSink{Name: "console", Sink: loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console)})
		case "json":
			path := cfg.EventLogPath
			if path == "" {
				path = filepath.Join(cfg.DataDir, "events.ndjson")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create event log directory: %w", err)
			}
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open event log: %w", err)
			}
			sinks = append(sinks, logging.NamedSink{Name: "json", Sink: loggingSinks.NewJSON(file, logConfig.JSON.FlushInterval)})
		default:
			return nil, fmt.Errorf("unknown log sink %q", name)
		}
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logConfig, sinks)
	if err != nil {
		return nil, fmt.Errorf("construct logging router: %w", err)
	}
	return router, nil
}
