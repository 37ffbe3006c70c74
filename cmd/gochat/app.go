package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/gochat-client/internal/api"
	"github.com/npezzotti/gochat-client/internal/config"
	"github.com/npezzotti/gochat-client/internal/database"
	"github.com/npezzotti/gochat-client/internal/stats"
	"github.com/npezzotti/gochat-client/internal/storage"
	"github.com/rs/zerolog"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    database.Store
	cache    *storage.Cache
	api      *api.Client
	stats    *stats.StatsUpdater
	debugSrv *http.Server
	logFile  *os.File
}

// newApp builds the shared dependencies. Logs go to logOut unless a log
// file is configured.
func newApp(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := config.NewConfig(config.Params{
		BrokerURL:         flagBrokerURL,
		APIURL:            flagAPIURL,
		StoreBackend:      flagStore,
		DataPath:          flagDataPath,
		DatabaseDSN:       flagDSN,
		RedisAddr:         flagRedisAddr,
		StorageQuota:      flagStorageQuota,
		DedupStrategy:     flagDedup,
		DedupWindow:       flagDedupWindow,
		MessageCacheLimit: flagCacheLimit,
		DebugAddr:         flagDebugAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	a := &app{cfg: cfg}
	if flagLogFile != "" {
		f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		logOut = f
	}
	a.log, err = newLogger(logOut, flagLogLevel)
	if err != nil {
		a.Close()
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	a.store = database.WithQuota(store, cfg.StorageQuota)
	a.cache = storage.NewCache(a.store, a.log, cfg.MessageCacheLimit)
	a.api = api.NewClient(cfg.APIURL, a.log, nil)

	mux := http.NewServeMux()
	a.stats = stats.NewStatsUpdater(mux)
	stats.RegisterClientMetrics(a.stats)
	a.stats.Run()
	if cfg.DebugAddr != "" {
		a.debugSrv = startDebugServer(cfg.DebugAddr, mux, a.log)
	}

	return a, nil
}

func newLogger(out io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if f, ok := out.(*os.File); ok && (f == os.Stderr || f == os.Stdout) {
		out = zerolog.ConsoleWriter{Out: f, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

func openStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		s, err := database.NewPgStore(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreRedis:
		s, err := database.NewRedisStore(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := database.OpenPebbleStore(cfg.DataPath, nil)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func startDebugServer(addr string, mux *http.ServeMux, l zerolog.Logger) *http.Server {
	log := l.With().Str("component", "debug_server").Logger()
	h := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(mux)
	h = handlers.LoggingHandler(log, h)

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("serving debug vars")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("debug server stopped")
		}
	}()
	return srv
}

func (a *app) Close() {
	if a.debugSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.debugSrv.Shutdown(ctx); err != nil {
			a.log.Warn().Err(err).Msg("debug server shutdown")
		}
		cancel()
	}
	if a.stats != nil {
		a.stats.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close store")
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
