package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/npezzotti/gochat-client/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "gochat",
	Short:        "Terminal client for gochat rooms",
	SilenceUsage: true,
}

var (
	flagBrokerURL    string
	flagAPIURL       string
	flagStore        string
	flagDataPath     string
	flagDSN          string
	flagRedisAddr    string
	flagStorageQuota int64
	flagDedup        string
	flagDedupWindow  time.Duration
	flagCacheLimit   int
	flagDebugAddr    string
	flagLogFile      string
	flagLogLevel     string
)

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func defaultDataPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "gochat-data")
	}
	return filepath.Join(dir, "gochat")
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagBrokerURL, "broker-url", envOr("GOCHAT_BROKER_URL", "ws://localhost:3000/ws"), "broker websocket URL (env GOCHAT_BROKER_URL)")
	flags.StringVar(&flagAPIURL, "api-url", envOr("GOCHAT_API_URL", "http://localhost:3000/socketio/api"), "broker REST API base URL (env GOCHAT_API_URL)")
	flags.StringVar(&flagStore, "store", envOr("GOCHAT_STORE", config.StorePebble), "local store backend: pebble, postgres or redis (env GOCHAT_STORE)")
	flags.StringVar(&flagDataPath, "data-path", envOr("GOCHAT_DATA_PATH", defaultDataPath()), "directory for the pebble store (env GOCHAT_DATA_PATH)")
	flags.StringVar(&flagDSN, "dsn", os.Getenv("GOCHAT_DSN"), "postgres connection string for the postgres store (env GOCHAT_DSN)")
	flags.StringVar(&flagRedisAddr, "redis-addr", os.Getenv("GOCHAT_REDIS_ADDR"), "redis address for the redis store (env GOCHAT_REDIS_ADDR)")
	flags.Int64Var(&flagStorageQuota, "storage-quota", 5<<20, "local store quota in bytes, 0 for unlimited")
	flags.StringVar(&flagDedup, "dedup", envOr("GOCHAT_DEDUP", config.DedupCorrelation), "echo suppression strategy: correlation or content (env GOCHAT_DEDUP)")
	flags.DurationVar(&flagDedupWindow, "dedup-window", config.DefaultDedupWindow, "how long sent messages are remembered for echo suppression")
	flags.IntVar(&flagCacheLimit, "message-cache-limit", config.DefaultMessageCacheLimit, "messages cached per room")
	flags.StringVar(&flagDebugAddr, "debug-addr", os.Getenv("GOCHAT_DEBUG_ADDR"), "serve /debug/vars on this address (env GOCHAT_DEBUG_ADDR)")
	flags.StringVar(&flagLogFile, "log-file", os.Getenv("GOCHAT_LOG_FILE"), "append logs to this file (env GOCHAT_LOG_FILE)")
	flags.StringVar(&flagLogLevel, "log-level", envOr("GOCHAT_LOG_LEVEL", "info"), "log level (env GOCHAT_LOG_LEVEL)")

	rootCmd.AddCommand(profileCmd, roomsCmd, createCmd, joinCmd, leaveCmd, galleryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
