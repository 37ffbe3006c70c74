package config

import (
	"fmt"
	"net/url"
	"time"
)

const (
	StorePebble   = "pebble"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	DedupCorrelation = "correlation"
	DedupContent     = "content"

	DefaultDedupWindow       = 10 * time.Second
	DefaultMessageCacheLimit = 200
)

type Config struct {
	BrokerURL         string
	APIURL            string
	StoreBackend      string
	DataPath          string
	DatabaseDSN       string
	RedisAddr         string
	StorageQuota      int64
	DedupStrategy     string
	DedupWindow       time.Duration
	MessageCacheLimit int
	DebugAddr         string
}

// Params are the raw, unvalidated configuration values.
type Params struct {
	BrokerURL         string
	APIURL            string
	StoreBackend      string
	DataPath          string
	DatabaseDSN       string
	RedisAddr         string
	StorageQuota      int64
	DedupStrategy     string
	DedupWindow       time.Duration
	MessageCacheLimit int
	DebugAddr         string
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("missing host in %q", raw)
			}
			return nil
		}
	}
	return fmt.Errorf("unsupported scheme %q", u.Scheme)
}

func NewConfig(p Params) (*Config, error) {
	if p.BrokerURL == "" {
		return nil, fmt.Errorf("broker URL cannot be empty")
	}
	if err := validateURL(p.BrokerURL, "ws", "wss"); err != nil {
		return nil, fmt.Errorf("broker URL: %w", err)
	}
	if p.APIURL == "" {
		return nil, fmt.Errorf("API URL cannot be empty")
	}
	if err := validateURL(p.APIURL, "http", "https"); err != nil {
		return nil, fmt.Errorf("API URL: %w", err)
	}

	switch p.StoreBackend {
	case "", StorePebble:
		p.StoreBackend = StorePebble
		if p.DataPath == "" {
			return nil, fmt.Errorf("data path cannot be empty for the %s store", StorePebble)
		}
	case StorePostgres:
		if p.DatabaseDSN == "" {
			return nil, fmt.Errorf("database DSN cannot be empty for the %s store", StorePostgres)
		}
	case StoreRedis:
		if p.RedisAddr == "" {
			return nil, fmt.Errorf("redis address cannot be empty for the %s store", StoreRedis)
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", p.StoreBackend)
	}

	switch p.DedupStrategy {
	case "":
		p.DedupStrategy = DedupCorrelation
	case DedupCorrelation, DedupContent:
	default:
		return nil, fmt.Errorf("unknown dedup strategy %q", p.DedupStrategy)
	}

	if p.DedupWindow < 0 {
		return nil, fmt.Errorf("dedup window cannot be negative")
	}
	if p.DedupWindow == 0 {
		p.DedupWindow = DefaultDedupWindow
	}
	if p.MessageCacheLimit < 0 {
		return nil, fmt.Errorf("message cache limit cannot be negative")
	}
	if p.MessageCacheLimit == 0 {
		p.MessageCacheLimit = DefaultMessageCacheLimit
	}
	if p.StorageQuota < 0 {
		return nil, fmt.Errorf("storage quota cannot be negative")
	}

	return &Config{
		BrokerURL:         p.BrokerURL,
		APIURL:            p.APIURL,
		StoreBackend:      p.StoreBackend,
		DataPath:          p.DataPath,
		DatabaseDSN:       p.DatabaseDSN,
		RedisAddr:         p.RedisAddr,
		StorageQuota:      p.StorageQuota,
		DedupStrategy:     p.DedupStrategy,
		DedupWindow:       p.DedupWindow,
		MessageCacheLimit: p.MessageCacheLimit,
		DebugAddr:         p.DebugAddr,
	}, nil
}
