package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override, e.g. TWQ_CACHE_TTL_SEC.
// Keys derive from field names, so bare variables such as ENABLED or LEVEL
// never reach a section.
const EnvPrefix = "TWQ"

type Server struct {
	Port              string   `json:"port" yaml:"port" split_words:"true"`
	RequestTimeoutSec int      `json:"request_timeout_sec" yaml:"request_timeout_sec" split_words:"true"`
	Popular           []string `json:"popular" yaml:"popular" split_words:"true"`
}

// Source toggles one upstream and paces calls to it.
type Source struct {
	Enabled       bool   `json:"enabled" yaml:"enabled" split_words:"true"`
	BaseURL       string `json:"base_url" yaml:"base_url" split_words:"true"`
	MinIntervalMs int    `json:"min_interval_ms" yaml:"min_interval_ms" split_words:"true"`
	Burst         int    `json:"burst" yaml:"burst" split_words:"true"`
}

type Providers struct {
	TimeoutSec int  `json:"timeout_sec" yaml:"timeout_sec" split_words:"true"`
	Coalesce   bool `json:"coalesce" yaml:"coalesce" split_words:"true"`

	TWSE         Source `json:"twse" yaml:"twse" split_words:"true"`
	IndexChannel string `json:"index_channel" yaml:"index_channel" split_words:"true"`

	Yahoo         Source `json:"yahoo" yaml:"yahoo" split_words:"true"`
	FillFromQuote bool   `json:"fill_from_quote" yaml:"fill_from_quote" split_words:"true"`

	TWSEDaily Source `json:"twse_daily" yaml:"twse_daily" split_words:"true"`
	Fugle     Source `json:"fugle" yaml:"fugle" split_words:"true"`
}

type Cache struct {
	// Backend is "file" or "memory".
	Backend  string `json:"backend" yaml:"backend" split_words:"true"`
	Dir      string `json:"dir" yaml:"dir" split_words:"true"`
	TTLSec   int    `json:"ttl_sec" yaml:"ttl_sec" split_words:"true"`
	MaxItems int    `json:"max_items" yaml:"max_items" split_words:"true"`
}

// Names is injected into the name chain and the web layer.
type Names struct {
	Table  map[string]string `json:"table" yaml:"table" ignored:"true"`
	Quirks map[string]string `json:"quirks" yaml:"quirks" ignored:"true"`
}

type Log struct {
	Level  string `json:"level" yaml:"level" split_words:"true"`
	Format string `json:"format" yaml:"format" split_words:"true"`
	// File enables a rotating log file next to stderr output.
	File       string `json:"file" yaml:"file" split_words:"true"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" split_words:"true"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" split_words:"true"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" split_words:"true"`
}

type Database struct {
	// DSN selects Postgres; empty keeps everything in memory.
	DSN               string `json:"dsn" yaml:"dsn" split_words:"true"`
	ConnectTimeoutSec int    `json:"connect_timeout_sec" yaml:"connect_timeout_sec" split_words:"true"`
}

type Telegram struct {
	Token string `json:"token" yaml:"token" split_words:"true"`
	Debug bool   `json:"debug" yaml:"debug" split_words:"true"`
}

type Config struct {
	Server    Server    `json:"server" yaml:"server" split_words:"true"`
	Providers Providers `json:"providers" yaml:"providers" split_words:"true"`
	Cache     Cache     `json:"cache" yaml:"cache" split_words:"true"`
	Names     Names     `json:"names" yaml:"names" ignored:"true"`
	Log       Log       `json:"log" yaml:"log" split_words:"true"`
	Database  Database  `json:"database" yaml:"database" split_words:"true"`
	Telegram  Telegram  `json:"telegram" yaml:"telegram" split_words:"true"`
}

func Default() Config {
	return Config{
		Server: Server{
			Port:              "8080",
			Popular:           []string{"2330", "0050", "0056", "00878", "00919", "006208", "2317", "2454"},
		},
		Providers: Providers{
			TimeoutSec:    15,
			TWSE:          Source{Enabled: true, BaseURL: "https://mis.twse.com.tw", MinIntervalMs: 500, Burst: 3},
			IndexChannel:  "tse_FRMSA.tw|otc_FRMSA.tw",
			Yahoo:         Source{Enabled: true, BaseURL: "https://query1.finance.yahoo.com", Burst: 1},
			FillFromQuote: true,
			TWSEDaily:     Source{Enabled: true, BaseURL: "https://www.twse.com.tw", Burst: 1},
			Fugle:         Source{Enabled: true, BaseURL: "https://api.fugle.tw", Burst: 1},
		},
		Cache: Cache{Backend: "file", Dir: "cache", TTLSec: 300, MaxItems: 10000},
		Names: Names{
			Table: map[string]string{
				"2330":   "台積電",
				"2317":   "鴻海",
				"2454":   "聯發科",
				"0050":   "元大台灣50",
				"0056":   "元大高股息",
				"006208": "富邦台50",
				"00878":  "國泰永續高股息",
				"00919":  "群益台灣精選高息",
			},
			Quirks: map[string]string{
				"Taiwan Semiconductor Manufacturing Company Limited": "台積電",
				"TAIWAN SEMICONDUCTOR MANUFACTUR":                    "台積電",
			},
		},
		Log:      Log{Level: "info", Format: "console", MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 14},
		Database: Database{ConnectTimeoutSec: 30},
	}
}

// Load builds the config from defaults, then the file at path (JSON or YAML
// by extension), then a .env file, then TWQ_* environment variables. An
// empty path falls back to config.json or config.yaml in the working dir.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

// applyEnv overlays TWQ_* variables; unset variables keep the current value.
func applyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("env config: %w", err)
	}
	// platform-assigned port wins over everything
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.Database.DSN == "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" && cfg.Telegram.Token == "" {
		cfg.Telegram.Token = v
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Cache.Backend {
	case "file", "memory":
	default:
		return fmt.Errorf("cache backend %q: want file or memory", c.Cache.Backend)
	}
	if c.Cache.Backend == "file" && c.Cache.Dir == "" {
		return errors.New("cache dir is required for the file backend")
	}
	if c.Cache.TTLSec < 0 {
		return fmt.Errorf("cache ttl %d must not be negative", c.Cache.TTLSec)
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// requestSlack covers rendering and cache writes on top of upstream calls.
const requestSlack = 5 * time.Second

// RequestTimeout bounds one page request. Unset, it covers the worst case:
// every enabled quote source plus the TWSE and Yahoo name lookups, each
// running to the provider timeout.
func (c Config) RequestTimeout() time.Duration {
	if c.Server.RequestTimeoutSec > 0 {
		return seconds(c.Server.RequestTimeoutSec)
	}
	p := c.Providers
	calls := 0
	for _, s := range []Source{p.TWSE, p.Yahoo, p.TWSEDaily, p.Fugle, p.TWSE, p.Yahoo} {
		if s.Enabled {
			calls++
		}
	}
	return time.Duration(calls)*c.ProviderTimeout() + requestSlack
}

func (c Config) ProviderTimeout() time.Duration { return seconds(c.Providers.TimeoutSec) }
func (c Config) CacheTTL() time.Duration        { return seconds(c.Cache.TTLSec) }
func (c Config) ConnectTimeout() time.Duration  { return seconds(c.Database.ConnectTimeoutSec) }

// MinInterval is the pacing gap for one source.
func (s Source) MinInterval() time.Duration { return time.Duration(s.MinIntervalMs) * time.Millisecond }
