package ops

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"signaltrack/internal/model"
	"signaltrack/internal/model/enum"
)

// Duration reads YAML values such as "3s" or "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// FileConfig mirrors the YAML config layout.
type FileConfig struct {
	Feed      FeedConfig      `yaml:"feed"`
	Hub       HubConfig       `yaml:"hub"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Profiling ProfilingConfig `yaml:"profiling"`
}

// FeedConfig defines the upstream price feed.
type FeedConfig struct {
	Provider          string   `yaml:"provider"`
	URL               string   `yaml:"url"`
	Instruments       []string `yaml:"instruments"`
	ReconnectDelay    Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay Duration `yaml:"max_reconnect_delay"`
	BackoffFactor     float64  `yaml:"backoff_factor"`
	Jitter            float64  `yaml:"jitter"`
	HandshakeTimeout  Duration `yaml:"handshake_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
	PingInterval      Duration `yaml:"ping_interval"`
	SimulateInterval  Duration `yaml:"simulate_interval"`
}

// HubConfig defines per-subscriber queue behavior.
type HubConfig struct {
	BufferSize int    `yaml:"buffer_size"`
	Overflow   string `yaml:"overflow"`
}

// DatabaseConfig defines the signal store.
type DatabaseConfig struct {
	Driver          string   `yaml:"driver"`
	URL             string   `yaml:"url"`
	SQLitePath      string   `yaml:"sqlite_path"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// APIConfig defines the HTTP listener.
type APIConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

func (c APIConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ProfilingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ServerAddress string `yaml:"server_address"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	FileConfig
	Platform    enum.Platform
	Instruments []model.Instrument
}

// Default returns the configuration used when no file is given.
func Default() FileConfig {
	return FileConfig{
		Feed: FeedConfig{
			Provider:          "binance",
			URL:               "wss://fstream.binance.com/ws",
			Instruments:       []string{"BTCUSDT", "ETHUSDT"},
			ReconnectDelay:    Duration(time.Second),
			MaxReconnectDelay: Duration(30 * time.Second),
			BackoffFactor:     2,
			Jitter:            0.2,
			HandshakeTimeout:  Duration(10 * time.Second),
			IdleTimeout:       Duration(60 * time.Second),
			PingInterval:      Duration(20 * time.Second),
			SimulateInterval:  Duration(time.Second),
		},
		Hub: HubConfig{
			BufferSize: 256,
			Overflow:   "disconnect",
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		API: APIConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads an optional YAML file over the defaults, loads .env if present,
// applies environment overrides and validates the result.
func Load(path string) (Loaded, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return Loaded{}, err
	}
	return resolve(cfg)
}

func applyEnv(cfg *FileConfig, getenv func(string) string) error {
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := getenv("BINANCE_WS_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := getenv("FEED_PROVIDER"); v != "" {
		cfg.Feed.Provider = v
	}
	if v := getenv("FEED_INSTRUMENTS"); v != "" {
		cfg.Feed.Instruments = strings.Split(v, ",")
	}
	if v := getenv("API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("API_PORT is not a number: %q", v)
		}
		cfg.API.Port = port
	}
	return nil
}

func resolve(cfg FileConfig) (Loaded, error) {
	platform := enum.ParsePlatform(cfg.Feed.Provider)
	if !platform.IsAvailable() {
		return Loaded{}, fmt.Errorf("feed provider is unknown: %s", cfg.Feed.Provider)
	}
	if platform == enum.PlatformBinance && cfg.Feed.URL == "" {
		return Loaded{}, fmt.Errorf("feed url is empty")
	}
	if cfg.Feed.ReconnectDelay <= 0 {
		return Loaded{}, fmt.Errorf("feed reconnect_delay must be > 0")
	}
	if cfg.Feed.MaxReconnectDelay > 0 && cfg.Feed.MaxReconnectDelay < cfg.Feed.ReconnectDelay {
		return Loaded{}, fmt.Errorf("feed max_reconnect_delay must be >= reconnect_delay")
	}
	if cfg.Feed.Jitter < 0 || cfg.Feed.Jitter > 1 {
		return Loaded{}, fmt.Errorf("feed jitter must be within [0, 1]")
	}
	if cfg.Hub.BufferSize <= 0 {
		return Loaded{}, fmt.Errorf("hub buffer_size must be > 0")
	}
	if cfg.Hub.Overflow != "disconnect" && cfg.Hub.Overflow != "drop_oldest" {
		return Loaded{}, fmt.Errorf("hub overflow must be disconnect or drop_oldest: %s", cfg.Hub.Overflow)
	}
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.URL == "" {
			return Loaded{}, fmt.Errorf("database url is empty")
		}
	case "sqlite", "memory":
	default:
		return Loaded{}, fmt.Errorf("database driver is unknown: %s", cfg.Database.Driver)
	}
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return Loaded{}, fmt.Errorf("api port out of range: %d", cfg.API.Port)
	}

	instruments := make([]model.Instrument, 0, len(cfg.Feed.Instruments))
	seen := make(map[model.Instrument]struct{}, len(cfg.Feed.Instruments))
	for _, raw := range cfg.Feed.Instruments {
		ins, err := model.NormalizeInstrument(raw)
		if err != nil {
			return Loaded{}, fmt.Errorf("invalid instrument %q: %w", raw, err)
		}
		if _, dup := seen[ins]; dup {
			continue
		}
		seen[ins] = struct{}{}
		instruments = append(instruments, ins)
	}

	return Loaded{
		FileConfig:  cfg,
		Platform:    platform,
		Instruments: instruments,
	}, nil
}
