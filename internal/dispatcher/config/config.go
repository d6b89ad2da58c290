package config

import (
	"log"
	"os"
	"path/filepath"

	"github.com/anthanhphan/gosdk/conflux"
	"github.com/anthanhphan/gosdk/logger"
)

// Config holds dispatcher configuration
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Gossip     GossipConfig     `json:"gossip" yaml:"gossip"`
	Nodes      []NodeConfig     `json:"nodes" yaml:"nodes"`
	Prometheus PrometheusConfig `json:"prometheus" yaml:"prometheus"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier"`
	Trust      TrustConfig      `json:"trust" yaml:"trust"`
	Dispatch   DispatchConfig   `json:"dispatch" yaml:"dispatch"`
	Logger     logger.Config    `json:"logger" yaml:"logger"`
}

type ServerConfig struct {
	Hostname string `json:"hostname" yaml:"hostname"`
	Port     int    `json:"port" yaml:"port"`
}

type GossipConfig struct {
	Port  int      `json:"port" yaml:"port"`
	Seeds []string `json:"seeds" yaml:"seeds"`
}

// NodeConfig is a static population entry, used when gossip discovery is
// not configured.
type NodeConfig struct {
	ID   string `json:"id" yaml:"id"`
	Addr string `json:"addr" yaml:"addr"`
}

type PrometheusConfig struct {
	Address   string `json:"address" yaml:"address"`
	Window    string `json:"window" yaml:"window"`
	TimeoutMS int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type ClassifierConfig struct {
	ModelDir string `json:"model_dir" yaml:"model_dir"`
}

type TrustConfig struct {
	RefreshIntervalMS int     `json:"refresh_interval_ms" yaml:"refresh_interval_ms"`
	NodeTimeoutMS     int     `json:"node_timeout_ms" yaml:"node_timeout_ms"`
	BandLow           float64 `json:"band_low" yaml:"band_low"`
	BandHigh          float64 `json:"band_high" yaml:"band_high"`
}

type DispatchConfig struct {
	IntervalMS       int `json:"interval_ms" yaml:"interval_ms"`
	RequestTimeoutMS int `json:"request_timeout_ms" yaml:"request_timeout_ms"`
	Workers          int `json:"workers" yaml:"workers"`
	QueueSize        int `json:"queue_size" yaml:"queue_size"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Hostname: "127.0.0.1",
			Port:     9000,
		},
		Gossip: GossipConfig{
			Port: 7946,
		},
		Prometheus: PrometheusConfig{
			Address:   "http://127.0.0.1:9090",
			Window:    "1m",
			TimeoutMS: 2000,
		},
		Classifier: ClassifierConfig{
			ModelDir: "models",
		},
		Trust: TrustConfig{
			RefreshIntervalMS: 5000,
			NodeTimeoutMS:     3000,
			BandLow:           0.20,
			BandHigh:          0.60,
		},
		Dispatch: DispatchConfig{
			IntervalMS:       500,
			RequestTimeoutMS: 5000,
			Workers:          8,
			QueueSize:        64,
		},
		Logger: logger.Config{
			LogLevel:    logger.LevelInfo,
			LogEncoding: logger.EncodingJSON,
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	configPath := path
	if configPath == "" {
		env := os.Getenv("ENV")
		if env == "" {
			env = "local"
		}
		configPath = filepath.Join("internal", "dispatcher", "config", env+".yaml")
	}

	cfg := DefaultConfig()

	parsedCfg, err := conflux.ParseConfig(configPath, cfg)
	if err != nil {
		log.Printf("Config file not found or failed to parse, using defaults if file not specified. Path: %s, Error: %v", configPath, err)
		if path != "" {
			return nil, err
		}
		parsedCfg = cfg
	}

	return parsedCfg, nil
}

// MustLoad loads configuration or exits on error
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}
