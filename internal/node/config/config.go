package config

import (
	"log"
	"os"
	"path/filepath"

	"github.com/anthanhphan/gosdk/conflux"
	"github.com/anthanhphan/gosdk/logger"
)

// Config holds node simulator configuration
type Config struct {
	Server ServerConfig  `json:"server" yaml:"server"`
	Gossip GossipConfig  `json:"gossip" yaml:"gossip"`
	Sim    SimConfig     `json:"sim" yaml:"sim"`
	Logger logger.Config `json:"logger" yaml:"logger"`
}

type ServerConfig struct {
	NodeID   string `json:"node_id" yaml:"node_id"`
	Hostname string `json:"hostname" yaml:"hostname"`
	Port     int    `json:"port" yaml:"port"`
}

type GossipConfig struct {
	Port  int      `json:"port" yaml:"port"`
	Seeds []string `json:"seeds" yaml:"seeds"`
}

// SimConfig tunes the fault-behavior simulation.
type SimConfig struct {
	FaultRampWindowSec int     `json:"fault_ramp_window_sec" yaml:"fault_ramp_window_sec"`
	DiurnalPeriodSec   int     `json:"diurnal_period_sec" yaml:"diurnal_period_sec"`
	WorkScale          float64 `json:"work_scale" yaml:"work_scale"`
	MemoryResetWindow  uint64  `json:"memory_reset_window" yaml:"memory_reset_window"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			NodeID:   "node-1",
			Hostname: "127.0.0.1",
			Port:     8000,
		},
		Gossip: GossipConfig{
			Port: 7946,
		},
		Sim: SimConfig{
			FaultRampWindowSec: 600,
			DiurnalPeriodSec:   60,
			WorkScale:          1.0,
			MemoryResetWindow:  1000,
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
		configPath = filepath.Join("internal", "node", "config", env+".yaml")
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

	// NODE_ID from the environment wins: one config file serves a whole
	// containerized population.
	if id := os.Getenv("NODE_ID"); id != "" {
		parsedCfg.Server.NodeID = id
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
