package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	httpHandler "github.com/anthanhphan/go-byzantine-lb/internal/node/adapter/inbound/http"
	"github.com/anthanhphan/go-byzantine-lb/internal/node/adapter/outbound/telemetry"
	"github.com/anthanhphan/go-byzantine-lb/internal/node/config"
	"github.com/anthanhphan/go-byzantine-lb/internal/node/domain"
	"github.com/anthanhphan/go-byzantine-lb/internal/node/service"
	"github.com/anthanhphan/go-byzantine-lb/pkg/gossip"
	"github.com/anthanhphan/gosdk/logger"
)

type App struct {
	cfg    *config.Config
	server *httpHandler.Server
	gossip *gossip.Adapter
	engine *service.Engine
}

func New(configPath string) (*App, error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logger.InitLogger(&cfg.Logger)

	nodeID := cfg.Server.NodeID

	// 3. Fault assignment, read once from the environment
	faultClass, err := domain.ParseFaultClass(os.Getenv(domain.FaultEnvKey(nodeID)))
	if err != nil {
		return nil, fmt.Errorf("invalid fault assignment for %s: %w", nodeID, err)
	}
	logger.Infow("Node initialized", "node", nodeID, "fault_class", faultClass.String())

	// 4. Telemetry + Fault Engine
	recorder := telemetry.NewRecorder(nodeID)
	engine := service.NewEngine(nodeID, faultClass, service.Config{
		FaultRampWindow:   time.Duration(cfg.Sim.FaultRampWindowSec) * time.Second,
		DiurnalPeriod:     time.Duration(cfg.Sim.DiurnalPeriodSec) * time.Second,
		WorkScale:         cfg.Sim.WorkScale,
		MemoryResetWindow: cfg.Sim.MemoryResetWindow,
		CrashHook: func() {
			os.Exit(1)
		},
	}, recorder)

	// 5. Gossip membership
	registry := gossip.NewRegistry()
	gossipAdapter, err := gossip.NewAdapter(nodeID, gossip.RoleNode, faultClass.String(),
		cfg.Server.Hostname, cfg.Gossip.Port, cfg.Server.Port, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to init gossip: %w", err)
	}

	// 6. HTTP surface
	server := httpHandler.NewServer(nodeID, engine, recorder)

	return &App{
		cfg:    cfg,
		server: server,
		gossip: gossipAdapter,
		engine: engine,
	}, nil
}

func (a *App) Run() error {
	// Join the simulation cluster
	if len(a.cfg.Gossip.Seeds) > 0 {
		var joinErr error
		for i := 0; i < 5; i++ {
			joinErr = a.gossip.Join(a.cfg.Gossip.Seeds)
			if joinErr == nil {
				break
			}
			logger.Warnw("Failed to join cluster, retrying...", "attempt", i+1, "error", joinErr.Error())
			time.Sleep(2 * time.Second)
		}
		if joinErr != nil {
			logger.Errorw("Failed to join cluster after retries", "error", joinErr.Error())
		}
	}

	addr := net.JoinHostPort(a.cfg.Server.Hostname, strconv.Itoa(a.cfg.Server.Port))
	logger.Infow("Node starting",
		"node", a.cfg.Server.NodeID,
		"addr", addr,
		"gossip", a.cfg.Gossip.Port,
		"fault_class", a.engine.FaultClass().String())

	serverErrCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(addr); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case sig := <-stop:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-serverErrCh:
		runErr = fmt.Errorf("HTTP server failed: %w", err)
		logger.Errorw("Node HTTP server exited unexpectedly", "error", err.Error())
	}

	logger.Info("Shutting down node")
	if err := a.gossip.Leave(); err != nil {
		logger.Warnw("Gossip leave failed", "error", err.Error())
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		logger.Warnw("Server shutdown failed", "error", err.Error())
	}

	return runErr
}
