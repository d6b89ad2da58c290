package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	httpHandler "github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/adapter/inbound/http"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/adapter/outbound/classifier"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/adapter/outbound/directory"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/adapter/outbound/nodeclient"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/adapter/outbound/promquery"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/adapter/outbound/telemetry"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/config"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/domain"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/port"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/service"
	"github.com/anthanhphan/go-byzantine-lb/pkg/gossip"
	"github.com/anthanhphan/go-byzantine-lb/pkg/resilience"
	"github.com/anthanhphan/gosdk/logger"
)

type App struct {
	cfg        *config.Config
	server     *httpHandler.Server
	gossip     *gossip.Adapter
	trust      *service.TrustEngine
	dispatcher *service.Dispatcher
	pool       *resilience.WorkerPool
}

func New(configPath string) (*App, error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logger.InitLogger(&cfg.Logger)

	// 3. Node discovery: gossip when seeds are configured, otherwise the
	// static population from the config file.
	var nodeDirectory port.NodeDirectory
	var gossipAdapter *gossip.Adapter
	if len(cfg.Gossip.Seeds) > 0 {
		registry := gossip.NewRegistry()
		gossipAdapter, err = gossip.NewAdapter("dispatcher", gossip.RoleDispatcher, "",
			cfg.Server.Hostname, cfg.Gossip.Port, cfg.Server.Port, registry)
		if err != nil {
			return nil, fmt.Errorf("failed to init gossip: %w", err)
		}
		nodeDirectory = directory.NewGossip(registry)
	} else {
		staticNodes := make([]domain.NodeInfo, 0, len(cfg.Nodes))
		for _, n := range cfg.Nodes {
			staticNodes = append(staticNodes, domain.NodeInfo{ID: n.ID, Addr: n.Addr})
		}
		nodeDirectory = directory.NewStatic(staticNodes)
		logger.Infow("Using static node population", "nodes", len(staticNodes))
	}

	// 4. Telemetry source
	window, err := time.ParseDuration(cfg.Prometheus.Window)
	if err != nil {
		return nil, fmt.Errorf("invalid prometheus window %q: %w", cfg.Prometheus.Window, err)
	}
	metrics, err := promquery.NewClient(promquery.Config{
		Address: cfg.Prometheus.Address,
		Window:  window,
		Timeout: time.Duration(cfg.Prometheus.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init prometheus client: %w", err)
	}

	// 5. Classifier. Missing artifacts degrade to round-robin rather than
	// refusing to start.
	var clf port.Classifier
	local, err := classifier.NewLocal(cfg.Classifier.ModelDir)
	switch {
	case err == nil:
		clf = local
		logger.Infow("Classifier loaded", "dir", cfg.Classifier.ModelDir)
	case errors.Is(err, classifier.ErrArtifactsMissing):
		logger.Warnw("Classifier artifacts not found, starting degraded", "dir", cfg.Classifier.ModelDir)
	default:
		return nil, fmt.Errorf("failed to load classifier: %w", err)
	}

	// 6. Core services
	recorder := telemetry.NewRecorder()
	pool := resilience.NewWorkerPool(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize)
	pub := domain.NewPublisher()

	trust := service.NewTrustEngine(service.TrustConfig{
		RefreshInterval: time.Duration(cfg.Trust.RefreshIntervalMS) * time.Millisecond,
		NodeTimeout:     time.Duration(cfg.Trust.NodeTimeoutMS) * time.Millisecond,
		BandLow:         cfg.Trust.BandLow,
		BandHigh:        cfg.Trust.BandHigh,
	}, metrics, clf, nodeDirectory, pool, pub, recorder)

	dispatcher := service.NewDispatcher(service.DispatchConfig{
		Interval:       time.Duration(cfg.Dispatch.IntervalMS) * time.Millisecond,
		RequestTimeout: time.Duration(cfg.Dispatch.RequestTimeoutMS) * time.Millisecond,
	}, pub, nodeDirectory,
		nodeclient.NewClient(time.Duration(cfg.Dispatch.RequestTimeoutMS)*time.Millisecond),
		pool, recorder)

	// 7. HTTP surface
	server := httpHandler.NewServer(pub, dispatcher, recorder)

	return &App{
		cfg:        cfg,
		server:     server,
		gossip:     gossipAdapter,
		trust:      trust,
		dispatcher: dispatcher,
		pool:       pool,
	}, nil
}

func (a *App) Run() error {
	// Join the simulation cluster
	if a.gossip != nil {
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.trust.Run(ctx)
	go a.dispatcher.Run(ctx)

	addr := net.JoinHostPort(a.cfg.Server.Hostname, strconv.Itoa(a.cfg.Server.Port))
	logger.Infow("Dispatcher starting", "addr", addr)

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
		logger.Errorw("Dispatcher HTTP server exited unexpectedly", "error", err.Error())
	}

	logger.Info("Shutting down dispatcher")
	cancel()
	a.pool.Close()
	a.pool.Wait()

	if a.gossip != nil {
		if err := a.gossip.Leave(); err != nil {
			logger.Warnw("Gossip leave failed", "error", err.Error())
		}
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		logger.Warnw("Server shutdown failed", "error", err.Error())
	}

	return runErr
}
