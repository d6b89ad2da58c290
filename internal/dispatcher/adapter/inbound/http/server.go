package http_handler

import (
	"context"
	"time"

	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/adapter/outbound/telemetry"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/domain"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/service"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type Server struct {
	app        *fiber.App
	pub        *domain.Publisher
	dispatcher *service.Dispatcher
	recorder   *telemetry.Recorder
}

func NewServer(pub *domain.Publisher, dispatcher *service.Dispatcher, recorder *telemetry.Recorder) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{
		app:        app,
		pub:        pub,
		dispatcher: dispatcher,
		recorder:   recorder,
	}

	// Routes
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/status", s.handleStatus)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.recorder.Handler()))
}

func (s *Server) Start(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown()
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	table := s.pub.Snapshot()
	stats := s.dispatcher.Stats()

	nodes := make([]fiber.Map, 0, table.Len())
	for _, id := range table.NodeIDs() {
		st, _ := table.State(id)
		nodes = append(nodes, fiber.Map{
			"node":           st.NodeID,
			"weight":         st.Weight,
			"p_faulty":       st.PFaulty,
			"has_prediction": st.HasPrediction,
			"requests":       stats.PerNode[st.NodeID],
		})
	}

	perMode := make(map[string]uint64, len(stats.PerMode))
	for m, n := range stats.PerMode {
		perMode[string(m)] = n
	}

	return c.JSON(fiber.Map{
		"mode":             string(table.Mode()),
		"table_built_at":   table.BuiltAt().Format(time.RFC3339),
		"nodes":            nodes,
		"requests_by_mode": perMode,
		"failed_requests":  stats.Failures,
	})
}
