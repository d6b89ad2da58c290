package http_handler

import (
	"context"
	"fmt"

	"github.com/anthanhphan/go-byzantine-lb/internal/node/adapter/outbound/telemetry"
	"github.com/anthanhphan/go-byzantine-lb/internal/node/service"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type Server struct {
	app      *fiber.App
	engine   *service.Engine
	recorder *telemetry.Recorder
	nodeID   string
}

func NewServer(nodeID string, engine *service.Engine, recorder *telemetry.Recorder) *Server {
	app := fiber.New(fiber.Config{
		// A delay fault stalls for ~7s; the server must not cut it short.
		ReadTimeout:           0,
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{
		app:      app,
		engine:   engine,
		recorder: recorder,
		nodeID:   nodeID,
	}

	// Routes
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/process", s.handleProcess)
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.recorder.Handler()))
}

func (s *Server) Start(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown()
}

func (s *Server) handleProcess(c *fiber.Ctx) error {
	out, err := s.engine.HandleRequest(c.Context())
	if err != nil {
		// Only the crash path lands here, and in a real run the process
		// has exited before this executes.
		return err
	}

	if out.Status != 200 {
		return c.Status(out.Status).JSON(fiber.Map{
			"node":   s.nodeID,
			"status": "error",
			"error":  "simulated internal error",
		})
	}

	return c.JSON(fiber.Map{
		"node":         s.nodeID,
		"status":       "ok",
		"processed_in": fmt.Sprintf("%.3fs", out.Reported.Seconds()),
		"load_factor":  fmt.Sprintf("%.2f", out.LoadFactor),
		"request_num":  out.RequestNum,
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	h := s.engine.Health()

	return c.JSON(fiber.Map{
		"node":           h.NodeID,
		"status":         "healthy",
		"uptime_seconds": h.UptimeSeconds,
		"fault_type":     h.FaultClass,
		"total_requests": h.TotalRequests,
	})
}
