package api

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/amishk599/autoapply/internal/cycle"
	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/scheduler"
)

// Controller is the orchestrator surface the API exposes.
type Controller interface {
	Status() scheduler.Status
	Users() []string
	UserStats(ctx context.Context, userID string) (model.UserStats, error)
	AllUserStats(ctx context.Context) []model.UserStats
	Backlog(userID string) ([]model.ScoredJob, error)
	LastCycle(userID string) (*cycle.Summary, error)
	TriggerManualCycle(userID string) error
	RunManualCycle(ctx context.Context, userID string, mode cycle.Mode) (cycle.Summary, error)
	UpdateSearchQueries(userID string, queries []string) error
	RemoveUser(userID string)
}

// Server serves the control API over HTTP.
type Server struct {
	app    *fiber.App
	ctrl   Controller
	logger *slog.Logger
}

// NewServer builds the fiber app and registers every route.
func NewServer(ctrl Controller, logger *slog.Logger) *Server {
	s := &Server{ctrl: ctrl, logger: logger}
	s.app = fiber.New(fiber.Config{
		AppName:               "autoapply",
		DisableStartupMessage: true,
		Immutable:             true, // route params are kept past the request
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.logRequests)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/status", s.status)
	s.app.Get("/stats", s.allStats)
	s.app.Get("/users", s.users)
	s.app.Get("/users/:id/stats", s.userStats)
	s.app.Get("/users/:id/backlog", s.backlog)
	s.app.Get("/users/:id/cycle", s.lastCycle)
	s.app.Post("/users/:id/cycle", s.runCycle)
	s.app.Put("/users/:id/queries", s.updateQueries)
	s.app.Delete("/users/:id", s.removeUser)
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("control api listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("api request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
	)
	return err
}

// handleError renders every error as {"error": "..."}. Unknown users map
// to 404.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, model.ErrUserNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, scheduler.ErrStopping):
		code = fiber.StatusServiceUnavailable
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("api request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) status(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

func (s *Server) allStats(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.AllUserStats(c.UserContext()))
}

func (s *Server) users(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"users": s.ctrl.Users()})
}

func (s *Server) userStats(c *fiber.Ctx) error {
	st, err := s.ctrl.UserStats(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (s *Server) backlog(c *fiber.Ctx) error {
	jobs, err := s.ctrl.Backlog(c.Params("id"))
	if err != nil {
		return err
	}
	out := make([]backlogItem, 0, len(jobs))
	for _, sj := range jobs {
		out = append(out, backlogItem{
			Title:   sj.Job.Title,
			Company: sj.Job.Company,
			URL:     sj.Job.URL,
			Source:  sj.Job.Source,
			Score:   sj.Score,
		})
	}
	return c.JSON(fiber.Map{"user_id": c.Params("id"), "jobs": out})
}

type backlogItem struct {
	Title   string       `json:"title"`
	Company string       `json:"company"`
	URL     string       `json:"url"`
	Source  model.Source `json:"source"`
	Score   float64      `json:"score"`
}

func (s *Server) lastCycle(c *fiber.Ctx) error {
	sum, err := s.ctrl.LastCycle(c.Params("id"))
	if err != nil {
		return err
	}
	if sum == nil {
		return fiber.NewError(fiber.StatusNotFound, "no cycle has run for this user")
	}
	return c.JSON(sum)
}

// runCycle starts a manual cycle. With ?wait=true it blocks and returns
// the summary; ?mode=discover runs a discovery-only cycle.
func (s *Server) runCycle(c *fiber.Ctx) error {
	id := c.Params("id")
	mode := cycle.Mode(c.Query("mode", string(cycle.ModeApply)))
	if mode != cycle.ModeApply && mode != cycle.ModeDiscover {
		return fiber.NewError(fiber.StatusBadRequest, "mode must be apply or discover")
	}

	if !c.QueryBool("wait") {
		if mode != cycle.ModeApply {
			return fiber.NewError(fiber.StatusBadRequest, "discover cycles require wait=true")
		}
		if err := s.ctrl.TriggerManualCycle(id); err != nil {
			return err
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"user_id": id, "status": "started"})
	}

	sum, err := s.ctrl.RunManualCycle(c.UserContext(), id, mode)
	if err != nil {
		return err
	}
	return c.JSON(sum)
}

type queriesRequest struct {
	Queries []string `json:"queries"`
}

func (s *Server) updateQueries(c *fiber.Ctx) error {
	var req queriesRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	var queries []string
	for _, q := range req.Queries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "at least one query is required")
	}
	if err := s.ctrl.UpdateSearchQueries(c.Params("id"), queries); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user_id": c.Params("id"), "queries": queries})
}

func (s *Server) removeUser(c *fiber.Ctx) error {
	s.ctrl.RemoveUser(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}
