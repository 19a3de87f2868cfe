// Package viewer serves the single-page scatter plot of a dataset table.
package viewer

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/oarkflow/xid"

	"github.com/oarkflow/clusterviz/pkg/config"
	"github.com/oarkflow/clusterviz/pkg/history"
	"github.com/oarkflow/clusterviz/pkg/metrics"
	"github.com/oarkflow/clusterviz/pkg/table"
)

const (
	UpdatePath = "/_dash-update-component"
	echartsURL = "https://go-echarts.github.io/go-echarts-assets/assets/echarts.min.js"
)

//go:embed templates/index.html
var templates embed.FS

var page = template.Must(template.ParseFS(templates, "templates/index.html"))

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHistory exposes recent generator runs under /api/runs.
func WithHistory(store *history.Store) Option {
	return func(s *Server) { s.history = store }
}

type Server struct {
	cfg     config.Viewer
	table   *table.Table
	columns []string
	deflt   string
	log     *slog.Logger
	metrics *metrics.Metrics
	history *history.Store
	app     *fiber.App
}

// New builds the fiber app serving t. The default column falls back to the
// first label column when the configured one is absent.
func New(cfg config.Viewer, t *table.Table, log *slog.Logger, opts ...Option) (*Server, error) {
	columns := t.LabelColumns()
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: table has no label columns", table.ErrMalformed)
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Server{cfg: cfg, table: t, columns: columns, deflt: columns[0], log: log}
	for _, c := range columns {
		if c == cfg.DefaultColumn {
			s.deflt = c
		}
	}
	if s.deflt != cfg.DefaultColumn {
		log.Warn("default column not in table", "column", cfg.DefaultColumn, "using", s.deflt)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics != nil {
		s.metrics.DatasetRows.Set(float64(t.Len()))
	}
	s.app = s.routes()
	return s, nil
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) routes() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               s.cfg.Name,
		ReadTimeout:           time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(s.cfg.WriteTimeout) * time.Second,
		IdleTimeout:           time.Duration(s.cfg.IdleTimeout) * time.Second,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		Output: os.Stdout,
	}))
	app.Use(compress.New())

	if s.cfg.HealthCheck.Enabled {
		path := s.cfg.HealthCheck.Path
		if path == "" {
			path = "/health"
		}
		app.Get(path, s.health)
	}
	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}
	app.Get("/", s.index)
	app.Post(UpdatePath, s.update)
	app.Get("/api/runs", s.runs)
	return app
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status":  "ok",
		"rows":    s.table.Len(),
		"columns": s.columns,
	})
}

func (s *Server) index(c *fiber.Ctx) error {
	fig, err := s.figure(s.deflt)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	err = page.Execute(&buf, map[string]any{
		"Title":      s.cfg.Name,
		"EchartsURL": echartsURL,
		"Columns":    s.columns,
		"Selected":   s.deflt,
		"Figure":     fig,
		"UpdatePath": UpdatePath,
	})
	if err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

type updateRequest struct {
	Value string `json:"value"`
}

// update swaps the figure for the column picked in the dropdown.
func (s *Server) update(c *fiber.Ctx) error {
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "traceId": c.Locals("requestid")})
	}
	fig, err := s.figure(req.Value)
	if errors.Is(err, ErrUnknownColumn) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": err.Error(), "traceId": c.Locals("requestid")})
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"figure": fig})
}

func (s *Server) figure(column string) (Figure, error) {
	start := time.Now()
	fig, err := BuildFigure(s.table, column)
	if s.metrics != nil {
		if err != nil {
			s.metrics.RenderErrors.Inc()
		} else {
			s.metrics.ObserveRender(column, time.Since(start))
		}
	}
	if err != nil {
		s.log.Debug("figure rejected", "column", column, "error", err)
		return nil, err
	}
	return fig, nil
}

func (s *Server) runs(c *fiber.Ctx) error {
	if s.history == nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "run history is not enabled"})
	}
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit < 1 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a positive integer"})
	}
	runs, err := s.history.Runs(c.UserContext(), limit)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error(), "action": "list runs"})
	}
	return c.JSON(fiber.Map{"records": runs, "meta": fiber.Map{"count": len(runs), "traceId": c.Locals("requestid")}})
}

// Run listens on the configured address until ctx is done, then drains
// connections and shuts down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("viewer listening", "address", s.cfg.Address, "rows", s.table.Len(), "columns", len(s.columns))
		errCh <- s.app.Listen(s.cfg.Address)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.log.Info("draining viewer connections and shutting down")
	if err := s.app.Shutdown(); err != nil {
		return err
	}
	return <-errCh
}
