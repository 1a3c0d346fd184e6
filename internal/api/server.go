package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"imgfilter/internal/domain"
	"imgfilter/internal/scheduler"
	"imgfilter/internal/storage"
)

type Scheduler interface {
	Submit(req domain.Request) *scheduler.Future
	CancelSession(id domain.SessionID) int
	Ready() bool
	Stats() scheduler.Stats
}

type Settings interface {
	Current() domain.Settings
	Apply(u domain.SettingsUpdate) (domain.Settings, error)
}

// SettingsPublisher shares applied settings with other replicas.
type SettingsPublisher interface {
	Publish(ctx context.Context, st domain.Settings) error
}

type Server struct {
	echo      *echo.Echo
	scheduler Scheduler
	settings  Settings
	publisher SettingsPublisher
	repo      storage.VerdictRepository
	sse       *SSEBroker
	logger    *slog.Logger
}

type Option func(*Server)

func WithRepository(r storage.VerdictRepository) Option {
	return func(s *Server) { s.repo = r }
}

// WithBroker shares an event broker with other producers of verdict events.
func WithBroker(b *SSEBroker) Option {
	return func(s *Server) { s.sse = b }
}

func WithSettingsPublisher(p SettingsPublisher) Option {
	return func(s *Server) { s.publisher = p }
}

type classifyRequest struct {
	URL     string `json:"url"`
	Session string `json:"session"`
}

type StatsResponse struct {
	Scheduler scheduler.Stats `json:"scheduler"`
	Verdicts  *storage.Stats  `json:"verdicts,omitempty"`
	Listeners int             `json:"listeners"`
}

func NewServer(sched Scheduler, st Settings, logger *slog.Logger, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("http request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s := &Server{
		echo:      e,
		scheduler: sched,
		settings:  st,
		sse:       NewSSEBroker(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.routes()

	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.health)
	s.echo.POST("/api/classify", s.classify)
	s.echo.DELETE("/api/sessions/:id", s.endSession)
	s.echo.GET("/api/settings", s.getSettings)
	s.echo.PUT("/api/settings", s.putSettings)
	s.echo.GET("/api/stats", s.stats)
	s.echo.GET("/api/verdicts", s.getVerdicts)
	s.echo.GET("/api/events", s.events)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	if !s.scheduler.Ready() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "loading"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// classify waits for the verdict. A client that goes away stops waiting but
// the request stays scheduled; ending its session is what cancels it.
func (s *Server) classify(c echo.Context) error {
	var body classifyRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	body.URL = strings.TrimSpace(body.URL)
	if body.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url required"})
	}

	f := s.scheduler.Submit(domain.NewRequest(body.URL, domain.SessionID(body.Session)))
	c.Response().Header().Set("X-Request-ID", f.Request().ID)

	v, err := f.Wait(c.Request().Context())
	if errors.Is(err, context.Canceled) {
		s.logger.Debug("client left before verdict", "id", f.Request().ID)
		return nil
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) endSession(c echo.Context) error {
	id := domain.SessionID(c.Param("id"))
	n := s.scheduler.CancelSession(id)
	return c.JSON(http.StatusOK, map[string]any{"session": id, "cancelled": n})
}

func (s *Server) getSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.settings.Current())
}

func (s *Server) putSettings(c echo.Context) error {
	var u domain.SettingsUpdate
	if err := c.Bind(&u); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	if u.Empty() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no settings given"})
	}

	st, err := s.settings.Apply(u)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(c.Request().Context(), st); err != nil {
			s.logger.Error("publish settings", "error", err)
		}
	}

	return c.JSON(http.StatusOK, st)
}

func (s *Server) stats(c echo.Context) error {
	resp := StatsResponse{
		Scheduler: s.scheduler.Stats(),
		Listeners: s.sse.Clients(),
	}
	if s.repo != nil {
		st, err := s.repo.GetStats(c.Request().Context())
		if err != nil {
			s.logger.Error("verdict stats", "error", err)
		} else {
			resp.Verdicts = &st
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) getVerdicts(c echo.Context) error {
	if s.repo == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "verdict history disabled"})
	}

	ctx := c.Request().Context()

	if session := c.QueryParam("session"); session != "" {
		verdicts, err := s.repo.FindBySession(ctx, domain.SessionID(session))
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, verdicts)
	}

	limit := queryInt(c, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := max(queryInt(c, "offset", 0), 0)

	verdicts, err := s.repo.FindAll(ctx, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, verdicts)
}

func (s *Server) events(c echo.Context) error {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")

	ch := s.sse.Subscribe()
	defer s.sse.Unsubscribe(ch)

	fmt.Fprintf(c.Response(), ": ping\n\n")
	c.Response().Flush()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case msg := <-ch:
			fmt.Fprintf(c.Response(), "event: verdict\n")
			for _, line := range strings.Split(msg, "\n") {
				fmt.Fprintf(c.Response(), "data: %s\n", line)
			}
			fmt.Fprintf(c.Response(), "\n")
			c.Response().Flush()
		}
	}
}

func queryInt(c echo.Context, name string, fallback int) int {
	v := c.QueryParam(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
