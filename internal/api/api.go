// Package api serves the kiosk REST API consumed by the ordering screen.
//
// Routes:
//
//	POST /face-recognition      estimate the customer's age (JPEG body or webcam)
//	POST /start-voice-chat      start (or restart) the voice session
//	POST /stop-voice-chat       stop the voice session
//	GET  /voice-chat/status     session flags and dialogue phase
//	POST /voice-chat/action     queue a screen command
//	GET  /voice-chat/commands   drain queued screen commands
//	GET  /menu/search?q=        menu items matching a query
//	GET  /healthz, /readyz      probes
//	GET  /metrics               Prometheus exposition
//
// Application failures are reported in the body with success=false and a
// Korean message the screen can show; only malformed requests and missing
// subsystems change the HTTP status.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/MrWong99/kioskvoice/internal/age"
	"github.com/MrWong99/kioskvoice/internal/app"
	"github.com/MrWong99/kioskvoice/internal/commands"
	"github.com/MrWong99/kioskvoice/internal/health"
	"github.com/MrWong99/kioskvoice/internal/menu"
	"github.com/MrWong99/kioskvoice/internal/observe"
)

// Defaults.
const (
	// DefaultStopTimeout bounds how long /stop-voice-chat waits for the loop.
	DefaultStopTimeout = 3 * time.Second

	// MaxImageBytes caps the /face-recognition body.
	MaxImageBytes = 8 << 20
)

// DefaultCORSOrigins allows the kiosk screen served by its dev server.
var DefaultCORSOrigins = []string{"http://localhost:3000"}

// Sessions is the voice session control surface.
type Sessions interface {
	Start(ctx context.Context, orderType string) (app.SessionInfo, error)
	Stop(ctx context.Context) error
	Status() app.Status
}

// Faces estimates a customer's age.
type Faces interface {
	Analyze(ctx context.Context, img []byte) (age.Result, error)
}

var (
	_ Sessions = (*app.SessionManager)(nil)
	_ Faces    = (*age.Service)(nil)
)

// ── request / response bodies ────────────────────────────────────────────────

type faceResponse struct {
	Success      bool    `json:"success"`
	Age          *int    `json:"age,omitempty"`
	AgeCategory  string  `json:"age_category,omitempty"`
	IsElderly    bool    `json:"is_elderly"`
	Detected     bool    `json:"detected"`
	Confidence   float64 `json:"confidence,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

type startRequest struct {
	OrderType string `json:"order_type"`
}

type sessionResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	SessionActive bool   `json:"session_active"`
	SessionID     string `json:"session_id,omitempty"`
}

type actionRequest struct {
	Action string         `json:"action"`
	Data   map[string]any `json:"data"`
}

type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type menuSearchResponse struct {
	Success bool        `json:"success"`
	Items   []menu.Item `json:"items"`
	Count   int         `json:"count"`
}

type commandsResponse struct {
	Success  bool               `json:"success"`
	Commands []commands.Command `json:"commands"`
	Count    int                `json:"count"`
}

// Messages shown by the kiosk screen.
const (
	msgNoFace = "얼굴을 감지할 수 없습니다. 다음 사항을 확인해주세요:\n" +
		"1. 카메라 앞에 얼굴을 정면으로 위치\n2. 충분한 조명 확보\n" +
		"3. 카메라 렌즈 청소\n4. 다른 앱에서 카메라 사용 중인지 확인"
	msgFacesUnavailable = "얼굴 인식 모듈이 설정되지 않았습니다."
	msgStopped          = "음성 챗봇이 중지되었습니다."
	msgAlreadyStopped   = "음성 챗봇이 이미 중지되어 있습니다."
)

// ── Server ───────────────────────────────────────────────────────────────────

// Option configures a [Server].
type Option func(*Server)

// WithFaces enables /face-recognition.
func WithFaces(f Faces) Option {
	return func(s *Server) { s.faces = f }
}

// WithMenu enables /menu/search over src.
func WithMenu(src menu.Source) Option {
	return func(s *Server) { s.menu = src }
}

// WithHealth registers the probe routes of h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMetrics records HTTP request metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCORSOrigins replaces [DefaultCORSOrigins].
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithStopTimeout replaces [DefaultStopTimeout].
func WithStopTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// Server holds the handlers' dependencies.
type Server struct {
	sessions       Sessions
	queue          *commands.Queue
	faces          Faces
	menu           menu.Source
	health         *health.Handler
	metricsHandler http.Handler
	metrics        *observe.Metrics
	corsOrigins    []string
	stopTimeout    time.Duration
}

// New creates a Server. sessions and queue are required.
func New(sessions Sessions, queue *commands.Queue, opts ...Option) *Server {
	s := &Server{
		sessions:    sessions,
		queue:       queue,
		corsOrigins: DefaultCORSOrigins,
		stopTimeout: DefaultStopTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Echo returns a configured echo instance with all routes registered.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     s.corsOrigins,
		AllowCredentials: true,
	}))
	e.Use(observe.Middleware(s.metrics))
	s.Register(e)
	return e
}

// Register adds the API routes to e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/", s.root)
	e.POST("/face-recognition", s.faceRecognition)
	e.POST("/start-voice-chat", s.startVoiceChat)
	e.POST("/stop-voice-chat", s.stopVoiceChat)
	e.GET("/voice-chat/status", s.status)
	e.POST("/voice-chat/action", s.action)
	e.GET("/voice-chat/commands", s.pollCommands)
	e.GET("/menu/search", s.searchMenu)
	if s.health != nil {
		s.health.Register(e)
	}
	if s.metricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}
}

func (s *Server) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Kiosk Face Recognition & Voice Chat API is running"})
}

// ── handlers ─────────────────────────────────────────────────────────────────

func (s *Server) faceRecognition(c echo.Context) error {
	if s.faces == nil {
		return c.JSON(http.StatusServiceUnavailable, faceResponse{ErrorMessage: msgFacesUnavailable})
	}
	ctx := c.Request().Context()
	img, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxImageBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read image body")
	}
	if len(img) > MaxImageBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image too large")
	}

	res, err := s.faces.Analyze(ctx, img)
	if err != nil {
		observe.Logger(ctx).Error("api: face recognition failed", "err", err)
		return c.JSON(http.StatusOK, faceResponse{
			ErrorMessage: fmt.Sprintf("시스템 오류가 발생했습니다: %v", err),
		})
	}
	if !res.Detected {
		return c.JSON(http.StatusOK, faceResponse{ErrorMessage: msgNoFace})
	}

	category := "일반"
	if res.IsElderly {
		category = "고령"
	}
	observe.Logger(ctx).Info("api: face recognised", "age", res.Age, "is_elderly", res.IsElderly)
	return c.JSON(http.StatusOK, faceResponse{
		Success:     true,
		Age:         &res.Age,
		AgeCategory: category,
		IsElderly:   res.IsElderly,
		Detected:    true,
		Confidence:  res.Score,
	})
}

func (s *Server) startVoiceChat(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	info, err := s.sessions.Start(ctx, req.OrderType)
	if err != nil {
		observe.Logger(ctx).Error("api: start voice chat failed", "err", err)
		return c.JSON(http.StatusOK, sessionResponse{
			Message: fmt.Sprintf("음성 챗봇 시작 중 오류가 발생했습니다: %v", err),
		})
	}
	msg := "음성 챗봇이 시작되었습니다. 음성으로 주문해주세요."
	if req.OrderType != "" {
		msg = req.OrderType + " 주문을 위한 " + msg
	}
	return c.JSON(http.StatusOK, sessionResponse{
		Success:       true,
		Message:       msg,
		SessionActive: true,
		SessionID:     info.SessionID,
	})
}

func (s *Server) stopVoiceChat(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.stopTimeout)
	defer cancel()

	err := s.sessions.Stop(ctx)
	switch {
	case errors.Is(err, app.ErrNoSession):
		return c.JSON(http.StatusOK, sessionResponse{Success: true, Message: msgAlreadyStopped})
	case err != nil:
		slog.Error("api: stop voice chat failed", "err", err)
		return c.JSON(http.StatusOK, sessionResponse{
			Message:       fmt.Sprintf("음성 챗봇 중지 중 오류가 발생했습니다: %v", err),
			SessionActive: s.sessions.Status().Active,
		})
	}
	return c.JSON(http.StatusOK, sessionResponse{Success: true, Message: msgStopped})
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sessions.Status())
}

func (s *Server) action(c echo.Context) error {
	var req actionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action is required")
	}
	s.queue.Enqueue(req.Action, req.Data)
	observe.Logger(c.Request().Context()).Info("api: screen action queued", "action", req.Action)
	return c.JSON(http.StatusOK, actionResponse{
		Success: true,
		Message: fmt.Sprintf("액션 '%s'이 웹페이지로 전달되었습니다.", req.Action),
	})
}

func (s *Server) pollCommands(c echo.Context) error {
	cmds := s.queue.Drain()
	return c.JSON(http.StatusOK, commandsResponse{Success: true, Commands: cmds, Count: len(cmds)})
}

func (s *Server) searchMenu(c echo.Context) error {
	if s.menu == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "menu not configured")
	}
	items := s.menu.Current().Search(c.QueryParam("q"))
	if items == nil {
		items = []menu.Item{}
	}
	return c.JSON(http.StatusOK, menuSearchResponse{Success: true, Items: items, Count: len(items)})
}
