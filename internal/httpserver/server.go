// Package httpserver exposes the live dashboard state and recorded history
// over a small read-only JSON API.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/piezodash/internal/model"
	"github.com/tinytelemetry/piezodash/internal/scheduler"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
)

const (
	DefaultAddr         = "127.0.0.1:3000"
	defaultHistoryLimit = 100
	maxHistoryLimit     = 10000
)

// TickStats reports scheduler counters for the health endpoint.
type TickStats interface {
	Stats() scheduler.Stats
}

// Config wires the server to the rest of the pipeline. History may be nil
// when recording is disabled; JWTSecret empty disables auth.
type Config struct {
	Addr      string
	JWTSecret string
	Stats     TickStats
	History   model.HistoryReader
}

// Server serves /api routes. It is also a render sink: every delivered
// RenderModel replaces the one served from /api/render.
type Server struct {
	addr      string
	conf      Config
	latest    atomic.Pointer[viewmodel.RenderModel]
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a server; call Start to listen.
func NewServer(conf Config) *Server {
	if conf.Addr == "" {
		conf.Addr = DefaultAddr
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      conf.Addr,
		conf:      conf,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Render stores rm as the latest model. It never blocks the tick.
func (s *Server) Render(rm viewmodel.RenderModel) {
	s.latest.Store(&rm)
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	if s.conf.JWTSecret != "" {
		api.Use(RequireJWT([]byte(s.conf.JWTSecret)))
	}
	api.GET("/health", s.handleHealth)
	api.GET("/render", s.handleRender)
	api.GET("/history", s.handleHistory)
	api.GET("/history/status", s.handleHistoryStatus)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = listener.Addr().String()
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the listen address, resolved after Start.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	var stats scheduler.Stats
	if s.conf.Stats != nil {
		stats = s.conf.Stats.Stats()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptime":        time.Since(s.startTime).Round(time.Second).String(),
		"ticks":         stats.Ticks,
		"dropped_ticks": stats.Dropped,
	})
}

func (s *Server) handleRender(c *gin.Context) {
	rm := s.latest.Load()
	if rm == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no render model yet"})
		return
	}
	c.JSON(http.StatusOK, rm)
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.conf.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history recording is disabled"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(maxHistoryLimit)})
			return
		}
		limit = n
	}

	samples, err := s.conf.History.RecentSamples(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	if samples == nil {
		samples = []model.HistoryRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"samples": samples,
		"count":   len(samples),
	})
}

func (s *Server) handleHistoryStatus(c *gin.Context) {
	if s.conf.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history recording is disabled"})
		return
	}

	total, err := s.conf.History.TotalSampleCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count samples"})
		return
	}
	counts, err := s.conf.History.StatusCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count statuses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"by_status": counts,
	})
}
