// Package webapi exposes the REST surface: auth, scheduling CRUD, the
// natural language parser and the chat webhook.
package webapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	logx "mailsched/pkg/logx"
)

type Config struct {
	Enabled         bool          `json:"enabled"`
	Addr            string        `json:"addr"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

type Server struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	srv *http.Server
}

func NewServer(cfg Config, h *Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLog(log))
	registerRoutes(engine, h)

	return &Server{
		cfg: cfg,
		log: log,
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

func registerRoutes(r *gin.Engine, h *Handler) {
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)

		email := api.Group("/email")
		email.POST("/schedule", h.Schedule)
		email.GET("/list", h.List)
		email.DELETE("/cancel/:id", h.Cancel)
		email.POST("/parse", h.Parse)

		api.POST("/chat/webhook", h.ChatWebhook)
	}
}

// Start runs the listener in its own goroutine; ListenAndServe errors
// other than a clean close are reported through errCh.
func (s *Server) Start(errCh chan<- error) {
	s.mu.Lock()
	srv := s.srv
	cfg := s.cfg
	s.mu.Unlock()
	if !cfg.Enabled || srv == nil {
		return
	}

	s.log.Info("http server starting", logx.String("addr", cfg.Addr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", logx.Err(err))
			if errCh != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	timeout := s.cfg.ShutdownTimeout
	s.mu.Unlock()
	if srv == nil {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		s.log.Warn("http shutdown incomplete", logx.Err(err))
		return
	}
	s.log.Info("http server stopped")
}

func requestLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// Health probes would drown out everything else at info level.
		ev := log.Info
		if c.Request.URL.Path == "/healthz" {
			ev = log.Debug
		}
		ev("request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("client", c.ClientIP()),
		)
	}
}
