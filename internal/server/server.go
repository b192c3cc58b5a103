// Package server exposes retrieval sessions, drafting and citation
// exports over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reportmate/internal/app"
	"reportmate/internal/metrics"
)

// Server is the HTTP API.
type Server struct {
	app    *app.App
	ctrl   *controller
	router *gin.Engine
}

// New builds the router. Metrics are served from a registry owned by the server.
func New(a *app.App) (*Server, error) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}

	ctrl := newController(a)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(a), cors())
	router.MaxMultipartMemory = 64 << 20

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"service":  "reportmate",
			"sessions": ctrl.sessions.len(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/sessions", ctrl.createSession)
		apiV1.GET("/sessions/:id", ctrl.getSession)
		apiV1.PUT("/sessions/:id", ctrl.updateSession)
		apiV1.DELETE("/sessions/:id", ctrl.deleteSession)
		apiV1.POST("/sessions/:id/search", ctrl.search)
		apiV1.POST("/sessions/:id/context", ctrl.assembleContext)
		apiV1.POST("/sessions/:id/draft", ctrl.draft)

		apiV1.POST("/citations/table", ctrl.citationTable)
		apiV1.POST("/citations/json", ctrl.citationJSON)
		apiV1.POST("/citations/markdown", ctrl.citationMarkdown)
		apiV1.POST("/citations/render", ctrl.citationRender)
	}
	return &Server{app: a, ctrl: ctrl, router: router}, nil
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully and
// releases the indexes of all sessions still held.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.app.Log.Info("server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.app.Log.Info("server stopping")
	err := srv.Shutdown(shutdownCtx)
	s.ctrl.releaseAll(shutdownCtx)
	return err
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.Log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
