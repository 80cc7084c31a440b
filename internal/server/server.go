// Package server exposes an annotation session over a JSON HTTP API, for a browser or any other
// UI shell.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sensorable/yolomark"
)

// SinkOpener returns the sink for a save or export request. dir is the directory given in the
// request and may be empty.
type SinkOpener func(ctx context.Context, dir string) (yolomark.Sink, error)

// Options configures a Server.
type Options struct {
	Addr   string
	Save   yolomark.SaveOptions
	Export yolomark.ExportOptions // Defaults for export requests.
	// OpenSink defaults to a yolomark.DirSink at dir.
	OpenSink SinkOpener
}

// Server serves one session. Requests that touch the session are serialized.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	opts       Options
	log        *zap.Logger

	mu      sync.Mutex
	session *yolomark.Session
}

// New creates the server and its routes.
func New(session *yolomark.Session, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.OpenSink == nil {
		opts.OpenSink = openDirSink
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		router:  router,
		opts:    opts,
		log:     log,
		session: session,
	}

	router.GET("/health", s.healthCheck)

	api := router.Group("/api", s.serialize)
	{
		api.POST("/folder", s.openFolder)
		api.GET("/images", s.listImages)
		api.POST("/navigate", s.navigate)
		api.PUT("/viewport", s.setViewport)

		api.GET("/classes", s.listClasses)
		api.POST("/classes", s.addClass)
		api.DELETE("/classes/:name", s.removeClass)
		api.POST("/classes/:name/select", s.selectClass)

		api.GET("/boxes", s.listBoxes)
		api.POST("/boxes", s.drawBox)
		api.POST("/select", s.selectAt)
		api.DELETE("/boxes/selected", s.deleteSelected)
		api.GET("/render", s.render)

		api.POST("/save", s.save)
		api.POST("/export", s.export)
		api.POST("/load", s.load)
	}

	s.httpServer = &http.Server{
		Addr:           opts.Addr,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address until Shutdown is called.
func (s *Server) Run() error {
	s.log.Info("Server is running", zap.String("address", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// serialize runs one session request at a time, the way a single UI thread would.
func (s *Server) serialize(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Next()
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func openDirSink(_ context.Context, dir string) (yolomark.Sink, error) {
	if dir == "" {
		return nil, ErrMissingDir
	}
	return yolomark.NewDirSink(dir), nil
}
