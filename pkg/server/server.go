// Package server exposes a chat Session over HTTP.
package server

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/japaniel/chain/pkg/chat"
	"github.com/japaniel/chain/pkg/logger"
	"github.com/japaniel/chain/pkg/metrics"
	"go.uber.org/zap"
)

// ErrEmptyText is returned for a reply request without text.
var ErrEmptyText = errors.New("text is required")

// Server routes HTTP requests to a single Session. Every Session call holds mu, so the
// store only ever sees one mutation at a time.
type Server struct {
	session *chat.Session
	metrics *metrics.Collector
	log     *zap.Logger
	mu      sync.Mutex
	router  *gin.Engine
}

type replyRequest struct {
	Text string `json:"text"`
}

type generateRequest struct {
	Length int `json:"length"`
}

// New builds the router. m and log may be nil.
func New(s *chat.Session, m *metrics.Collector, log *zap.Logger) *Server {
	srv := &Server{
		session: s,
		metrics: m,
		log:     logger.OrNop(log),
		router:  gin.New(),
	}
	srv.router.Use(ginLogger(srv.log))
	srv.router.Use(gin.Recovery())

	srv.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	srv.router.GET("/metrics", gin.WrapH(m.Handler()))

	api := srv.router.Group("/api")
	{
		api.POST("/reply", srv.reply)
		api.POST("/generate", srv.generate)
		api.POST("/sleep", srv.sleep)
	}
	return srv
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) reply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrEmptyText.Error()})
		return
	}

	s.mu.Lock()
	turn, err := s.session.Handle(req.Text)
	s.mu.Unlock()

	switch {
	case errors.Is(err, chat.ErrUnknownCommand):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.log.Error("reply failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reply"})
		return
	}

	if turn.Command != "" {
		c.JSON(http.StatusOK, gin.H{"command": turn.Command})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":    turn.InputID,
		"reply": turn.Reply,
	})
}

func (s *Server) generate(c *gin.Context) {
	var req generateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Length <= 0 {
		req.Length = s.session.Config.TweetLength
	}

	s.mu.Lock()
	text, err := s.session.Generate(req.Length)
	s.mu.Unlock()
	if err != nil {
		s.log.Error("generate failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

func (s *Server) sleep(c *gin.Context) {
	s.mu.Lock()
	err := s.session.Sleep()
	s.mu.Unlock()
	if err != nil {
		s.log.Error("topic rebuild failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rebuild topic scores"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rebuilt"})
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		log.Info("HTTP Request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
