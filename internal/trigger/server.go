package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/procura/internal/logging"
	"github.com/roach88/procura/internal/reconcile"
	"github.com/roach88/procura/internal/store"
)

// PushEnvelope is the body of a Pub/Sub push request.
type PushEnvelope struct {
	Message struct {
		Attributes map[string]string `json:"attributes"`
		Data       []byte            `json:"data"`
		ID         string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Server exposes the push endpoint and the read API.
type Server struct {
	handler *Handler
	store   *store.Store
	router  *gin.Engine
}

// NewServer builds the routes. A nil handler disables the push endpoint.
func NewServer(h *Handler, st *store.Store) *Server {
	s := &Server{handler: h, store: st, router: gin.New()}
	s.router.Use(gin.Recovery(), requestLogger())

	s.router.GET("/healthz", s.health)
	s.router.GET("/processes/:id", s.process)
	if h != nil {
		s.router.POST("/pubsub/push", s.push)
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logging.FromContext(ctx).Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.DB().PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) process(c *gin.Context) {
	v, ok, err := reconcile.View(c.Request.Context(), s.store, c.Param("id"))
	if err != nil {
		logging.FromContext(c.Request.Context()).Error("load process failed", "process_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load process"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "process not found"})
		return
	}
	c.JSON(http.StatusOK, v)
}

// push handles one push delivery. 204 acknowledges; any other status makes
// Pub/Sub redeliver. Malformed bodies are acknowledged so they are not
// redelivered forever.
func (s *Server) push(c *gin.Context) {
	log := logging.FromContext(c.Request.Context())
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Warn("unreadable push body", "error", err)
		c.Status(http.StatusNoContent)
		return
	}
	var env PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		log.Warn("malformed push envelope", "error", err)
		c.Status(http.StatusNoContent)
		return
	}

	if !s.handler.Handle(c.Request.Context(), env.Message.Attributes, env.Message.Data) {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.FromContext(c.Request.Context()).Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
