// Package server hosts an agent behind the AgentCore Runtime HTTP contract:
// POST /invocations and GET /ping on port 8080.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// Request headers set by AgentCore Runtime.
const (
	HeaderSessionID           = "X-Amzn-Bedrock-AgentCore-Runtime-Session-Id"
	HeaderRequestID           = "X-Amzn-Request-Id"
	HeaderWorkloadAccessToken = "WorkloadAccessToken"
	HeaderCustomPrefix        = "X-Amzn-Bedrock-AgentCore-Runtime-Custom-"
	HeaderActorID             = HeaderCustomPrefix + "Actor-Id"
)

// Ping statuses.
const (
	StatusHealthy     = "Healthy"
	StatusHealthyBusy = "HealthyBusy"
)

// DefaultPort is the port AgentCore Runtime routes traffic to.
const DefaultPort = 8080

// RequestContext carries the per-invocation values taken from headers.
type RequestContext struct {
	SessionID           string
	RequestID           string
	WorkloadAccessToken string
	// Headers holds the X-Amzn-Bedrock-AgentCore-Runtime-Custom-* headers,
	// keyed by canonical header name.
	Headers map[string]string
}

// Header returns a custom header value by (case-insensitive) name.
func (rc *RequestContext) Header(name string) string {
	return rc.Headers[http.CanonicalHeaderKey(name)]
}

// Entrypoint handles one invocation. It returns either a JSON-encodable
// value, or a receive-only channel whose elements are streamed to the caller
// as server-sent events. An error value received on the channel is sent as a
// stream_error event and ends the stream.
type Entrypoint func(ctx context.Context, payload map[string]any, rc *RequestContext) (any, error)

// App is the hosting harness for a single entrypoint.
type App struct {
	entry  Entrypoint
	logger *log.Logger
	router *gin.Engine

	mu         sync.Mutex
	active     int
	lastUpdate time.Time
}

// New returns an App serving entry.
func New(entry Entrypoint, logger *log.Logger) *App {
	gin.SetMode(gin.ReleaseMode)

	a := &App{
		entry:      entry,
		logger:     logger,
		lastUpdate: time.Now(),
	}

	r := gin.New()
	r.Use(gin.Recovery(), a.logRequests)
	r.GET("/ping", a.ping)
	r.POST("/invocations", a.invoke)
	a.router = r
	return a
}

// Handler returns the HTTP handler, for tests and custom servers.
func (a *App) Handler() http.Handler { return a.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("agent server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (a *App) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	if c.Request.URL.Path == "/ping" {
		return
	}
	a.logger.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}

// Status reports the current ping status and when it last changed.
func (a *App) Status() (string, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active > 0 {
		return StatusHealthyBusy, a.lastUpdate
	}
	return StatusHealthy, a.lastUpdate
}

func (a *App) begin() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == 0 {
		a.lastUpdate = time.Now()
	}
	a.active++
}

func (a *App) end() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active--
	if a.active == 0 {
		a.lastUpdate = time.Now()
	}
}

func (a *App) ping(c *gin.Context) {
	status, updated := a.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":              status,
		"time_of_last_update": updated.Unix(),
	})
}

func requestContext(r *http.Request) *RequestContext {
	rc := &RequestContext{
		SessionID:           r.Header.Get(HeaderSessionID),
		RequestID:           r.Header.Get(HeaderRequestID),
		WorkloadAccessToken: r.Header.Get(HeaderWorkloadAccessToken),
		Headers:             map[string]string{},
	}
	prefix := http.CanonicalHeaderKey(HeaderCustomPrefix)
	for key, values := range r.Header {
		if len(values) > 0 && strings.HasPrefix(strings.ToLower(key), strings.ToLower(prefix)) {
			rc.Headers[key] = values[0]
		}
	}
	return rc
}

func (a *App) invoke(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload: " + err.Error()})
		return
	}

	rc := requestContext(c.Request)
	a.begin()
	defer a.end()

	a.logger.Info("invocation", "session", rc.SessionID, "request", rc.RequestID)

	result, err := a.entry(c.Request.Context(), payload, rc)
	if err != nil {
		a.logger.Error("invocation failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if stream, ok := result.(<-chan any); ok {
		a.stream(c, stream)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *App) stream(c *gin.Context, events <-chan any) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if err, isErr := ev.(error); isErr {
				a.logger.Error("stream failed", "err", err)
				writeEvent(w, gin.H{"error": err.Error(), "type": "stream_error"})
				return false
			}
			if err := writeEvent(w, ev); err != nil {
				a.logger.Error("encoding stream event", "err", err)
				writeEvent(w, gin.H{"error": err.Error(), "type": "stream_error"})
				return false
			}
			return true
		}
	})

	// Drain so a producer blocked on send can exit.
	go func() {
		for range events {
		}
	}()
}

func writeEvent(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}
