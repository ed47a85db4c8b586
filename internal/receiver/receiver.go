// Package receiver is the inbound HTTP surface of a node: /ask, /notify,
// and /health, wrapped in a gin router the way the teacher's internal/api
// wraps its KV endpoints.
package receiver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/actorway/actorway/internal/actorlog"
	"github.com/actorway/actorway/internal/executor"
	"github.com/actorway/actorway/internal/message"
	"github.com/actorway/actorway/internal/registry"
	"github.com/actorway/actorway/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Dispatcher is the narrow executor surface the receiver needs: executing
// a synchronous ask and routing a fire-and-forget tell/hope.
type Dispatcher interface {
	HandleAsk(msg message.Message) (map[string]any, error)
	Route(msg message.Message) error
}

var _ Dispatcher = (*executor.Executor)(nil)

// Receiver wraps a *gin.Engine exposing the three node endpoints under a
// configurable subpath, guarded by bearer auth.
type Receiver struct {
	engine  *gin.Engine
	server  *http.Server
	store   storage.Storage
	reg     *registry.View
	dispatch Dispatcher
	log     zerolog.Logger
	startedAt time.Time
}

// Config bundles the knobs Node wires Receiver up with.
type Config struct {
	Addr      string
	Subpath   string
	AuthToken string
}

func New(store storage.Storage, reg *registry.View, dispatch Dispatcher, cfg Config) *Receiver {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	r := &Receiver{
		engine:    engine,
		store:     store,
		reg:       reg,
		dispatch:  dispatch,
		log:       actorlog.New("receiver"),
		startedAt: time.Now().UTC(),
	}

	engine.Use(Logger(), Recovery())
	group := engine.Group(cfg.Subpath, BearerAuth(cfg.AuthToken))
	group.POST("/ask", r.handleAsk)
	group.POST("/notify", r.handleNotify)
	group.GET("/health", r.handleHealth)

	r.server = &http.Server{Addr: cfg.Addr, Handler: engine}
	return r
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (r *Receiver) ListenAndServe() error {
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("receiver: listen on %s: %w", r.server.Addr, err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (r *Receiver) Shutdown(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

// Addr reports the configured bind address; for ":0" it is not the port
// the listener actually bound.
func (r *Receiver) Addr() string { return r.server.Addr }

// Engine exposes the underlying gin engine for tests that want to drive
// requests with httptest without a real listener.
func (r *Receiver) Engine() http.Handler { return r.engine }
