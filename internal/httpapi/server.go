// Package httpapi exposes the moderation pipeline over HTTP: message
// submission, ban self-check, stream read-back, and the operator
// endpoints for retention purges and ruleset reloads. The caller's user
// id arrives in the X-User-ID header, set by the upstream authentication
// proxy; it is never taken from the request body.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/DriftThreads/DriftThreads/internal/metrics"
	"github.com/DriftThreads/DriftThreads/internal/store"
)

// UserIDHeader carries the authenticated user id injected by the
// upstream proxy.
const UserIDHeader = "X-User-ID"

// ChatService is the admission pipeline consumed by the API.
type ChatService interface {
	Submit(ctx context.Context, userID, displayName, rawBody string, now time.Time) (*store.Message, error)
	BanStatus(ctx context.Context, userID string, now time.Time) (*store.BanRecord, error)
	Recent(ctx context.Context, limit int) ([]store.Message, error)
}

// PurgeRunner runs one retention purge pass.
type PurgeRunner interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// RuleReloader swaps in a freshly loaded profanity ruleset.
type RuleReloader interface {
	Reload(ctx context.Context) error
	RuleCount() int
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	chat   ChatService
	purger PurgeRunner
	rules  RuleReloader
	log    *zerolog.Logger
}

// New creates the API server.
func New(chat ChatService, purger PurgeRunner, rules RuleReloader, logger *zerolog.Logger) *Server {
	return &Server{chat: chat, purger: purger, rules: rules, log: logger}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api", s.requireUser)
	{
		api.POST("/messages", s.submitMessage)
		api.GET("/messages", s.listMessages)
		api.GET("/bans/me", s.banStatus)
	}

	// Operator endpoints; exposed on the internal network only.
	internal := r.Group("/internal")
	{
		internal.POST("/purge", s.runPurge)
		internal.POST("/rules/reload", s.reloadRules)
	}

	return r
}

// requireUser rejects requests lacking the trusted identity header.
func (s *Server) requireUser(c *gin.Context) {
	if c.GetHeader(UserIDHeader) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "unauthenticated",
			Message: "missing authenticated user identity",
		})
		return
	}
	c.Next()
}
