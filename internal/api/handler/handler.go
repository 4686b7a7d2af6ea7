// Package handler wires Gin routes to the matchmaking core, grounded on
// the teacher's Handler{Hub} shape — generalized to carry every collaborator
// a connection needs instead of a single ManagerService field.
package handler

import (
	"context"
	"net/http"
	"time"

	"anonchat/internal/auth"
	"anonchat/internal/chatrouter"
	"anonchat/internal/directory"
	"anonchat/internal/matcher"
	"anonchat/internal/presence"
	"anonchat/internal/stats"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler holds every collaborator the HTTP/WS surface dispatches into.
type Handler struct {
	Hub       *presence.Hub
	Matcher   *matcher.Service
	Chat      *chatrouter.Router
	Stats     *stats.Broadcaster
	Directory directory.Directory
	Verifier  auth.TokenVerifier
	Log       *zap.Logger

	MaxMessageBytes   int64
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

func New(hub *presence.Hub, m *matcher.Service, chat *chatrouter.Router, st *stats.Broadcaster, dir directory.Directory, verifier auth.TokenVerifier, maxMessageBytes int64, heartbeatInterval, heartbeatTimeout time.Duration, log *zap.Logger) *Handler {
	return &Handler{
		Hub:               hub,
		Matcher:           m,
		Chat:              chat,
		Stats:             st,
		Directory:         dir,
		Verifier:          verifier,
		MaxMessageBytes:   maxMessageBytes,
		HeartbeatInterval: heartbeatInterval,
		HeartbeatTimeout:  heartbeatTimeout,
		Log:               log,
	}
}

// Pinger is the narrow view of the store the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health implements spec.md §6's /health: OK iff the store is reachable
// and the ConnectionHub's session counter is non-negative (always true by
// construction — the check exists to prove the hub is actually wired up).
func (h *Handler) Health(pinger Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if pinger != nil {
			if err := pinger.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		if h.Hub.SessionCount() < 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
