package receiver

import (
	"time"

	"github.com/actorway/actorway/internal/actorlog"
	"github.com/gin-gonic/gin"
)

// Logger is a gin middleware that logs every request's method, path,
// status code, and latency via zerolog, replacing the teacher's bare
// log.Printf with structured fields.
func Logger() gin.HandlerFunc {
	log := actorlog.New("receiver")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// Recovery recovers a panic in a handler, logs it as a structured event,
// and answers 500 with a HandlerError body.
func Recovery() gin.HandlerFunc {
	log := actorlog.New("receiver")
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("recovered panic in handler")
				c.AbortWithStatusJSON(500, gin.H{"error": gin.H{"kind": "HandlerError", "message": "internal server error"}})
			}
		}()
		c.Next()
	}
}

// BearerAuth rejects any request whose Authorization header does not
// present token as a bearer credential. An empty token disables auth
// entirely (used for local/dev nodes).
func BearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := c.GetHeader("Authorization")
		if got != "Bearer "+token {
			c.AbortWithStatusJSON(401, gin.H{"error": gin.H{"kind": "TransportError", "message": "missing or invalid bearer token"}})
			return
		}
		c.Next()
	}
}
