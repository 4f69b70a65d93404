package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"jababank/models"
	"jababank/pkg/core"
	"jababank/pkg/identity"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	actorKey     = "actor"
	requestIDKey = "request_id"
)

// jwtAuthMiddleware turns the bearer token into a core.Actor on the context.
// Role and status come from the store, not from the token claims.
func (s *server) jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		actor, err := s.identity.Authorize(c.Request.Context(), strings.TrimSpace(tokenString))
		if errors.Is(err, identity.ErrInvalidToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if err != nil {
			s.writeError(c, err)
			c.Abort()
			return
		}
		if actor.Status != models.StatusActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account is not active"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// requireRole must run after jwtAuthMiddleware.
func requireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorFrom(c).Can(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) core.Actor {
	v, _ := c.Get(actorKey)
	a, _ := v.(core.Actor)
	return a
}

// requestLogger tags every request with an id and logs it when done.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)

		c.Next()

		attrs := []any{
			"request_id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if a := actorFrom(c); a.UserID != 0 {
			attrs = append(attrs, "user_id", a.UserID, "role", a.Role)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("processed request", attrs...)
			return
		}
		logger.Info("processed request", attrs...)
	}
}

// timeoutMiddleware bounds the request context. A database transaction that
// outlives it is rolled back as a whole.
func timeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
