package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pressiotrack/internal/auth"
	"pressiotrack/internal/models"
	"pressiotrack/internal/service"
)

const (
	sessionCookie   = "jwt"
	requestIDHeader = "X-Request-ID"

	ctxUserID    = "UserID"
	ctxRole      = "Role"
	ctxClaims    = "Claims"
	ctxRequestID = "RequestID"
)

// RequestID tags every request with the caller's X-Request-ID or a fresh one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}

		c.Set(ctxRequestID, id)
		c.Header(requestIDHeader, id)

		c.Next()
	}
}

func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.Info("request completed",
			slog.String("request_id", c.GetString(ctxRequestID)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}
}

// AuthMiddleware accepts the session from the jwt cookie or a Bearer header.
// A missing session is 401, a session that does not verify or names a
// deleted user is 403. The role set on the context is the stored one, not the
// role the token was issued with.
func AuthMiddleware(srvc service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := c.Cookie(sessionCookie)
		if err != nil || tokenStr == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				newErrorResponse(c, http.StatusUnauthorized, "authentication required")

				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				newErrorResponse(c, http.StatusUnauthorized, "invalid authorization header")

				return
			}

			tokenStr = parts[1]
		}

		claims, err := srvc.ParseSession(c.Request.Context(), tokenStr)
		if errors.Is(err, service.ErrInvalidToken) {
			c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
			newErrorResponse(c, http.StatusForbidden, "invalid or expired session, log in again")

			return
		}
		if err != nil {
			newErrorResponse(c, http.StatusInternalServerError, "internal error")

			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Set(ctxClaims, claims)

		c.Next()
	}
}

// RequireRole lets the request through only for the given roles. It must run
// after AuthMiddleware.
func RequireRole(allowed ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(ctxRole)
		r, ok := role.(models.Role)
		if !ok || !slices.Contains(allowed, r) {
			newErrorResponse(c, http.StatusForbidden, deniedMessage(allowed))

			return
		}

		c.Next()
	}
}

func deniedMessage(allowed []models.Role) string {
	if len(allowed) != 1 {
		return "access denied"
	}

	switch allowed[0] {
	case models.RolePatient:
		return "access denied: only patients can do this"
	case models.RoleCaregiver:
		return "access denied: only caregivers can do this"
	case models.RoleAdmin:
		return "access denied: only administrators can do this"
	default:
		return "access denied"
	}
}

func currentUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}

	id, ok := v.(int64)

	return id, ok
}

func currentClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil, false
	}

	claims, ok := v.(*auth.Claims)

	return claims, ok
}
