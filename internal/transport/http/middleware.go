package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/strangerchat-server/internal/auth"
)

const (
	// ContextKeyUsername is the context key for storing the operator name.
	ContextKeyUsername = "username"

	tokenQueryParam = "token"
	tokenCookieName = "auth_token"
)

// tokenFromRequest extracts an identity token from the Authorization header,
// the token query parameter or the auth cookie, in that order.
func tokenFromRequest(r *http.Request) string {
	if token := staffToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(tokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// staffToken is tokenFromRequest without the cookie. A browser attaches
// cookies to cross-site requests, so staff access needs an explicit token.
func staffToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get(tokenQueryParam)
}

// StaffMiddleware rejects requests that do not carry a valid staff token.
func StaffMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := staffToken(c.Request)
		if token == "" {
			logger.Debug().Msg("missing staff token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing token"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}
		if !claims.IsStaff {
			logger.Debug().Str("username", claims.Username).Msg("non-staff token on staff route")
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "staff only"})
			c.Abort()
			return
		}

		c.Set(ContextKeyUsername, claims.Username)
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
