package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/msgin/msgin-server/internal/auth"
	"github.com/msgin/msgin-server/internal/store"
)

const (
	// ContextKeyUserID is the context key for storing the authenticated user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyUser is the context key for storing the resolved user record.
	ContextKeyUser = "user"

	// authCookieName is the cookie the web client stores its token in.
	authCookieName = "jwt"
)

// credentialFromRequest extracts the bearer credential from the auth
// cookie, the Authorization header, or (for WebSocket handshakes) the token
// query parameter.
func credentialFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(authCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	return r.URL.Query().Get("token")
}

// AuthMiddleware creates a middleware that resolves the request credential
// to a user via the identity gate. Every failure terminates the request.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := credentialFromRequest(c.Request)

		user, err := authService.Authenticate(c.Request.Context(), credential)
		if err != nil {
			logger.Debug().Err(err).Msg("authentication failed")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: authFailureMessage(err)})
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, user.ID)
		c.Set(ContextKeyUser, user)

		c.Next()
	}
}

func authFailureMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		return "not authorized: no token provided"
	case errors.Is(err, auth.ErrUnknownSubject):
		return "not authorized: user not found"
	default:
		return "not authorized: invalid token"
	}
}

// currentUser pulls the resolved user out of the gin context.
func currentUser(c *gin.Context) (*store.User, bool) {
	value, exists := c.Get(ContextKeyUser)
	if !exists {
		return nil, false
	}
	user, ok := value.(*store.User)
	return user, ok
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request
		c.Next()

		// Log after request
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

// CORSMiddleware allows the configured client origin. A blank origin
// disables CORS headers entirely.
func CORSMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin == "" {
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
