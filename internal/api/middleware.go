package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDCtxKey   = "request_id"
	requestIDHeader   = "X-Request-ID"
	loggerCtxKey      = "logger"
	authHeader        = "Authorization"
	bearerPrefix      = "Bearer"
	defaultCORSMaxAge = 12 * time.Hour
)

// logRequests tags every request with an id and logs it once it finished.
func logRequests(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDCtxKey, requestID)
		c.Header(requestIDHeader, requestID)

		log := logger.With().Str("request_id", requestID).Logger()
		c.Set(loggerCtxKey, log)

		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Str("client_ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// requestLogger returns the logger carrying the request id, or fallback.
func requestLogger(c *gin.Context, fallback zerolog.Logger) zerolog.Logger {
	if v, ok := c.Get(loggerCtxKey); ok {
		if l, ok := v.(zerolog.Logger); ok {
			return l
		}
	}
	return fallback
}

// requireToken rejects requests without the static bearer token. An empty
// token disables the check.
func requireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		if subtle.ConstantTimeCompare([]byte(presentedToken(c)), []byte(token)) != 1 {
			abort(c, newAPIError(http.StatusUnauthorized, errUnauthorized.Error()))
			return
		}
		c.Next()
	}
}

// presentedToken reads the bearer token, falling back to the access_token
// query parameter for WebSocket clients that cannot set headers.
func presentedToken(c *gin.Context) string {
	if header := c.GetHeader(authHeader); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != bearerPrefix {
			return ""
		}
		return parts[1]
	}
	return c.Query("access_token")
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", authHeader, requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        defaultCORSMaxAge,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
