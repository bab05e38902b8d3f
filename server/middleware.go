package server

import (
	"slices"
	"time"

	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CORS allows the configured origins; "*" or an empty list allows any origin
func CORS(origins []string) gin.HandlerFunc {
	config := cors.DefaultConfig()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	config.ExposeHeaders = []string{requestIDHeader}

	return cors.New(config)
}

const requestIDHeader = "X-Request-ID"

// RequestLogger tags each request with an id, carried on the request context for
// handler loggers, and logs one line per request
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := uuid.NewString()
		c.Header(requestIDHeader, id)
		ctx := logging.ContextWithFields(c.Request.Context(), logging.Fields{"request_id": id})
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		fields := logging.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.WithContext(ctx).Warn("Request failed", fields)
		default:
			logger.WithContext(ctx).Debug("Request served", fields)
		}
	}
}

func originAllowed(origins []string, origin string) bool {
	if origin == "" || len(origins) == 0 {
		return true
	}
	return slices.Contains(origins, "*") || slices.Contains(origins, origin)
}
