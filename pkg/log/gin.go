package log

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const HeaderRequestID = "X-Request-ID"

// quietPaths are polled by load balancers and logged at debug.
var quietPaths = map[string]bool{"/health": true}

// GinMiddleware tags each request with an id (taken from X-Request-ID when
// the caller sent one), stores a child logger in the request context and
// writes one access log line when the handler returns.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(HeaderRequestID, reqID)

		reqLogger := logger.With().
			Str(FieldRequestID, reqID).
			Str(FieldMethod, c.Request.Method).
			Str(FieldPath, c.Request.URL.Path).
			Str(FieldClientIP, c.ClientIP()).
			Logger()
		c.Request = c.Request.WithContext(reqLogger.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		evt := accessEvent(reqLogger, c.Request.URL.Path, status).
			Int(FieldStatus, status).
			Int64(FieldLatency, time.Since(start).Milliseconds())

		// The auth middleware runs inside c.Next, so actor keys exist only now.
		for _, key := range [...]string{FieldUserID, FieldUsername, FieldTier} {
			if v := c.GetString(key); v != "" {
				evt = evt.Str(key, v)
			}
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}
		evt.Msg("request completed")
	}
}

func accessEvent(l zerolog.Logger, path string, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return l.Error()
	case quietPaths[path]:
		return l.Debug()
	default:
		return l.Info()
	}
}
