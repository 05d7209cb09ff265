package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pharmaelevate/portal-api/internal/service"
)

// Audit records an event after a successful request. Failed requests are
// not recorded; the services audit the outcomes they own.
func Audit(recorder service.AuditRecorder, eventType, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if recorder == nil || c.Writer.Status() >= 400 {
			return
		}

		event := service.AuditEvent{
			Type:      eventType,
			Resource:  resource,
			TargetID:  c.Param("id"),
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
			Metadata: map[string]interface{}{
				"path":      c.FullPath(),
				"method":    c.Request.Method,
				"status":    c.Writer.Status(),
				"latencyMs": time.Since(start).Milliseconds(),
				"query":     c.Request.URL.RawQuery,
			},
		}
		if claims := Claims(c); claims != nil {
			event.ActorID = claims.UserID
		}
		recorder.Record(event)
	}
}
