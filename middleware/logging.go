package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"
)

// RequestLogger writes one structured line per request. Server errors are
// logged at error level, client errors at warn.
func RequestLogger(logger log.Logger) gin.HandlerFunc {
	helper := log.NewHelper(log.With(logger, "module", "http"))

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		kv := []interface{}{
			"msg", "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "errors", c.Errors.String())
		}

		l := helper.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			l.Errorw(kv...)
		case status >= 400:
			l.Warnw(kv...)
		default:
			l.Infow(kv...)
		}
	}
}
