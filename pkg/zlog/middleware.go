package zlog

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GinLogger 为每个请求放入带 trace_id / request_id 的 logger，并输出 access 日志。
// /ws 升级后的连接也会走到这里，latency 只包含握手阶段。
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		l := zap.L().With(
			zap.String("trace_id", c.GetHeader("X-Trace-Id")),
			zap.String("request_id", c.GetHeader("X-Request-Id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		c.Request = c.Request.WithContext(WithContext(c.Request.Context(), l))
		c.Next()

		l.Info("access",
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("remote", c.ClientIP()),
		)
	}
}
