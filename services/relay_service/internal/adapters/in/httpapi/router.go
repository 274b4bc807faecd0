package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EthanQC/relay/pkg/zlog"
)

// WSHandler /ws 端点背后的 WebSocket 服务
type WSHandler interface {
	HandleConnection(w http.ResponseWriter, r *http.Request)
	GetStats() map[string]int64
}

// NewRouter 注册 HTTP 路由：探活、统计、指标、日志级别和 WebSocket 入口
func NewRouter(wsServer WSHandler, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), zlog.GinLogger())

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Hello world")
	})

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 统计信息
	router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, wsServer.GetStats())
	})

	// WebSocket端点，鉴权在握手里完成
	router.GET("/ws", func(c *gin.Context) {
		wsServer.HandleConnection(c.Writer, c.Request)
	})

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	level := gin.WrapH(zlog.LevelHTTPHandler())
	router.GET("/log/level", level)
	router.PUT("/log/level", level)

	return router
}
