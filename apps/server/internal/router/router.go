package router

import (
	"DevTinder/apps/server/internal/handler"
	"DevTinder/apps/server/internal/middleware"
	v1 "DevTinder/apps/server/internal/router/v1"
	"DevTinder/pkg/util"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InitRouter 初始化路由
// connHandler: 连接关系处理器（依赖注入）
// msgHandler:  消息处理器（依赖注入）
// wsHandler:   WebSocket 接入处理器（依赖注入）
func InitRouter(connHandler *v1.ConnectionHandler, msgHandler *v1.MessageHandler, wsHandler *handler.WSHandler) *gin.Engine {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "" {
		ginMode = gin.ReleaseMode
	}
	gin.SetMode(ginMode)

	r := gin.New()

	// 恢复中间件
	r.Use(middleware.GinRecovery(true))

	// 追踪中间件 (生成 trace_id)
	r.Use(util.TraceLogger())

	// 日志中间件
	r.Use(middleware.GinLogger())

	// Prometheus 监控中间件
	r.Use(middleware.PrometheusMiddleware())

	// 跨域中间件
	r.Use(middleware.CorsMiddleware())

	// 健康检查（无需认证）
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// Prometheus 指标暴露接口
	// Prometheus 会定时访问这个接口来拉取监控数据
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket 接入入口（token 通过 query 传递，握手阶段完成鉴权）
	r.GET("/ws", wsHandler.ServeWS)

	// API 路由组（全部需要认证）
	api := r.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware())
	api.Use(middleware.UserRateLimitMiddleware(20, 40))
	{
		// 连接关系接口
		connections := api.Group("/connections")
		{
			connections.POST("/request/:userId", connHandler.SendRequest)
			connections.POST("/accept/:userId", connHandler.Accept)
			connections.POST("/reject/:userId", connHandler.Reject)
			connections.DELETE("/:userId", connHandler.Remove)
			connections.GET("/requests", connHandler.ListReceivedRequests)
			connections.GET("/requests/sent", connHandler.ListSentRequests)
			connections.GET("", connHandler.ListConnections)
		}

		// 消息接口
		messages := api.Group("/messages")
		{
			// 静态路由需与 :userId 同级共存，gin 会优先匹配静态段
			messages.GET("/unread/count", msgHandler.UnreadCount)
			messages.GET("/:userId", msgHandler.History)
			messages.POST("/:userId", msgHandler.Send)
			messages.POST("/:userId/read", msgHandler.MarkRead)
		}
	}

	return r
}
