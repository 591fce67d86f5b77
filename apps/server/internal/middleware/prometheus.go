package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP 请求指标，由 /metrics 接口暴露给 Prometheus 拉取
var (
	httpRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devtinder_http_requests_total",
			Help: "HTTP 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devtinder_http_request_duration_seconds",
			Help:    "HTTP 请求耗时分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	wsOnlineGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devtinder_ws_online_users",
			Help: "当前实时通道在线用户数",
		},
	)
)

// SetWSOnline 更新在线用户数指标，由实时通道在注册/注销时调用。
func SetWSOnline(count int) {
	wsOnlineGauge.Set(float64(count))
}

// PrometheusMiddleware HTTP 请求监控中间件
// path 维度使用路由模板（FullPath），避免 userId 等参数导致指标维度爆炸。
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			// 未匹配到路由（404），统一归类避免任意 path 污染指标
			path = "unmatched"
		}

		httpRequestTotal.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		httpRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
		).Observe(time.Since(start).Seconds())
	}
}
