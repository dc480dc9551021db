package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"otpmail/backend/internal/monitoring"
)

// MonitoringMiddleware 监控中间件
type MonitoringMiddleware struct {
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewMonitoringMiddleware 创建监控中间件
func NewMonitoringMiddleware(metrics *monitoring.Metrics, logger *zap.Logger) *MonitoringMiddleware {
	return &MonitoringMiddleware{
		metrics: metrics,
		logger:  logger,
	}
}

// HTTPMetrics HTTP 指标中间件
func (mm *MonitoringMiddleware) HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		statusCode := strconv.Itoa(c.Writer.Status())

		mm.metrics.RecordHTTPRequest(
			c.Request.Method,
			c.FullPath(),
			statusCode,
			duration,
		)

		if c.Writer.Status() >= 400 {
			mm.metrics.RecordError("http_error", "http")
		}
		if c.Writer.Status() == 429 {
			mm.metrics.RecordRateLimitBlock(c.FullPath())
		}
	}
}

// BusinessMetrics 业务指标中间件
func (mm *MonitoringMiddleware) BusinessMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		switch c.FullPath() {
		case "/api/email/generate":
			mm.metrics.RecordAddressGenerated("standard")
		case "/api/email/generate-sso":
			mm.metrics.RecordAddressGenerated("federated")
		case "/api/messages/:id/read":
			if c.Request.Method == "PATCH" {
				mm.metrics.RecordMessageRead()
			}
		case "/api/messages/:id":
			if c.Request.Method == "DELETE" {
				mm.metrics.RecordMessageDeleted()
			}
		}
	}
}
