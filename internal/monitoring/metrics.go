package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 业务指标
	AddressesGenerated *prometheus.CounterVec
	MessagesSimulated  *prometheus.CounterVec
	MessagesRead       prometheus.Counter
	MessagesDeleted    prometheus.Counter

	// WebSocket 投递指标
	WSConnections       prometheus.Gauge
	WSDeliveries        prometheus.Counter
	WSDeliveryRetries   prometheus.Counter
	WSDeliveriesDropped prometheus.Counter

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otpmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "otpmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		AddressesGenerated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otpmail_addresses_generated_total",
				Help: "Total number of addresses generated",
			},
			[]string{"kind"},
		),

		MessagesSimulated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otpmail_messages_simulated_total",
				Help: "Total number of simulated messages delivered",
			},
			[]string{"kind"},
		),

		MessagesRead: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpmail_messages_read_total",
				Help: "Total number of messages marked as read",
			},
		),

		MessagesDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpmail_messages_deleted_total",
				Help: "Total number of messages deleted",
			},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "otpmail_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),

		WSDeliveries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpmail_ws_deliveries_total",
				Help: "Total number of WebSocket events delivered",
			},
		),

		WSDeliveryRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpmail_ws_delivery_retries_total",
				Help: "Total number of delayed delivery attempts",
			},
		),

		WSDeliveriesDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpmail_ws_deliveries_dropped_total",
				Help: "Total number of WebSocket events dropped",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otpmail_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "otpmail_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otpmail_rate_limit_blocks_total",
				Help: "Total number of rate limited requests",
			},
			[]string{"endpoint"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordAddressGenerated 记录地址生成
func (m *Metrics) RecordAddressGenerated(kind string) {
	m.AddressesGenerated.WithLabelValues(kind).Inc()
}

// RecordMessageSimulated 记录模拟邮件投递
func (m *Metrics) RecordMessageSimulated(kind string) {
	m.MessagesSimulated.WithLabelValues(kind).Inc()
}

// RecordMessageRead 记录邮件已读
func (m *Metrics) RecordMessageRead() {
	m.MessagesRead.Inc()
}

// RecordMessageDeleted 记录邮件删除
func (m *Metrics) RecordMessageDeleted() {
	m.MessagesDeleted.Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(endpoint string) {
	m.RateLimitBlocks.WithLabelValues(endpoint).Inc()
}

// ConnectionOpened 记录新建 WebSocket 连接
func (m *Metrics) ConnectionOpened() {
	m.WSConnections.Inc()
}

// ConnectionClosed 记录 WebSocket 连接关闭
func (m *Metrics) ConnectionClosed() {
	m.WSConnections.Dec()
}

// DeliverySucceeded 记录事件投递成功
func (m *Metrics) DeliverySucceeded() {
	m.WSDeliveries.Inc()
}

// DeliveryRetried 记录延迟投递尝试
func (m *Metrics) DeliveryRetried() {
	m.WSDeliveryRetries.Inc()
}

// DeliveryDropped 记录事件投递丢弃
func (m *Metrics) DeliveryDropped() {
	m.WSDeliveriesDropped.Inc()
}

// Handler 返回 Prometheus 指标的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
