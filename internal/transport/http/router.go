package httptransport

import (
	"errors"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"otpmail/backend/internal/config"
	"otpmail/backend/internal/domain"
	"otpmail/backend/internal/health"
	"otpmail/backend/internal/middleware"
	"otpmail/backend/internal/monitoring"
	"otpmail/backend/internal/service"
	"otpmail/backend/internal/storage"
	"otpmail/backend/internal/websocket"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	addresses *service.AddressService
	messages  *service.MessageService
	simulator *service.SimulatorService
	metrics   *monitoring.Metrics
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config           *config.Config
	AddressService   *service.AddressService
	MessageService   *service.MessageService
	SimulatorService *service.SimulatorService
	WebSocketHub     *websocket.Hub
	HealthChecker    *health.HealthChecker
	Metrics          *monitoring.Metrics
	Logger           *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	if deps.Metrics != nil {
		mon := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
		router.Use(mon.HTTPMetrics())
		router.Use(mon.BusinessMetrics())
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := &Handler{
		addresses: deps.AddressService,
		messages:  deps.MessageService,
		simulator: deps.SimulatorService,
		metrics:   deps.Metrics,
	}

	// 健康检查
	if deps.HealthChecker != nil {
		router.GET("/health", func(c *gin.Context) {
			Success(c, gin.H{"checks": deps.HealthChecker.CheckHealth()})
		})
		router.GET("/health/live", gin.WrapF(deps.HealthChecker.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.HealthChecker.ReadyEndpoint))
	}

	// Prometheus 指标
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// WebSocket
	if deps.WebSocketHub != nil {
		router.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
	}

	// 模拟投递限流
	simulateLimit := middleware.NewRateLimiter(
		deps.Config.RateLimit.SimulateRPS,
		deps.Config.RateLimit.SimulateBurst,
	)

	api := router.Group("/api")
	{
		api.POST("/email/generate", handler.generateStandardAddress)
		api.POST("/email/generate-sso", handler.generateFederatedAddress)
		api.GET("/emails", handler.listAddresses)
		api.GET("/email/:address/messages", handler.listMessages)

		api.GET("/messages/:id", handler.getMessage)
		api.PATCH("/messages/:id/read", handler.markMessageRead)
		api.DELETE("/messages/:id", handler.deleteMessage)

		api.POST("/simulate/receive", simulateLimit.Limit(), handler.simulateReceive)
	}

	return router
}

// generateStandardAddress 生成一个消费级一次性地址
func (h *Handler) generateStandardAddress(c *gin.Context) {
	h.generateAddress(c, domain.KindStandard)
}

// generateFederatedAddress 生成一个企业 SSO 一次性地址
func (h *Handler) generateFederatedAddress(c *gin.Context) {
	h.generateAddress(c, domain.KindFederated)
}

func (h *Handler) generateAddress(c *gin.Context, kind domain.AddressKind) {
	record, err := h.addresses.Generate(kind)
	if err != nil {
		InternalError(c, MsgInternalError)
		return
	}

	Created(c, gin.H{"email": record})
}

// listAddresses 返回全部已生成的地址
func (h *Handler) listAddresses(c *gin.Context) {
	records, err := h.addresses.List()
	if err != nil {
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, gin.H{"emails": records})
}

// listMessages 返回指定地址收到的全部邮件
func (h *Handler) listMessages(c *gin.Context) {
	messages, err := h.messages.ListByAddress(c.Param("address"))
	if err != nil {
		if errors.Is(err, storage.ErrAddressNotFound) {
			NotFound(c, MsgAddressNotFound)
			return
		}
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, gin.H{"messages": messages})
}

// getMessage 获取单封邮件
func (h *Handler) getMessage(c *gin.Context) {
	messageID := c.Param("id")
	if _, err := uuid.Parse(messageID); err != nil {
		BadRequest(c, MsgInvalidMessageID)
		return
	}

	msg, err := h.messages.Get(messageID)
	if err != nil {
		if errors.Is(err, storage.ErrMessageNotFound) {
			NotFound(c, MsgMessageNotFound)
			return
		}
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, gin.H{"message": msg})
}

// markMessageRead 将指定邮件标记为已读
func (h *Handler) markMessageRead(c *gin.Context) {
	messageID := c.Param("id")
	if _, err := uuid.Parse(messageID); err != nil {
		BadRequest(c, MsgInvalidMessageID)
		return
	}

	msg, err := h.messages.MarkRead(messageID)
	if err != nil {
		if errors.Is(err, storage.ErrMessageNotFound) {
			NotFound(c, MsgMessageNotFound)
			return
		}
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, gin.H{"message": msg})
}

// deleteMessage 删除指定邮件
func (h *Handler) deleteMessage(c *gin.Context) {
	messageID := c.Param("id")
	if _, err := uuid.Parse(messageID); err != nil {
		BadRequest(c, MsgInvalidMessageID)
		return
	}

	removed, err := h.messages.Delete(messageID)
	if err != nil {
		InternalError(c, MsgInternalError)
		return
	}
	if !removed {
		NotFound(c, MsgMessageNotFound)
		return
	}

	Success(c, gin.H{})
}

type simulateReceiveRequest struct {
	EmailAddress string `json:"emailAddress"`
	Type         string `json:"type"`
}

// simulateReceive 向指定地址投递一封模拟验证码邮件
func (h *Handler) simulateReceive(c *gin.Context) {
	var req simulateReceiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	// type 可省略，默认消费级邮件
	var kind domain.AddressKind
	switch req.Type {
	case "", "normal":
		kind = domain.KindStandard
	case "sso":
		kind = domain.KindFederated
	default:
		BadRequest(c, MsgInvalidMessageType)
		return
	}

	msg, err := h.simulator.Simulate(req.EmailAddress, kind)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidEmail) ||
			errors.Is(err, domain.ErrEmailTooLong) ||
			errors.Is(err, domain.ErrInvalidLocalPart) ||
			errors.Is(err, domain.ErrInvalidDomain) ||
			errors.Is(err, domain.ErrLocalPartTooLong) ||
			errors.Is(err, domain.ErrDomainTooLong) {
			BadRequest(c, MsgInvalidEmailAddress)
			return
		}
		InternalError(c, MsgInternalError)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordMessageSimulated(string(kind))
	}

	Created(c, gin.H{"message": msg})
}
