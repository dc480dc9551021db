package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"otpmail/backend/internal/domain"
	"otpmail/backend/internal/pool"
)

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// 如果允许所有来源
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			// 获取请求的 Origin
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 如果没有 Origin，检查是否是同源请求
				return true
			}

			// 检查 Origin 是否在允许列表中
			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}

			return false
		},
	}
}

// EventType 定义WebSocket事件类型
type EventType string

const (
	EventConnectionStatus EventType = "CONNECTION_STATUS"
	EventConnected        EventType = "CONNECTED"
	EventSubscribeEmail   EventType = "SUBSCRIBE_EMAIL"
	EventSubscribed       EventType = "SUBSCRIBED"
	EventNewMessage       EventType = "NEW_MESSAGE"
	EventError            EventType = "ERROR"
)

// Event 定义WebSocket事件结构
//
// Message 在 NEW_MESSAGE 事件中是完整邮件记录，在 ERROR 事件中是错误描述字符串。
type Event struct {
	Type         EventType   `json:"type"`
	Status       string      `json:"status,omitempty"`
	EmailAddress string      `json:"emailAddress,omitempty"`
	Message      interface{} `json:"message,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// ClientState 表示客户端连接的生命周期阶段
type ClientState int32

const (
	StateConnecting ClientState = iota // 已注册，握手事件尚未发出
	StateOpen                          // 可正常投递
	StateClosed                        // 连接已关闭
	StateError                         // 连接因错误终止
)

// String 返回状态的可读名称
func (s ClientState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID    string
	conn  *websocket.Conn
	send  chan []byte
	hub   *Hub
	state atomic.Int32
	mu    sync.RWMutex
	// 当前订阅的地址；每个客户端同一时刻只订阅一个地址，后订阅覆盖先订阅
	address string
	log     *zap.Logger

	// 发送队列的关闭状态；所有写入必须经过 trySend，
	// 与注销路径的 closeSend 互斥，避免向已关闭的通道写入
	sendMu     sync.RWMutex
	sendClosed bool
}

// State 返回客户端当前状态
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// trySend 尝试把已编码的事件写入发送队列；队列已关闭或已满时返回 false
func (c *Client) trySend(data []byte) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	if c.sendClosed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend 关闭发送队列，幂等
func (c *Client) closeSend() {
	c.sendMu.Lock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
	c.sendMu.Unlock()
}

// setState 更新客户端状态；终止状态不会被覆盖
func (c *Client) setState(next ClientState) {
	for {
		current := c.state.Load()
		if ClientState(current) == StateClosed || ClientState(current) == StateError {
			return
		}
		if c.state.CompareAndSwap(current, int32(next)) {
			return
		}
	}
}

// Metrics 是 Hub 上报投递指标的接口
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	DeliverySucceeded()
	DeliveryRetried()
	DeliveryDropped()
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	EmailAddress string
	Message      *domain.Message
}

// Hub 管理所有WebSocket连接
type Hub struct {
	clients        map[string]*Client            // clientID -> Client
	byAddress      map[string]map[string]*Client // emailAddress -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *BroadcastMessage
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
	workers        *pool.WorkerPool
	retryAttempts  int
	retryInterval  time.Duration
	metrics        Metrics
	// 订阅建立后触发的回调，用于演示场景下向新订阅地址投递邮件
	subscribeHook func(emailAddress string)
}

// NewHub 创建WebSocket Hub
//
// 参数:
//   - allowedOrigins: 允许的 Origin 列表，用于 WebSocket 连接验证
//   - workers: 重试投递任务使用的协程池
//   - retryAttempts: 对处于 connecting 状态客户端的最大投递尝试次数
//   - retryInterval: 两次尝试之间的等待时间
func NewHub(allowedOrigins []string, workers *pool.WorkerPool, retryAttempts int, retryInterval time.Duration, log *zap.Logger) *Hub {
	// 如果没有配置，默认允许所有
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if retryAttempts <= 0 {
		retryAttempts = 5
	}
	if retryInterval <= 0 {
		retryInterval = time.Second
	}

	return &Hub{
		clients:        make(map[string]*Client),
		byAddress:      make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *BroadcastMessage, 256),
		log:            log,
		allowedOrigins: allowedOrigins,
		workers:        workers,
		retryAttempts:  retryAttempts,
		retryInterval:  retryInterval,
	}
}

// SetSubscribeHook 注册订阅建立后的回调
func (h *Hub) SetSubscribeHook(hook func(emailAddress string)) {
	h.subscribeHook = hook
}

// SetMetrics 注册指标上报接口
func (h *Hub) SetMetrics(m Metrics) {
	h.metrics = m
}

// Run 启动Hub
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.ConnectionOpened()
			}
			h.log.Info("client registered", zap.String("id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				h.detachAddressLocked(client)
				delete(h.clients, client.ID)
				client.closeSend()
				if h.metrics != nil {
					h.metrics.ConnectionClosed()
				}
				h.log.Info("client unregistered", zap.String("id", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastToAddress(msg.EmailAddress, msg.Message)
		}
	}
}

// detachAddressLocked 把客户端从其当前订阅地址的索引中移除；调用方需持有 h.mu
func (h *Hub) detachAddressLocked(client *Client) {
	client.mu.RLock()
	address := client.address
	client.mu.RUnlock()

	if address == "" {
		return
	}
	if clients, exists := h.byAddress[address]; exists {
		delete(clients, client.ID)
		if len(clients) == 0 {
			delete(h.byAddress, address)
		}
	}
}

// NotifyNewMessage 通知某个地址的订阅者有新邮件
func (h *Hub) NotifyNewMessage(address string, message *domain.Message) {
	h.log.Info("broadcasting new message",
		zap.String("address", address),
		zap.String("messageID", message.ID),
		zap.String("subject", message.Subject))

	h.broadcast <- &BroadcastMessage{
		EmailAddress: address,
		Message:      message,
	}
}

// broadcastToAddress 向订阅特定地址的客户端投递新邮件事件
//
// 无人订阅时直接丢弃。对尚未完成握手的客户端，投递任务转入协程池
// 按固定间隔重试，直到客户端就绪或尝试次数耗尽。
func (h *Hub) broadcastToAddress(address string, message *domain.Message) {
	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.byAddress[address]))
	for _, client := range h.byAddress[address] {
		subscribers = append(subscribers, client)
	}
	h.mu.RUnlock()

	if len(subscribers) == 0 {
		return
	}

	event := &Event{
		Type:         EventNewMessage,
		EmailAddress: address,
		Message:      message,
		Timestamp:    time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to marshal new message event", zap.Error(err))
		return
	}

	for _, client := range subscribers {
		switch client.State() {
		case StateOpen:
			h.deliver(client, data)
		case StateConnecting:
			h.scheduleRetry(client, data)
		default:
			// 已终止的连接在注销前可能短暂残留在索引中，跳过
		}
	}
}

// deliver 把已编码的事件写入客户端的发送队列
func (h *Hub) deliver(client *Client, data []byte) {
	if client.trySend(data) {
		if h.metrics != nil {
			h.metrics.DeliverySucceeded()
		}
		return
	}

	// 客户端阻塞或已注销，跳过
	if h.metrics != nil {
		h.metrics.DeliveryDropped()
	}
	h.log.Warn("client not writable, skipping", zap.String("clientID", client.ID))
}

// scheduleRetry 为握手中的客户端安排延迟投递
func (h *Hub) scheduleRetry(client *Client, data []byte) {
	task := func() {
		for attempt := 1; attempt <= h.retryAttempts; attempt++ {
			switch client.State() {
			case StateOpen:
				h.deliver(client, data)
				return
			case StateClosed, StateError:
				if h.metrics != nil {
					h.metrics.DeliveryDropped()
				}
				return
			}

			if h.metrics != nil {
				h.metrics.DeliveryRetried()
			}
			time.Sleep(h.retryInterval)
		}

		// 尝试耗尽，静默丢弃
		if h.metrics != nil {
			h.metrics.DeliveryDropped()
		}
		h.log.Debug("delivery retries exhausted", zap.String("clientID", client.ID))
	}

	if h.workers == nil || !h.workers.TrySubmit(task) {
		// 协程池饱和时降级为独立协程，保持与池内任务相同的 panic 隔离
		go func() {
			defer func() {
				_ = recover()
			}()
			task()
		}()
	}
}

// ConnectionCount 返回当前已注册的连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.setState(StateClosed)
		client.closeSend()
	}
	h.clients = make(map[string]*Client)
	h.byAddress = make(map[string]map[string]*Client)
}

// HandleWebSocket 处理WebSocket连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	// 使用 Hub 配置的允许 Origin 创建 upgrader
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client := &Client{
			ID:   uuid.NewString(),
			conn: conn,
			hub:  hub,
			send: make(chan []byte, 256),
			log:  hub.log,
		}

		// 注册客户端；握手事件发出之前保持 connecting 状态
		hub.register <- client

		go client.writePump()
		go client.readPump()

		client.sendEvent(&Event{
			Type:      EventConnectionStatus,
			Status:    "connected",
			Timestamp: time.Now().UTC(),
		})
		client.sendEvent(&Event{
			Type:      EventConnected,
			Timestamp: time.Now().UTC(),
		})
		client.setState(StateOpen)
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.setState(StateClosed)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.setState(StateError)
				c.log.Error("websocket error", zap.Error(err))
			}
			break
		}

		// 非 JSON 载荷不终止连接，回复错误事件后继续读取
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			c.sendError("invalid message format")
			continue
		}

		c.handleEvent(&event)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleEvent 处理接收到的事件
func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventSubscribeEmail:
		c.subscribeAddress(event.EmailAddress)
	default:
		c.sendError("unknown event type")
		c.log.Warn("unknown event type", zap.String("type", string(event.Type)))
	}
}

// subscribeAddress 订阅地址；重复订阅时新地址覆盖旧地址
func (c *Client) subscribeAddress(address string) {
	if address == "" {
		c.sendError("emailAddress is required")
		return
	}

	c.hub.mu.Lock()
	c.hub.detachAddressLocked(c)
	c.mu.Lock()
	c.address = address
	c.mu.Unlock()
	if c.hub.byAddress[address] == nil {
		c.hub.byAddress[address] = make(map[string]*Client)
	}
	c.hub.byAddress[address][c.ID] = c
	c.hub.mu.Unlock()

	c.log.Info("subscribed to address",
		zap.String("clientID", c.ID),
		zap.String("address", address))

	// 发送订阅成功确认
	c.sendEvent(&Event{
		Type:         EventSubscribed,
		EmailAddress: address,
		Timestamp:    time.Now().UTC(),
	})

	if c.hub.subscribeHook != nil {
		c.hub.subscribeHook(address)
	}
}

// sendError 发送错误事件给客户端
func (c *Client) sendError(errMsg string) {
	c.sendEvent(&Event{
		Type:      EventError,
		Message:   errMsg,
		Timestamp: time.Now().UTC(),
	})
}

// sendEvent 发送事件给客户端
func (c *Client) sendEvent(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		c.log.Error("failed to marshal event", zap.Error(err))
		return
	}

	if !c.trySend(data) {
		c.log.Warn("client channel blocked", zap.String("clientID", c.ID))
	}
}
