package mailsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"otpmail/backend/internal/domain"
	"otpmail/backend/internal/generator"
	ws "otpmail/backend/internal/websocket"
)

// Status 表示同步客户端与服务端的连接状态
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusError      Status = "error"
)

// Options 配置同步客户端
type Options struct {
	ServerURL       string        // 服务端基地址，如 "http://localhost:8080"
	RefreshInterval time.Duration // 兜底轮询间隔，默认 30s
	ReconnectDelay  time.Duration // 断线后的重连延迟，默认 3s
}

// Syncer 维护单个地址的收件箱视图。
//
// 实时事件走 WebSocket；收到新邮件事件或到达刷新间隔时通过 HTTP
// 重新拉取完整列表，因此推送丢失最多延迟一个轮询周期。
type Syncer struct {
	opts Options
	log  *zap.Logger

	httpClient *http.Client

	mu            sync.RWMutex
	address       string
	messages      []domain.Message
	lastRefreshed time.Time
	status        Status

	connMu sync.Mutex
	conn   *websocket.Conn

	refresh chan struct{}
}

// New 创建同步客户端
func New(opts Options, log *zap.Logger) (*Syncer, error) {
	if opts.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 30 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}

	return &Syncer{
		opts:       opts,
		log:        log,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		status:     StatusClosed,
		refresh:    make(chan struct{}, 1),
	}, nil
}

// Run 维持 WebSocket 连接与兜底轮询，直到 ctx 取消。
//
// 连接断开后等待固定延迟重连，同一时刻只有一个待执行的重连。
func (s *Syncer) Run(ctx context.Context) error {
	go s.refreshLoop(ctx)

	for {
		if err := ctx.Err(); err != nil {
			s.setStatus(StatusClosed)
			return err
		}

		s.setStatus(StatusConnecting)
		if err := s.runConnection(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("websocket connection lost", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.setStatus(StatusClosed)
			return ctx.Err()
		case <-time.After(s.opts.ReconnectDelay):
		}
	}
}

// runConnection 建立一条 WebSocket 连接并消费事件直到连接断开
func (s *Syncer) runConnection(ctx context.Context) error {
	wsURL, err := s.websocketURL()
	if err != nil {
		s.setStatus(StatusError)
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		s.setStatus(StatusError)
		return fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	s.setStatus(StatusOpen)

	defer func() {
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
		conn.Close()
	}()

	// 连接建立后重新订阅当前地址
	if address := s.Address(); address != "" {
		if err := s.writeSubscribe(address); err != nil {
			return err
		}
	}

	// ctx 取消时主动关闭连接，促使读循环退出
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event ws.Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.setStatus(StatusError)
			return err
		}
		s.handleEvent(&event)
	}
}

// handleEvent 处理服务端推送的事件
func (s *Syncer) handleEvent(event *ws.Event) {
	switch event.Type {
	case ws.EventNewMessage:
		// 只有当前订阅地址的新邮件才触发刷新
		if event.EmailAddress == s.Address() {
			s.triggerRefresh()
		}
	case ws.EventSubscribed:
		s.triggerRefresh()
	case ws.EventConnectionStatus, ws.EventConnected:
		// 握手事件，无需处理
	case ws.EventError:
		s.log.Warn("server reported error", zap.Any("message", event.Message))
	}
}

// refreshLoop 周期性拉取收件箱，收到刷新信号时立即拉取
func (s *Syncer) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.refresh:
		}

		if address := s.Address(); address != "" {
			if err := s.fetchMessages(ctx, address); err != nil {
				s.log.Warn("failed to refresh inbox",
					zap.String("address", address),
					zap.Error(err))
			}
		}
	}
}

// triggerRefresh 请求一次立即刷新；已有待处理请求时合并
func (s *Syncer) triggerRefresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// fetchMessages 通过 HTTP 拉取指定地址的完整邮件列表
func (s *Syncer) fetchMessages(ctx context.Context, address string) error {
	endpoint := fmt.Sprintf("%s/api/email/%s/messages",
		strings.TrimRight(s.opts.ServerURL, "/"), url.PathEscape(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Success  bool             `json:"success"`
		Messages []domain.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}

	s.mu.Lock()
	// 拉取期间地址被切换时丢弃过期结果
	if s.address == address {
		s.messages = body.Messages
		s.lastRefreshed = time.Now()
	}
	s.mu.Unlock()

	return nil
}

// SetAddress 切换当前订阅的地址并立即刷新收件箱
func (s *Syncer) SetAddress(address string) {
	s.mu.Lock()
	if s.address == address {
		s.mu.Unlock()
		return
	}
	s.address = address
	s.messages = nil
	s.lastRefreshed = time.Time{}
	s.mu.Unlock()

	if address == "" {
		return
	}

	// 连接已建立时立即订阅；否则重连后由 runConnection 补发
	if err := s.writeSubscribe(address); err != nil {
		s.log.Debug("subscribe deferred until reconnect", zap.Error(err))
	}

	s.triggerRefresh()
}

// writeSubscribe 通过当前连接发送订阅事件
func (s *Syncer) writeSubscribe(address string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	return s.conn.WriteJSON(ws.Event{
		Type:         ws.EventSubscribeEmail,
		EmailAddress: address,
	})
}

// websocketURL 把 HTTP 基地址转换为 WebSocket 端点
func (s *Syncer) websocketURL() (string, error) {
	parsed, err := url.Parse(s.opts.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme: %s", parsed.Scheme)
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws"
	return parsed.String(), nil
}

// Address 返回当前订阅的地址
func (s *Syncer) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// Messages 返回当前收件箱视图的快照
func (s *Syncer) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// LatestCode 返回最新一封邮件里的验证码。
// 邮件缺少结构化验证码字段时回退到正文提取。
func (s *Syncer) LatestCode() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return "", false
	}
	latest := s.messages[0]
	for _, msg := range s.messages[1:] {
		if msg.ReceivedAt.After(latest.ReceivedAt) {
			latest = msg
		}
	}
	if latest.OTPCode != "" {
		return latest.OTPCode, true
	}
	return generator.ExtractCode(latest.Content)
}

// LastRefreshed 返回最近一次成功拉取的时间
func (s *Syncer) LastRefreshed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefreshed
}

// Status 返回当前连接状态
func (s *Syncer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Syncer) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}
