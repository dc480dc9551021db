package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otpmail/backend/internal/domain"
	"otpmail/backend/internal/pool"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	workers := pool.NewWorkerPool(2, 16)
	ctx, cancel := context.WithCancel(context.Background())
	workers.Start(ctx)

	hub := NewHub([]string{"*"}, workers, 5, 50*time.Millisecond, zap.NewNop())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", HandleWebSocket(hub))
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return hub, server, cancel
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(raw, &event))
	return event
}

func subscribe(t *testing.T, conn *websocket.Conn, address string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(Event{Type: EventSubscribeEmail, EmailAddress: address}))

	event := readEvent(t, conn)
	require.Equal(t, EventSubscribed, event.Type)
	require.Equal(t, address, event.EmailAddress)
}

func testMessage(address string) *domain.Message {
	return &domain.Message{
		ID:         uuid.NewString(),
		AddressID:  uuid.NewString(),
		Sender:     "verification@gmail.com",
		SenderName: "Acme Account Verification",
		Subject:    "Acme Verification Code",
		Content:    "Your verification code is 482913.",
		OTPCode:    "482913",
		ReceivedAt: time.Now().UTC(),
	}
}

func TestHandshake(t *testing.T) {
	_, server, _ := newTestServer(t)
	conn := dial(t, server)

	t.Run("连接后依次收到握手事件", func(t *testing.T) {
		first := readEvent(t, conn)
		assert.Equal(t, EventConnectionStatus, first.Type)
		assert.Equal(t, "connected", first.Status)

		second := readEvent(t, conn)
		assert.Equal(t, EventConnected, second.Type)
	})
}

func TestSubscribeAndDeliver(t *testing.T) {
	hub, server, _ := newTestServer(t)
	conn := dial(t, server)

	// 消费握手事件
	readEvent(t, conn)
	readEvent(t, conn)

	t.Run("订阅后收到新邮件事件", func(t *testing.T) {
		subscribe(t, conn, "alice.smith42@gmail.com")

		msg := testMessage("alice.smith42@gmail.com")
		hub.NotifyNewMessage("alice.smith42@gmail.com", msg)

		event := readEvent(t, conn)
		require.Equal(t, EventNewMessage, event.Type)
		assert.Equal(t, "alice.smith42@gmail.com", event.EmailAddress)

		payload, ok := event.Message.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, msg.ID, payload["id"])
		assert.Equal(t, msg.Subject, payload["subject"])
		assert.Equal(t, msg.OTPCode, payload["otpCode"])
	})

	t.Run("后订阅覆盖先订阅", func(t *testing.T) {
		subscribe(t, conn, "bob_jones77@gmail.com")

		// 旧地址的邮件不再投递
		hub.NotifyNewMessage("alice.smith42@gmail.com", testMessage("alice.smith42@gmail.com"))
		hub.NotifyNewMessage("bob_jones77@gmail.com", testMessage("bob_jones77@gmail.com"))

		event := readEvent(t, conn)
		require.Equal(t, EventNewMessage, event.Type)
		assert.Equal(t, "bob_jones77@gmail.com", event.EmailAddress)
	})
}

func TestMalformedPayload(t *testing.T) {
	_, server, _ := newTestServer(t)
	conn := dial(t, server)

	readEvent(t, conn)
	readEvent(t, conn)

	t.Run("非JSON载荷返回错误且连接保持", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

		event := readEvent(t, conn)
		assert.Equal(t, EventError, event.Type)

		// 连接仍然可用
		subscribe(t, conn, "carol99@gmail.com")
	})

	t.Run("缺少地址的订阅返回错误", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(Event{Type: EventSubscribeEmail}))

		event := readEvent(t, conn)
		assert.Equal(t, EventError, event.Type)
	})

	t.Run("未知事件类型返回错误", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(Event{Type: "BOGUS"}))

		event := readEvent(t, conn)
		assert.Equal(t, EventError, event.Type)
	})
}

func TestNoSubscribers(t *testing.T) {
	hub, server, _ := newTestServer(t)
	conn := dial(t, server)

	readEvent(t, conn)
	readEvent(t, conn)

	t.Run("无人订阅时广播被丢弃", func(t *testing.T) {
		hub.NotifyNewMessage("nobody@gmail.com", testMessage("nobody@gmail.com"))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err)
	})
}

// countingMetrics 统计投递结果，供重试路径断言
type countingMetrics struct {
	mu        sync.Mutex
	succeeded int
	retried   int
	dropped   int
}

func (m *countingMetrics) ConnectionOpened() {}
func (m *countingMetrics) ConnectionClosed() {}

func (m *countingMetrics) DeliverySucceeded() {
	m.mu.Lock()
	m.succeeded++
	m.mu.Unlock()
}

func (m *countingMetrics) DeliveryRetried() {
	m.mu.Lock()
	m.retried++
	m.mu.Unlock()
}

func (m *countingMetrics) DeliveryDropped() {
	m.mu.Lock()
	m.dropped++
	m.mu.Unlock()
}

func (m *countingMetrics) snapshot() (succeeded, retried, dropped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.succeeded, m.retried, m.dropped
}

func newRetryClient(hub *Hub) *Client {
	return &Client{
		ID:   uuid.NewString(),
		hub:  hub,
		send: make(chan []byte, 8),
		log:  zap.NewNop(),
	}
}

func TestDeliveryRetry(t *testing.T) {
	t.Run("握手完成前的投递重试后送达", func(t *testing.T) {
		metrics := &countingMetrics{}
		hub := NewHub([]string{"*"}, nil, 5, 20*time.Millisecond, zap.NewNop())
		hub.SetMetrics(metrics)

		client := newRetryClient(hub)
		require.Equal(t, StateConnecting, client.State())

		hub.scheduleRetry(client, []byte("payload"))

		// 几轮重试之后客户端才完成握手
		time.Sleep(50 * time.Millisecond)
		client.setState(StateOpen)

		select {
		case data := <-client.send:
			assert.Equal(t, []byte("payload"), data)
		case <-time.After(time.Second):
			t.Fatal("delivery never arrived")
		}

		succeeded, retried, _ := metrics.snapshot()
		assert.Equal(t, 1, succeeded)
		assert.GreaterOrEqual(t, retried, 1)
	})

	t.Run("尝试耗尽后静默丢弃", func(t *testing.T) {
		metrics := &countingMetrics{}
		hub := NewHub([]string{"*"}, nil, 3, 10*time.Millisecond, zap.NewNop())
		hub.SetMetrics(metrics)

		client := newRetryClient(hub)
		hub.scheduleRetry(client, []byte("payload"))

		require.Eventually(t, func() bool {
			_, _, dropped := metrics.snapshot()
			return dropped == 1
		}, time.Second, 10*time.Millisecond)

		assert.Empty(t, client.send)
		succeeded, retried, _ := metrics.snapshot()
		assert.Equal(t, 0, succeeded)
		assert.Equal(t, 3, retried)
	})

	t.Run("连接已终止时立即丢弃", func(t *testing.T) {
		metrics := &countingMetrics{}
		hub := NewHub([]string{"*"}, nil, 5, 10*time.Millisecond, zap.NewNop())
		hub.SetMetrics(metrics)

		client := newRetryClient(hub)
		client.setState(StateClosed)
		hub.scheduleRetry(client, []byte("payload"))

		require.Eventually(t, func() bool {
			_, _, dropped := metrics.snapshot()
			return dropped == 1
		}, time.Second, 5*time.Millisecond)

		_, retried, _ := metrics.snapshot()
		assert.Equal(t, 0, retried)
		assert.Empty(t, client.send)
	})

	t.Run("重试期间注销不影响进程", func(t *testing.T) {
		metrics := &countingMetrics{}
		hub := NewHub([]string{"*"}, nil, 5, 10*time.Millisecond, zap.NewNop())
		hub.SetMetrics(metrics)

		client := newRetryClient(hub)
		hub.scheduleRetry(client, []byte("payload"))

		// 注销路径关闭发送队列后客户端才就绪，投递必须安全落空
		client.closeSend()
		client.setState(StateOpen)

		require.Eventually(t, func() bool {
			_, _, dropped := metrics.snapshot()
			return dropped >= 1
		}, time.Second, 5*time.Millisecond)

		succeeded, _, _ := metrics.snapshot()
		assert.Equal(t, 0, succeeded)
	})

	t.Run("发送队列关闭后的直接投递安全落空", func(t *testing.T) {
		metrics := &countingMetrics{}
		hub := NewHub([]string{"*"}, nil, 5, 10*time.Millisecond, zap.NewNop())
		hub.SetMetrics(metrics)

		client := newRetryClient(hub)
		client.setState(StateOpen)
		client.closeSend()
		client.closeSend() // 幂等

		hub.deliver(client, []byte("payload"))

		succeeded, _, dropped := metrics.snapshot()
		assert.Equal(t, 0, succeeded)
		assert.Equal(t, 1, dropped)
	})
}

func TestSubscribeHook(t *testing.T) {
	hub, server, _ := newTestServer(t)

	hooked := make(chan string, 1)
	hub.SetSubscribeHook(func(address string) {
		hooked <- address
	})

	conn := dial(t, server)
	readEvent(t, conn)
	readEvent(t, conn)

	subscribe(t, conn, "dave.lee1234@gmail.com")

	select {
	case address := <-hooked:
		assert.Equal(t, "dave.lee1234@gmail.com", address)
	case <-time.After(time.Second):
		t.Fatal("subscribe hook not invoked")
	}
}
