package httptransport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otpmail/backend/internal/config"
	"otpmail/backend/internal/domain"
	"otpmail/backend/internal/generator"
	"otpmail/backend/internal/service"
	"otpmail/backend/internal/storage/memory"
)

type testEnv struct {
	router    *gin.Engine
	store     *memory.Store
	simulator *service.SimulatorService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit: config.RateLimitConfig{SimulateRPS: 1000, SimulateBurst: 1000},
	}

	store := memory.NewStore()
	gen := generator.New("gmail.com")
	simulator := service.NewSimulatorService(store, gen, nil, zap.NewNop())

	router := NewRouter(RouterDependencies{
		Config:           cfg,
		AddressService:   service.NewAddressService(store, gen),
		MessageService:   service.NewMessageService(store, store),
		SimulatorService: simulator,
		Logger:           zap.NewNop(),
	})

	return &testEnv{router: router, store: store, simulator: simulator}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)

	var decoded map[string]interface{}
	if recorder.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded))
	}
	return recorder, decoded
}

func TestGenerateAddress(t *testing.T) {
	env := newTestEnv(t)

	t.Run("生成消费级地址", func(t *testing.T) {
		recorder, body := env.request(t, http.MethodPost, "/api/email/generate", nil)

		assert.Equal(t, http.StatusCreated, recorder.Code)
		assert.Equal(t, true, body["success"])

		email, ok := body["email"].(map[string]interface{})
		require.True(t, ok)
		assert.NotEmpty(t, email["id"])
		assert.Contains(t, email["address"], "@gmail.com")
	})

	t.Run("生成单点登录地址", func(t *testing.T) {
		recorder, body := env.request(t, http.MethodPost, "/api/email/generate-sso", nil)

		assert.Equal(t, http.StatusCreated, recorder.Code)

		email, ok := body["email"].(map[string]interface{})
		require.True(t, ok)
		assert.NotContains(t, email["address"], "@gmail.com")
	})

	t.Run("列出全部地址", func(t *testing.T) {
		recorder, body := env.request(t, http.MethodGet, "/api/emails", nil)

		assert.Equal(t, http.StatusOK, recorder.Code)
		emails, ok := body["emails"].([]interface{})
		require.True(t, ok)
		assert.Len(t, emails, 2)
	})
}

func TestSimulateReceive(t *testing.T) {
	env := newTestEnv(t)

	t.Run("投递普通验证码邮件", func(t *testing.T) {
		recorder, body := env.request(t, http.MethodPost, "/api/simulate/receive", gin.H{
			"emailAddress": "alice.smith42@gmail.com",
			"type":         "normal",
		})

		assert.Equal(t, http.StatusCreated, recorder.Code)
		assert.Equal(t, true, body["success"])

		message, ok := body["message"].(map[string]interface{})
		require.True(t, ok)
		assert.Regexp(t, `^\d{6}$`, message["otpCode"])
		assert.Equal(t, false, message["isRead"])
	})

	t.Run("投递单点登录邮件", func(t *testing.T) {
		recorder, body := env.request(t, http.MethodPost, "/api/simulate/receive", gin.H{
			"emailAddress": "alice.smith42@gmail.com",
			"type":         "sso",
		})

		assert.Equal(t, http.StatusCreated, recorder.Code)
		message, ok := body["message"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "SSO Verification Code", message["subject"])
	})

	t.Run("省略类型时按普通邮件处理", func(t *testing.T) {
		recorder, body := env.request(t, http.MethodPost, "/api/simulate/receive", gin.H{
			"emailAddress": "alice.smith42@gmail.com",
		})

		assert.Equal(t, http.StatusCreated, recorder.Code)
		message, ok := body["message"].(map[string]interface{})
		require.True(t, ok)
		assert.Regexp(t, `^\d{6}$`, message["otpCode"])
	})

	t.Run("非法地址返回400", func(t *testing.T) {
		recorder, body := env.request(t, http.MethodPost, "/api/simulate/receive", gin.H{
			"emailAddress": "not-an-email",
			"type":         "normal",
		})

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Equal(t, false, body["success"])
	})

	t.Run("非法类型返回400", func(t *testing.T) {
		recorder, _ := env.request(t, http.MethodPost, "/api/simulate/receive", gin.H{
			"emailAddress": "alice.smith42@gmail.com",
			"type":         "unknown",
		})

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func TestListMessages(t *testing.T) {
	env := newTestEnv(t)

	seeded, err := env.simulator.Simulate("bob_jones77@gmail.com", domain.KindStandard)
	require.NoError(t, err)

	t.Run("按地址列出邮件", func(t *testing.T) {
		recorder, body := env.request(t, http.MethodGet, "/api/email/bob_jones77@gmail.com/messages", nil)

		assert.Equal(t, http.StatusOK, recorder.Code)
		messages, ok := body["messages"].([]interface{})
		require.True(t, ok)
		require.Len(t, messages, 1)

		first := messages[0].(map[string]interface{})
		assert.Equal(t, seeded.ID, first["id"])
	})

	t.Run("未知地址返回404", func(t *testing.T) {
		recorder, body := env.request(t, http.MethodGet, "/api/email/missing@gmail.com/messages", nil)

		assert.Equal(t, http.StatusNotFound, recorder.Code)
		assert.Equal(t, false, body["success"])
	})
}

func TestMessageLifecycle(t *testing.T) {
	env := newTestEnv(t)

	seeded, err := env.simulator.Simulate("carol99@gmail.com", domain.KindStandard)
	require.NoError(t, err)

	t.Run("获取单封邮件", func(t *testing.T) {
		recorder, body := env.request(t, http.MethodGet, "/api/messages/"+seeded.ID, nil)

		assert.Equal(t, http.StatusOK, recorder.Code)
		message := body["message"].(map[string]interface{})
		assert.Equal(t, seeded.Subject, message["subject"])
	})

	t.Run("标记已读", func(t *testing.T) {
		recorder, body := env.request(t, http.MethodPatch, "/api/messages/"+seeded.ID+"/read", nil)

		assert.Equal(t, http.StatusOK, recorder.Code)
		message := body["message"].(map[string]interface{})
		assert.Equal(t, true, message["isRead"])
	})

	t.Run("重复标记已读幂等", func(t *testing.T) {
		recorder, _ := env.request(t, http.MethodPatch, "/api/messages/"+seeded.ID+"/read", nil)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("非法邮件ID返回400", func(t *testing.T) {
		recorder, _ := env.request(t, http.MethodPatch, "/api/messages/not-a-uuid/read", nil)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("未知邮件ID返回404", func(t *testing.T) {
		recorder, _ := env.request(t, http.MethodPatch, "/api/messages/"+uuid.NewString()+"/read", nil)
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("删除邮件", func(t *testing.T) {
		recorder, body := env.request(t, http.MethodDelete, "/api/messages/"+seeded.ID, nil)
		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, true, body["success"])

		recorder, _ = env.request(t, http.MethodDelete, "/api/messages/"+seeded.ID, nil)
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}
