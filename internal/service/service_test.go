package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otpmail/backend/internal/domain"
	"otpmail/backend/internal/generator"
	"otpmail/backend/internal/storage"
	"otpmail/backend/internal/storage/memory"
)

// recordingNotifier 记录广播调用，替代真实的 WebSocket Hub。
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) NotifyNewMessage(address string, msg *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, address)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func TestAddressService(t *testing.T) {
	store := memory.NewStore()
	svc := NewAddressService(store, generator.New("gmail.com"))

	t.Run("生成普通地址", func(t *testing.T) {
		record, err := svc.Generate(domain.KindStandard)
		require.NoError(t, err)
		assert.NotEmpty(t, record.ID)
		assert.Contains(t, record.Address, "@gmail.com")

		found, err := svc.GetByValue(record.Address)
		require.NoError(t, err)
		assert.Equal(t, record.ID, found.ID)
	})

	t.Run("生成单点登录地址", func(t *testing.T) {
		record, err := svc.Generate(domain.KindFederated)
		require.NoError(t, err)
		assert.NotContains(t, record.Address, "@gmail.com")
	})

	t.Run("未知类型被拒绝", func(t *testing.T) {
		_, err := svc.Generate(domain.AddressKind("bogus"))
		assert.Error(t, err)
	})

	t.Run("列出全部地址", func(t *testing.T) {
		records, err := svc.List()
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})
}

func TestSimulatorService(t *testing.T) {
	store := memory.NewStore()
	notifier := &recordingNotifier{}
	svc := NewSimulatorService(store, generator.New("gmail.com"), notifier, zap.NewNop())

	t.Run("模拟普通验证码邮件", func(t *testing.T) {
		msg, err := svc.Simulate("alice.smith42@gmail.com", domain.KindStandard)
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.Regexp(t, `^\d{6}$`, msg.OTPCode)
		assert.Contains(t, msg.Content, msg.OTPCode)
		assert.False(t, msg.IsRead)
		assert.Equal(t, 1, notifier.count())
	})

	t.Run("未落库地址自动创建", func(t *testing.T) {
		_, err := svc.Simulate("fresh.user99@gmail.com", domain.KindStandard)
		require.NoError(t, err)

		record, err := store.GetAddressByValue("fresh.user99@gmail.com")
		require.NoError(t, err)

		messages, err := store.ListMessages(record.ID)
		require.NoError(t, err)
		assert.Len(t, messages, 1)
	})

	t.Run("非法地址被拒绝", func(t *testing.T) {
		_, err := svc.Simulate("not-an-email", domain.KindStandard)
		assert.Error(t, err)
	})

	t.Run("未知类型被拒绝", func(t *testing.T) {
		_, err := svc.Simulate("bob_jones77@gmail.com", domain.AddressKind("bogus"))
		assert.Error(t, err)
	})

	t.Run("订阅触发双邮件投递", func(t *testing.T) {
		before := notifier.count()
		svc.SimulateBoth("carol99@gmail.com")
		assert.Equal(t, before+2, notifier.count())

		record, err := store.GetAddressByValue("carol99@gmail.com")
		require.NoError(t, err)
		messages, err := store.ListMessages(record.ID)
		require.NoError(t, err)
		require.Len(t, messages, 2)
	})
}

func TestMessageService(t *testing.T) {
	store := memory.NewStore()
	simulator := NewSimulatorService(store, generator.New("gmail.com"), nil, zap.NewNop())
	svc := NewMessageService(store, store)

	seeded, err := simulator.Simulate("dave.lee1234@gmail.com", domain.KindStandard)
	require.NoError(t, err)

	t.Run("按地址列出邮件", func(t *testing.T) {
		messages, err := svc.ListByAddress("dave.lee1234@gmail.com")
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, seeded.ID, messages[0].ID)
	})

	t.Run("未知地址返回 ErrAddressNotFound", func(t *testing.T) {
		_, err := svc.ListByAddress("missing@gmail.com")
		assert.ErrorIs(t, err, storage.ErrAddressNotFound)
	})

	t.Run("标记已读幂等", func(t *testing.T) {
		updated, err := svc.MarkRead(seeded.ID)
		require.NoError(t, err)
		assert.True(t, updated.IsRead)

		again, err := svc.MarkRead(seeded.ID)
		require.NoError(t, err)
		assert.True(t, again.IsRead)
	})

	t.Run("删除邮件", func(t *testing.T) {
		removed, err := svc.Delete(seeded.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		messages, err := svc.ListByAddress("dave.lee1234@gmail.com")
		require.NoError(t, err)
		assert.Empty(t, messages)
	})
}
