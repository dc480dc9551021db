package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"otpmail/backend/internal/domain"
	"otpmail/backend/internal/generator"
	"otpmail/backend/internal/storage"
)

// Notifier 把新邮件事件推送给订阅者。
type Notifier interface {
	NotifyNewMessage(address string, msg *domain.Message)
}

// SimulatorService 模拟真实邮件到达：合成内容、落库并广播。
type SimulatorService struct {
	store     storage.Store
	gen       *generator.Generator
	notifier  Notifier
	validator *domain.EmailValidator
	log       *zap.Logger
}

// NewSimulatorService 创建邮件模拟服务。
func NewSimulatorService(store storage.Store, gen *generator.Generator, notifier Notifier, log *zap.Logger) *SimulatorService {
	return &SimulatorService{
		store:     store,
		gen:       gen,
		notifier:  notifier,
		validator: domain.NewEmailValidator(),
		log:       log,
	}
}

// Simulate 向指定地址投递一封模拟验证码邮件。
//
// 地址未落库时先行创建，这让外部注入的任意合法地址也能收信。
func (s *SimulatorService) Simulate(address string, kind domain.AddressKind) (*domain.Message, error) {
	if err := s.validator.ValidateEmail(address); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown address kind: %s", kind)
	}

	record, err := s.store.CreateAddress(address)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure address: %w", err)
	}

	synthesis := s.gen.Synthesize(kind)

	message := &domain.Message{
		ID:         uuid.NewString(),
		AddressID:  record.ID,
		Sender:     synthesis.Sender,
		SenderName: synthesis.SenderName,
		Subject:    synthesis.Subject,
		Content:    synthesis.Content,
		OTPCode:    synthesis.Code,
		ReceivedAt: time.Now().UTC(),
		IsRead:     false,
	}

	if err := s.store.AppendMessage(message); err != nil {
		return nil, fmt.Errorf("failed to store simulated message: %w", err)
	}

	s.log.Info("simulated message delivered",
		zap.String("address", address),
		zap.String("kind", string(kind)),
		zap.String("messageID", message.ID))

	if s.notifier != nil {
		s.notifier.NotifyNewMessage(address, message)
	}

	return message, nil
}

// SimulateBoth 为新订阅地址同时投递一封普通验证码邮件和一封单点登录邮件。
//
// 两封邮件各自独立落库与广播，单封失败不影响另一封。
func (s *SimulatorService) SimulateBoth(address string) {
	for _, kind := range []domain.AddressKind{domain.KindStandard, domain.KindFederated} {
		if _, err := s.Simulate(address, kind); err != nil {
			s.log.Warn("failed to simulate message on subscribe",
				zap.String("address", address),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}
}
