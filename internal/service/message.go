package service

import (
	"otpmail/backend/internal/domain"
	"otpmail/backend/internal/storage"
)

// MessageService 封装邮件查询与读取状态相关业务操作。
type MessageService struct {
	addresses storage.AddressRepository
	messages  storage.MessageRepository
}

// NewMessageService 创建邮件业务服务。
func NewMessageService(addresses storage.AddressRepository, messages storage.MessageRepository) *MessageService {
	return &MessageService{
		addresses: addresses,
		messages:  messages,
	}
}

// ListByAddress 返回某个地址收到的全部邮件，按接收顺序升序。
func (s *MessageService) ListByAddress(address string) ([]domain.Message, error) {
	record, err := s.addresses.GetAddressByValue(address)
	if err != nil {
		return nil, err
	}
	return s.messages.ListMessages(record.ID)
}

// Get 获取单封邮件。
func (s *MessageService) Get(messageID string) (*domain.Message, error) {
	return s.messages.GetMessage(messageID)
}

// MarkRead 将邮件标记为已读；重复标记幂等。
func (s *MessageService) MarkRead(messageID string) (*domain.Message, error) {
	return s.messages.MarkMessageRead(messageID)
}

// Delete 删除指定邮件。
func (s *MessageService) Delete(messageID string) (bool, error) {
	return s.messages.DeleteMessage(messageID)
}
