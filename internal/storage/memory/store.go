package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"otpmail/backend/internal/domain"
	"otpmail/backend/internal/storage"
)

// Store 使用内存保存地址与邮件数据，主要用于开发验证。
//
// 每个地址的邮件保存在追加式切片中，天然保持插入顺序。
type Store struct {
	mu          sync.RWMutex
	addresses   map[string]*domain.Address // addressID -> address
	byValue     map[string]string          // address value -> addressID
	messages    map[string][]*domain.Message // addressID -> ordered messages
	byMessageID map[string]*domain.Message // messageID -> message
	msgAddress  map[string]string          // messageID -> addressID
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		addresses:   make(map[string]*domain.Address),
		byValue:     make(map[string]string),
		messages:    make(map[string][]*domain.Message),
		byMessageID: make(map[string]*domain.Message),
		msgAddress:  make(map[string]string),
	}
}

// CreateAddress 插入新地址；同值地址已存在时返回既有记录。
func (s *Store) CreateAddress(address string) (*domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byValue[address]; ok {
		existing := *s.addresses[id]
		return &existing, nil
	}

	record := &domain.Address{
		ID:        uuid.NewString(),
		Address:   address,
		CreatedAt: time.Now().UTC(),
	}
	s.addresses[record.ID] = record
	s.byValue[address] = record.ID

	snapshot := *record
	return &snapshot, nil
}

// GetAddress 根据 ID 获取地址。
func (s *Store) GetAddress(id string) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.addresses[id]
	if !ok {
		return nil, storage.ErrAddressNotFound
	}
	snapshot := *record
	return &snapshot, nil
}

// GetAddressByValue 根据完整地址值获取地址。
func (s *Store) GetAddressByValue(address string) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byValue[address]
	if !ok {
		return nil, storage.ErrAddressNotFound
	}
	snapshot := *s.addresses[id]
	return &snapshot, nil
}

// ListAddresses 返回全部地址的快照。
func (s *Store) ListAddresses() ([]domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Address, 0, len(s.addresses))
	for _, record := range s.addresses {
		result = append(result, *record)
	}
	return result, nil
}

// AppendMessage 追加一封邮件到所属地址的有序列表尾部。
func (s *Store) AppendMessage(message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addresses[message.AddressID]; !ok {
		return storage.ErrAddressNotFound
	}

	stored := *message
	s.messages[message.AddressID] = append(s.messages[message.AddressID], &stored)
	s.byMessageID[message.ID] = &stored
	s.msgAddress[message.ID] = message.AddressID

	return nil
}

// ListMessages 返回某个地址下的全部邮件，按接收顺序升序。
func (s *Store) ListMessages(addressID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.addresses[addressID]; !ok {
		return nil, storage.ErrAddressNotFound
	}

	stored := s.messages[addressID]
	result := make([]domain.Message, 0, len(stored))
	for _, msg := range stored {
		result = append(result, *msg)
	}
	return result, nil
}

// GetMessage 获取单封邮件。
func (s *Store) GetMessage(messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.byMessageID[messageID]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	snapshot := *msg
	return &snapshot, nil
}

// MarkMessageRead 将邮件标记为已读。
//
// 幂等：重复标记已读邮件直接返回当前记录，不报错。
func (s *Store) MarkMessageRead(messageID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.byMessageID[messageID]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}

	msg.IsRead = true

	snapshot := *msg
	return &snapshot, nil
}

// DeleteMessage 删除指定邮件，返回是否确有记录被移除。
func (s *Store) DeleteMessage(messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addressID, ok := s.msgAddress[messageID]
	if !ok {
		return false, nil
	}

	stored := s.messages[addressID]
	for i, msg := range stored {
		if msg.ID == messageID {
			s.messages[addressID] = append(stored[:i], stored[i+1:]...)
			break
		}
	}
	delete(s.byMessageID, messageID)
	delete(s.msgAddress, messageID)

	return true, nil
}

// Close 关闭存储。内存实现无资源可释放。
func (s *Store) Close() error {
	return nil
}

// Health 检查存储健康状态。内存实现恒为健康。
func (s *Store) Health() error {
	return nil
}
