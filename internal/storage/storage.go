package storage

import (
	"errors"

	"otpmail/backend/internal/domain"
)

var (
	// ErrAddressNotFound 地址不存在错误
	ErrAddressNotFound = errors.New("address not found")
	// ErrMessageNotFound 邮件不存在错误
	ErrMessageNotFound = errors.New("message not found")
	// ErrStorageUnavailable 后端存储不可达错误
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// AddressRepository 定义地址数据存取操作。
type AddressRepository interface {
	// CreateAddress 插入新地址；若同值地址已存在则返回既有记录（按值幂等）。
	CreateAddress(address string) (*domain.Address, error)
	GetAddress(id string) (*domain.Address, error)
	GetAddressByValue(address string) (*domain.Address, error)
	ListAddresses() ([]domain.Address, error)
}

// MessageRepository 定义邮件数据存取操作。
//
// 邮件按接收时间保序：ListMessages 返回的序列创建时间单调不减。
type MessageRepository interface {
	// AppendMessage 追加一封邮件；地址必须已存在。
	AppendMessage(message *domain.Message) error
	ListMessages(addressID string) ([]domain.Message, error)
	GetMessage(messageID string) (*domain.Message, error)
	// MarkMessageRead 置位已读标志，幂等；返回更新后的记录。
	MarkMessageRead(messageID string) (*domain.Message, error)
	// DeleteMessage 删除邮件，返回是否确有记录被移除。
	DeleteMessage(messageID string) (bool, error)
}

// Store 定义完整的存储接口。
type Store interface {
	AddressRepository
	MessageRepository

	Close() error
	Health() error
}
