package sql

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"otpmail/backend/internal/domain"
	"otpmail/backend/internal/storage"
)

// Store 基于 GORM 的关系型数据库存储实现。
type Store struct {
	db *gorm.DB
}

// PoolOptions 控制底层连接池，零值字段使用默认值。
type PoolOptions struct {
	MaxOpenConns    int           // 默认 25
	MaxIdleConns    int           // 默认 5
	ConnMaxLifetime time.Duration // 默认 5 分钟
}

// NewStore 创建 PostgreSQL 存储实例。
func NewStore(dsn string, pool PoolOptions) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn), pool)
}

// NewMySQLStore 创建 MySQL 存储实例。
func NewMySQLStore(dsn string, pool PoolOptions) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn), pool)
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例。
func NewStoreWithDialector(dialector gorm.Dialector, pool PoolOptions) (*Store, error) {
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 25
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 5
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = 5 * time.Minute
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 自动迁移数据库表结构。
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.Address{},
		&domain.Message{},
	)
}

// wrap 将底层数据库错误统一包装成存储不可用错误。
func wrap(err error) error {
	return fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
}

// ========== Address Repository ==========

// CreateAddress 插入新地址；同值地址已存在时返回既有记录。
func (s *Store) CreateAddress(address string) (*domain.Address, error) {
	var existing domain.Address
	err := s.db.Where("address = ?", address).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, wrap(err)
	}

	record := &domain.Address{
		ID:        uuid.NewString(),
		Address:   address,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Create(record).Error; err != nil {
		// 并发插入同值地址会命中唯一索引，此时重查既有记录
		if lookErr := s.db.Where("address = ?", address).First(&existing).Error; lookErr == nil {
			return &existing, nil
		}
		return nil, wrap(err)
	}
	return record, nil
}

// GetAddress 根据 ID 获取地址。
func (s *Store) GetAddress(id string) (*domain.Address, error) {
	var record domain.Address
	err := s.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrAddressNotFound
		}
		return nil, wrap(err)
	}
	return &record, nil
}

// GetAddressByValue 根据完整地址值获取地址。
func (s *Store) GetAddressByValue(address string) (*domain.Address, error) {
	var record domain.Address
	err := s.db.Where("address = ?", address).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrAddressNotFound
		}
		return nil, wrap(err)
	}
	return &record, nil
}

// ListAddresses 返回全部地址。
func (s *Store) ListAddresses() ([]domain.Address, error) {
	var records []domain.Address
	if err := s.db.Order("created_at").Find(&records).Error; err != nil {
		return nil, wrap(err)
	}
	return records, nil
}

// ========== Message Repository ==========

// AppendMessage 保存一封新邮件。
func (s *Store) AppendMessage(message *domain.Message) error {
	var count int64
	if err := s.db.Model(&domain.Address{}).Where("id = ?", message.AddressID).Count(&count).Error; err != nil {
		return wrap(err)
	}
	if count == 0 {
		return storage.ErrAddressNotFound
	}
	if err := s.db.Create(message).Error; err != nil {
		return wrap(err)
	}
	return nil
}

// ListMessages 返回某个地址下的全部邮件，按接收顺序升序。
func (s *Store) ListMessages(addressID string) ([]domain.Message, error) {
	if _, err := s.GetAddress(addressID); err != nil {
		return nil, err
	}

	var records []domain.Message
	if err := s.db.Where("address_id = ?", addressID).Order("received_at, id").Find(&records).Error; err != nil {
		return nil, wrap(err)
	}
	return records, nil
}

// GetMessage 获取单封邮件。
func (s *Store) GetMessage(messageID string) (*domain.Message, error) {
	var record domain.Message
	err := s.db.Where("id = ?", messageID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMessageNotFound
		}
		return nil, wrap(err)
	}
	return &record, nil
}

// MarkMessageRead 将邮件标记为已读，重复标记不报错。
func (s *Store) MarkMessageRead(messageID string) (*domain.Message, error) {
	record, err := s.GetMessage(messageID)
	if err != nil {
		return nil, err
	}
	if record.IsRead {
		return record, nil
	}

	if err := s.db.Model(&domain.Message{}).Where("id = ?", messageID).Update("is_read", true).Error; err != nil {
		return nil, wrap(err)
	}
	record.IsRead = true
	return record, nil
}

// DeleteMessage 删除指定邮件，返回是否确有记录被移除。
func (s *Store) DeleteMessage(messageID string) (bool, error) {
	result := s.db.Where("id = ?", messageID).Delete(&domain.Message{})
	if result.Error != nil {
		return false, wrap(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连通性。
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
