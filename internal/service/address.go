package service

import (
	"fmt"

	"otpmail/backend/internal/domain"
	"otpmail/backend/internal/generator"
	"otpmail/backend/internal/storage"
)

// AddressService 封装临时地址相关业务操作。
type AddressService struct {
	repo storage.AddressRepository
	gen  *generator.Generator
}

// NewAddressService 创建地址业务服务。
func NewAddressService(repo storage.AddressRepository, gen *generator.Generator) *AddressService {
	return &AddressService{
		repo: repo,
		gen:  gen,
	}
}

// Generate 生成指定类型的新地址并持久化。
//
// 生成器撞上已有地址值时返回既有记录，对调用方透明。
func (s *AddressService) Generate(kind domain.AddressKind) (*domain.Address, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown address kind: %s", kind)
	}

	value := s.gen.Address(kind)

	record, err := s.repo.CreateAddress(value)
	if err != nil {
		return nil, fmt.Errorf("failed to persist generated address: %w", err)
	}
	return record, nil
}

// GetByValue 根据完整地址值查询地址。
func (s *AddressService) GetByValue(address string) (*domain.Address, error) {
	return s.repo.GetAddressByValue(address)
}

// List 返回全部已生成的地址。
func (s *AddressService) List() ([]domain.Address, error) {
	return s.repo.ListAddresses()
}
