package domain

import (
	"time"
)

// AddressKind 区分地址的生成档案。
type AddressKind string

const (
	// KindStandard 消费级邮箱档案（类 Gmail 地址）。
	KindStandard AddressKind = "standard"
	// KindFederated 企业 SSO 档案（联合身份地址）。
	KindFederated AddressKind = "federated"
)

// Valid 判断是否为受支持的地址档案。
func (k AddressKind) Valid() bool {
	return k == KindStandard || k == KindFederated
}

// Address 表示一个一次性邮箱地址。
//
// 地址全局唯一，首次引用时惰性创建，创建后不可变。
type Address struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address   string    `json:"address" gorm:"type:varchar(255);uniqueIndex;not null"`
	CreatedAt time.Time `json:"createdAt"`
}
