package domain

import "time"

// Message 表示投递到某个一次性地址的一封验证邮件。
//
// read 标志单调：只能从 false 翻转为 true，不会回退。
type Message struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AddressID  string    `json:"emailId" gorm:"type:varchar(36);index;not null"`
	Sender     string    `json:"sender" gorm:"type:varchar(255);not null"`
	SenderName string    `json:"senderName" gorm:"type:varchar(255);not null"`
	Subject    string    `json:"subject" gorm:"type:varchar(500);not null"`
	Content    string    `json:"content" gorm:"type:text;not null"`
	OTPCode    string    `json:"otpCode,omitempty" gorm:"type:varchar(32)"`
	ReceivedAt time.Time `json:"receivedAt"`
	IsRead     bool      `json:"isRead" gorm:"default:false;index"`
}
