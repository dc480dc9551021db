package domain

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrDomainTooLong    = errors.New("domain too long (max 253 chars)")
	ErrInvalidLocalPart = errors.New("invalid local part format")
	ErrInvalidDomain    = errors.New("invalid domain format")
)

// RFC 5322 邮箱地址长度限制
const (
	MaxEmailLength     = 254 // 整个邮箱地址最大长度
	MaxLocalPartLength = 64  // 本地部分最大长度(@前面)
	MaxDomainLength    = 253 // 域名最大长度
)

var (
	// 本地部分验证（首尾必须为字母或数字）
	localPartRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

	// 域名验证（支持子域名）
	domainRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?(\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?)*$`)
)

// EmailValidator 邮箱验证器
type EmailValidator struct{}

// NewEmailValidator 创建邮箱验证器
func NewEmailValidator() *EmailValidator {
	return &EmailValidator{}
}

// ValidateEmail 校验完整邮箱地址的语法合法性。
func (v *EmailValidator) ValidateEmail(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return ErrInvalidEmail
	}
	if len(address) > MaxEmailLength {
		return ErrEmailTooLong
	}

	// 必须恰好包含一个 @
	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 || strings.Count(address, "@") != 1 {
		return ErrInvalidEmail
	}

	local := address[:at]
	domain := address[at+1:]

	if err := v.ValidateLocalPart(local); err != nil {
		return err
	}
	if err := v.ValidateDomain(domain); err != nil {
		return err
	}

	// 最后使用标准库再做一次宽松校验
	if _, err := mail.ParseAddress(address); err != nil {
		return ErrInvalidEmail
	}

	return nil
}

// ValidateLocalPart 校验邮箱本地部分（@ 前面的部分）。
func (v *EmailValidator) ValidateLocalPart(local string) error {
	if local == "" {
		return ErrInvalidLocalPart
	}
	if len(local) > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}
	if strings.Contains(local, "..") {
		return ErrInvalidLocalPart
	}
	if !localPartRegex.MatchString(local) {
		return ErrInvalidLocalPart
	}
	return nil
}

// ValidateDomain 校验邮箱域名部分。
func (v *EmailValidator) ValidateDomain(domain string) error {
	if domain == "" {
		return ErrInvalidDomain
	}
	if len(domain) > MaxDomainLength {
		return ErrDomainTooLong
	}
	if !strings.Contains(domain, ".") {
		return ErrInvalidDomain
	}
	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}
	return nil
}
