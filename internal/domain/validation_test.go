package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmailValidator_ValidateEmail(t *testing.T) {
	v := NewEmailValidator()

	t.Run("合法邮箱地址", func(t *testing.T) {
		valid := []string{
			"john.smith123@gmail.com",
			"emma_wilson450@gmail.com",
			"developer@sso.company.org",
			"id.1234@id.enterprise.com",
			"employee10421@auth.single-sign-on.com",
		}
		for _, addr := range valid {
			assert.NoError(t, v.ValidateEmail(addr), addr)
		}
	})

	t.Run("非法邮箱地址", func(t *testing.T) {
		invalid := []string{
			"",
			"no-at-sign",
			"@gmail.com",
			"john@",
			"john@@gmail.com",
			"john..smith@gmail.com",
			".john@gmail.com",
			"john@localhost",
		}
		for _, addr := range invalid {
			assert.Error(t, v.ValidateEmail(addr), addr)
		}
	})

	t.Run("超长地址被拒绝", func(t *testing.T) {
		long := strings.Repeat("a", MaxLocalPartLength+1) + "@gmail.com"
		assert.ErrorIs(t, v.ValidateEmail(long), ErrLocalPartTooLong)

		domain := strings.Repeat("a", 60) + "." + strings.Repeat("b", 200) + ".com"
		assert.Error(t, v.ValidateEmail("user@"+domain))
	})
}
