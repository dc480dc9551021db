package generator

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otpmail/backend/internal/domain"
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

func TestGenerator_StandardAddress(t *testing.T) {
	g := New("gmail.com")
	validator := domain.NewEmailValidator()

	pattern := regexp.MustCompile(`^[a-z]+(?:[._][a-z]+)?[0-9]{2,4}@gmail\.com$`)

	for i := 0; i < 200; i++ {
		addr := g.Address(domain.KindStandard)
		assert.Regexp(t, pattern, addr)
		assert.NoError(t, validator.ValidateEmail(addr), addr)
	}
}

func TestGenerator_FederatedAddress(t *testing.T) {
	g := New("")
	validator := domain.NewEmailValidator()

	providerDomains := map[string]bool{}
	for _, p := range ssoProviders {
		providerDomains[p.domain] = true
	}

	for i := 0; i < 200; i++ {
		addr := g.Address(domain.KindFederated)
		assert.NoError(t, validator.ValidateEmail(addr), addr)

		at := strings.LastIndex(addr, "@")
		require.Greater(t, at, 0)
		assert.True(t, providerDomains[addr[at+1:]], "unknown provider domain in %s", addr)
	}
}

func TestGenerator_SynthesizeStandard(t *testing.T) {
	g := New("gmail.com")

	for i := 0; i < 200; i++ {
		syn := g.Synthesize(domain.KindStandard)

		assert.Len(t, syn.Code, 6)
		assert.Regexp(t, digitsOnly, syn.Code)
		assert.Contains(t, syn.Content, syn.Code)
		assert.Contains(t, syn.Subject, "Verification Code")
		assert.NotEmpty(t, syn.Sender)
		assert.NotEmpty(t, syn.SenderName)

		// 验证码经由模板嵌入正文，必须能原样提取回来
		code, ok := ExtractCode(syn.Content)
		require.True(t, ok, syn.Content)
		assert.Equal(t, syn.Code, code)
	}
}

func TestGenerator_SynthesizeFederated(t *testing.T) {
	g := New("")

	for i := 0; i < 200; i++ {
		syn := g.Synthesize(domain.KindFederated)

		assert.Contains(t, syn.Content, syn.Code)
		assert.Equal(t, "SSO Verification Code", syn.Subject)
		assert.True(t, strings.HasPrefix(syn.Sender, "verification@"), syn.Sender)
		assert.True(t, strings.HasSuffix(syn.SenderName, "Authentication"), syn.SenderName)

		// 纯数字验证码必须能从正文提取；字母数字格式不在提取规则覆盖范围内
		if digitsOnly.MatchString(syn.Code) {
			code, ok := ExtractCode(syn.Content)
			require.True(t, ok, syn.Content)
			assert.Equal(t, syn.Code, code)
		}
	}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"带标签的验证码", "Your verification code is 482913.", "482913", true},
		{"安全码标签", "Your security code: 55123 expires soon", "55123", true},
		{"OTP标签", "OTP: 9921", "9921", true},
		{"is your后缀", "774422 is your login code", "774422", true},
		{"孤立6位数字回退", "Please enter 348201 to continue", "348201", true},
		{"无验证码", "Hello, this message contains no numbers worth finding", "", false},
		{"数字太短", "Your code is 12", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractCode(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
