package generator

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"otpmail/backend/internal/domain"
)

// 消费级地址的姓名词表
var (
	firstNames = []string{
		"john", "alex", "sara", "mike", "lisa", "david", "emma", "james", "sophia", "ryan",
		"robert", "jennifer", "michael", "jessica", "william", "amanda", "richard", "elizabeth",
		"thomas", "olivia", "charles", "emily", "daniel", "hannah", "matthew", "sarah",
	}

	lastNames = []string{
		"smith", "jones", "brown", "miller", "wilson", "taylor", "clark", "davis", "white", "moore",
		"anderson", "thomas", "jackson", "martin", "thompson", "williams", "johnson", "roberts",
		"robinson", "walker", "young", "allen", "king", "wright", "scott", "green",
	}
)

// 联合身份（SSO）档案词表
var (
	ssoFirstNames = []string{"john", "sara", "michael", "emma", "david", "jennifer", "robert", "lisa"}
	ssoLastNames  = []string{"smith", "johnson", "williams", "jones", "brown", "davis", "miller", "wilson"}
	ssoRoles      = []string{"developer", "admin", "manager", "user", "support", "sales", "finance", "hr"}
	ssoDepts      = []string{"it", "hr", "dev", "sales", "support", "marketing", "finance", "admin"}
	ssoIDPrefixes = []string{"id", "sso", "user", "auth", "login", "account"}
)

// senderIdentity 一条固定的发件人身份。
type senderIdentity struct {
	name  string
	email string
}

// 消费级验证邮件的发件人列表
var consumerSenders = []senderIdentity{
	{name: "Acme Account Verification", email: "noreply@acme-app.com"},
	{name: "Acme Security", email: "security@acme-app.com"},
	{name: "Acme Auth", email: "auth@acme-app.com"},
	{name: "Acme ID", email: "id@acme-app.com"},
}

// ssoProvider 一个联合身份提供方。
type ssoProvider struct {
	name   string
	domain string
}

// 联合身份提供方列表
var ssoProviders = []ssoProvider{
	{name: "Corporate SSO", domain: "sso.company.org"},
	{name: "Enterprise ID", domain: "id.enterprise.com"},
	{name: "Secure Access", domain: "access.secure-login.net"},
	{name: "Identity Suite", domain: "identity.suite.io"},
	{name: "Single Sign On", domain: "auth.single-sign-on.com"},
}

// 消费级验证邮件正文模板，{CODE} 为验证码占位符
var consumerTemplates = []string{
	"Your Acme verification code is: {CODE}. Use this to verify your account.",
	"Welcome to Acme! Your verification code is {CODE}. This code expires in 10 minutes.",
	"Use code {CODE} to verify your Acme account. Don't share this code.",
	"Your Acme security code: {CODE}. Enter this to complete verification.",
	"Here's your Acme authentication code: {CODE}. Valid for 5 minutes.",
}

// 联合身份验证邮件正文模板
var ssoTemplates = []string{
	"Your SSO verification code is {CODE}. Enter this code to complete your single sign-on authentication.",
	"Use verification code {CODE} to authorize SSO login to your account. This code will expire in 5 minutes.",
	"SSO Authentication Required: Your verification code is {CODE}. Do not share this code with anyone.",
	"SAML SSO Verification: Enter code {CODE} to complete your authentication process.",
	"To continue with SSO login, enter security code: {CODE}. This is a one-time verification code.",
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generator 从固定词表与模板合成地址、发件人身份与邮件内容。
//
// 生成器本身不做唯一性检查，重复地址由存储层按值去重。
type Generator struct {
	mu             sync.Mutex
	random         *rand.Rand
	consumerDomain string
}

// New 创建内容生成器。
//
// consumerDomain 是消费级地址使用的域名，留空时默认 "gmail.com"。
func New(consumerDomain string) *Generator {
	if consumerDomain == "" {
		consumerDomain = "gmail.com"
	}
	return &Generator{
		random:         rand.New(rand.NewSource(time.Now().UnixNano())),
		consumerDomain: strings.ToLower(consumerDomain),
	}
}

// Address 生成一个指定档案的随机地址。
func (g *Generator) Address(kind domain.AddressKind) string {
	if kind == domain.KindFederated {
		return g.federatedAddress()
	}
	return g.standardAddress()
}

// standardAddress 按消费级档案拼装地址：
// <first><sep><last><suffix>@<consumerDomain>，多个候选模板等概率选取。
func (g *Generator) standardAddress() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	first := firstNames[g.random.Intn(len(firstNames))]
	last := lastNames[g.random.Intn(len(lastNames))]

	num := 100 + g.random.Intn(900)
	currentYear := time.Now().Year()
	birthYear := 1980 + g.random.Intn(25)

	formats := []string{
		fmt.Sprintf("%s.%s%d", first, last, num),
		fmt.Sprintf("%s%s%d", first, last, num),
		fmt.Sprintf("%s%s%d", first, last, birthYear),
		fmt.Sprintf("%s.%s%d", first, last, birthYear),
		fmt.Sprintf("%c%s%d", first[0], last, num),
		fmt.Sprintf("%s_%s%d", first, last, num),
		fmt.Sprintf("%s%c%d", first, last[0], birthYear),
		fmt.Sprintf("%s.%s%02d", first, last, currentYear%100),
	}

	local := formats[g.random.Intn(len(formats))]
	return local + "@" + g.consumerDomain
}

// federatedAddress 按联合身份档案拼装地址：
// 前缀由多个独立子生成器等概率选取，域名取自固定提供方列表。
func (g *Generator) federatedAddress() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	provider := ssoProviders[g.random.Intn(len(ssoProviders))]

	generators := []func() string{
		// 标准企业格式 firstname.lastname
		func() string {
			name := ssoFirstNames[g.random.Intn(len(ssoFirstNames))]
			surname := ssoLastNames[g.random.Intn(len(ssoLastNames))]
			return name + "." + surname
		},
		// 基于角色的企业邮箱
		func() string {
			return ssoRoles[g.random.Intn(len(ssoRoles))]
		},
		// 部门 + 编号
		func() string {
			dept := ssoDepts[g.random.Intn(len(ssoDepts))]
			return fmt.Sprintf("%s%d", dept, 100+g.random.Intn(900))
		},
		// ID 前缀 + 编号（SSO 系统常见）
		func() string {
			prefix := ssoIDPrefixes[g.random.Intn(len(ssoIDPrefixes))]
			return fmt.Sprintf("%s.%d", prefix, 1000+g.random.Intn(9000))
		},
		// 员工编号格式
		func() string {
			return fmt.Sprintf("employee%d", 10000+g.random.Intn(90000))
		},
	}

	prefix := generators[g.random.Intn(len(generators))]()
	return prefix + "@" + provider.domain
}

// Synthesis 一封合成邮件的全部字段。
type Synthesis struct {
	Sender     string
	SenderName string
	Subject    string
	Content    string
	Code       string
}

// Synthesize 合成一封指定档案的验证邮件。
//
// 发件人身份与正文模板按档案等概率选取，验证码在同一步生成并替换进
// 模板，因此 Code 一定是 Content 的子串。
func (g *Generator) Synthesize(kind domain.AddressKind) Synthesis {
	if kind == domain.KindFederated {
		return g.synthesizeFederated()
	}
	return g.synthesizeStandard()
}

// synthesizeStandard 合成一封消费级验证邮件，验证码固定为 6 位数字。
func (g *Generator) synthesizeStandard() Synthesis {
	g.mu.Lock()
	defer g.mu.Unlock()

	sender := consumerSenders[g.random.Intn(len(consumerSenders))]
	code := fmt.Sprintf("%06d", 100000+g.random.Intn(900000))
	template := consumerTemplates[g.random.Intn(len(consumerTemplates))]

	// 使用发件人名称的第一个单词作为服务名
	serviceName := strings.SplitN(sender.name, " ", 2)[0]

	return Synthesis{
		Sender:     sender.email,
		SenderName: sender.name,
		Subject:    serviceName + " Verification Code",
		Content:    strings.ReplaceAll(template, "{CODE}", code),
		Code:       code,
	}
}

// synthesizeFederated 合成一封 SSO 验证邮件，验证码格式在
// 6 位数字、8 位数字、6 位字母数字、XXX-XXX 四种之间等概率选取。
func (g *Generator) synthesizeFederated() Synthesis {
	g.mu.Lock()
	defer g.mu.Unlock()

	provider := ssoProviders[g.random.Intn(len(ssoProviders))]
	code := g.federatedCode()
	template := ssoTemplates[g.random.Intn(len(ssoTemplates))]

	return Synthesis{
		Sender:     "verification@" + provider.domain,
		SenderName: provider.name + " Authentication",
		Subject:    "SSO Verification Code",
		Content:    strings.ReplaceAll(template, "{CODE}", code),
		Code:       code,
	}
}

// federatedCode 生成一个 SSO 风格的验证码。调用方必须持有 g.mu。
func (g *Generator) federatedCode() string {
	switch g.random.Intn(4) {
	case 0:
		return fmt.Sprintf("%06d", 100000+g.random.Intn(900000))
	case 1:
		return fmt.Sprintf("%08d", 10000000+g.random.Intn(90000000))
	case 2:
		return g.randomChars(6)
	default:
		return g.randomChars(3) + "-" + g.randomChars(3)
	}
}

// randomChars 从验证码字母表取 n 个随机字符。调用方必须持有 g.mu。
func (g *Generator) randomChars(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(codeAlphabet[g.random.Intn(len(codeAlphabet))])
	}
	return b.String()
}
