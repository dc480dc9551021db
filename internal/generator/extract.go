package generator

import "regexp"

// 带标签的验证码模式，按优先级排列：先匹配带明确标签的写法，
// 最后回退到正文中孤立的 6 位数字。偏向召回率的取舍。
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)verification code[^\d]*(\d{4,8})`),
	regexp.MustCompile(`(?i)security code[^\d]*(\d{4,8})`),
	regexp.MustCompile(`(?i)code is[^\d]*(\d{4,8})`),
	regexp.MustCompile(`(?i)one-time password[^\d]*(\d{4,8})`),
	regexp.MustCompile(`(?i)OTP[^\d]*(\d{4,8})`),
	regexp.MustCompile(`(?i)code[^\d]*(\d{4,8})`),
	regexp.MustCompile(`(?i)(\d{4,8})[^\d]*is your`),
}

var bareSixDigits = regexp.MustCompile(`\b(\d{6})\b`)

// ExtractCode 从任意文本中恢复验证码。
//
// 依次套用模式列表，返回第一条命中的捕获；全部落空时回退到孤立的
// 6 位数字；仍未命中则返回 false。合成路径已知验证码时不需要调用
// 本函数，它用于没有生成元数据的任意来源文本。
func ExtractCode(text string) (string, bool) {
	for _, pattern := range codePatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}

	if m := bareSixDigits.FindStringSubmatch(text); m != nil {
		return m[1], true
	}

	return "", false
}
