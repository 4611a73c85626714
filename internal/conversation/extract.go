package conversation

import (
	"regexp"
	"strings"
)

var (
	// An Indian mobile number: optional +91 prefix, a leading 6-9 and nine
	// more digits, each optionally preceded by one space or dash. The
	// surrounding groups keep it from matching inside a longer digit run
	// or after a "+" that does not introduce 91.
	phonePattern = regexp.MustCompile(`(?:^|[^\d+])((?:\+91[-\s]?)?[6-9](?:[-\s]?\d){9})(?:$|\D)`)

	// A six-digit code not part of a longer digit run.
	otpPattern = regexp.MustCompile(`(?:^|\D)(\d{6})(?:$|\D)`)

	resendPhrases = []string{"resend", "send again", "new otp", "new code"}
)

// ExtractPhone finds a mobile number in text and returns it as ten bare
// digits.
func ExtractPhone(text string) (string, bool) {
	m := phonePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	digits := make([]byte, 0, 12)
	for i := 0; i < len(m[1]); i++ {
		if c := m[1][i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) == 12 {
		digits = digits[2:]
	}
	return string(digits), true
}

// ExtractOTP isolates a six-digit code in text.
func ExtractOTP(text string) (string, bool) {
	m := otpPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// wantsResend reports whether the user is asking for a new code.
func wantsResend(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range resendPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
