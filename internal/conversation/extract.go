// Package conversation recovers passcodes from transcribed or typed utterances.
package conversation

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

const codeLength = 6

var (
	standaloneCode = regexp.MustCompile(`(?:^|[^0-9])([0-9]{6})(?:[^0-9]|$)`)
	tokenSplit     = regexp.MustCompile(`[\s,.\-:;]+`)
)

var digitWords = map[string]byte{
	"zero": '0', "oh": '0', "o": '0',
	"one": '1', "two": '2', "three": '3', "four": '4', "five": '5',
	"six": '6', "seven": '7', "eight": '8', "nine": '9',
}

var otpKeywords = []string{
	"otp is", "my otp", "the otp", "otp:", "otp code",
	"code is", "verification code", "verification is",
	"pin is", "password is",
	"otp hai", "mera otp", "code hai", "otp ka code",
}

// normalize folds case and maps non-ASCII decimal digits to ASCII.
func normalize(text string) string {
	// Casers are stateful; one per call.
	folded := cases.Fold().String(text)
	return strings.Map(func(r rune) rune {
		if r >= '०' && r <= '९' {
			return '0' + (r - '०')
		}
		if r > unicode.MaxASCII && unicode.IsDigit(r) {
			return -1
		}
		return r
	}, folded)
}

// ExtractCode returns the six-digit code carried by text. A standalone run of
// exactly six digits wins; otherwise spoken or spaced digits are assembled and
// accepted only when they add up to exactly six.
func ExtractCode(text string) (string, bool) {
	normalized := normalize(text)

	if m := standaloneCode.FindStringSubmatch(normalized); m != nil {
		return m[1], true
	}

	var digits []byte
	for _, tok := range tokenSplit.Split(normalized, -1) {
		if tok == "" {
			continue
		}
		if d, ok := digitWords[tok]; ok {
			digits = append(digits, d)
			continue
		}
		if isDigits(tok) {
			digits = append(digits, tok...)
		}
	}
	if len(digits) != codeLength {
		return "", false
	}
	return string(digits), true
}

// IsOTPUtterance reports whether text looks like the user reading out a passcode.
func IsOTPUtterance(text string) bool {
	normalized := normalize(text)
	for _, kw := range otpKeywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	count := 0
	for i := 0; i < len(normalized); i++ {
		if normalized[i] >= '0' && normalized[i] <= '9' {
			count++
		}
	}
	return count == codeLength
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
