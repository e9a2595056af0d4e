package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	codeDigits = 6
	codeFloor  = 100000
)

var codeSpan = big.NewInt(900000)

// Generator produces a fresh passcode.
type Generator func() (string, error)

// RandomCode draws a uniformly random 6-digit code without a leading zero.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("draw otp: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()+codeFloor), nil
}

// WellFormed reports whether code is exactly six ASCII digits.
func WellFormed(code string) bool {
	if len(code) != codeDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
