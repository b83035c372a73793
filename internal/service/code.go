package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/curtistech/unlock-server/internal/util"
)

const derivedCodeLength = 8

// ErrMalformedInput is returned when a session id cannot produce a code.
var ErrMalformedInput = errors.New("malformed input")

// sessionMarkers are the environment prefixes the payment processor puts on
// session ids, longest first so "CS_TEST_" wins over "TEST_".
var sessionMarkers = []string{
	"CS_TEST_",
	"CS_LIVE_",
	"TEST-",
	"LIVE-",
	"TEST_",
	"LIVE_",
}

// NormalizeCode trims and upper-cases user input.
func NormalizeCode(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

// HasSessionMarker reports whether input looks like a payment session id
// rather than a code.
func HasSessionMarker(input string) bool {
	_, ok := stripMarker(NormalizeCode(input))
	return ok
}

// DeriveCode turns a payment session id into its short purchaser code:
// strip one environment marker, then take the first eight characters,
// upper-cased. Ids without a marker are used as-is.
//
//	cs_test_ABCDEFGHIJKL -> ABCDEFGH
//	cs_live_1234567890XY -> 12345678
func DeriveCode(sessionID string) (string, error) {
	s := NormalizeCode(sessionID)
	if s == "" {
		return "", ErrMalformedInput
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return "", ErrMalformedInput
		}
	}

	if rest, ok := stripMarker(s); ok {
		s = rest
	}

	if len(s) < derivedCodeLength {
		return "", ErrMalformedInput
	}
	code := s[:derivedCodeLength]
	for i := 0; i < len(code); i++ {
		if !isCodeChar(code[i]) {
			return "", ErrMalformedInput
		}
	}
	return code, nil
}

// GenerateCode returns eight upper-case hex characters from crypto/rand.
func GenerateCode() (string, error) {
	b := make([]byte, derivedCodeLength/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// ErrSessionMarker rejects codes that Redeem would read as a session id.
var ErrSessionMarker = errors.New("code starts with a payment session marker")

// ValidateCode checks an admin-supplied code after normalization.
func ValidateCode(code string) error {
	if !util.IsValidCode(code) {
		return ErrMalformedInput
	}
	if HasSessionMarker(code) {
		return ErrSessionMarker
	}
	return nil
}

func stripMarker(s string) (string, bool) {
	for _, m := range sessionMarkers {
		if strings.HasPrefix(s, m) {
			return s[len(m):], true
		}
	}
	return s, false
}

func isCodeChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
