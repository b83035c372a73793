package util

import (
	"net/mail"
	"regexp"
)

var (
	codeRegex    = regexp.MustCompile(`^[A-Z0-9-]{4,32}$`)
	productRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)
)

// IsValidCode reports whether s is an acceptable unlock code after
// normalization.
func IsValidCode(s string) bool {
	return codeRegex.MatchString(s)
}

// IsValidProduct accepts lower-case product slugs such as "menu-maker".
func IsValidProduct(s string) bool {
	return productRegex.MatchString(s)
}

func IsValidEmail(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
