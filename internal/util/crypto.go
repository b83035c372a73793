package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const passwordHashCost = 12

// Fingerprint returns a short stable digest for correlating values such as
// purchaser emails in logs without writing them out.
func Fingerprint(value string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(value))))
	return hex.EncodeToString(hash[:6])
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// MaskCode keeps the first half of a code for log correlation.
func MaskCode(code string) string {
	if len(code) <= 4 {
		return "****"
	}
	keep := len(code) / 2
	if keep > 4 {
		keep = 4
	}
	return code[:keep] + "****"
}

// MaskEmail hides the local part: "alice@example.com" -> "a****@example.com".
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "****"
	}
	return email[:1] + "****" + email[at:]
}
