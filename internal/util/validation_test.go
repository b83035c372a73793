package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidCode(t *testing.T) {
	valid := []string{"AB12CD34", "ABCD", "VIP-2025", "A1B2C3D4E5F6G7H8I9J0K1L2M3N4O5P6"}
	invalid := []string{"", "abc", "ABC", "AB12 CD34", "AB12_CD34", "A1B2C3D4E5F6G7H8I9J0K1L2M3N4O5P6Q"}

	for _, code := range valid {
		assert.True(t, IsValidCode(code), code)
	}
	for _, code := range invalid {
		assert.False(t, IsValidCode(code), code)
	}
}

func TestIsValidProduct(t *testing.T) {
	assert.True(t, IsValidProduct("menu-maker"))
	assert.True(t, IsValidProduct("quote_genius.v2"))
	assert.False(t, IsValidProduct(""))
	assert.False(t, IsValidProduct("Menu Maker"))
	assert.False(t, IsValidProduct("-leading"))
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("buyer@example.com"))
	assert.False(t, IsValidEmail(""))
	assert.False(t, IsValidEmail("Buyer <buyer@example.com>"))
	assert.False(t, IsValidEmail("not-an-email"))
}
