package model

import (
	"strings"
	"time"
)

// Address is an email address with an optional display name. Addresses are
// unique by their normalized address string.
type Address struct {
	ID          string    `json:"id" db:"id"`
	Address     string    `json:"address" db:"address"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// NormalizeAddress lowercases and trims an email address for storage and
// comparison.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
