package model

import "time"

// AccountKeyMode selects which field keys the account directory
type AccountKeyMode string

const (
	// KeyByUsername keys accounts by their username (default)
	KeyByUsername AccountKeyMode = "username"
	// KeyByEmail keys accounts by their email address
	KeyByEmail AccountKeyMode = "email"
)

// AccountKey is the opaque directory key for an account. Depending on
// the configured mode it holds a username or an email address.
type AccountKey string

// Account is a registered identity. PasswordHash is a bcrypt hash; the
// cleartext password never reaches storage.
type Account struct {
	Key          AccountKey `json:"key"`
	Username     string     `json:"username"`
	Email        string     `json:"email,omitempty"`
	PasswordHash string     `json:"password_hash"`
	CreatedAt    time.Time  `json:"created_at"`
}
