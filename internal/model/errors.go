package model

import "errors"

// Common errors used across the application
var (
	// Account errors
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")

	// Validation errors
	ErrUsernameTooShort = errors.New("username must be at least 2 characters long")
	ErrUsernameTooLong  = errors.New("username must be less than 20 characters")
	ErrUsernameInvalid  = errors.New("username contains invalid characters")
	ErrPasswordTooShort = errors.New("password must be at least 3 characters long")
	ErrEmailInvalid     = errors.New("email address is not well-formed")
	ErrMessageTooLong   = errors.New("message too long (max 1000 characters)")

	// Presence errors
	ErrAlreadyAttached = errors.New("connection already has a session")
)
