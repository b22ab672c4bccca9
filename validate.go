package authkit

import (
	"regexp"
	"strings"
	"unicode"
)

// Field checks run before any store lookup or crypto work, so malformed
// requests are rejected without spending an argon2 invocation.

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	minPasswordLength = 8
	minNameLength     = 2
)

// NormalizeEmail lower-cases and trims an email address. Uniqueness is
// case-insensitive; every store access goes through the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateRegistration checks field presence and format for a registration
// request: email shape, password length and composition (at least one
// uppercase, one lowercase, one digit), and name minimum length. It touches
// no external state.
func ValidateRegistration(req RegisterRequest) error {
	if err := validateEmail(req.Email); err != nil {
		return err
	}
	if err := validatePassword(req.Password); err != nil {
		return err
	}
	if len(strings.TrimSpace(req.FirstName)) < minNameLength {
		return newValidationError("firstName", "must be at least 2 characters")
	}
	if len(strings.TrimSpace(req.LastName)) < minNameLength {
		return newValidationError("lastName", "must be at least 2 characters")
	}
	return nil
}

// ValidateLoginCredentials checks field presence and email shape for a login
// attempt. Password policy is not re-checked here: older accounts may
// predate the current policy and must still be able to log in.
func ValidateLoginCredentials(email, password string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return newValidationError("password", "is required")
	}
	return nil
}

func validateEmail(email string) error {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return newValidationError("email", "is required")
	}
	if !emailPattern.MatchString(normalized) {
		return newValidationError("email", "is not a valid email address")
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return newValidationError("password", "is required")
	}
	if len(password) < minPasswordLength {
		return newValidationError("password", "must be at least 8 characters")
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return newValidationError("password", "must contain at least one uppercase letter, one lowercase letter, and one number")
	}
	return nil
}
