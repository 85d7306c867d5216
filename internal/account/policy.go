package account

import (
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const idLength = 8

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

var (
	ErrBadUsername  = errors.New("account: username must be 3-32 characters of letters, digits or underscore")
	ErrWeakPassword = errors.New("account: password does not meet policy")
)

// ValidateUsername rejects names that cannot be used as login identifiers.
func ValidateUsername(username string) error {
	if !usernameRe.MatchString(username) {
		return ErrBadUsername
	}
	return nil
}

// ValidatePassword enforces the signup policy: at least 8 characters with
// an upper-case letter, a lower-case letter, a digit and a symbol, and the
// password must not contain the username.
func ValidatePassword(username, password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: shorter than 8 characters", ErrWeakPassword)
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return fmt.Errorf("%w: missing upper-case letter", ErrWeakPassword)
	case !hasLower:
		return fmt.Errorf("%w: missing lower-case letter", ErrWeakPassword)
	case !hasDigit:
		return fmt.Errorf("%w: missing digit", ErrWeakPassword)
	case !hasSymbol:
		return fmt.Errorf("%w: missing symbol", ErrWeakPassword)
	}
	if username != "" && strings.Contains(strings.ToLower(password), strings.ToLower(username)) {
		return fmt.Errorf("%w: contains the username", ErrWeakPassword)
	}
	return nil
}

// NewAccountID returns a random 8-character alphanumeric identifier.
func NewAccountID() (string, error) {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("account: id generation: %w", err)
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf), nil
}
