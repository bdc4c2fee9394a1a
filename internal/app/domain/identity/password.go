package identity

import (
	"errors"
	"unicode"
)

const minPasswordLength = 6

var (
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	ErrPasswordNoUpper  = errors.New("password must contain an uppercase letter")
	ErrPasswordNoLower  = errors.New("password must contain a lowercase letter")
)

// ValidatePassword applies the registration password policy.
func ValidatePassword(pw string) error {
	if len([]rune(pw)) < minPasswordLength {
		return ErrPasswordTooShort
	}
	var upper, lower bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		}
	}
	if !upper {
		return ErrPasswordNoUpper
	}
	if !lower {
		return ErrPasswordNoLower
	}
	return nil
}
