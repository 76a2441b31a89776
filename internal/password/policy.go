// Package password holds the password strength policy and the hashing used
// to store credentials.
package password

import "unicode/utf8"

const minLength = 8

// Rule messages are returned verbatim to API clients.
const (
	MsgTooShort    = "Password must be at least 8 characters long"
	MsgNoUppercase = "Password must contain at least one uppercase letter"
	MsgNoLowercase = "Password must contain at least one lowercase letter"
	MsgNoNumber    = "Password must contain at least one number"
	MsgNoSpecial   = "Password must contain at least one special character"
)

// Result lists every rule the password violates, in rule order.
type Result struct {
	Valid  bool
	Errors []string
}

// Validate checks pw against all policy rules.
func Validate(pw string) Result {
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			special = true
		}
	}

	errs := make([]string, 0, 5)
	if utf8.RuneCountInString(pw) < minLength {
		errs = append(errs, MsgTooShort)
	}
	if !upper {
		errs = append(errs, MsgNoUppercase)
	}
	if !lower {
		errs = append(errs, MsgNoLowercase)
	}
	if !digit {
		errs = append(errs, MsgNoNumber)
	}
	if !special {
		errs = append(errs, MsgNoSpecial)
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}
