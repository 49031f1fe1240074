package verify

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alecgard/taskhub/internal/notify"
)

var validate = validator.New()

// Normalize returns the canonical form of value for channel ch.
func Normalize(ch Channel, value string) (string, error) {
	switch ch {
	case notify.ChannelPhone:
		return NormalizePhone(value)
	case notify.ChannelEmail:
		return NormalizeEmail(value)
	default:
		return "", ErrInvalidChannel
	}
}

// NormalizePhone returns a Russian number as 11 digits starting with the 7
// country code. "+7 (900) 123-45-67", "8 900 123 45 67" and "9001234567" all
// become "79001234567". Numbers with any other country code are rejected.
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	international := strings.HasPrefix(phone, "+")

	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10 && !international:
		digits = "7" + digits
	case len(digits) == 11 && digits[0] == '8' && !international:
		digits = "7" + digits[1:]
	case len(digits) == 11 && digits[0] == '7':
	default:
		return "", ErrInvalidPhone
	}

	// The national part never starts with 0.
	if digits[1] == '0' {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

// NormalizeEmail lowercases and trims the address and checks its format.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > 254 {
		return "", ErrInvalidEmail
	}
	if err := validate.Var(email, "email"); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}
