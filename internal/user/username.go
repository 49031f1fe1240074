package user

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 30

	defaultUsernameBase = "user_"
	suffixLength        = 8
	suffixAlphabet      = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9а-яА-ЯёЁ_-]+$`)
	allDigits       = regexp.MustCompile(`^[0-9]+$`)
)

// ValidateUsername normalizes name and checks the username rules.
func ValidateUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < usernameMinLen || n > usernameMaxLen {
		return "", ErrInvalidUsername
	}
	if !usernamePattern.MatchString(name) || allDigits.MatchString(name) {
		return "", ErrInvalidUsername
	}
	return name, nil
}

// randomUsername returns the default base with a random lowercase
// alphanumeric suffix.
func randomUsername() (string, error) {
	max := big.NewInt(int64(len(suffixAlphabet)))
	b := make([]byte, suffixLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating username suffix: %w", err)
		}
		b[i] = suffixAlphabet[n.Int64()]
	}
	return defaultUsernameBase + string(b), nil
}

// fallbackUsername is used once random suffixes keep colliding.
func fallbackUsername() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return defaultUsernameBase + hex[:20]
}
