package verify

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// CodeLength is the number of digits in a verification code.
const CodeLength = 6

var ten = big.NewInt(10)

// GenerateCode returns a CodeLength-digit code. Each digit is drawn
// independently and uniformly from crypto/rand.
func GenerateCode() (string, error) {
	b := make([]byte, CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generating code digit: %w", err)
		}
		b[i] = byte('0' + n.Int64())
	}
	return string(b), nil
}

func wellFormed(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Hasher hashes codes for storage and compares candidates against a stored hash.
type Hasher interface {
	Hash(code string) (string, error)
	Compare(hash, code string) bool
}

// BcryptHasher hashes codes with bcrypt. Comparison runs in constant time.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(code string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return "", fmt.Errorf("hashing code: %w", err)
	}
	return string(b), nil
}

func (h BcryptHasher) Compare(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
