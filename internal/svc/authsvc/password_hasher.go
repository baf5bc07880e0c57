package authsvc

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/mkrupp/streamhub/internal/domain"
)

// DefaultBcryptRounds is used when the configured cost is out of range.
const DefaultBcryptRounds = 10

// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
var ErrPasswordTooLong = domain.NewError(domain.KindValidation, "password must be at most 72 bytes")

// PasswordHasher turns plaintext passwords into one-way hashes and checks them.
type PasswordHasher interface {
	// Hash returns a salted hash of plaintext.
	Hash(plaintext string) (string, error)

	// Verify reports whether plaintext matches hash. A mismatch is not an error.
	Verify(plaintext, hash string) (bool, error)
}

// BcryptPasswordHasher implements PasswordHasher with bcrypt.
type BcryptPasswordHasher struct {
	// Rounds is the bcrypt cost, read on every Hash call
	Rounds int
}

var _ PasswordHasher = (*BcryptPasswordHasher)(nil)

// NewBcryptPasswordHasher creates a hasher with the given cost.
func NewBcryptPasswordHasher(rounds int) *BcryptPasswordHasher {
	return &BcryptPasswordHasher{Rounds: rounds}
}

func (h *BcryptPasswordHasher) cost() int {
	if h.Rounds < bcrypt.MinCost || h.Rounds > bcrypt.MaxCost {
		return DefaultBcryptRounds
	}

	return h.Rounds
}

// Hash implements PasswordHasher.Hash.
func (h *BcryptPasswordHasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost())
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}

		return "", errors.Join(domain.ErrInternal, fmt.Errorf("generate hash: %w", err))
	}

	return string(hash), nil
}

// Verify implements PasswordHasher.Verify.
func (h *BcryptPasswordHasher) Verify(plaintext, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, errors.Join(domain.ErrInternal, fmt.Errorf("compare hash: %w", err))
	}
}
