package admin

import (
	"crypto/subtle"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"gradportal/internal/apperr"
)

const minPasswordLength = 6

// ValidateRotation checks a rotation request before any store access.
func ValidateRotation(username, current, next, confirm string) error {
	if username == "" || current == "" || next == "" || confirm == "" {
		return apperr.Validation("", "All fields are required")
	}
	if next != confirm {
		return apperr.Validation("confirmPassword", "New passwords do not match")
	}
	if len(next) < minPasswordLength {
		return apperr.Validation("newPassword", "Password must be at least %d characters long", minPasswordLength)
	}
	var upper, lower, digit bool
	for _, r := range next {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return apperr.Validation("newPassword", "Password must contain at least one uppercase letter, one lowercase letter, and one number")
	}
	if current == next {
		return apperr.Validation("newPassword", "New password must be different from current password")
	}
	return nil
}

// verifier compares a submitted credential against the stored one for a single state.
type verifier interface {
	Verify(stored, submitted string) bool
}

// plaintextVerifier serves StateFirstLogin.
type plaintextVerifier struct{}

func (plaintextVerifier) Verify(stored, submitted string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}

// hashVerifier serves StateActive. A stored value that is not a bcrypt hash never matches.
type hashVerifier struct{}

func (hashVerifier) Verify(stored, submitted string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(submitted)) == nil
}

func verifierFor(s State) verifier {
	if s == StateActive {
		return hashVerifier{}
	}
	return plaintextVerifier{}
}

// Hasher produces the stored representation of a rotated credential.
type Hasher interface {
	Hash(password string) (string, error)
}

// BcryptHasher hashes with golang.org/x/crypto/bcrypt.
type BcryptHasher struct {
	Cost int
}

// Hash returns a salted bcrypt hash of password.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
