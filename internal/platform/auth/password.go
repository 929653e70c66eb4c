package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
)

// BcryptHasher hashes account passwords.
type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: bcrypt.DefaultCost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(out), nil
}

// Verify reports whether password matches hash. A malformed hash counts as
// a mismatch.
func (h *BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ConfirmSecretHeader may carry the confirmation secret instead of the
// request body.
const ConfirmSecretHeader = "X-Confirm-Secret"

// ConfirmationGate guards destructive operations behind a second secret
// whose bcrypt hash is held in server configuration.
type ConfirmationGate struct {
	hash []byte
}

func NewConfirmationGate(hash string) *ConfirmationGate {
	return &ConfirmationGate{hash: []byte(hash)}
}

// Check returns a Validation error when the secret is missing, and
// Forbidden when it does not match or no hash is configured.
func (g *ConfirmationGate) Check(secret string) error {
	if secret == "" {
		return apperr.Validation("confirmation secret is required")
	}
	if len(g.hash) == 0 {
		return apperr.Forbidden("destructive operations are disabled: no confirmation secret is configured")
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(secret)); err != nil {
		return apperr.Forbidden("incorrect confirmation secret")
	}
	return nil
}
