package auth

import "golang.org/x/crypto/bcrypt"

// PasswordCost is the bcrypt work factor for new hashes.
const PasswordCost = 12

// PasswordHasher hashes and verifies local passwords.
type PasswordHasher struct {
	cost    int
	compare func(hash, password []byte) error
}

// NewPasswordHasher returns a hasher using PasswordCost.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: PasswordCost, compare: bcrypt.CompareHashAndPassword}
}

// Hash generates a bcrypt hash of password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether password matches hash. bcrypt compares in constant time.
func (h *PasswordHasher) Verify(hash, password string) bool {
	if hash == "" {
		return false
	}
	compare := h.compare
	if compare == nil {
		compare = bcrypt.CompareHashAndPassword
	}
	return compare([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether hash was produced with a weaker cost than the hasher's.
func (h *PasswordHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return cost < h.cost
}
