package utils

import "golang.org/x/crypto/bcrypt"

// BcryptHasher hashes passwords with a fixed cost.  It satisfies
// service.PasswordHasher.
type BcryptHasher struct {
	Cost int
}

// Hash returns the bcrypt hash of plain.  A zero cost means bcrypt.DefaultCost.
func (h BcryptHasher) Hash(plain string) (string, error) {
	return HashPassword(plain, h.Cost)
}

// Verify reports whether plain matches hash.
func (h BcryptHasher) Verify(hash, plain string) bool {
	return VerifyPassword(hash, plain)
}

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
