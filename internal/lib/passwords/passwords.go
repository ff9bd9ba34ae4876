package passwords

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when config does not override it.
const DefaultCost = 12

// Hash bcrypt-hashes a plaintext password. Output embeds algorithm, cost and
// salt, so two calls on the same input produce different hashes.
func Hash(plain string, cost int) (string, error) {
	const op = "lib.passwords.Hash"

	if cost == 0 {
		cost = DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(hash), nil
}

// Verify reports whether plain matches hashed. A malformed or empty hash is
// a plain "no match", never an error the login path has to branch on.
func Verify(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
