package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 10

// Hash generates a bcrypt hash of the value with the given work factor.
// Both staff passwords and customer OTP codes go through this.
func Hash(value string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(value), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash value: %w", err)
	}

	return string(hash), nil
}

// Verify checks the value against a stored hash. The comparison is
// constant-time. A mismatch is not an error; malformed hashes are.
func Verify(value, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(value))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("failed to compare hash: %w", err)
	}

	return true, nil
}
