package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// OTPCodeLength is the number of digits in an emailed one-time code.
const OTPCodeLength = 6

// GenerateNumericCode returns a uniformly random numeric code of the given
// length, zero-padded. Uses crypto/rand; modulo over a power of ten keeps
// the distribution exact.
func GenerateNumericCode(length int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	return fmt.Sprintf("%0*d", length, n), nil
}
