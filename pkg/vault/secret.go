package vault

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// MaxSecretSize caps plaintext secret material at 1 MiB. The encryption
// oracle inherits the same limit.
const MaxSecretSize = 1 << 20

// DefaultGeneratedLength is the length of auto-generated secrets when no
// explicit length is requested.
const DefaultGeneratedLength = 32

const generatedAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateSecret produces a random alphanumeric secret of the given length
// using the crypto/rand source.
func GenerateSecret(length int) ([]byte, error) {
	if length <= 0 {
		return nil, NewValidationErrorf("generated secret length must be positive, got %d", length)
	}
	out := make([]byte, length)
	max := big.NewInt(int64(len(generatedAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return nil, fmt.Errorf("failed to read random source: %w", err)
		}
		out[i] = generatedAlphabet[n.Int64()]
	}
	return out, nil
}

// MaskSecret renders a secret safe for logs and terminal output: the first
// and last two characters with the middle elided, or stars when the value is
// too short for that to hide anything.
func MaskSecret(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:2] + "..." + value[len(value)-2:]
}

// Zero overwrites secret material in place. Callers zero plaintext buffers
// as soon as they are handed off to the oracle.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
