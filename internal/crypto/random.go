package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// nonceAlphabet matches the character set providers echo back untouched in
// the state parameter.
const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultNonceLength is the state length used for authorization requests
const DefaultNonceLength = 30

// ErrInvalidNonceLength is returned when a non-positive length is requested
var ErrInvalidNonceLength = errors.New("nonce length must be positive")

// randReader is swapped in tests to simulate an unavailable entropy source
var randReader io.Reader = rand.Reader

// GenerateNonce returns a random alphanumeric string of the given length,
// suitable as an OAuth state value. Bytes outside the largest multiple of
// the alphabet size are rejected so every character is equally likely.
func GenerateNonce(length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidNonceLength
	}

	const limit = 256 - 256%len(nonceAlphabet)

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)
	for len(out) < length {
		if _, err := io.ReadFull(randReader, buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, nonceAlphabet[int(b)%len(nonceAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
