package admin

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	hashAlgorithm = "pbkdf2_sha512"

	DefaultIterations = 210000
	MinIterations     = 100000
	MaxIterations     = 500000

	saltBytes   = 16
	digestBytes = 64

	// DefaultPassword is accepted while no hash is stored
	DefaultPassword = "admin"
)

// PasswordHasher creates and verifies pbkdf2_sha512$<iterations>$<salt>$<digest>
// hashes, salt and digest base64url encoded.
type PasswordHasher struct {
	iterations int
}

// NewPasswordHasher creates a hasher that hashes with DefaultIterations
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{iterations: DefaultIterations}
}

// Hash derives a new hash for password with a random salt
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	digest := pbkdf2.Key([]byte(password), salt, h.iterations, digestBytes, sha512.New)
	return strings.Join([]string{
		hashAlgorithm,
		strconv.Itoa(h.iterations),
		base64.RawURLEncoding.EncodeToString(salt),
		base64.RawURLEncoding.EncodeToString(digest),
	}, "$"), nil
}

// Verify reports whether password matches encoded. Malformed hashes and
// iteration counts outside the accepted range never match.
func (h *PasswordHasher) Verify(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != hashAlgorithm {
		return false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations < MinIterations || iterations > MaxIterations {
		return false
	}
	salt, err := decodeSegment(parts[2])
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := decodeSegment(parts[3])
	if err != nil || len(want) != digestBytes {
		return false
	}

	got := pbkdf2.Key([]byte(password), salt, iterations, digestBytes, sha512.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func decodeSegment(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

// isDefaultPassword compares against DefaultPassword in constant time
func isDefaultPassword(password string) bool {
	return subtle.ConstantTimeCompare([]byte(password), []byte(DefaultPassword)) == 1
}
