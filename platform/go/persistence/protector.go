package persistence

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// PasswordProtector encrypts tenant credentials before they reach the control
// store. The platform treats it as opaque; real deployments inject a KMS or
// envelope-encryption backed implementation.
type PasswordProtector interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// HashAPIKey returns a deterministic salted SHA-256 hex digest of the key.
// Lookup-by-hash requires a deterministic digest, so a per-record random salt
// (bcrypt-style) cannot be used here; the deployment-wide salt keeps raw
// rainbow tables off the table.
func HashAPIKey(salt, key string) string {
	sum := sha256.Sum256([]byte(salt + key))
	return hex.EncodeToString(sum[:])
}

// SecureCompare reports whether two strings are equal using a
// constant-structure comparison.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NoopProtector stores credentials base64-obfuscated. It exists for local
// development and tests only.
type NoopProtector struct{}

func (NoopProtector) Encrypt(_ context.Context, plaintext string) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

func (NoopProtector) Decrypt(_ context.Context, ciphertext string) (string, error) {
	out, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

var _ PasswordProtector = NoopProtector{}
