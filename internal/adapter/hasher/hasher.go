// Package hasher derives document identities from raw document bytes.
//
// An identity is the first 8 bytes of the SHA-256 digest, hex encoded.
// Truncation trades collision resistance for short, readable keys; the
// catalog is not meant to withstand adversarial inputs.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"doccatalog/internal/domain"
)

// Size is the number of digest bytes kept in an identity.
const Size = 8

// IdentityOf returns the identity of data.
func IdentityOf(data []byte) domain.Identity {
	sum := sha256.Sum256(data)
	return domain.Identity(hex.EncodeToString(sum[:Size]))
}

// IdentityOfReader hashes everything r yields.
func IdentityOfReader(r io.Reader) (domain.Identity, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return domain.Identity(hex.EncodeToString(h.Sum(nil)[:Size])), nil
}

// IdentityOfFile hashes the file at path.
func IdentityOfFile(path string) (domain.Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()
	return IdentityOfReader(f)
}

// Valid reports whether s has the shape of an identity.
func Valid(s string) bool {
	if len(s) != hex.EncodedLen(Size) {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
