// Package tahash provides the SHA-256 hashing primitives shared by the
// audit log, the overlay workspace diff, and changeset/draft-package
// integrity checks.
package tahash

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// Bytes returns the lowercase hex SHA-256 digest of data.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// String returns the lowercase hex SHA-256 digest of s.
func String(s string) string {
	return Bytes([]byte(s))
}

// File streams path through SHA-256 without loading it fully into memory.
// Symlinks are followed by the caller (os.Open already does that); the
// overlay package is responsible for reading link targets as content when
// it wants symlink-as-text semantics.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
