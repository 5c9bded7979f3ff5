// Package fingerprint computes stable content hashes for documents and images.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of a fingerprint in hex characters.
const Size = sha256.Size * 2

// Document hashes the extracted text of every page, in page order, into a
// single SHA-256 digest. Page boundaries are not encoded, matching how stored
// fingerprints were produced historically.
func Document(pages []string) string {
	h := sha256.New()
	for _, text := range pages {
		h.Write([]byte(text))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Bytes hashes a single raw payload, typically the undecoded bytes of an
// embedded image.
func Bytes(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
