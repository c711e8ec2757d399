package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Algorithm identifies a content digest algorithm.
type Algorithm string

const (
	// SHA256 is the default algorithm. Evidence handling conventions
	// expect SHA-256, so it stays the default even though BLAKE2b is
	// faster.
	SHA256 Algorithm = "sha256"

	// BLAKE2b is a faster 256-bit alternative for large images where
	// hashing dominates run time.
	BLAKE2b Algorithm = "blake2b"
)

// ParseAlgorithm converts a user-supplied name into an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case SHA256:
		return SHA256, nil
	case BLAKE2b:
		return BLAKE2b, nil
	default:
		return "", fmt.Errorf("algorithm %q: %w", name, ErrUnknownAlgorithm)
	}
}

// Verifier computes content digests over extracted bytes and applies the
// acceptance policy for catalog insertion. It holds no state beyond the
// chosen algorithm and is safe for concurrent use.
type Verifier struct {
	alg Algorithm
}

// New creates a verifier for the given algorithm.
func New(alg Algorithm) (*Verifier, error) {
	switch alg {
	case SHA256, BLAKE2b:
		return &Verifier{alg: alg}, nil
	default:
		return nil, fmt.Errorf("algorithm %q: %w", alg, ErrUnknownAlgorithm)
	}
}

// Algorithm returns the configured algorithm.
func (v *Verifier) Algorithm() Algorithm {
	return v.alg
}

// Digest returns the hex-encoded content hash of data.
func (v *Verifier) Digest(data []byte) string {
	switch v.alg {
	case BLAKE2b:
		sum := blake2b.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}

// Verify hashes data and decides whether it should enter the catalog.
// Zero-length content is rejected, as is content whose hash the exists
// callback already knows. The decision is advisory: the pipeline, not
// the verifier, performs the catalog mutation.
func (v *Verifier) Verify(data []byte, exists func(hash string) bool) (hash string, accept bool) {
	if len(data) == 0 {
		return "", false
	}
	hash = v.Digest(data)
	if exists != nil && exists(hash) {
		return hash, false
	}
	return hash, true
}
