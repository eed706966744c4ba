// Package digest implements incremental verification of content-addressed
// blobs against a declared "algorithm:hex" digest string.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/ocidist/regclient/internal/regerr"
)

// Verifier accumulates bytes through an incremental hash and compares the
// final digest against an expected hex value, case-insensitively.
type Verifier struct {
	algorithm string
	expected  string
	hash      hash.Hash
}

// New constructs a Verifier bound to a declared digest string of the form
// "algorithm:hex". Only sha256 is supported today; other algorithms fail
// construction with ErrUnsupportedDigest.
func New(declared string) (*Verifier, error) {
	algorithm, hexDigest, err := Split(declared)
	if err != nil {
		return nil, err
	}

	var h hash.Hash
	switch algorithm {
	case "sha256":
		h = sha256.New()
	default:
		return nil, fmt.Errorf("%w: %q", regerr.ErrUnsupportedDigest, algorithm)
	}

	return &Verifier{
		algorithm: algorithm,
		expected:  strings.ToLower(hexDigest),
		hash:      h,
	}, nil
}

// Split parses "algorithm:hex" and validates the hex portion is
// hexadecimal, in either case. It does not validate the algorithm is
// supported.
func Split(declared string) (algorithm, hexDigest string, err error) {
	i := strings.IndexByte(declared, ':')
	if i < 0 {
		return "", "", fmt.Errorf("%w: malformed digest %q, expected algorithm:hex", regerr.ErrProtocol, declared)
	}
	algorithm, hexDigest = declared[:i], declared[i+1:]
	if hexDigest == "" {
		return "", "", fmt.Errorf("%w: malformed digest %q, empty hex portion", regerr.ErrProtocol, declared)
	}
	if _, err := hex.DecodeString(hexDigest); err != nil {
		return "", "", fmt.Errorf("%w: malformed digest %q: %v", regerr.ErrProtocol, declared, err)
	}
	return algorithm, hexDigest, nil
}

// Write feeds a chunk of bytes into the running hash. It never returns an
// error; hash.Hash.Write is documented to never fail.
func (v *Verifier) Write(p []byte) (int, error) {
	return v.hash.Write(p)
}

// Verify compares the accumulated hash against the expected hex digest.
// Call it exactly once, after all bytes have been written.
func (v *Verifier) Verify() error {
	got := hex.EncodeToString(v.hash.Sum(nil))
	if got != v.expected {
		return &regerr.DigestMismatchError{
			Algorithm: v.algorithm,
			Expected:  v.expected,
			Got:       got,
		}
	}
	return nil
}

// Algorithm returns the digest algorithm this verifier was constructed for.
func (v *Verifier) Algorithm() string {
	return v.algorithm
}
