package sampledata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm identifies the digest algorithm of an integrity token.
type Algorithm string

const (
	AlgBLAKE3 Algorithm = "blake3"
	AlgSHA256 Algorithm = "sha256"
)

// Token is an integrity token: a digest algorithm paired with the expected
// digest of an asset's byte content. The canonical string form is
// "algorithm:hex".
type Token struct {
	Alg Algorithm
	Sum []byte
}

// ParseToken parses a token string in the form "algorithm:hex". The
// algorithm is case-insensitive. Plain hex strings without a prefix are
// accepted and assumed to be BLAKE3.
func ParseToken(s string) (Token, error) {
	if s == "" {
		return Token{}, fmt.Errorf("empty integrity token")
	}

	algStr, hexStr, hasPrefix := strings.Cut(s, ":")
	if !hasPrefix {
		hexStr = algStr
		algStr = string(AlgBLAKE3)
	}

	var alg Algorithm
	switch Algorithm(strings.ToLower(algStr)) {
	case AlgBLAKE3:
		alg = AlgBLAKE3
	case AlgSHA256:
		alg = AlgSHA256
	default:
		return Token{}, fmt.Errorf("unsupported algorithm %q in token %q", algStr, s)
	}

	sum, err := hex.DecodeString(strings.ToLower(hexStr))
	if err != nil {
		return Token{}, fmt.Errorf("invalid digest in token %q: %w", s, err)
	}
	if len(sum) != sha256.Size {
		return Token{}, fmt.Errorf("invalid digest length in token %q: expected %d bytes, got %d", s, sha256.Size, len(sum))
	}

	return Token{Alg: alg, Sum: sum}, nil
}

// MustParseToken is like ParseToken but panics on error. Intended for the
// static registry entries defined at init time.
func MustParseToken(s string) Token {
	t, err := ParseToken(s)
	if err != nil {
		panic(err)
	}
	return t
}

// IsZero reports whether the token is unset.
func (t Token) IsZero() bool {
	return t.Alg == "" && len(t.Sum) == 0
}

// String returns the canonical form "algorithm:hex".
func (t Token) String() string {
	if t.IsZero() {
		return ""
	}
	return string(t.Alg) + ":" + hex.EncodeToString(t.Sum)
}

// Equal reports whether two tokens have the same algorithm and digest.
func (t Token) Equal(o Token) bool {
	return t.Alg == o.Alg && hex.EncodeToString(t.Sum) == hex.EncodeToString(o.Sum)
}

func (t Token) hasher() hash.Hash {
	switch t.Alg {
	case AlgSHA256:
		return sha256.New()
	default:
		return blake3.New()
	}
}

// TokenReader computes a token over the reader's content using the given
// algorithm. It returns the token and the number of bytes read.
func TokenReader(alg Algorithm, r io.Reader) (Token, int64, error) {
	t := Token{Alg: alg}
	h := t.hasher()
	n, err := io.Copy(h, r)
	if err != nil {
		return Token{}, n, fmt.Errorf("hashing content: %w", err)
	}
	t.Sum = h.Sum(nil)
	return t, n, nil
}

// TokenFile computes a token over a file's content using the given
// algorithm.
func TokenFile(alg Algorithm, path string) (Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return Token{}, fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = f.Close() }()

	t, _, err := TokenReader(alg, f)
	return t, err
}

// VerifyFile computes the file's token with t's algorithm and compares it
// against t. It returns the computed token and whether it matched.
func (t Token) VerifyFile(path string) (Token, bool, error) {
	got, err := TokenFile(t.Alg, path)
	if err != nil {
		return Token{}, false, err
	}
	return got, t.Equal(got), nil
}
