// Package codegen produces random short codes.
package codegen

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// Alphabet is the set generated codes are drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const (
	DefaultMinLength = 6
	DefaultMaxLength = 8

	// MaxCodeLength bounds custom codes as well as generated ones.
	MaxCodeLength = 32
)

// Generator draws codes whose length is uniform in [MinLength, MaxLength].
// It makes no uniqueness promise; callers check for collisions on insert.
type Generator struct {
	MinLength int
	MaxLength int
	Rand      io.Reader
}

// New returns a generator for 6 to 8 character codes backed by crypto/rand.
func New() *Generator {
	return &Generator{
		MinLength: DefaultMinLength,
		MaxLength: DefaultMaxLength,
		Rand:      rand.Reader,
	}
}

// Generate returns a fresh random code.
func (g *Generator) Generate() (string, error) {
	if g.MinLength <= 0 || g.MaxLength < g.MinLength {
		return "", fmt.Errorf("invalid code length bounds [%d,%d]", g.MinLength, g.MaxLength)
	}

	length := g.MinLength
	if span := g.MaxLength - g.MinLength; span > 0 {
		n, err := g.intn(span + 1)
		if err != nil {
			return "", err
		}
		length += n
	}

	code := make([]byte, length)
	for i := range code {
		n, err := g.intn(len(Alphabet))
		if err != nil {
			return "", err
		}
		code[i] = Alphabet[n]
	}
	return string(code), nil
}

func (g *Generator) intn(n int) (int, error) {
	r := g.Rand
	if r == nil {
		r = rand.Reader
	}
	v, err := rand.Int(r, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to read random source: %w", err)
	}
	return int(v.Int64()), nil
}

// Valid reports whether code can be used as a short code: 1 to MaxCodeLength
// characters of letters, digits, '-' or '_'.
func Valid(code string) bool {
	if code == "" || len(code) > MaxCodeLength {
		return false
	}
	for _, c := range code {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
