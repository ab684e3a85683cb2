// Package randstr generates the opaque identifiers handed out by the
// authorization server: pending request ids, authorization codes and access tokens.
//
// Each random byte is mapped onto the alphabet with byte % len(alphabet), which
// slightly favours the first symbols of the alphabet.
package randstr

import (
	"crypto/rand"
	"fmt"
	"io"
)

// DefaultAlphabet is letters and digits without the visually ambiguous I, O, l, 0 and 1.
const DefaultAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// MaxLength is the largest length a single call will produce.
const MaxLength = 256

const (
	// RequestIDLength is the length of pending authorization request identifiers.
	RequestIDLength = 8
	// CodeLength is the length of authorization codes.
	CodeLength = 8
	// TokenLength is the length of access tokens.
	TokenLength = 32
)

// Generator draws strings over an alphabet from a random source.
type Generator struct {
	alphabet string
	source   io.Reader
}

// New returns a Generator over DefaultAlphabet backed by crypto/rand.
func New() *Generator {
	return &Generator{alphabet: DefaultAlphabet, source: rand.Reader}
}

// NewWithSource returns a Generator reading from source. An empty alphabet selects DefaultAlphabet.
func NewWithSource(alphabet string, source io.Reader) *Generator {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	return &Generator{alphabet: alphabet, source: source}
}

// String returns length symbols. It fails when length is outside (0, MaxLength]
// or the random source cannot be read.
func (g *Generator) String(length int) (string, error) {
	if length <= 0 || length > MaxLength {
		return "", fmt.Errorf("length must satisfy 0 < length <= %d, but %d", MaxLength, length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(g.source, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	out := make([]byte, length)
	for i, b := range buf {
		out[i] = g.alphabet[int(b)%len(g.alphabet)]
	}
	return string(out), nil
}

var defaultGenerator = New()

// String returns length symbols from the default generator.
func String(length int) (string, error) {
	return defaultGenerator.String(length)
}
