// Package ticketcode mints the short codes printed on tickets.
package ticketcode

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// codeBytes random bytes give an 8 character hex code.
const codeBytes = 4

// DefaultAttempts bounds the collision retry loop.
const DefaultAttempts = 16

// ErrExhausted is returned when every attempt collided with an existing code.
var ErrExhausted = errors.New("could not find an unused ticket code")

// ExistsFunc reports whether a code is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generator draws codes from a cryptographically secure source.
type Generator struct {
	rand     io.Reader
	attempts int
}

// NewGenerator returns a Generator reading from crypto/rand.
func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader, attempts: DefaultAttempts}
}

// NewGeneratorFrom uses src instead of crypto/rand. Tests use it to force
// collisions.
func NewGeneratorFrom(src io.Reader, attempts int) *Generator {
	if attempts < 1 {
		attempts = 1
	}
	return &Generator{rand: src, attempts: attempts}
}

// Next returns a code that exists reports as unused and that is not in
// reserved. reserved holds codes already handed out in the same batch.
func (g *Generator) Next(ctx context.Context, exists ExistsFunc, reserved map[string]struct{}) (string, error) {
	buf := make([]byte, codeBytes)
	for range g.attempts {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		code := strings.ToUpper(hex.EncodeToString(buf))
		if _, dup := reserved[code]; dup {
			continue
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrExhausted
}

// Normalize canonicalises a code typed at the gate.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
