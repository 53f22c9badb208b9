// Package code allocates the short numeric codes that identify rooms.
package code

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	// Length is the number of decimal digits in a room code.
	Length = 4

	// Space is the number of distinct codes (10^Length).
	Space = 10000

	// MaxAttempts bounds the number of random draws before giving up.
	MaxAttempts = 100
)

// ErrCapacityExhausted is returned when no free code was found within MaxAttempts draws.
var ErrCapacityExhausted = errors.New("unable to generate unique code")

// Generator draws room codes. The zero value uses crypto/rand.
type Generator struct {
	// Intn returns a uniform integer in [0, n). Tests may replace it.
	Intn func(n int) (int, error)
}

// Generate returns a zero-padded code for which taken reports false.
// Each attempt is an independent uniform draw over the whole code space.
func (g Generator) Generate(taken func(code string) bool) (string, error) {
	intn := g.Intn
	if intn == nil {
		intn = randomIndex
	}

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		n, err := intn(Space)
		if err != nil {
			return "", fmt.Errorf("draw code: %w", err)
		}
		c := Format(n)
		if taken == nil || !taken(c) {
			return c, nil
		}
	}
	return "", ErrCapacityExhausted
}

// Generate draws a code with the default Generator.
func Generate(taken func(code string) bool) (string, error) {
	return Generator{}.Generate(taken)
}

// Format renders n as a zero-padded room code.
func Format(n int) string {
	return fmt.Sprintf("%0*d", Length, n)
}

// Valid reports whether s has the shape of a room code.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// randomIndex returns a cryptographically secure random index in [0, n).
func randomIndex(n int) (int, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(i.Int64()), nil
}
